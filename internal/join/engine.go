// Package join correlates Yandex Direct campaign activity with Yandex
// Metrica analytics. Two strategies are implemented: a deterministic
// date-bucketed join on a shared UTM tag, and a best-effort visit-level
// join on click identifiers backed by a Logs API export.
package join

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/accounts"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/config"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/direct"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/export"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/metrica"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/telemetry"
)

// Join strategies.
const (
	StrategyUTM     = "by_utm"
	StrategyClickID = "by_click_id"
)

// Result statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusPending = "pending"
)

// ErrInvalidRequest marks join requests rejected before any provider
// call is made.
var ErrInvalidRequest = errors.New("invalid join request")

// Request describes one join invocation.
type Request struct {
	Strategy string

	// Addressing. AccountID is resolved through the registry; explicit
	// ClientLogin/CounterID win over registry values.
	AccountID   string
	ClientLogin string
	CounterID   int64

	CampaignID   int64
	CampaignName string
	UTMCampaign  string
	DateFrom     string
	DateTo       string

	// by_click_id knobs. Zero values fall back to configuration.
	RequestID             string
	MaxWait               time.Duration
	RowBudget             int
	LogsSource            string
	LogsFields            string
	ClickIDField          string
	StartURLField         string
	BannerField           string
	DirectReportType      string
	DirectFields          []string
	DirectClickIDField    string
	DirectCampaignIDField string
}

// Result is the outcome of a join. Exactly one of ByUTM, ByClickID, or
// Export is set, depending on strategy and completion.
type Result struct {
	Status   string   `json:"status"`
	Strategy string   `json:"strategy"`
	Warnings []string `json:"warnings,omitempty"`

	ByUTM     *UTMJoin      `json:"by_utm,omitempty"`
	ByClickID *ClickIDJoin  `json:"by_click_id,omitempty"`
	Export    *ExportStatus `json:"export,omitempty"`
}

// ExportStatus reports a not-yet-ready export backing a click-id join.
type ExportStatus struct {
	RequestID  string       `json:"request_id"`
	State      export.State `json:"state"`
	LastStatus string       `json:"last_status,omitempty"`
	Note       string       `json:"note"`
}

// Config wires an Engine.
type Config struct {
	Direct    *direct.Client
	Metrica   *metrica.Client
	Exports   *export.Orchestrator
	Registry  *accounts.Registry
	Defaults  config.MetricaConfig
	Telemetry *telemetry.Provider
	Logger    logger.Logger
}

// Engine runs join strategies against the provider clients.
type Engine struct {
	direct    *direct.Client
	metrica   *metrica.Client
	exports   *export.Orchestrator
	registry  *accounts.Registry
	defaults  config.MetricaConfig
	telemetry *telemetry.Provider
	log       logger.Logger
}

// New creates a join engine.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		direct:    cfg.Direct,
		metrica:   cfg.Metrica,
		exports:   cfg.Exports,
		registry:  cfg.Registry,
		defaults:  cfg.Defaults,
		telemetry: cfg.Telemetry,
		log:       log,
	}
}

// Run executes the requested join strategy.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	ctx, span := e.telemetry.StartSpan(ctx, "join.run",
		attribute.String("strategy", req.Strategy),
		attribute.String("account_id", req.AccountID))
	defer span.End()

	started := time.Now()
	result, err := e.run(ctx, req)

	status := "error"
	if err == nil {
		status = result.Status
	}
	e.telemetry.RecordJoin(ctx, req.Strategy, status, time.Since(started))
	return result, err
}

func (e *Engine) run(ctx context.Context, req Request) (*Result, error) {
	resolution, err := e.registry.Resolve(req.AccountID, req.ClientLogin, req.CounterID)
	if err != nil {
		return nil, err
	}
	if resolution.CounterID != 0 {
		req.CounterID = resolution.CounterID
	}
	if req.CounterID == 0 {
		req.CounterID = e.defaults.CounterID
	}
	dc := e.direct.WithClientLogin(resolution.DirectClientLogin)

	switch req.Strategy {
	case StrategyUTM:
		return e.byUTM(ctx, dc, req)
	case StrategyClickID:
		return e.byClickID(ctx, dc, req)
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidRequest, req.Strategy)
	}
}

func (e *Engine) requireRange(req Request) error {
	if req.DateFrom == "" || req.DateTo == "" {
		return fmt.Errorf("%w: date_from and date_to are required", ErrInvalidRequest)
	}
	if req.CounterID == 0 {
		return fmt.Errorf("%w: counter_id is required (no account or config default)", ErrInvalidRequest)
	}
	return nil
}

func statusFromWarnings(warnings []string) string {
	if len(warnings) > 0 {
		return StatusPartial
	}
	return StatusOK
}
