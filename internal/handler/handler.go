// Package handler holds the gin handlers behind the correlator's HTTP
// surface: the join tool, export advance/cancel, provider passthroughs
// and health.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/accounts"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/apierr"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/config"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/direct"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/export"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/join"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/metrica"
)

// Handler carries the wired domain components for all routes.
type Handler struct {
	engine   *join.Engine
	exports  *export.Orchestrator
	registry *accounts.Registry
	direct   *direct.Client
	metrica  *metrica.Client
	cfg      *config.Config
	log      logger.Logger
}

// New creates the route handler set.
func New(
	engine *join.Engine,
	exports *export.Orchestrator,
	registry *accounts.Registry,
	directClient *direct.Client,
	metricaClient *metrica.Client,
	cfg *config.Config,
	log logger.Logger,
) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		engine:   engine,
		exports:  exports,
		registry: registry,
		direct:   directClient,
		metrica:  metricaClient,
		cfg:      cfg,
		log:      log,
	}
}

// Register wires all routes into the router. The metrics handler is
// optional.
func Register(router *gin.Engine, h *Handler, metrics http.Handler) {
	router.GET("/health", h.Health)
	router.HEAD("/health", h.HealthHead)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/api/v1")
	v1.POST("/join", h.Join)
	v1.POST("/exports/advance", h.AdvanceExport)
	v1.POST("/exports/cancel", h.CancelExport)
	v1.GET("/accounts", h.Accounts)
	v1.GET("/direct/dictionaries", h.Dictionaries)
	v1.GET("/metrica/counters", h.Counters)
	v1.GET("/metrica/stats", h.Stats)
}

// respondError maps a domain error onto an HTTP status and the uniform
// `{"error": record}` envelope.
func (h *Handler) respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	if apiErr, ok := apierr.As(err); ok {
		c.JSON(statusForAPIError(apiErr), gin.H{"error": apiErr})
		return
	}

	status := statusForError(err)
	c.JSON(status, gin.H{"error": gin.H{
		"type":    typeForStatus(status),
		"message": err.Error(),
	}})
}

// badRequest answers 400 with the uniform envelope for input rejected
// before any domain call.
func (h *Handler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
		"type":    "invalid_request",
		"message": message,
	}})
}

func statusForError(err error) int {
	var resolveErr *accounts.ResolveError
	switch {
	case errors.Is(err, join.ErrInvalidRequest),
		errors.Is(err, export.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, export.ErrParamsMismatch),
		errors.As(err, &resolveErr):
		return http.StatusConflict
	case errors.Is(err, join.ErrNoJoinKeys):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// statusForAPIError maps a normalized provider error. Rate limiting and
// the write guard get their conventional statuses; otherwise the kind
// decides.
func statusForAPIError(e *apierr.Error) int {
	if e.Type == "write_disabled" {
		return http.StatusForbidden
	}
	switch e.Kind {
	case apierr.KindTransient:
		if e.Hint == apierr.HintRateLimit || e.Hint == apierr.HintUnits {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	case apierr.KindFatalRequest:
		return http.StatusBadRequest
	case apierr.KindAmbiguous:
		return http.StatusConflict
	case apierr.KindFatalResource:
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

func typeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "no_join_keys"
	}
	return "internal_error"
}
