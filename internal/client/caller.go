// Package client provides the shared outbound transport for provider API
// calls: per-provider rate limiting, response caching for read-only
// endpoints, bounded retries and uniform error normalization.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/apierr"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/cache"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/ratelimit"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/retry"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/telemetry"
)

const defaultTimeout = 60 * time.Second

// CallSpec describes one provider API call.
type CallSpec struct {
	// Provider labels the call for limiter selection, cache keys, metrics
	// and error normalization (apierr.ProviderDirect or ProviderMetrica).
	Provider string
	// Tool is the logical operation name attached to normalized errors.
	Tool string
	// Endpoint is the absolute request URL.
	Endpoint string
	// Method defaults to GET when empty.
	Method string
	// Body is JSON-marshalled into the request body when non-nil.
	Body any
	// Headers are set on the request after Content-Type.
	Headers map[string]string
	// Cacheable marks the call for response caching. Mutating calls must
	// leave this unset.
	Cacheable bool
	// CacheScope groups cache keys per logical resource (for example
	// "dictionaries"). Required when Cacheable is set.
	CacheScope string
	// SuccessCodes lists the HTTP statuses treated as success.
	// Defaults to 200 only.
	SuccessCodes []int
	// NotReadyCodes lists statuses mapped to a transient "not ready"
	// error, which the retry loop will poll through. Used by report
	// endpoints that answer 201/202 while the report is being built.
	NotReadyCodes []int
}

// Config wires the substrate components into a Caller.
type Config struct {
	HTTPClient *http.Client
	Limiters   map[string]*ratelimit.Limiter
	Retry      retry.Config
	Cache      cache.Store
	Telemetry  *telemetry.Provider
	Logger     logger.Logger
}

// Caller performs provider calls through the reliability substrate.
// It is safe for concurrent use.
type Caller struct {
	httpClient *http.Client
	limiters   map[string]*ratelimit.Limiter
	retryCfg   retry.Config
	store      cache.Store
	telemetry  *telemetry.Provider
	log        logger.Logger
}

// New creates a Caller. A nil HTTPClient gets a default with a 60s
// timeout; a nil Cache disables response caching.
func New(cfg Config) *Caller {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Caller{
		httpClient: httpClient,
		limiters:   cfg.Limiters,
		retryCfg:   cfg.Retry,
		store:      cfg.Cache,
		telemetry:  cfg.Telemetry,
		log:        log,
	}
}

// CallJSON performs the call and unmarshals the JSON response into out
// when out is non-nil.
func (c *Caller) CallJSON(ctx context.Context, spec CallSpec, out any) error {
	body, err := c.CallRaw(ctx, spec)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", spec.Tool, err)
	}
	return nil
}

// CallRaw performs the call and returns the raw response body. Report
// endpoints use it directly since their payloads are delimited text, not
// JSON.
func (c *Caller) CallRaw(ctx context.Context, spec CallSpec) ([]byte, error) {
	if spec.Endpoint == "" {
		return nil, fmt.Errorf("call %s: empty endpoint", spec.Tool)
	}
	if spec.Method == "" {
		spec.Method = http.MethodGet
	}

	cacheKey := ""
	if c.cacheable(spec) {
		cacheKey = cache.Key(spec.Provider, spec.CacheScope, map[string]any{
			"endpoint": spec.Endpoint,
			"body":     spec.Body,
		})
		if cached, ok := c.store.Get(ctx, cacheKey); ok {
			c.telemetry.RecordCacheHit(spec.Provider)
			return cached, nil
		}
		c.telemetry.RecordCacheMiss(spec.Provider)
	}

	retryCfg := c.retryCfg
	retryCfg.IsRetryable = func(err error) bool {
		return apierr.IsTransient(err) || retry.DefaultIsRetryable(err)
	}
	retryCfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.telemetry.RecordRetry(spec.Provider)
		c.log.Warn("provider call retrying",
			logger.String("provider", spec.Provider),
			logger.String("tool", spec.Tool),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err))
	}

	start := time.Now()
	var body []byte
	err := retry.Do(ctx, retryCfg, func() error {
		var attemptErr error
		body, attemptErr = c.attempt(ctx, spec)
		return attemptErr
	})
	c.telemetry.RecordCall(ctx, spec.Provider, outcome(err), time.Since(start))

	if err != nil {
		if e, ok := apierr.As(err); ok && e.Tool == "" {
			e.Tool = spec.Tool
		}
		return nil, err
	}

	if cacheKey != "" {
		c.store.Set(ctx, cacheKey, body)
	}
	return body, nil
}

// attempt performs one HTTP round trip: limiter wait, request, status
// classification.
func (c *Caller) attempt(ctx context.Context, spec CallSpec) ([]byte, error) {
	if limiter := c.limiters[spec.Provider]; limiter != nil {
		if err := limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("%s rate limiter: %w", spec.Provider, err)
		}
	}

	var bodyReader io.Reader
	if spec.Body != nil {
		encoded, err := json.Marshal(spec.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", spec.Tool, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.Endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", spec.Tool, err)
	}
	if spec.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range spec.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute %s request: %w", spec.Tool, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", spec.Tool, err)
	}

	if statusIn(resp.StatusCode, spec.SuccessCodes, http.StatusOK) {
		return respBody, nil
	}
	if statusIn(resp.StatusCode, spec.NotReadyCodes) {
		return nil, apierr.NotReady(spec.Provider, spec.Endpoint, resp.StatusCode)
	}
	return nil, apierr.FromHTTP(spec.Provider, spec.Endpoint, resp, respBody)
}

func (c *Caller) cacheable(spec CallSpec) bool {
	return spec.Cacheable && spec.CacheScope != "" && c.store != nil
}

func statusIn(status int, codes []int, defaults ...int) bool {
	if len(codes) == 0 {
		codes = defaults
	}
	for _, code := range codes {
		if status == code {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case apierr.IsTransient(err) || retry.DefaultIsRetryable(err):
		return telemetry.OutcomeTransient
	default:
		return telemetry.OutcomeFatal
	}
}
