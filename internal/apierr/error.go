// Package apierr normalizes provider-specific failures into one uniform
// error record shared by every outbound call path.
package apierr

import (
	"errors"
	"fmt"
	"net"
)

// Kind classifies a normalized error for retry and surfacing decisions.
type Kind string

const (
	// KindTransient errors are retried automatically up to the attempt limit.
	KindTransient Kind = "transient"
	// KindFatalRequest errors (malformed input, auth, permissions) are never retried.
	KindFatalRequest Kind = "fatal_request"
	// KindFatalResource errors (export expired, quota exhausted) require the
	// caller to restart the operation from scratch.
	KindFatalResource Kind = "fatal_resource"
	// KindAmbiguous errors (account/counter disambiguation) are surfaced
	// before any provider call is made.
	KindAmbiguous Kind = "ambiguous"
)

// Providers known to the normalizer.
const (
	ProviderDirect  = "direct"
	ProviderMetrica = "metrica"
)

// Error is the uniform provider error record. It satisfies the error
// interface so it can travel through ordinary error returns and be
// recovered with errors.As.
type Error struct {
	Tool       string `json:"tool,omitempty"`
	Type       string `json:"type"`
	Provider   string `json:"provider,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Message    string `json:"message"`
	Hint       string `json:"hint,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	HTTPReason string `json:"http_reason,omitempty"`

	// Kind drives retry classification and HTTP status mapping; it is not
	// part of the serialized record.
	Kind Kind `json:"-"`
}

// Error renders the record for logs and wrapped error chains.
func (e *Error) Error() string {
	switch {
	case e.Provider != "" && e.ErrorCode != "":
		return fmt.Sprintf("%s error %s: %s", e.Provider, e.ErrorCode, e.Message)
	case e.Provider != "":
		return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
	default:
		return e.Message
	}
}

// WithTool returns a copy of the error attributed to the given tool name.
// The original record is not mutated.
func (e *Error) WithTool(tool string) *Error {
	clone := *e
	clone.Tool = tool
	return &clone
}

// New builds a normalized error outside the HTTP path (guards, mismatches,
// disambiguation).
func New(provider, typ, message, hint string, kind Kind) *Error {
	return &Error{
		Type:     typ,
		Provider: provider,
		Message:  message,
		Hint:     hint,
		Kind:     kind,
	}
}

// As extracts a normalized error from an error chain.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsTransient reports whether the error should be retried: a normalized
// transient error, or a network-level timeout. Transport failures without a
// normalized record (connection refused and friends) are classified by the
// retry package's default matcher, composed by the caller.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := As(err); ok {
		return apiErr.Kind == KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsFatalResource reports whether the error requires restarting the
// provider-side resource.
func IsFatalResource(err error) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Kind == KindFatalResource
}
