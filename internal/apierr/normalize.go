package apierr

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// directErrorBody is the error envelope of the Direct JSON API.
type directErrorBody struct {
	Error struct {
		ErrorCode   int    `json:"error_code"`
		ErrorString string `json:"error_string"`
		ErrorDetail string `json:"error_detail"`
		RequestID   string `json:"request_id"`
	} `json:"error"`
}

// metricaErrorBody is the error envelope of the Metrica APIs.
type metricaErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Errors  []struct {
		ErrorType string `json:"error_type"`
		Message   string `json:"message"`
	} `json:"errors"`
}

// FromHTTP normalizes a non-success provider HTTP response.
// The endpoint is sanitized to scheme+host+path before it is recorded.
func FromHTTP(provider, endpoint string, resp *http.Response, body []byte) *Error {
	e := &Error{
		Type:       "api_error",
		Provider:   provider,
		Endpoint:   SanitizeEndpoint(endpoint),
		HTTPStatus: resp.StatusCode,
		HTTPReason: http.StatusText(resp.StatusCode),
		RequestID:  requestIDFromHeader(resp.Header),
		Kind:       KindFatalRequest,
	}

	switch provider {
	case ProviderDirect:
		applyDirectBody(e, body)
	case ProviderMetrica:
		applyMetricaBody(e, body)
	}

	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = e.HTTPReason
		}
	}

	if e.Hint == "" {
		e.Hint, e.Kind = classifyHTTPStatus(resp.StatusCode)
	}

	// A missing Logs API resource means the export expired or was cleaned;
	// retrying the same request id cannot succeed.
	if resp.StatusCode == http.StatusNotFound && strings.Contains(endpoint, "logrequest") {
		e.Type = "export_expired"
		e.Hint = HintRestart
		e.Kind = KindFatalResource
	}

	return e
}

// applyDirectBody fills the record from a Direct error envelope when present.
func applyDirectBody(e *Error, body []byte) {
	var parsed directErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error.ErrorCode == 0 {
		return
	}

	e.ErrorCode = strconv.Itoa(parsed.Error.ErrorCode)
	e.Message = parsed.Error.ErrorString
	e.Detail = parsed.Error.ErrorDetail
	if parsed.Error.RequestID != "" {
		e.RequestID = parsed.Error.RequestID
	}
	if known, ok := directErrorCodes[parsed.Error.ErrorCode]; ok {
		e.Hint = known.hint
		e.Kind = known.kind
	} else {
		e.Hint = HintGeneric
	}
}

// applyMetricaBody fills the record from a Metrica error envelope when present.
func applyMetricaBody(e *Error, body []byte) {
	var parsed metricaErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return
	}
	if parsed.Code == 0 && parsed.Message == "" && len(parsed.Errors) == 0 {
		return
	}

	if parsed.Code != 0 {
		e.ErrorCode = strconv.Itoa(parsed.Code)
	}
	e.Message = parsed.Message
	if e.Message == "" && len(parsed.Errors) > 0 {
		e.Message = parsed.Errors[0].Message
	}

	var details []string
	for _, item := range parsed.Errors {
		if item.ErrorType != "" {
			details = append(details, item.ErrorType)
		}
	}
	e.Detail = strings.Join(details, ", ")

	for _, item := range parsed.Errors {
		switch item.ErrorType {
		case "invalid_token", "unauthorized", "access_denied":
			e.Hint = HintToken
			e.Kind = KindFatalRequest
			return
		case "quota_requests_by_ip", "quota_requests_by_uid", "quota_parallel_requests":
			e.Hint = HintRateLimit
			e.Kind = KindTransient
			return
		}
	}
}

// NotReady builds the transient "resource not ready" error the providers
// signal while a report or export is still materializing.
func NotReady(provider, endpoint string, status int) *Error {
	return &Error{
		Type:       "report_not_ready",
		Provider:   provider,
		Message:    "report is not ready yet",
		Hint:       HintReport,
		Endpoint:   SanitizeEndpoint(endpoint),
		HTTPStatus: status,
		Kind:       KindTransient,
	}
}

// SanitizeEndpoint strips query and fragment from a URL, keeping
// scheme+host+path. Tokens and filter values never reach logs this way.
func SanitizeEndpoint(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return endpoint
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}

// requestIDFromHeader extracts the provider request id for log correlation.
func requestIDFromHeader(h http.Header) string {
	return h.Get("X-Request-Id")
}
