package apierr

import (
	"errors"
	"net/http"
	"testing"
)

func httpResponse(t *testing.T, status int, requestID string) *http.Response {
	t.Helper()

	resp := &http.Response{
		StatusCode: status,
		Header:     http.Header{},
	}
	if requestID != "" {
		resp.Header.Set("X-Request-Id", requestID)
	}
	return resp
}

func TestFromHTTP_DirectAuthError(t *testing.T) {
	t.Helper()

	body := []byte(`{"error":{"error_code":53,"error_string":"Authorization error","error_detail":"Token expired","request_id":"req-1"}}`)
	e := FromHTTP(ProviderDirect, "https://api.direct.yandex.com/json/v5/campaigns?x=1", httpResponse(t, 400, ""), body)

	if e.ErrorCode != "53" {
		t.Errorf("error_code: got %q, want %q", e.ErrorCode, "53")
	}
	if e.Message != "Authorization error" {
		t.Errorf("message: got %q", e.Message)
	}
	if e.Detail != "Token expired" {
		t.Errorf("detail: got %q", e.Detail)
	}
	if e.RequestID != "req-1" {
		t.Errorf("request_id: got %q, want %q", e.RequestID, "req-1")
	}
	if e.Hint != HintToken {
		t.Errorf("hint: got %q, want %q", e.Hint, HintToken)
	}
	if e.Kind != KindFatalRequest {
		t.Errorf("kind: got %q, want %q", e.Kind, KindFatalRequest)
	}
	if e.Endpoint != "https://api.direct.yandex.com/json/v5/campaigns" {
		t.Errorf("endpoint not sanitized: got %q", e.Endpoint)
	}
}

func TestFromHTTP_DirectRateLimit(t *testing.T) {
	t.Helper()

	body := []byte(`{"error":{"error_code":56,"error_string":"Request limit reached"}}`)
	e := FromHTTP(ProviderDirect, "https://api.direct.yandex.com/json/v5/campaigns", httpResponse(t, 400, ""), body)

	if e.Hint != HintRateLimit {
		t.Errorf("hint: got %q, want %q", e.Hint, HintRateLimit)
	}
	if e.Kind != KindTransient {
		t.Errorf("kind: got %q, want %q", e.Kind, KindTransient)
	}
}

func TestFromHTTP_DirectUnknownCodePassesThrough(t *testing.T) {
	t.Helper()

	body := []byte(`{"error":{"error_code":9999,"error_string":"Something new"}}`)
	e := FromHTTP(ProviderDirect, "https://api.direct.yandex.com/json/v5/campaigns", httpResponse(t, 400, ""), body)

	if e.ErrorCode != "9999" {
		t.Errorf("error_code: got %q, want %q", e.ErrorCode, "9999")
	}
	if e.Message != "Something new" {
		t.Errorf("message: got %q", e.Message)
	}
	if e.Hint != HintGeneric {
		t.Errorf("hint: got %q, want generic", e.Hint)
	}
}

func TestFromHTTP_MetricaQuotaIsTransient(t *testing.T) {
	t.Helper()

	body := []byte(`{"code":429,"message":"Too many requests","errors":[{"error_type":"quota_requests_by_ip","message":"Too many requests"}]}`)
	e := FromHTTP(ProviderMetrica, "https://api-metrika.yandex.net/stat/v1/data", httpResponse(t, 429, "m-req-7"), body)

	if e.ErrorCode != "429" {
		t.Errorf("error_code: got %q, want %q", e.ErrorCode, "429")
	}
	if e.Hint != HintRateLimit {
		t.Errorf("hint: got %q, want %q", e.Hint, HintRateLimit)
	}
	if e.Kind != KindTransient {
		t.Errorf("kind: got %q, want %q", e.Kind, KindTransient)
	}
	if e.RequestID != "m-req-7" {
		t.Errorf("request_id from header: got %q, want %q", e.RequestID, "m-req-7")
	}
}

func TestFromHTTP_MetricaInvalidToken(t *testing.T) {
	t.Helper()

	body := []byte(`{"code":403,"message":"Invalid oauth_token","errors":[{"error_type":"invalid_token","message":"Invalid oauth_token"}]}`)
	e := FromHTTP(ProviderMetrica, "https://api-metrika.yandex.net/stat/v1/data", httpResponse(t, 403, ""), body)

	if e.Hint != HintToken {
		t.Errorf("hint: got %q, want %q", e.Hint, HintToken)
	}
	if e.Kind != KindFatalRequest {
		t.Errorf("kind: got %q, want %q", e.Kind, KindFatalRequest)
	}
	if e.Detail != "invalid_token" {
		t.Errorf("detail: got %q, want %q", e.Detail, "invalid_token")
	}
}

func TestFromHTTP_BareStatuses(t *testing.T) {
	t.Helper()

	tests := []struct {
		status   int
		wantHint string
		wantKind Kind
	}{
		{429, HintRateLimit, KindTransient},
		{500, HintGeneric, KindTransient},
		{503, HintGeneric, KindTransient},
		{400, HintParams, KindFatalRequest},
		{401, HintToken, KindFatalRequest},
	}

	for _, tc := range tests {
		e := FromHTTP(ProviderMetrica, "https://api-metrika.yandex.net/x", httpResponse(t, tc.status, ""), []byte("boom"))
		if e.Hint != tc.wantHint {
			t.Errorf("status %d hint: got %q, want %q", tc.status, e.Hint, tc.wantHint)
		}
		if e.Kind != tc.wantKind {
			t.Errorf("status %d kind: got %q, want %q", tc.status, e.Kind, tc.wantKind)
		}
		if e.Message != "boom" {
			t.Errorf("status %d message: got %q, want body passthrough", tc.status, e.Message)
		}
	}
}

func TestFromHTTP_ExpiredExport(t *testing.T) {
	t.Helper()

	endpoint := "https://api-metrika.yandex.net/management/v1/counter/1/logrequest/42/part/0/download"
	e := FromHTTP(ProviderMetrica, endpoint, httpResponse(t, 404, ""), []byte("not found"))

	if e.Type != "export_expired" {
		t.Errorf("type: got %q, want export_expired", e.Type)
	}
	if e.Hint != HintRestart {
		t.Errorf("hint: got %q, want %q", e.Hint, HintRestart)
	}
	if e.Kind != KindFatalResource {
		t.Errorf("kind: got %q, want %q", e.Kind, KindFatalResource)
	}
}

func TestNotReady(t *testing.T) {
	t.Helper()

	e := NotReady(ProviderDirect, "https://api.direct.yandex.com/json/v5/reports", 202)
	if e.Kind != KindTransient {
		t.Errorf("kind: got %q, want transient", e.Kind)
	}
	if e.Hint != HintReport {
		t.Errorf("hint: got %q, want %q", e.Hint, HintReport)
	}
	if !IsTransient(e) {
		t.Error("NotReady must classify as transient")
	}
}

func TestSanitizeEndpoint(t *testing.T) {
	t.Helper()

	tests := []struct {
		in   string
		want string
	}{
		{"https://api-metrika.yandex.net/stat/v1/data?oauth_token=secret&ids=1", "https://api-metrika.yandex.net/stat/v1/data"},
		{"https://host/path#frag", "https://host/path"},
		{"not a url", "not a url"},
		{"", ""},
	}

	for _, tc := range tests {
		if got := SanitizeEndpoint(tc.in); got != tc.want {
			t.Errorf("sanitize(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsTransient_PlainErrors(t *testing.T) {
	t.Helper()

	if IsTransient(nil) {
		t.Error("nil must not be transient")
	}
	if IsTransient(errors.New("some failure")) {
		t.Error("plain errors must not be transient")
	}

	wrapped := New(ProviderDirect, "api_error", "limit", HintRateLimit, KindTransient)
	if !IsTransient(wrapped) {
		t.Error("transient record must be transient")
	}
}

func TestWithTool_DoesNotMutate(t *testing.T) {
	t.Helper()

	orig := New(ProviderDirect, "api_error", "m", "", KindFatalRequest)
	named := orig.WithTool("join.by_utm")

	if named.Tool != "join.by_utm" {
		t.Errorf("tool: got %q", named.Tool)
	}
	if orig.Tool != "" {
		t.Errorf("original mutated: tool %q", orig.Tool)
	}
}
