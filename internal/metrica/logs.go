package metrica

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/apierr"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/client"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/report"
)

// LogsParams scope one Logs API export. Empty Source and Fields fall back
// to the configured defaults.
type LogsParams struct {
	CounterID int64
	Date1     string
	Date2     string
	Source    string
	Fields    string
}

// Evaluation is the Logs API feasibility answer for a planned export.
type Evaluation struct {
	Possible               bool  `json:"possible"`
	MaxPossibleDayQuantity int64 `json:"max_possible_day_quantity"`
}

// LogRequestInfo is the parsed state of one log request. The Logs API is
// loose about field names across deployments, so parsing tolerates the
// known spellings of the request id, status and part list.
type LogRequestInfo struct {
	RequestID string
	Status    string
	Parts     []int
}

// Log request statuses that mean the export data is ready to download.
var readyStatuses = map[string]struct{}{
	"processed": {},
	"completed": {},
	"done":      {},
	"ready":     {},
}

// Log request statuses that mean the export failed or was cancelled
// server-side.
var failedStatuses = map[string]struct{}{
	"canceled":  {},
	"cancelled": {},
	"failed":    {},
	"error":     {},
}

// StatusReady reports whether an export status means downloadable.
func StatusReady(status string) bool {
	_, ok := readyStatuses[status]
	return ok
}

// StatusFailed reports whether an export status is terminal failure.
func StatusFailed(status string) bool {
	_, ok := failedStatuses[status]
	return ok
}

// LogsEvaluate asks whether the planned export is feasible for the
// counter.
func (c *Client) LogsEvaluate(ctx context.Context, p LogsParams) (*Evaluation, error) {
	endpoint := c.logsBase(p.CounterID) + "/logrequests/evaluate?" + c.logsQuery(p).Encode()

	var out struct {
		Evaluation Evaluation `json:"log_request_evaluation"`
	}
	err := c.caller.CallJSON(ctx, client.CallSpec{
		Provider: apierr.ProviderMetrica,
		Tool:     "metrica.logs.evaluate",
		Endpoint: endpoint,
		Method:   http.MethodGet,
		Headers:  c.headers(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Evaluation, nil
}

// LogsCreate starts a new export and returns its parsed state including
// the provider-assigned request id.
func (c *Client) LogsCreate(ctx context.Context, p LogsParams) (*LogRequestInfo, error) {
	endpoint := c.logsBase(p.CounterID) + "/logrequests?" + c.logsQuery(p).Encode()

	body, err := c.caller.CallRaw(ctx, client.CallSpec{
		Provider: apierr.ProviderMetrica,
		Tool:     "metrica.logs.create",
		Endpoint: endpoint,
		Method:   http.MethodPost,
		Headers:  c.headers(),
	})
	if err != nil {
		return nil, err
	}

	info := parseLogRequest(body)
	if info.RequestID == "" {
		return nil, fmt.Errorf("logs create: no request id in response %s", truncate(body, 200))
	}
	return &info, nil
}

// LogsInfo fetches the state of one export by request id.
func (c *Client) LogsInfo(ctx context.Context, counterID int64, requestID string) (*LogRequestInfo, error) {
	body, err := c.caller.CallRaw(ctx, client.CallSpec{
		Provider: apierr.ProviderMetrica,
		Tool:     "metrica.logs.info",
		Endpoint: c.logsBase(counterID) + "/logrequest/" + url.PathEscape(requestID),
		Method:   http.MethodGet,
		Headers:  c.headers(),
	})
	if err != nil {
		return nil, err
	}
	info := parseLogRequest(body)
	return &info, nil
}

// LogsAllInfo lists every export the counter knows about. Used as a
// fallback when the single-request info endpoint is unavailable.
func (c *Client) LogsAllInfo(ctx context.Context, counterID int64) ([]LogRequestInfo, error) {
	body, err := c.caller.CallRaw(ctx, client.CallSpec{
		Provider: apierr.ProviderMetrica,
		Tool:     "metrica.logs.allinfo",
		Endpoint: c.logsBase(counterID) + "/logrequests",
		Method:   http.MethodGet,
		Headers:  c.headers(),
	})
	if err != nil {
		return nil, err
	}
	return parseLogRequestList(body), nil
}

// LogsDownload fetches one part of a ready export and parses it. Every
// part carries its own header line, which the parser detects and drops.
func (c *Client) LogsDownload(ctx context.Context, counterID int64, requestID string, part int) (report.Table, error) {
	endpoint := c.logsBase(counterID) + "/logrequest/" + url.PathEscape(requestID) +
		"/part/" + strconv.Itoa(part) + "/download"

	raw, err := c.caller.CallRaw(ctx, client.CallSpec{
		Provider: apierr.ProviderMetrica,
		Tool:     "metrica.logs.download",
		Endpoint: endpoint,
		Method:   http.MethodGet,
		Headers:  c.headers(),
	})
	if err != nil {
		return report.Table{}, err
	}

	return report.Parse(string(raw), report.Options{Delimiter: c.cfg.LogsDelimiter}), nil
}

// LogsClean deletes a processed export's prepared data on the provider.
func (c *Client) LogsClean(ctx context.Context, counterID int64, requestID string) error {
	_, err := c.caller.CallRaw(ctx, client.CallSpec{
		Provider: apierr.ProviderMetrica,
		Tool:     "metrica.logs.clean",
		Endpoint: c.logsBase(counterID) + "/logrequest/" + url.PathEscape(requestID) + "/clean",
		Method:   http.MethodPost,
		Headers:  c.headers(),
	})
	return err
}

// LogsCancel aborts an export that is still being prepared.
func (c *Client) LogsCancel(ctx context.Context, counterID int64, requestID string) error {
	_, err := c.caller.CallRaw(ctx, client.CallSpec{
		Provider: apierr.ProviderMetrica,
		Tool:     "metrica.logs.cancel",
		Endpoint: c.logsBase(counterID) + "/logrequest/" + url.PathEscape(requestID) + "/cancel",
		Method:   http.MethodPost,
		Headers:  c.headers(),
	})
	return err
}

func (c *Client) logsBase(counterID int64) string {
	return c.endpoint("management/v1/counter/" + strconv.FormatInt(counterID, 10))
}

func (c *Client) logsQuery(p LogsParams) url.Values {
	source := p.Source
	if source == "" {
		source = c.cfg.LogsSource
	}
	fields := p.Fields
	if fields == "" {
		fields = c.cfg.LogsFields
	}

	query := url.Values{}
	setNonEmpty(query, "date1", p.Date1)
	setNonEmpty(query, "date2", p.Date2)
	setNonEmpty(query, "source", source)
	setNonEmpty(query, "fields", fields)
	return query
}

// parseLogRequest reads a log request payload, unwrapping the
// {"log_request": {...}} envelope when present.
func parseLogRequest(body []byte) LogRequestInfo {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return LogRequestInfo{}
	}
	return logRequestFromMap(payload)
}

// parseLogRequestList reads an allinfo payload. The request list has been
// seen under several keys.
func parseLogRequestList(body []byte) []LogRequestInfo {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}

	var items []any
	for _, key := range []string{"requests", "data", "result", "log_requests"} {
		if list, ok := payload[key].([]any); ok {
			items = list
			break
		}
	}

	infos := make([]LogRequestInfo, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		infos = append(infos, logRequestFromMap(m))
	}
	return infos
}

func logRequestFromMap(payload map[string]any) LogRequestInfo {
	src := payload
	if nested, ok := payload["log_request"].(map[string]any); ok {
		src = nested
	}

	info := LogRequestInfo{
		RequestID: strings.TrimSpace(asString(firstKey(src, "request_id", "requestId", "requestID", "id"))),
		Status:    strings.ToLower(strings.TrimSpace(asString(firstKey(src, "status", "state")))),
	}
	info.Parts = partNumbers(firstKey(src, "parts", "part", "files"))
	return info
}

func partNumbers(value any) []int {
	list, ok := value.([]any)
	if !ok {
		return nil
	}

	seen := map[int]struct{}{}
	var parts []int
	for _, item := range list {
		var num any = item
		if m, ok := item.(map[string]any); ok {
			num = firstKey(m, "part_number", "partNumber", "number")
		}
		n, ok := asInt(num)
		if !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		parts = append(parts, n)
	}
	sort.Ints(parts)
	return parts
}

func firstKey(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return nil
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case json.Number:
		return s.String()
	default:
		return fmt.Sprintf("%v", s)
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(parsed), true
	default:
		return 0, false
	}
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
