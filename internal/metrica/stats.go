package metrica

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/apierr"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/client"
)

// StatOptions describe one stat/v1/data request. Zero-valued fields are
// omitted from the query.
type StatOptions struct {
	CounterID  int64
	Metrics    string
	Dimensions string
	Filters    string
	Sort       string
	Limit      int
	Date1      string
	Date2      string
}

// StatDimension is one dimension value on a stats row.
type StatDimension struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

// StatRow is one row of a stats response: dimension values plus one
// number per requested metric.
type StatRow struct {
	Dimensions []StatDimension `json:"dimensions"`
	Metrics    []float64       `json:"metrics"`
}

// StatResponse is the subset of the stats answer the correlator reads.
type StatResponse struct {
	Data        []StatRow `json:"data"`
	TotalRows   int64     `json:"total_rows"`
	SampleShare float64   `json:"sample_share"`
	Sampled     bool      `json:"sampled"`
}

// Stats runs a stat/v1/data query.
func (c *Client) Stats(ctx context.Context, opts StatOptions) (*StatResponse, error) {
	query := url.Values{}
	if opts.CounterID != 0 {
		query.Set("ids", strconv.FormatInt(opts.CounterID, 10))
	}
	setNonEmpty(query, "metrics", opts.Metrics)
	setNonEmpty(query, "dimensions", opts.Dimensions)
	setNonEmpty(query, "filters", opts.Filters)
	setNonEmpty(query, "sort", opts.Sort)
	setNonEmpty(query, "date1", opts.Date1)
	setNonEmpty(query, "date2", opts.Date2)
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var out StatResponse
	err := c.caller.CallJSON(ctx, client.CallSpec{
		Provider: apierr.ProviderMetrica,
		Tool:     "metrica.stats",
		Endpoint: c.endpoint("stat/v1/data") + "?" + query.Encode(),
		Method:   http.MethodGet,
		Headers:  c.headers(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FilterQuote quotes a value for a Metrica filters expression. Values are
// single-quoted; when the value itself contains a single quote it falls
// back to double quotes with escaping.
func FilterQuote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	if !strings.Contains(value, "'") {
		return "'" + escaped + "'"
	}
	return `"` + strings.ReplaceAll(escaped, `"`, `\"`) + `"`
}

func setNonEmpty(query url.Values, key, value string) {
	if value != "" {
		query.Set(key, value)
	}
}
