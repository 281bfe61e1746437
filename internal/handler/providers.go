package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/metrica"
)

// Accounts handles GET /api/v1/accounts.
func (h *Handler) Accounts(c *gin.Context) {
	profiles := h.registry.Profiles()
	c.JSON(http.StatusOK, gin.H{
		"accounts": profiles,
		"total":    len(profiles),
	})
}

// Dictionaries handles GET /api/v1/direct/dictionaries. The names query
// parameter is a comma-separated list of dictionary names, e.g.
// names=Currencies,TimeZones.
func (h *Handler) Dictionaries(c *gin.Context) {
	names := splitNames(c.Query("names"))
	if len(names) == 0 {
		h.badRequest(c, "names query parameter is required, e.g. names=Currencies,TimeZones")
		return
	}

	raw, err := h.direct.Dictionaries(c.Request.Context(), names)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// Stats handles GET /api/v1/metrica/stats. With granularity set the daily
// rows are folded into period buckets; the date dimension is filled in
// when the caller names none.
func (h *Handler) Stats(c *gin.Context) {
	opts := metrica.StatOptions{
		CounterID:  h.cfg.Metrica.CounterID,
		Metrics:    c.Query("metrics"),
		Dimensions: c.Query("dimensions"),
		Filters:    c.Query("filters"),
		Sort:       c.Query("sort"),
		Date1:      c.Query("date1"),
		Date2:      c.Query("date2"),
	}
	if raw := c.Query("counter_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.badRequest(c, fmt.Sprintf("counter_id %q is not a number", raw))
			return
		}
		opts.CounterID = id
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.badRequest(c, fmt.Sprintf("limit %q is not a number", raw))
			return
		}
		opts.Limit = n
	}
	if opts.Metrics == "" {
		h.badRequest(c, "metrics query parameter is required, e.g. metrics=ym:s:visits")
		return
	}
	if opts.CounterID == 0 {
		h.badRequest(c, "counter_id is required when no default counter is configured")
		return
	}

	granularity := c.Query("granularity")
	if granularity != "" {
		if !metrica.ValidGranularity(granularity) {
			h.badRequest(c, fmt.Sprintf("unknown granularity %q; want day, week, month, quarter or year", granularity))
			return
		}
		if opts.Dimensions == "" {
			opts.Dimensions = "ym:s:date"
		}
	}

	resp, err := h.metrica.Stats(c.Request.Context(), opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if granularity == "" {
		c.JSON(http.StatusOK, resp)
		return
	}

	periods, err := metrica.TimeSeries(resp.Data, granularity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"granularity":  granularity,
		"periods":      periods,
		"total_rows":   resp.TotalRows,
		"sampled":      resp.Sampled,
		"sample_share": resp.SampleShare,
	})
}

// Counters handles GET /api/v1/metrica/counters.
func (h *Handler) Counters(c *gin.Context) {
	raw, err := h.metrica.Counters(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func splitNames(raw string) []string {
	parts := strings.Split(raw, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}
