package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/export"
)

// sampleRows caps the data preview attached to a completed advance.
const sampleRows = 10

// AdvanceExportRequest is the decoded body of POST /api/v1/exports/advance.
type AdvanceExportRequest struct {
	RequestID      string `json:"request_id"`
	CounterID      int64  `json:"counter_id"`
	Date1          string `json:"date1"`
	Date2          string `json:"date2"`
	Source         string `json:"source"`
	Fields         string `json:"fields"`
	RowBudget      int    `json:"row_budget"`
	MaxWaitSeconds int    `json:"max_wait_seconds"`
}

// CancelExportRequest is the decoded body of POST /api/v1/exports/cancel.
type CancelExportRequest struct {
	RequestID string `json:"request_id"`
	CounterID int64  `json:"counter_id"`
}

// advanceResponse augments the orchestrator result with a small data
// preview; full tables are consumed by the join engine, not the wire.
type advanceResponse struct {
	*export.AdvanceResult
	Columns []string            `json:"columns,omitempty"`
	Sample  []map[string]string `json:"sample,omitempty"`
}

// AdvanceExport handles POST /api/v1/exports/advance.
func (h *Handler) AdvanceExport(c *gin.Context) {
	var req AdvanceExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	result, err := h.exports.Advance(c.Request.Context(), export.AdvanceRequest{
		RequestID: req.RequestID,
		Params: export.Params{
			CounterID: req.CounterID,
			Date1:     req.Date1,
			Date2:     req.Date2,
			Source:    req.Source,
			Fields:    req.Fields,
		},
		RowBudget: req.RowBudget,
		MaxWait:   time.Duration(req.MaxWaitSeconds) * time.Second,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := advanceResponse{AdvanceResult: result}
	if result.Status == export.StatusOK && len(result.Table.Rows) > 0 {
		resp.Columns = result.Table.Columns
		records := result.Table.Records()
		if len(records) > sampleRows {
			records = records[:sampleRows]
		}
		resp.Sample = records
	}

	c.JSON(http.StatusOK, resp)
}

// CancelExport handles POST /api/v1/exports/cancel.
func (h *Handler) CancelExport(c *gin.Context) {
	var req CancelExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	result, err := h.exports.Cancel(c.Request.Context(), req.RequestID, req.CounterID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
