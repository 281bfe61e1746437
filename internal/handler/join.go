package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/join"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
)

// JoinRequest is the decoded body of POST /api/v1/join.
type JoinRequest struct {
	Strategy    string `json:"strategy"`
	AccountID   string `json:"account_id"`
	ClientLogin string `json:"client_login"`
	CounterID   int64  `json:"counter_id"`

	CampaignID   int64  `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	UTMCampaign  string `json:"utm_campaign"`
	DateFrom     string `json:"date_from"`
	DateTo       string `json:"date_to"`

	RequestID      string `json:"request_id"`
	MaxWaitSeconds int    `json:"max_wait_seconds"`
	RowBudget      int    `json:"row_budget"`

	LogsSource            string   `json:"logs_source"`
	LogsFields            string   `json:"logs_fields"`
	ClickIDField          string   `json:"click_id_field"`
	StartURLField         string   `json:"start_url_field"`
	BannerField           string   `json:"banner_field"`
	DirectReportType      string   `json:"direct_report_type"`
	DirectFields          []string `json:"direct_fields"`
	DirectClickIDField    string   `json:"direct_click_id_field"`
	DirectCampaignIDField string   `json:"direct_campaign_id_field"`
}

func (r JoinRequest) toEngine() join.Request {
	return join.Request{
		Strategy:    r.Strategy,
		AccountID:   r.AccountID,
		ClientLogin: r.ClientLogin,
		CounterID:   r.CounterID,

		CampaignID:   r.CampaignID,
		CampaignName: r.CampaignName,
		UTMCampaign:  r.UTMCampaign,
		DateFrom:     r.DateFrom,
		DateTo:       r.DateTo,

		RequestID: r.RequestID,
		MaxWait:   time.Duration(r.MaxWaitSeconds) * time.Second,
		RowBudget: r.RowBudget,

		LogsSource:            r.LogsSource,
		LogsFields:            r.LogsFields,
		ClickIDField:          r.ClickIDField,
		StartURLField:         r.StartURLField,
		BannerField:           r.BannerField,
		DirectReportType:      r.DirectReportType,
		DirectFields:          r.DirectFields,
		DirectClickIDField:    r.DirectClickIDField,
		DirectCampaignIDField: r.DirectCampaignIDField,
	}
}

// Join handles POST /api/v1/join.
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	result, err := h.engine.Run(c.Request.Context(), req.toEngine())
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.log.Info("join served",
		logger.String("strategy", result.Strategy),
		logger.String("status", result.Status),
		logger.String("account_id", req.AccountID))

	c.JSON(http.StatusOK, result)
}
