package direct

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/apierr"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/client"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/report"
)

// ReportParams describes one Reports service request. The service builds
// the report offline and answers 201/202 until it is ready; the transport
// polls through those as transient errors.
type ReportParams struct {
	SelectionCriteria ReportSelection `json:"SelectionCriteria"`
	FieldNames        []string        `json:"FieldNames"`
	ReportName        string          `json:"ReportName"`
	ReportType        string          `json:"ReportType"`
	DateRangeType     string          `json:"DateRangeType"`
	Format            string          `json:"Format"`
	IncludeVAT        string          `json:"IncludeVAT"`
	IncludeDiscount   string          `json:"IncludeDiscount"`
}

// ReportSelection scopes a report by date range and field filters.
type ReportSelection struct {
	DateFrom string         `json:"DateFrom,omitempty"`
	DateTo   string         `json:"DateTo,omitempty"`
	Filter   []ReportFilter `json:"Filter,omitempty"`
}

// ReportFilter is one field predicate in a report selection.
type ReportFilter struct {
	Field    string   `json:"Field"`
	Operator string   `json:"Operator"`
	Values   []string `json:"Values"`
}

// reportNameLimit is the Reports service cap on ReportName length.
const reportNameLimit = 255

// CampaignPerformanceParams builds the daily performance report for one
// campaign: date, impressions, clicks and cost.
func CampaignPerformanceParams(campaignID int64, dateFrom, dateTo string) ReportParams {
	return ReportParams{
		SelectionCriteria: ReportSelection{
			DateFrom: dateFrom,
			DateTo:   dateTo,
			Filter: []ReportFilter{{
				Field:    "CampaignId",
				Operator: "IN",
				Values:   []string{strconv.FormatInt(campaignID, 10)},
			}},
		},
		FieldNames:      []string{"Date", "CampaignId", "Impressions", "Clicks", "Cost"},
		ReportName:      trimReportName(fmt.Sprintf("correlator_perf_%d_%s_%s", campaignID, dateFrom, dateTo)),
		ReportType:      "CAMPAIGN_PERFORMANCE_REPORT",
		DateRangeType:   "CUSTOM_DATE",
		Format:          "TSV",
		IncludeVAT:      "YES",
		IncludeDiscount: "NO",
	}
}

// ClickIDReportParams builds the per-click report used to map click ids
// back to campaigns.
func ClickIDReportParams(dateFrom, dateTo string, reportType string, fieldNames []string) ReportParams {
	if reportType == "" {
		reportType = "CUSTOM_REPORT"
	}
	if len(fieldNames) == 0 {
		fieldNames = []string{"Date", "CampaignId", "ClickId"}
	}
	return ReportParams{
		SelectionCriteria: ReportSelection{DateFrom: dateFrom, DateTo: dateTo},
		FieldNames:        fieldNames,
		ReportName:        trimReportName(fmt.Sprintf("correlator_clickid_%s_%s", dateFrom, dateTo)),
		ReportType:        reportType,
		DateRangeType:     "CUSTOM_DATE",
		Format:            "TSV",
		IncludeVAT:        "YES",
		IncludeDiscount:   "NO",
	}
}

// Report runs a Reports service request and parses the TSV answer.
// The column header line is kept so columns resolve by name; the report
// title and summary rows are suppressed server-side.
func (c *Client) Report(ctx context.Context, params ReportParams) (report.Table, error) {
	headers := c.headers()
	headers["processingMode"] = "auto"
	headers["returnMoneyInMicros"] = "false"
	headers["skipReportHeader"] = "true"
	headers["skipReportSummary"] = "true"

	raw, err := c.caller.CallRaw(ctx, client.CallSpec{
		Provider:      apierr.ProviderDirect,
		Tool:          "direct.report",
		Endpoint:      c.endpoint("reports"),
		Method:        http.MethodPost,
		Body:          map[string]any{"params": params},
		Headers:       headers,
		NotReadyCodes: []int{http.StatusCreated, http.StatusAccepted},
	})
	if err != nil {
		return report.Table{}, err
	}

	table := report.Parse(string(raw), report.Options{
		Delimiter: "\t",
		MaxRows:   c.cfg.ReportMaxRows,
	})
	return table, nil
}

func trimReportName(name string) string {
	if len(name) > reportNameLimit {
		return name[:reportNameLimit]
	}
	return name
}
