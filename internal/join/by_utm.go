package join

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/direct"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/metrica"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/report"
)

const statVisitsLimit = 100000

// UTMJoin is the date-bucketed correlation of one campaign's Direct
// performance with Metrica visits sharing its UTM tag.
type UTMJoin struct {
	UTMCampaign  string    `json:"utm_campaign"`
	CampaignID   int64     `json:"campaign_id"`
	CounterID    int64     `json:"counter_id"`
	JoinedByDate []DateRow `json:"joined_by_date"`
	Totals       Totals    `json:"totals"`
}

// DateRow is one calendar date across both providers.
type DateRow struct {
	Date        string `json:"date"`
	Impressions Cell   `json:"impressions"`
	Clicks      Cell   `json:"clicks"`
	CostMicros  Cell   `json:"cost_micros"`
	Visits      Cell   `json:"visits"`
}

// Totals sums the joined columns; absent cells count as zero.
type Totals struct {
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	CostMicros  int64   `json:"cost_micros"`
	Visits      float64 `json:"visits"`
}

type directDay struct {
	impressions float64
	clicks      float64
	costMicros  int64
}

func (e *Engine) byUTM(ctx context.Context, dc *direct.Client, req Request) (*Result, error) {
	if req.CampaignID == 0 {
		return nil, fmt.Errorf("%w: campaign_id is required for by_utm", ErrInvalidRequest)
	}
	if err := e.requireRange(req); err != nil {
		return nil, err
	}

	utm, err := e.resolveUTM(ctx, dc, req)
	if err != nil {
		return nil, err
	}

	table, err := dc.Report(ctx, direct.CampaignPerformanceParams(req.CampaignID, req.DateFrom, req.DateTo))
	if err != nil {
		return nil, err
	}
	directByDate := directDays(table)

	stats, err := e.metrica.Stats(ctx, metrica.StatOptions{
		CounterID:  req.CounterID,
		Metrics:    "ym:s:visits",
		Dimensions: "ym:s:date",
		Filters:    "ym:s:UTMCampaign==" + metrica.FilterQuote(utm),
		Sort:       "ym:s:date",
		Limit:      statVisitsLimit,
		Date1:      req.DateFrom,
		Date2:      req.DateTo,
	})
	if err != nil {
		return nil, err
	}
	visitsByDate := visitSeries(stats)

	dates := make([]string, 0, len(directByDate)+len(visitsByDate))
	seen := make(map[string]bool, len(directByDate)+len(visitsByDate))
	for date := range directByDate {
		seen[date] = true
		dates = append(dates, date)
	}
	for date := range visitsByDate {
		if !seen[date] {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)

	rows := make([]DateRow, 0, len(dates))
	var totals Totals
	missingVisits := 0
	for _, date := range dates {
		row := DateRow{Date: date}
		if day, ok := directByDate[date]; ok {
			row.Impressions = Observed(day.impressions)
			row.Clicks = Observed(day.clicks)
			row.CostMicros = Observed(float64(day.costMicros))
			totals.Impressions += day.impressions
			totals.Clicks += day.clicks
			totals.CostMicros += day.costMicros
			if _, hasVisits := visitsByDate[date]; !hasVisits {
				missingVisits++
			}
		}
		if visits, ok := visitsByDate[date]; ok {
			row.Visits = Observed(visits)
			totals.Visits += visits
		}
		rows = append(rows, row)
	}

	var warnings []string
	if missingVisits > 0 {
		warnings = append(warnings, fmt.Sprintf("no metrica rows for %d of %d dates", missingVisits, len(dates)))
	}

	e.log.Info("utm join complete",
		logger.Int64("campaign_id", req.CampaignID),
		logger.String("utm_campaign", utm),
		logger.Int("dates", len(rows)),
		logger.Float64("visits", totals.Visits))

	return &Result{
		Status:   statusFromWarnings(warnings),
		Strategy: StrategyUTM,
		Warnings: warnings,
		ByUTM: &UTMJoin{
			UTMCampaign:  utm,
			CampaignID:   req.CampaignID,
			CounterID:    req.CounterID,
			JoinedByDate: rows,
			Totals:       totals,
		},
	}, nil
}

// resolveUTM picks the UTM tag value: explicit argument, then campaign
// name, then campaign name looked up from Direct, then the campaign id
// itself.
func (e *Engine) resolveUTM(ctx context.Context, dc *direct.Client, req Request) (string, error) {
	if utm := strings.TrimSpace(req.UTMCampaign); utm != "" {
		return utm, nil
	}
	if name := strings.TrimSpace(req.CampaignName); name != "" {
		return name, nil
	}

	campaigns, err := dc.Campaigns(ctx, []int64{req.CampaignID})
	if err != nil {
		return "", err
	}
	if len(campaigns) > 0 {
		if name := strings.TrimSpace(campaigns[0].Name); name != "" {
			return name, nil
		}
	}
	return strconv.FormatInt(req.CampaignID, 10), nil
}

func directDays(table report.Table) map[string]directDay {
	days := make(map[string]directDay, len(table.Rows))
	for _, rec := range table.Records() {
		date := strings.TrimSpace(rec["Date"])
		if date == "" {
			continue
		}
		impressions, ok := floatOrZero(rec["Impressions"])
		if !ok {
			continue
		}
		clicks, ok := floatOrZero(rec["Clicks"])
		if !ok {
			continue
		}
		cost, ok := floatOrZero(rec["Cost"])
		if !ok {
			continue
		}
		days[date] = directDay{
			impressions: impressions,
			clicks:      clicks,
			costMicros:  Micros(cost),
		}
	}
	return days
}

func visitSeries(stats *metrica.StatResponse) map[string]float64 {
	series := make(map[string]float64, len(stats.Data))
	for _, row := range stats.Data {
		if len(row.Dimensions) == 0 || len(row.Metrics) == 0 {
			continue
		}
		date := strings.TrimSpace(row.Dimensions[0].Name)
		if date == "" {
			continue
		}
		series[date] += row.Metrics[0]
	}
	return series
}

// floatOrZero parses a report cell, treating emptiness as zero. Rows
// with genuinely unparseable numbers are dropped by the caller.
func floatOrZero(cell string) (float64, bool) {
	if strings.TrimSpace(cell) == "" {
		return 0, true
	}
	return report.Float(cell)
}
