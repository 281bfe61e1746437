package metrica

import (
	"fmt"
	"sort"
	"time"
)

// Granularities accepted by TimeSeries.
const (
	GranularityDay     = "day"
	GranularityWeek    = "week"
	GranularityMonth   = "month"
	GranularityQuarter = "quarter"
	GranularityYear    = "year"
)

// PeriodRow is one aggregated bucket of a time series: the period key and
// the requested metrics summed by index over every day in the bucket.
type PeriodRow struct {
	Period  string    `json:"period"`
	Metrics []float64 `json:"metrics"`
}

// TimeSeries groups daily stat rows into period buckets. The first
// dimension of each row must be a date (YYYY-MM-DD prefix); rows without
// one are skipped. Periods are keyed day YYYY-MM-DD, week YYYY-Www (ISO),
// month YYYY-MM, quarter YYYY-Qn, year YYYY, and returned sorted.
func TimeSeries(rows []StatRow, granularity string) ([]PeriodRow, error) {
	if !ValidGranularity(granularity) {
		return nil, fmt.Errorf("unknown granularity %q (want day, week, month, quarter or year)", granularity)
	}

	buckets := map[string]*PeriodRow{}
	for _, row := range rows {
		if len(row.Dimensions) == 0 {
			continue
		}
		date := row.Dimensions[0].Name
		if len(date) < len("2006-01-02") {
			continue
		}
		key, ok := periodKey(date[:10], granularity)
		if !ok {
			continue
		}

		bucket := buckets[key]
		if bucket == nil {
			bucket = &PeriodRow{Period: key, Metrics: make([]float64, len(row.Metrics))}
			buckets[key] = bucket
		}
		for i, v := range row.Metrics {
			if i >= len(bucket.Metrics) {
				bucket.Metrics = append(bucket.Metrics, 0)
			}
			bucket.Metrics[i] += v
		}
	}

	out := make([]PeriodRow, 0, len(buckets))
	for _, bucket := range buckets {
		out = append(out, *bucket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

func periodKey(date, granularity string) (string, bool) {
	if granularity == GranularityDay {
		return date, true
	}

	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", false
	}

	switch granularity {
	case GranularityWeek:
		year, week := parsed.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week), true
	case GranularityMonth:
		return parsed.Format("2006-01"), true
	case GranularityQuarter:
		quarter := (int(parsed.Month())-1)/3 + 1
		return fmt.Sprintf("%d-Q%d", parsed.Year(), quarter), true
	case GranularityYear:
		return parsed.Format("2006"), true
	}
	return "", false
}

// ValidGranularity reports whether granularity is one of the accepted
// bucket sizes.
func ValidGranularity(granularity string) bool {
	switch granularity {
	case GranularityDay, GranularityWeek, GranularityMonth, GranularityQuarter, GranularityYear:
		return true
	}
	return false
}
