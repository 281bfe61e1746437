package join

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/accounts"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/client"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/config"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/direct"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/export"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/metrica"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/retry"
)

// providerFakes scripts both provider APIs behind httptest servers.
type providerFakes struct {
	mu sync.Mutex

	// Direct side.
	campaignName    string
	perfTSV         string
	clickTSV        string
	clickReportErr  bool
	ads             map[int64]int64
	lastClientLogin string
	perfReports     int
	clickReports    int
	adsCalls        int

	// Metrica side.
	visitRows    []statRow
	gotFilters   string
	logsStatuses []string
	logsStateIdx int
	logsTSV      string
}

type statRow struct {
	date   string
	visits float64
}

func (f *providerFakes) directHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastClientLogin = r.Header.Get("Client-Login")

		switch {
		case strings.HasSuffix(r.URL.Path, "/campaigns"):
			if f.campaignName == "" {
				fmt.Fprintf(w, `{"result":{"Campaigns":[{"Id":706377468,"Name":""}]}}`)
				return
			}
			fmt.Fprintf(w, `{"result":{"Campaigns":[{"Id":706377468,"Name":%q}]}}`, f.campaignName)

		case strings.HasSuffix(r.URL.Path, "/ads"):
			f.adsCalls++
			items := make([]string, 0, len(f.ads))
			for banner, campaign := range f.ads {
				items = append(items, fmt.Sprintf(`{"Id":%d,"CampaignId":%d}`, banner, campaign))
			}
			fmt.Fprintf(w, `{"result":{"Ads":[%s]}}`, strings.Join(items, ","))

		case strings.HasSuffix(r.URL.Path, "/reports"):
			var body struct {
				Params direct.ReportParams `json:"params"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Params.ReportType == "CAMPAIGN_PERFORMANCE_REPORT" {
				f.perfReports++
				fmt.Fprint(w, f.perfTSV)
				return
			}
			f.clickReports++
			if f.clickReportErr {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":{"error_code":8800,"error_string":"Invalid request","error_detail":"ClickId is not supported"}}`)
				return
			}
			fmt.Fprint(w, f.clickTSV)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (f *providerFakes) metricaHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		path := r.URL.Path

		switch {
		case path == "/stat/v1/data":
			f.gotFilters = r.URL.Query().Get("filters")
			rows := make([]string, 0, len(f.visitRows))
			for _, row := range f.visitRows {
				rows = append(rows, fmt.Sprintf(`{"dimensions":[{"name":%q}],"metrics":[%g]}`, row.date, row.visits))
			}
			fmt.Fprintf(w, `{"data":[%s],"total_rows":%d}`, strings.Join(rows, ","), len(f.visitRows))

		case strings.HasSuffix(path, "/logrequests/evaluate"):
			fmt.Fprint(w, `{"log_request_evaluation":{"possible":true,"max_possible_day_quantity":30}}`)

		case strings.HasSuffix(path, "/logrequests") && r.Method == http.MethodPost:
			fmt.Fprint(w, `{"log_request":{"request_id":31337,"status":"created"}}`)

		case strings.HasSuffix(path, "/download"):
			fmt.Fprint(w, f.logsTSV)

		case strings.HasSuffix(path, "/clean"), strings.HasSuffix(path, "/cancel"):
			fmt.Fprint(w, `{}`)

		case strings.Contains(path, "/logrequest/"):
			status := "processed"
			if len(f.logsStatuses) > 0 {
				status = f.logsStatuses[f.logsStateIdx]
				if f.logsStateIdx < len(f.logsStatuses)-1 {
					f.logsStateIdx++
				}
			}
			if status == "processed" {
				fmt.Fprint(w, `{"log_request":{"request_id":31337,"status":"processed","parts":[{"part_number":0}]}}`)
				return
			}
			fmt.Fprintf(w, `{"log_request":{"request_id":31337,"status":%q}}`, status)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (f *providerFakes) directCounts() (perf, click, ads int, clientLogin string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perfReports, f.clickReports, f.adsCalls, f.lastClientLogin
}

func (f *providerFakes) filters() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gotFilters
}

func metricaTestConfig(url string) config.MetricaConfig {
	return config.MetricaConfig{
		Token:         "metrica-token",
		APIURL:        url,
		ClickIDField:  "ym:s:yclid",
		StartURLField: "ym:s:startURL",
		BannerField:   "ym:s:lastDirectClickBanner",
		LogsFields:    "ym:s:dateTime,ym:s:startURL,ym:s:lastDirectClickBanner,ym:s:yclid",
		LogsSource:    "visits",
	}
}

type engineOptions struct {
	registryPath string
	exportCfg    config.ExportConfig
}

func newTestEngine(t *testing.T, fakes *providerFakes, opts engineOptions) *Engine {
	t.Helper()

	directSrv := httptest.NewServer(fakes.directHandler())
	t.Cleanup(directSrv.Close)
	metricaSrv := httptest.NewServer(fakes.metricaHandler())
	t.Cleanup(metricaSrv.Close)

	caller := client.New(client.Config{
		Retry: retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})

	dc := direct.New(caller, config.DirectConfig{
		Token:         "direct-token",
		APIURL:        directSrv.URL,
		ReportMaxRows: 200000,
	}, nil)

	mCfg := metricaTestConfig(metricaSrv.URL)
	mc := metrica.New(caller, mCfg, nil)

	exportCfg := opts.exportCfg
	if exportCfg.MaxWait == 0 {
		exportCfg = config.ExportConfig{
			MaxWait:       2 * time.Second,
			PollBaseDelay: time.Millisecond,
			PollMaxDelay:  2 * time.Millisecond,
			RowBudget:     20000,
			JobTTL:        time.Minute,
		}
	}
	orchestrator := export.New(mc, export.NewStore(exportCfg.JobTTL), exportCfg, nil, nil)

	return New(Config{
		Direct:   dc,
		Metrica:  mc,
		Exports:  orchestrator,
		Registry: accounts.NewRegistry(opts.registryPath, nil),
		Defaults: mCfg,
	})
}

func perfTSV(dates []string, clicks []float64, impressions []float64, costs []string) string {
	var b strings.Builder
	b.WriteString("Date\tCampaignId\tImpressions\tClicks\tCost\n")
	for i, date := range dates {
		fmt.Fprintf(&b, "%s\t706377468\t%g\t%g\t%s\n", date, impressions[i], clicks[i], costs[i])
	}
	b.WriteString("Total\t\t\t\t\n")
	return b.String()
}

func januaryDates() []string {
	dates := make([]string, 31)
	for i := range dates {
		dates[i] = fmt.Sprintf("2026-01-%02d", i+1)
	}
	return dates
}

func TestRun_ByUTM_MonthOfDailyRows(t *testing.T) {
	t.Helper()

	dates := januaryDates()
	clicks := make([]float64, 31)
	impressions := make([]float64, 31)
	costs := make([]string, 31)
	visits := make([]statRow, 31)
	var wantClicks, wantVisits float64
	var wantCost int64
	for i := range dates {
		clicks[i] = float64(10 + 2*(i%2))
		impressions[i] = float64(100 + i)
		costs[i] = fmt.Sprintf("%d,50", 40+i)
		visits[i] = statRow{date: dates[i], visits: float64(8 + i%2)}
		wantClicks += clicks[i]
		wantVisits += visits[i].visits
		wantCost += Micros(float64(40+i) + 0.5)
	}

	fakes := &providerFakes{
		perfTSV:   perfTSV(dates, clicks, impressions, costs),
		visitRows: visits,
	}
	engine := newTestEngine(t, fakes, engineOptions{})

	res, err := engine.Run(context.Background(), Request{
		Strategy:   StrategyUTM,
		CampaignID: 706377468,
		CounterID:  44147844,
		DateFrom:   "2026-01-01",
		DateTo:     "2026-01-31",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.Warnings)
	require.NotNil(t, res.ByUTM)
	assert.Equal(t, "706377468", res.ByUTM.UTMCampaign, "blank campaign name falls back to the id")
	assert.Equal(t, "ym:s:UTMCampaign=='706377468'", fakes.filters())

	require.Len(t, res.ByUTM.JoinedByDate, 31)
	for i, row := range res.ByUTM.JoinedByDate {
		assert.Equal(t, dates[i], row.Date)
		assert.True(t, row.Clicks.Present)
		assert.True(t, row.Visits.Present)
	}
	assert.Equal(t, wantClicks, res.ByUTM.Totals.Clicks)
	assert.Equal(t, wantVisits, res.ByUTM.Totals.Visits)
	assert.Equal(t, wantCost, res.ByUTM.Totals.CostMicros)
}

func TestRun_ByUTM_LeftCompleteWithAbsentCells(t *testing.T) {
	t.Helper()

	fakes := &providerFakes{
		perfTSV: perfTSV(
			[]string{"2026-01-01", "2026-01-02", "2026-01-03"},
			[]float64{10, 12, 11},
			[]float64{100, 120, 110},
			[]string{"1,50", "2,50", "3,50"},
		),
		visitRows: []statRow{
			{date: "2026-01-02", visits: 9},
			{date: "2026-01-04", visits: 4},
		},
	}
	engine := newTestEngine(t, fakes, engineOptions{})

	res, err := engine.Run(context.Background(), Request{
		Strategy:    StrategyUTM,
		CampaignID:  706377468,
		UTMCampaign: "spring_sale",
		CounterID:   44147844,
		DateFrom:    "2026-01-01",
		DateTo:      "2026-01-04",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, res.Status)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "no metrica rows for 2 of 4 dates", res.Warnings[0])

	rows := res.ByUTM.JoinedByDate
	require.Len(t, rows, 4)

	// Direct-only date keeps its cells, visits absent.
	assert.True(t, rows[0].Clicks.Present)
	assert.False(t, rows[0].Visits.Present)
	assert.Equal(t, 0.0, rows[0].Visits.Value)

	// Date covered by both sides.
	assert.True(t, rows[1].Clicks.Present)
	assert.True(t, rows[1].Visits.Present)
	assert.Equal(t, 9.0, rows[1].Visits.Value)

	// Metrica-only date survives with absent Direct cells.
	assert.Equal(t, "2026-01-04", rows[3].Date)
	assert.False(t, rows[3].Clicks.Present)
	assert.False(t, rows[3].CostMicros.Present)
	assert.True(t, rows[3].Visits.Present)

	assert.Equal(t, 33.0, res.ByUTM.Totals.Clicks)
	assert.Equal(t, 13.0, res.ByUTM.Totals.Visits)
	assert.Equal(t, int64(7_500_000), res.ByUTM.Totals.CostMicros)
}

func TestRun_ByUTM_UsesCampaignNameFilter(t *testing.T) {
	t.Helper()

	fakes := &providerFakes{
		campaignName: "spring_sale",
		perfTSV:      perfTSV([]string{"2026-01-01"}, []float64{5}, []float64{50}, []string{"1,00"}),
		visitRows:    []statRow{{date: "2026-01-01", visits: 3}},
	}
	engine := newTestEngine(t, fakes, engineOptions{})

	res, err := engine.Run(context.Background(), Request{
		Strategy:   StrategyUTM,
		CampaignID: 706377468,
		CounterID:  44147844,
		DateFrom:   "2026-01-01",
		DateTo:     "2026-01-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "spring_sale", res.ByUTM.UTMCampaign)
	assert.Equal(t, "ym:s:UTMCampaign=='spring_sale'", fakes.filters())
}

func TestRun_AccountResolutionFillsAddressing(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")
	payload := `{"accounts":[{"id":"shop","direct_client_login":"shop-login","metrica_counter_ids":["44147844"]}]}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	fakes := &providerFakes{
		perfTSV:   perfTSV([]string{"2026-01-01"}, []float64{5}, []float64{50}, []string{"1,00"}),
		visitRows: []statRow{{date: "2026-01-01", visits: 3}},
	}
	engine := newTestEngine(t, fakes, engineOptions{registryPath: path})

	res, err := engine.Run(context.Background(), Request{
		Strategy:    StrategyUTM,
		AccountID:   "shop",
		CampaignID:  706377468,
		UTMCampaign: "spring_sale",
		DateFrom:    "2026-01-01",
		DateTo:      "2026-01-01",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(44147844), res.ByUTM.CounterID, "counter autofilled from the registry")

	_, _, _, clientLogin := fakes.directCounts()
	assert.Equal(t, "shop-login", clientLogin)
}

func TestRun_UnknownAccountFailsBeforeProviderCalls(t *testing.T) {
	t.Helper()

	fakes := &providerFakes{}
	engine := newTestEngine(t, fakes, engineOptions{})

	_, err := engine.Run(context.Background(), Request{
		Strategy:   StrategyUTM,
		AccountID:  "nope",
		CampaignID: 706377468,
		DateFrom:   "2026-01-01",
		DateTo:     "2026-01-31",
	})
	require.Error(t, err)

	var resolveErr *accounts.ResolveError
	assert.ErrorAs(t, err, &resolveErr)

	perf, click, ads, _ := fakes.directCounts()
	assert.Zero(t, perf+click+ads, "no provider call before resolution")
}

func TestRun_ValidatesRequest(t *testing.T) {
	t.Helper()

	engine := newTestEngine(t, &providerFakes{}, engineOptions{})

	tests := []struct {
		name string
		req  Request
	}{
		{"unknown strategy", Request{Strategy: "by_magic", CounterID: 1, DateFrom: "2026-01-01", DateTo: "2026-01-02"}},
		{"missing campaign", Request{Strategy: StrategyUTM, CounterID: 1, DateFrom: "2026-01-01", DateTo: "2026-01-02"}},
		{"missing dates", Request{Strategy: StrategyUTM, CampaignID: 7, CounterID: 1}},
		{"missing counter", Request{Strategy: StrategyClickID, DateFrom: "2026-01-01", DateTo: "2026-01-02"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Helper()
			_, err := engine.Run(context.Background(), tc.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}
