package join

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/direct"
)

const (
	maxBannerLookups = 1000
	maxSampleMatches = 10
)

// Identifier resolution strategies, in precedence order.
const (
	resolverNativeField = "native_field"
	resolverURLParam    = "url_param"
	resolverBannerID    = "banner_id"
)

// clickIndexMeta describes the Direct side of a click-id join.
type clickIndexMeta struct {
	Rows           int `json:"rows"`
	UniqueClickIDs int `json:"unique_click_ids"`
	Skipped        int `json:"skipped"`
}

// buildClickIndex pulls the Direct click-level report and indexes click
// id → campaign id, first occurrence winning.
func (e *Engine) buildClickIndex(ctx context.Context, dc *direct.Client, req Request) (map[string]string, *clickIndexMeta, error) {
	table, err := dc.Report(ctx, direct.ClickIDReportParams(req.DateFrom, req.DateTo, req.DirectReportType, req.DirectFields))
	if err != nil {
		return nil, nil, err
	}

	clickField := req.DirectClickIDField
	if clickField == "" {
		clickField = "ClickId"
	}
	campaignField := req.DirectCampaignIDField
	if campaignField == "" {
		campaignField = "CampaignId"
	}

	meta := &clickIndexMeta{Rows: len(table.Rows)}
	if len(table.Rows) == 0 {
		return map[string]string{}, meta, nil
	}
	if table.Column(clickField) < 0 || table.Column(campaignField) < 0 {
		return nil, nil, fmt.Errorf("direct report lacks %q and %q columns (got %v)",
			clickField, campaignField, table.Columns)
	}

	index := make(map[string]string, len(table.Rows))
	for _, rec := range table.Records() {
		clickID := strings.TrimSpace(rec[clickField])
		campaignID := strings.TrimSpace(rec[campaignField])
		if clickID == "" || campaignID == "" {
			meta.Skipped++
			continue
		}
		if _, ok := index[clickID]; !ok {
			index[clickID] = campaignID
		}
	}
	meta.UniqueClickIDs = len(index)
	return index, meta, nil
}

// visitMatch is the accounting of one resolver pass over the visits.
type visitMatch struct {
	Matched          int
	UnmatchedMetrica int
	Skipped          int
	MatchedClickIDs  int
	ByCampaign       map[string]int
	Samples          []MatchSample
}

// matchVisits joins visit records against the click index using the
// given key extractor. Every visit lands in exactly one bucket.
func matchVisits(visits []map[string]string, index map[string]string, key func(map[string]string) string, dateTimeField, startURLField string) visitMatch {
	out := visitMatch{ByCampaign: make(map[string]int)}
	matchedKeys := make(map[string]struct{})

	for _, visit := range visits {
		clickID := key(visit)
		if clickID == "" {
			out.Skipped++
			continue
		}
		campaignID, ok := index[clickID]
		if !ok {
			out.UnmatchedMetrica++
			continue
		}
		out.Matched++
		matchedKeys[clickID] = struct{}{}
		out.ByCampaign[campaignID]++
		if len(out.Samples) < maxSampleMatches {
			out.Samples = append(out.Samples, MatchSample{
				ClickID:    clickID,
				CampaignID: campaignID,
				DateTime:   visit[dateTimeField],
				StartURL:   visit[startURLField],
			})
		}
	}
	out.MatchedClickIDs = len(matchedKeys)
	return out
}

// yclidFromURL extracts the click id from the yclid query parameter of
// a landing-page URL.
func yclidFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(u.Query().Get("yclid"))
}

// bannerTally counts visits per ad-placement id.
type bannerTally struct {
	counts  map[string]int
	skipped int
}

func tallyBanners(visits []map[string]string, bannerField string) bannerTally {
	tally := bannerTally{counts: make(map[string]int)}
	for _, visit := range visits {
		banner := strings.TrimSpace(visit[bannerField])
		if banner == "" {
			tally.skipped++
			continue
		}
		tally.counts[banner]++
	}
	return tally
}

// topBannerIDs returns up to maxBannerLookups numeric banner ids,
// heaviest first with id as the tie-break.
func (t bannerTally) topBannerIDs() []int64 {
	keys := make([]string, 0, len(t.counts))
	for key := range t.counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if t.counts[keys[i]] != t.counts[keys[j]] {
			return t.counts[keys[i]] > t.counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	ids := make([]int64, 0, min(len(keys), maxBannerLookups))
	for _, key := range keys {
		if len(ids) >= maxBannerLookups {
			break
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// campaignSummary flattens a per-campaign visit map, ordered by
// (-visits, campaign id).
func campaignSummary(byCampaign map[string]int) []CampaignVisits {
	summary := make([]CampaignVisits, 0, len(byCampaign))
	for campaignID, visits := range byCampaign {
		summary = append(summary, CampaignVisits{CampaignID: campaignID, Visits: visits})
	}
	sort.Slice(summary, func(i, j int) bool {
		if summary[i].Visits != summary[j].Visits {
			return summary[i].Visits > summary[j].Visits
		}
		return summary[i].CampaignID < summary[j].CampaignID
	})
	return summary
}
