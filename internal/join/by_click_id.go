package join

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/direct"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/export"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
)

// Join modes for the click-id strategy.
const (
	ModeClickID  = "click_id"
	ModeBannerID = "banner_id"
)

// ErrNoJoinKeys means the exported visit rows carry neither a click id
// nor an ad-placement id, so no strategy can correlate them.
var ErrNoJoinKeys = errors.New("no join keys found in visit rows; include a click-id or banner field in logs_fields")

// ClickIDJoin is the visit-level reconciliation of Metrica visits with
// Direct click rows. Every visit lands in exactly one of matched,
// unmatched, or skipped; unmatched Direct identifiers are kept too.
type ClickIDJoin struct {
	JoinMode         string           `json:"join_mode"`
	Resolver         string           `json:"resolver,omitempty"`
	RequestID        string           `json:"request_id"`
	LogsRows         int              `json:"logs_rows"`
	DirectRows       int              `json:"direct_rows"`
	UniqueClickIDs   int              `json:"unique_click_ids,omitempty"`
	Matched          int              `json:"matched"`
	UnmatchedMetrica int              `json:"unmatched_metrica"`
	UnmatchedDirect  int              `json:"unmatched_direct"`
	SkippedNoClickID int              `json:"skipped_no_click_id"`
	ByCampaign       []CampaignVisits `json:"by_campaign"`
	SampleMatches    []MatchSample    `json:"sample_matches,omitempty"`
}

// CampaignVisits is one campaign's share of the matched visits.
type CampaignVisits struct {
	CampaignID string `json:"campaign_id"`
	Visits     int    `json:"visits"`
}

// MatchSample illustrates one matched visit for spot-checking.
type MatchSample struct {
	ClickID    string `json:"click_id"`
	CampaignID string `json:"campaign_id"`
	DateTime   string `json:"date_time,omitempty"`
	StartURL   string `json:"start_url,omitempty"`
}

func (e *Engine) byClickID(ctx context.Context, dc *direct.Client, req Request) (*Result, error) {
	if err := e.requireRange(req); err != nil {
		return nil, err
	}

	adv, err := e.exports.Advance(ctx, export.AdvanceRequest{
		RequestID: req.RequestID,
		Params: export.Params{
			CounterID: req.CounterID,
			Date1:     req.DateFrom,
			Date2:     req.DateTo,
			Source:    req.LogsSource,
			Fields:    req.LogsFields,
		},
		RowBudget: req.RowBudget,
		MaxWait:   req.MaxWait,
	})
	if err != nil {
		return nil, err
	}
	if adv.Status == export.StatusPending {
		return &Result{
			Status:   StatusPending,
			Strategy: StrategyClickID,
			Export: &ExportStatus{
				RequestID:  adv.RequestID,
				State:      adv.State,
				LastStatus: adv.LastStatus,
				Note:       "logs export is not ready yet; retry the same call with request_id",
			},
		}, nil
	}

	warnings := append([]string(nil), adv.Warnings...)
	visits := adv.Table.Records()
	if len(visits) == 0 {
		warnings = append(warnings, "logs export downloaded but no rows were parsed")
		return &Result{
			Status:    statusFromWarnings(warnings),
			Strategy:  StrategyClickID,
			Warnings:  warnings,
			ByClickID: &ClickIDJoin{RequestID: adv.RequestID},
		}, nil
	}

	clickIDField := fallback(req.ClickIDField, e.defaults.ClickIDField)
	startURLField := fallback(req.StartURLField, e.defaults.StartURLField)
	bannerField := fallback(req.BannerField, e.defaults.BannerField)

	// Strategies 1 and 2 need the Direct click-level report; its absence
	// is survivable because the banner fallback remains.
	index, indexMeta, indexErr := e.buildClickIndex(ctx, dc, req)
	if indexErr != nil {
		warnings = append(warnings, "direct click-id report unavailable: "+indexErr.Error())
		e.log.Warn("direct click-id report unavailable", logger.Error(indexErr))
	}

	if len(index) > 0 {
		native := matchVisits(visits, index, func(visit map[string]string) string {
			return strings.TrimSpace(visit[clickIDField])
		}, "ym:s:dateTime", startURLField)
		if native.Matched > 0 {
			return e.clickIDResult(adv, resolverNativeField, index, indexMeta, native, len(visits), warnings), nil
		}

		warnings = append(warnings, fmt.Sprintf("native click-id field %q yielded no matches; trying the yclid URL parameter", clickIDField))
		fromURL := matchVisits(visits, index, func(visit map[string]string) string {
			return yclidFromURL(visit[startURLField])
		}, "ym:s:dateTime", startURLField)
		if fromURL.Matched > 0 {
			return e.clickIDResult(adv, resolverURLParam, index, indexMeta, fromURL, len(visits), warnings), nil
		}

		warnings = append(warnings, "yclid URL parameter yielded no matches; falling back to banner-id mapping")
	}

	return e.bannerResult(ctx, dc, adv, visits, bannerField, len(index) > 0, warnings)
}

func (e *Engine) clickIDResult(adv *export.AdvanceResult, resolver string, index map[string]string, meta *clickIndexMeta, match visitMatch, visitCount int, warnings []string) *Result {
	if match.UnmatchedMetrica > 0 {
		warnings = append(warnings, fmt.Sprintf("%d of %d visits did not match any campaign", match.UnmatchedMetrica, visitCount))
	}

	e.log.Info("click-id join complete",
		logger.String("resolver", resolver),
		logger.Int("matched", match.Matched),
		logger.Int("unmatched", match.UnmatchedMetrica),
		logger.Int("skipped", match.Skipped))

	return &Result{
		Status:   statusFromWarnings(warnings),
		Strategy: StrategyClickID,
		Warnings: warnings,
		ByClickID: &ClickIDJoin{
			JoinMode:         ModeClickID,
			Resolver:         resolver,
			RequestID:        adv.RequestID,
			LogsRows:         visitCount,
			DirectRows:       meta.Rows,
			UniqueClickIDs:   meta.UniqueClickIDs,
			Matched:          match.Matched,
			UnmatchedMetrica: match.UnmatchedMetrica,
			UnmatchedDirect:  len(index) - match.MatchedClickIDs,
			SkippedNoClickID: match.Skipped,
			ByCampaign:       campaignSummary(match.ByCampaign),
			SampleMatches:    match.Samples,
		},
	}
}

// bannerResult maps ad-placement ids back to campaigns through a Direct
// ads lookup. hadIndex tells whether the click-id strategies already ran
// and came up empty.
func (e *Engine) bannerResult(ctx context.Context, dc *direct.Client, adv *export.AdvanceResult, visits []map[string]string, bannerField string, hadIndex bool, warnings []string) (*Result, error) {
	tally := tallyBanners(visits, bannerField)
	if len(tally.counts) == 0 {
		if hadIndex {
			// Click-id strategies ran and matched nothing; report that
			// honestly instead of erroring.
			warnings = append(warnings, fmt.Sprintf("no values in banner field %q either; nothing to correlate", bannerField))
			return &Result{
				Status:   statusFromWarnings(warnings),
				Strategy: StrategyClickID,
				Warnings: warnings,
				ByClickID: &ClickIDJoin{
					JoinMode:         ModeClickID,
					RequestID:        adv.RequestID,
					LogsRows:         len(visits),
					UnmatchedMetrica: len(visits) - tally.skipped,
					SkippedNoClickID: tally.skipped,
					ByCampaign:       []CampaignVisits{},
				},
			}, nil
		}
		return nil, ErrNoJoinKeys
	}

	bannerIDs := tally.topBannerIDs()
	ads, err := dc.Ads(ctx, bannerIDs)
	if err != nil {
		return nil, err
	}

	bannerToCampaign := make(map[string]string, len(ads))
	for _, ad := range ads {
		if ad.ID == 0 || ad.CampaignID == 0 {
			continue
		}
		bannerToCampaign[strconv.FormatInt(ad.ID, 10)] = strconv.FormatInt(ad.CampaignID, 10)
	}

	byCampaign := make(map[string]int)
	matched, unmatched := 0, 0
	for banner, count := range tally.counts {
		campaignID, ok := bannerToCampaign[banner]
		if !ok {
			unmatched += count
			continue
		}
		matched += count
		byCampaign[campaignID] += count
	}

	warnings = append(warnings, "used banner-id mapping via ads lookup; attribution is placement-level, not click-level")
	if unmatched > 0 {
		warnings = append(warnings, fmt.Sprintf("%d visits carried banner ids with no matching ad", unmatched))
	}

	e.log.Info("banner-id join complete",
		logger.Int("matched", matched),
		logger.Int("unmatched", unmatched),
		logger.Int("ads_fetched", len(bannerIDs)),
		logger.Int("ads_matched", len(bannerToCampaign)))

	return &Result{
		Status:   statusFromWarnings(warnings),
		Strategy: StrategyClickID,
		Warnings: warnings,
		ByClickID: &ClickIDJoin{
			JoinMode:         ModeBannerID,
			Resolver:         resolverBannerID,
			RequestID:        adv.RequestID,
			LogsRows:         len(visits),
			DirectRows:       len(bannerIDs),
			Matched:          matched,
			UnmatchedMetrica: unmatched,
			UnmatchedDirect:  len(bannerIDs) - len(bannerToCampaign),
			SkippedNoClickID: tally.skipped,
			ByCampaign:       campaignSummary(byCampaign),
		},
	}, nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return def
}
