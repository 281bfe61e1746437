package direct

import "encoding/json"

// request is the JSON-API v5 envelope: every resource call posts
// {"method": ..., "params": ...} to {base}/{resource}.
type request struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Campaign is the subset of campaign fields the correlator reads.
type Campaign struct {
	ID   int64  `json:"Id"`
	Name string `json:"Name"`
}

// Ad maps an ad (banner) id to its campaign.
type Ad struct {
	ID         int64 `json:"Id"`
	CampaignID int64 `json:"CampaignId"`
}

type campaignsResult struct {
	Result struct {
		Campaigns []Campaign `json:"Campaigns"`
		LimitedBy int64      `json:"LimitedBy"`
	} `json:"result"`
}

type adsResult struct {
	Result struct {
		Ads       []Ad  `json:"Ads"`
		LimitedBy int64 `json:"LimitedBy"`
	} `json:"result"`
}

type rawResult struct {
	Result json.RawMessage `json:"result"`
}

// idsCriteria selects objects by id list.
type idsCriteria struct {
	Ids []int64 `json:"Ids"`
}

type getParams struct {
	SelectionCriteria any      `json:"SelectionCriteria"`
	FieldNames        []string `json:"FieldNames"`
}

type dictionariesParams struct {
	DictionaryNames []string `json:"DictionaryNames"`
}
