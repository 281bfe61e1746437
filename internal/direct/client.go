// Package direct implements the Yandex Direct JSON-API v5 client used by
// the correlator: typed campaign and ad reads, the dictionaries
// passthrough and the synchronous Reports service.
package direct

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/apierr"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/client"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/config"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
)

const acceptLanguage = "en"

// mutationMethods lists JSON-API methods that change account state.
// Call rejects them unless direct.allow_mutations is enabled.
var mutationMethods = map[string]struct{}{
	"add":       {},
	"update":    {},
	"delete":    {},
	"suspend":   {},
	"resume":    {},
	"archive":   {},
	"unarchive": {},
	"moderate":  {},
}

// Client talks to the Direct JSON-API v5 through the shared transport.
type Client struct {
	caller *client.Caller
	cfg    config.DirectConfig
	log    logger.Logger
}

// New creates a Direct client.
func New(caller *client.Caller, cfg config.DirectConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{caller: caller, cfg: cfg, log: log}
}

// WithClientLogin returns a copy of the client addressing a different
// agency child account. An empty login returns the receiver unchanged.
func (c *Client) WithClientLogin(login string) *Client {
	if login == "" || login == c.cfg.ClientLogin {
		return c
	}
	clone := *c
	clone.cfg.ClientLogin = login
	return &clone
}

// Call posts one JSON-API request to {base}/{resource} and returns the
// raw response payload. Mutating methods are rejected with a
// write_disabled error unless direct.allow_mutations is set.
func (c *Client) Call(ctx context.Context, resource, method string, params any) (json.RawMessage, error) {
	if err := c.guardMethod(resource, method); err != nil {
		return nil, err
	}

	body, err := c.caller.CallRaw(ctx, client.CallSpec{
		Provider: apierr.ProviderDirect,
		Tool:     "direct." + resource + "." + method,
		Endpoint: c.endpoint(resource),
		Method:   http.MethodPost,
		Body:     request{Method: method, Params: params},
		Headers:  c.headers(),
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// Campaigns fetches id and name for the given campaign ids.
func (c *Client) Campaigns(ctx context.Context, ids []int64) ([]Campaign, error) {
	var out campaignsResult
	err := c.caller.CallJSON(ctx, client.CallSpec{
		Provider: apierr.ProviderDirect,
		Tool:     "direct.campaigns",
		Endpoint: c.endpoint("campaigns"),
		Method:   http.MethodPost,
		Body: request{Method: "get", Params: getParams{
			SelectionCriteria: idsCriteria{Ids: ids},
			FieldNames:        []string{"Id", "Name"},
		}},
		Headers: c.headers(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Result.Campaigns, nil
}

// Ads maps ad (banner) ids to their campaigns.
func (c *Client) Ads(ctx context.Context, ids []int64) ([]Ad, error) {
	var out adsResult
	err := c.caller.CallJSON(ctx, client.CallSpec{
		Provider: apierr.ProviderDirect,
		Tool:     "direct.ads",
		Endpoint: c.endpoint("ads"),
		Method:   http.MethodPost,
		Body: request{Method: "get", Params: getParams{
			SelectionCriteria: idsCriteria{Ids: ids},
			FieldNames:        []string{"Id", "CampaignId"},
		}},
		Headers: c.headers(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Result.Ads, nil
}

// Dictionaries fetches reference dictionaries (currencies, regions and so
// on). Dictionary content changes rarely, so responses are cached.
func (c *Client) Dictionaries(ctx context.Context, names []string) (json.RawMessage, error) {
	var out rawResult
	err := c.caller.CallJSON(ctx, client.CallSpec{
		Provider:   apierr.ProviderDirect,
		Tool:       "direct.dictionaries",
		Endpoint:   c.endpoint("dictionaries"),
		Method:     http.MethodPost,
		Body:       request{Method: "get", Params: dictionariesParams{DictionaryNames: names}},
		Headers:    c.headers(),
		Cacheable:  true,
		CacheScope: "dictionaries",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (c *Client) guardMethod(resource, method string) error {
	if _, mutating := mutationMethods[strings.ToLower(method)]; !mutating {
		return nil
	}
	if c.cfg.AllowMutations {
		return nil
	}
	e := apierr.New(apierr.ProviderDirect, "write_disabled",
		fmt.Sprintf("method %q on %q is a write operation", method, resource),
		apierr.HintWrites, apierr.KindFatalRequest)
	return e.WithTool("direct." + resource + "." + method)
}

func (c *Client) headers() map[string]string {
	h := map[string]string{
		"Authorization":   "Bearer " + c.cfg.Token,
		"Accept-Language": acceptLanguage,
	}
	if c.cfg.ClientLogin != "" {
		h["Client-Login"] = c.cfg.ClientLogin
	}
	return h
}

func (c *Client) endpoint(resource string) string {
	return strings.TrimRight(c.cfg.BaseURL(), "/") + "/" + resource
}
