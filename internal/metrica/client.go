// Package metrica implements the Yandex Metrica client used by the
// correlator: the stats reporting API, counter management and the Logs
// API bulk export endpoints.
package metrica

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/apierr"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/client"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/config"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
)

// Client talks to the Metrica APIs through the shared transport.
type Client struct {
	caller *client.Caller
	cfg    config.MetricaConfig
	log    logger.Logger
}

// New creates a Metrica client.
func New(caller *client.Caller, cfg config.MetricaConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{caller: caller, cfg: cfg, log: log}
}

// Counters lists the counters accessible to the token. Counter lists
// change rarely, so responses are cached.
func (c *Client) Counters(ctx context.Context) (json.RawMessage, error) {
	body, err := c.caller.CallRaw(ctx, client.CallSpec{
		Provider:   apierr.ProviderMetrica,
		Tool:       "metrica.counters",
		Endpoint:   c.endpoint("management/v1/counters"),
		Method:     http.MethodGet,
		Headers:    c.headers(),
		Cacheable:  true,
		CacheScope: "counters",
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Authorization": "OAuth " + c.cfg.Token,
	}
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.APIURL, "/") + "/" + path
}
