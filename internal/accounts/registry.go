// Package accounts maps human-friendly account ids to per-project
// provider defaults: the Direct Client-Login and default Metrica
// counters. The registry is a non-secret JSON file, usually mounted from
// the host, and is reloaded whenever its modification time changes.
package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
)

// Profile is one registered account: provider addressing defaults, no
// secrets.
type Profile struct {
	ID                string   `json:"id"`
	Name              string   `json:"name,omitempty"`
	DirectClientLogin string   `json:"direct_client_login,omitempty"`
	MetricaCounterIDs []string `json:"metrica_counter_ids,omitempty"`
}

// Resolution is the provider addressing that comes out of resolving an
// account id against explicitly supplied fields.
type Resolution struct {
	DirectClientLogin string
	CounterID         int64
}

// ResolveError reports a resolution failure the caller must fix before
// any provider call: unknown account, conflicting addressing or an
// ambiguous counter choice.
type ResolveError struct {
	msg string
}

func (e *ResolveError) Error() string { return e.msg }

func resolveErrorf(format string, args ...any) *ResolveError {
	return &ResolveError{msg: fmt.Sprintf(format, args...)}
}

// Registry reads account profiles from a JSON file. It is safe for
// concurrent use; reads hit a cache that is invalidated by file mtime.
type Registry struct {
	path string
	log  logger.Logger

	mu       sync.Mutex
	profiles map[string]Profile
	mtime    time.Time
	loaded   bool
}

// NewRegistry creates a registry over path. An empty path yields an
// empty registry where only explicit addressing works.
func NewRegistry(path string, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{path: path, log: log}
}

// Profiles returns every registered profile sorted by id.
func (r *Registry) Profiles() []Profile {
	profiles := r.load()
	out := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve maps accountID to provider addressing. Explicit fields always
// survive; the profile fills the blanks. An explicit login that
// disagrees with the profile is a conflict, and a profile with several
// counters needs an explicit counter choice. An empty accountID passes
// the explicit fields through untouched.
func (r *Registry) Resolve(accountID, explicitLogin string, explicitCounter int64) (Resolution, error) {
	resolution := Resolution{DirectClientLogin: explicitLogin, CounterID: explicitCounter}

	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return resolution, nil
	}

	profiles := r.load()
	profile, ok := profiles[accountID]
	if !ok {
		return Resolution{}, resolveErrorf("unknown account_id %q; available: %s", accountID, knownIDs(profiles))
	}

	profileLogin := normalizeLogin(profile.DirectClientLogin)
	if login := normalizeLogin(explicitLogin); login != "" && profileLogin != "" && login != profileLogin {
		return Resolution{}, resolveErrorf(
			"direct_client_login %q conflicts with account_id %q (profile login %q)",
			explicitLogin, accountID, profile.DirectClientLogin)
	}
	if explicitLogin == "" {
		resolution.DirectClientLogin = profile.DirectClientLogin
	}

	if explicitCounter == 0 {
		switch len(profile.MetricaCounterIDs) {
		case 0:
			// Leave zero; the caller falls back to the configured default.
		case 1:
			counter, err := strconv.ParseInt(profile.MetricaCounterIDs[0], 10, 64)
			if err != nil {
				return Resolution{}, resolveErrorf(
					"account_id %q has a non-numeric counter %q", accountID, profile.MetricaCounterIDs[0])
			}
			resolution.CounterID = counter
		default:
			return Resolution{}, resolveErrorf(
				"account_id %q has multiple Metrica counters; pass counter_id explicitly (available: %s)",
				accountID, strings.Join(profile.MetricaCounterIDs, ", "))
		}
	}

	return resolution, nil
}

// load returns the cached profiles, re-reading the file when its mtime
// moved. A missing file is an empty registry; a malformed file logs a
// warning and also resolves to empty rather than failing every request.
func (r *Registry) load() map[string]Profile {
	if r.path == "" {
		return nil
	}

	stat, err := os.Stat(r.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.log.Warn("accounts registry stat failed", logger.String("path", r.path), logger.Error(err))
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded && stat.ModTime().Equal(r.mtime) {
		return r.profiles
	}

	raw, err := os.ReadFile(r.path)
	if err != nil {
		r.log.Warn("accounts registry read failed", logger.String("path", r.path), logger.Error(err))
		return nil
	}

	profiles, err := parseRegistry(raw)
	if err != nil {
		r.log.Warn("accounts registry parse failed", logger.String("path", r.path), logger.Error(err))
		return nil
	}

	r.profiles = profiles
	r.mtime = stat.ModTime()
	r.loaded = true
	return r.profiles
}

// registryItem tolerates the field spellings seen in registry files.
type registryItem struct {
	ID                 any    `json:"id"`
	Name               string `json:"name"`
	DirectClientLogin  string `json:"direct_client_login"`
	DirectClientLogin2 string `json:"directClientLogin"`
	Counters           []any  `json:"metrica_counter_ids"`
	Counters2          []any  `json:"metricaCounterIds"`
	Counters3          []any  `json:"metrica_counters"`
}

// parseRegistry accepts either a top-level array of profiles or an
// object carrying them under "accounts" or "profiles".
func parseRegistry(raw []byte) (map[string]Profile, error) {
	var items []registryItem
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapper struct {
			Accounts []registryItem `json:"accounts"`
			Profiles []registryItem `json:"profiles"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, fmt.Errorf("registry must be a profile list or an object with an accounts array: %w", err)
		}
		items = wrapper.Accounts
		if len(items) == 0 {
			items = wrapper.Profiles
		}
	}

	profiles := make(map[string]Profile, len(items))
	for _, item := range items {
		profile := Profile{
			ID:                strings.TrimSpace(stringify(item.ID)),
			Name:              strings.TrimSpace(item.Name),
			DirectClientLogin: strings.TrimSpace(firstNonEmpty(item.DirectClientLogin, item.DirectClientLogin2)),
		}
		if profile.ID == "" {
			continue
		}

		counters := item.Counters
		if len(counters) == 0 {
			counters = item.Counters2
		}
		if len(counters) == 0 {
			counters = item.Counters3
		}
		for _, c := range counters {
			if s := strings.TrimSpace(stringify(c)); s != "" {
				profile.MetricaCounterIDs = append(profile.MetricaCounterIDs, s)
			}
		}

		profiles[profile.ID] = profile
	}
	return profiles, nil
}

func knownIDs(profiles map[string]Profile) string {
	if len(profiles) == 0 {
		return "<none>"
	}
	ids := make([]string, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ", ")
}

func normalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", s)
	}
}
