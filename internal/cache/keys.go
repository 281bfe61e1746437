package cache

import (
	"encoding/json"
	"fmt"
)

// Key builds a cache key from provider, call scope, and request parameters.
// Parameters are canonicalized (object keys sorted) so that equivalent
// requests map to the same entry regardless of field ordering.
func Key(provider, scope string, params any) string {
	return provider + ":" + scope + ":" + canonicalJSON(params)
}

// canonicalJSON renders v as JSON with all object keys sorted. Values that
// cannot be marshalled fall back to their Go string form; a cache key must
// never fail to build.
func canonicalJSON(v any) string {
	if v == nil {
		return "null"
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	// Round-trip through any: encoding/json sorts map keys on marshal,
	// which normalizes objects produced from structs and maps alike.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return string(raw)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return string(raw)
	}
	return string(canonical)
}
