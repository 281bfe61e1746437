package apierr

// Actionable hints surfaced with normalized errors.
const (
	HintRateLimit = "Rate limit exceeded; retry with backoff."
	HintToken     = "Check access/refresh token and API permissions."
	HintUnits     = "Not enough units; retry later or reduce scope."
	HintReport    = "Report not ready; retry later."
	HintParams    = "Check required parameters."
	HintRestart   = "Export expired or was cleaned up; start a new export."
	HintWrites    = "Write calls are disabled; enable direct.allow_mutations to mutate."
	HintGeneric   = "See the provider error code documentation."
)

// Yandex Direct API error codes with a known classification.
// The remaining codes pass through with the generic hint.
var directErrorCodes = map[int]struct {
	hint string
	kind Kind
}{
	52:   {HintToken, KindFatalRequest},  // invalid token
	53:   {HintToken, KindFatalRequest},  // authorization error
	54:   {HintToken, KindFatalRequest},  // no rights to the object
	56:   {HintRateLimit, KindTransient}, // request limit reached
	152:  {HintUnits, KindTransient},     // not enough units
	506:  {HintRateLimit, KindTransient}, // concurrent request limit
	8800: {HintParams, KindFatalRequest}, // invalid request structure
}

// classifyHTTPStatus maps a bare HTTP status to hint and kind when the
// provider payload carried no recognizable error code.
func classifyHTTPStatus(status int) (string, Kind) {
	switch {
	case status == 401 || status == 403:
		return HintToken, KindFatalRequest
	case status == 429:
		return HintRateLimit, KindTransient
	case status >= 500:
		return HintGeneric, KindTransient
	case status == 400:
		return HintParams, KindFatalRequest
	default:
		return HintGeneric, KindFatalRequest
	}
}
