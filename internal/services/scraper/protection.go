// -----------------------------------------------------------------------
// Protection Detection - bot-challenge and auth-wall fingerprints
// -----------------------------------------------------------------------

package scraper

import "strings"

// botMarkers are fingerprints of challenge interstitials. Matching any of
// them means the page content is a wall, not a job board.
var botMarkers = []string{
	"cf-browser-verification",
	"cf-chl-",
	"cf-ray",
	"cloudflare ray id",
	"challenge-platform",
	"checking your browser",
	"just a moment...",
	"attention required! | cloudflare",
	"g-recaptcha",
	"grecaptcha.execute",
	"recaptcha/api.js",
	"h-captcha",
	"hcaptcha.com/1/api.js",
	"px-captcha",
	"_incapsula_resource",
	"ddos protection by",
	"verify you are human",
}

// signInPhrases paired with a password input mark a login wall.
var signInPhrases = []string{
	"sign in to continue",
	"log in to continue",
	"login to continue",
	"please sign in",
	"please log in",
	"you must be logged in",
	"session expired",
}

// protectedHints are response phrases from APIs that demand a token.
var protectedHints = []string{
	"requires a token",
	"requires token",
	"api key required",
	"api key is required",
	"token required",
	"missing api key",
	"invalid api key",
}

// protectionMarker returns the first bot-protection fingerprint found in
// the content, or an empty string.
func protectionMarker(content string) string {
	lower := strings.ToLower(content)
	for _, marker := range botMarkers {
		if strings.Contains(lower, marker) {
			return marker
		}
	}
	return ""
}

// protectedAPIHint returns the matched requires-token phrase, if any.
func protectedAPIHint(content string) string {
	lower := strings.ToLower(content)
	for _, hint := range protectedHints {
		if strings.Contains(lower, hint) {
			return hint
		}
	}
	return ""
}

// CheckProtection inspects a fetched page or API payload and returns the
// typed error matching any wall it finds, or nil. Source recovery runs
// samples through this before spending an LLM call on them.
func CheckProtection(content, pageURL string) error {
	if err := checkProtection(content, pageURL); err != nil {
		return err
	}
	if hint := protectedAPIHint(content); hint != "" {
		return &ProtectedAPIError{URL: pageURL, Hint: hint}
	}
	return nil
}

// checkProtection inspects fetched or rendered HTML and raises the
// permanent error matching any wall it finds. A page that renders as
// "partial" still goes through this check, since challenge pages load
// enough to be fingerprinted.
func checkProtection(html, pageURL string) error {
	if marker := protectionMarker(html); marker != "" {
		return &BotProtectionError{Marker: marker, URL: pageURL}
	}

	lower := strings.ToLower(html)
	if strings.Contains(lower, `type="password"`) || strings.Contains(lower, `type='password'`) {
		for _, phrase := range signInPhrases {
			if strings.Contains(lower, phrase) {
				return &AuthError{URL: pageURL}
			}
		}
	}
	return nil
}
