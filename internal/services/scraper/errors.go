// -----------------------------------------------------------------------
// Scrape Errors - typed failures that drive source health decisions
// -----------------------------------------------------------------------

package scraper

import (
	"errors"
	"fmt"
	"time"
)

// TransientError is a retryable failure: 5xx responses, timeouts, DNS
// errors, and rate limits. RetryAfter carries the server-advised wait when
// the response included one.
type TransientError struct {
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	msg := "transient scrape failure"
	if e.Status > 0 {
		msg = fmt.Sprintf("transient scrape failure (status %d)", e.Status)
	}
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("%s, retry after %s", msg, e.RetryAfter)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TransientError) Unwrap() error { return e.Err }

// ConfigError means the source configuration no longer matches the site:
// a 4xx other than auth or not-found, a malformed adapter config, or a
// response shape the adapter cannot read.
type ConfigError struct {
	Status int
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("scrape config error (status %d): %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("scrape config error: %s", e.Reason)
}

// NotFoundError means the endpoint answered 404. The board moved or the
// slug is wrong.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("scrape target not found: %s", e.URL)
}

// AuthError means the endpoint sits behind a login wall (401/403).
type AuthError struct {
	Status int
	URL    string
}

func (e *AuthError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("scrape requires authentication (status %d): %s", e.Status, e.URL)
	}
	return fmt.Sprintf("scrape requires authentication: %s", e.URL)
}

// BotProtectionError means a challenge page was served instead of content.
// Marker names the matched fingerprint.
type BotProtectionError struct {
	Marker string
	URL    string
}

func (e *BotProtectionError) Error() string {
	return fmt.Sprintf("bot protection detected (%s): %s", e.Marker, e.URL)
}

// ProtectedAPIError means the endpoint explicitly demands an API token.
type ProtectedAPIError struct {
	URL  string
	Hint string
}

func (e *ProtectedAPIError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("api requires a token (%s): %s", e.Hint, e.URL)
	}
	return fmt.Sprintf("api requires a token: %s", e.URL)
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RetryAfterOf extracts the server-advised wait from a transient error.
// The second return is false when err is not transient or carried no hint.
func RetryAfterOf(err error) (time.Duration, bool) {
	var te *TransientError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		return te.RetryAfter, true
	}
	return 0, false
}
