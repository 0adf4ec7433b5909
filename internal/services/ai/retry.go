// -----------------------------------------------------------------------
// Rate-Limit Retry - provider-suggested delays with exponential backoff
// -----------------------------------------------------------------------

package ai

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RetryConfig bounds rate-limit retries against a single provider before
// the chain falls through to the next one.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// Defaults sized for per-minute quota windows.
const (
	defaultMaxRetries        = 3
	defaultInitialBackoff    = 30 * time.Second
	defaultMaxBackoff        = 90 * time.Second
	defaultBackoffMultiplier = 1.5
)

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        defaultMaxRetries,
		InitialBackoff:    defaultInitialBackoff,
		MaxBackoff:        defaultMaxBackoff,
		BackoffMultiplier: defaultBackoffMultiplier,
	}
}

// isRateLimitError matches 429 responses and quota exhaustion across both
// provider SDKs, which surface them as error strings.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "429") ||
		strings.Contains(s, "RESOURCE_EXHAUSTED") ||
		strings.Contains(s, "rate_limit_error") ||
		strings.Contains(s, "quota")
}

// retryDelayRe matches "Please retry in 45.38s" and "retryDelay: 45s" forms.
var retryDelayRe = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// extractRetryDelay parses the provider-suggested delay out of a rate-limit
// error. Zero means no suggestion.
func extractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	m := retryDelayRe.FindStringSubmatch(err.Error())
	if len(m) < 2 {
		return 0
	}
	seconds, parseErr := strconv.ParseFloat(m[1], 64)
	if parseErr != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// calculateBackoff computes the wait before the given retry attempt. A
// provider-suggested delay overrides the initial backoff, with a small
// buffer; the exponential multiplier applies on top and the result is
// capped.
func (c RetryConfig) calculateBackoff(attempt int, apiDelay time.Duration) time.Duration {
	base := c.InitialBackoff
	if apiDelay > 0 {
		base = apiDelay + 5*time.Second
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}

	backoff := time.Duration(float64(base) * multiplier)
	if backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}
	return backoff
}

// sleepWithContext waits out a backoff but returns early when the caller
// gives up.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
