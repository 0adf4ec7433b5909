package scraper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/venari/internal/common"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(common.ScraperConfig{
		UserAgent:      "venari-test",
		RequestTimeout: 5 * time.Second,
		RequestDelay:   time.Millisecond,
		MaxBodySize:    1 << 20,
	}, common.GetLogger())
}

func TestClient_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		header http.Header
		check  func(t *testing.T, err error)
	}{
		{
			name:   "404 becomes not found",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				var notFound *NotFoundError
				require.ErrorAs(t, err, &notFound)
			},
		},
		{
			name:   "401 becomes auth error",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var auth *AuthError
				require.ErrorAs(t, err, &auth)
				assert.Equal(t, http.StatusUnauthorized, auth.Status)
			},
		},
		{
			name:   "403 with challenge body is bot protection",
			status: http.StatusForbidden,
			body:   `<html><div id="cf-browser-verification">Checking your browser</div></html>`,
			check: func(t *testing.T, err error) {
				var bot *BotProtectionError
				require.ErrorAs(t, err, &bot)
				assert.Equal(t, "cf-browser-verification", bot.Marker)
			},
		},
		{
			name:   "403 with token demand is protected api",
			status: http.StatusForbidden,
			body:   `{"error":"this endpoint requires a token"}`,
			check: func(t *testing.T, err error) {
				var protected *ProtectedAPIError
				require.ErrorAs(t, err, &protected)
			},
		},
		{
			name:   "429 is transient with retry hint",
			status: http.StatusTooManyRequests,
			header: http.Header{"Retry-After": []string{"120"}},
			check: func(t *testing.T, err error) {
				var transient *TransientError
				require.ErrorAs(t, err, &transient)
				assert.Equal(t, 120*time.Second, transient.RetryAfter)
				wait, ok := RetryAfterOf(err)
				assert.True(t, ok)
				assert.Equal(t, 120*time.Second, wait)
			},
		},
		{
			name:   "503 is transient",
			status: http.StatusServiceUnavailable,
			check: func(t *testing.T, err error) {
				assert.True(t, IsTransient(err))
			},
		},
		{
			name:   "400 is config error",
			status: http.StatusBadRequest,
			check: func(t *testing.T, err error) {
				var config *ConfigError
				require.ErrorAs(t, err, &config)
				assert.Equal(t, http.StatusBadRequest, config.Status)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for key, values := range tt.header {
					for _, v := range values {
						w.Header().Add(key, v)
					}
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(t).Get(context.Background(), server.URL, nil)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_SuccessReturnsBody(t *testing.T) {
	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	body, err := newTestClient(t).Get(context.Background(), server.URL, acceptJSON)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Equal(t, "venari-test", gotUA)
	assert.Equal(t, "application/json", gotAccept)
}

func TestClient_PostSetsContentType(t *testing.T) {
	var gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		payload, _ := io.ReadAll(r.Body)
		gotBody = string(payload)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := newTestClient(t).Do(context.Background(), http.MethodPost, server.URL, []byte(`{"limit":20}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, `{"limit":20}`, gotBody)
}

func TestClient_ConnectionFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := newTestClient(t).Get(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestClient_InvalidURLIsConfigError(t *testing.T) {
	_, err := newTestClient(t).Get(context.Background(), "not a url", nil)
	var config *ConfigError
	require.ErrorAs(t, err, &config)
}

func TestClient_PerDomainRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(common.ScraperConfig{
		RequestTimeout: 5 * time.Second,
		RequestDelay:   80 * time.Millisecond,
	}, common.GetLogger())

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Get(context.Background(), server.URL, nil)
		require.NoError(t, err)
	}
	// First request is immediate, the next two wait a full delay each.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestClient_RateLimitWaitHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(common.ScraperConfig{
		RequestTimeout: 5 * time.Second,
		RequestDelay:   5 * time.Second,
	}, common.GetLogger())

	_, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)

	// The limiter refuses a wait that cannot finish before the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = client.Get(ctx, server.URL, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-5"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))

	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(future)
	assert.InDelta(t, (90 * time.Second).Seconds(), got.Seconds(), 2)

	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), parseRetryAfter(past))
}
