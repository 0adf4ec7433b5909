package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// mockRenderer implements interfaces.RenderService for testing
type mockRenderer struct {
	renderFunc func(ctx context.Context, req interfaces.RenderRequest) (*interfaces.RenderResult, error)
}

func (m *mockRenderer) Render(ctx context.Context, req interfaces.RenderRequest) (*interfaces.RenderResult, error) {
	if m.renderFunc != nil {
		return m.renderFunc(ctx, req)
	}
	return &interfaces.RenderResult{Status: interfaces.RenderStatusOK}, nil
}

func (m *mockRenderer) Shutdown(ctx context.Context) error { return nil }

const careersPage = `<html><head><title>Acme Careers</title></head><body>
	<div class="job-card">
		<h2>Staff Engineer</h2>
		<a class="apply" href="/jobs/staff-engineer">Apply</a>
		<span class="loc">Portland, OR</span>
		<div class="desc"><p>Run the platform team.</p><ul><li>Go</li><li>SQLite</li></ul></div>
	</div>
	<div class="job-card">
		<h2>Designer</h2>
		<a class="apply" href="https://jobs.example.com/designer">Apply</a>
		<span class="loc">Remote</span>
		<div class="desc">Make it pretty.</div>
	</div>
	<div class="job-card">
		<h2></h2>
		<a class="apply" href="/jobs/ghost">Apply</a>
	</div>
</body></html>`

func htmlTestSource(url string) *models.Source {
	return testSource(models.SourceTypeHTML, map[string]interface{}{
		"url":          url,
		"job_selector": ".job-card",
		"fields": map[string]interface{}{
			"title":       "h2",
			"url":         "a.apply@href",
			"location":    ".loc",
			"description": ".desc",
		},
	})
}

func TestHTMLScraper_ExtractsRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(careersPage))
	}))
	defer server.Close()

	s, err := New(htmlTestSource(server.URL+"/careers"), atsDeps(t))
	require.NoError(t, err)

	records, err := s.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2, "rows without a title are dropped")

	first := records[0]
	assert.Equal(t, "Staff Engineer", first.Title)
	assert.Equal(t, server.URL+"/jobs/staff-engineer", first.URL, "relative links resolve against the page")
	assert.Equal(t, "Portland, OR", first.Location)
	assert.Contains(t, first.Description, "Run the platform team.")
	assert.Contains(t, first.Description, "- Go")

	assert.Equal(t, "https://jobs.example.com/designer", records[1].URL, "absolute links pass through")
}

func TestHTMLScraper_ZeroMatchesIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Careers</title></head><body>
			<ul class="openings"><li class="position"><a href="/p/1">Engineer</a></li></ul>
		</body></html>`))
	}))
	defer server.Close()

	source := htmlTestSource(server.URL)
	source.Config["job_selector"] = ".job-card"

	s, err := New(source, atsDeps(t))
	require.NoError(t, err)

	records, err := s.Scrape(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHTMLScraper_DelegatesToRenderer(t *testing.T) {
	var gotReq interfaces.RenderRequest
	renderer := &mockRenderer{
		renderFunc: func(ctx context.Context, req interfaces.RenderRequest) (*interfaces.RenderResult, error) {
			gotReq = req
			return &interfaces.RenderResult{
				FinalURL: "https://acme.com/careers",
				Status:   interfaces.RenderStatusOK,
				HTML:     careersPage,
			}, nil
		},
	}

	source := htmlTestSource("https://acme.com/careers")
	source.Config["requires_js"] = true
	source.Config["render_wait_for"] = ".job-card"

	s, err := New(source, Deps{Client: newTestClient(t), Renderer: renderer})
	require.NoError(t, err)

	records, err := s.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "https://acme.com/careers", gotReq.URL)
	assert.Equal(t, ".job-card", gotReq.WaitForSelector)
	assert.Equal(t, "https://acme.com/jobs/staff-engineer", records[0].URL, "links resolve against the rendered final URL")
}

func TestHTMLScraper_DetectsProtectionInPartialRender(t *testing.T) {
	renderer := &mockRenderer{
		renderFunc: func(ctx context.Context, req interfaces.RenderRequest) (*interfaces.RenderResult, error) {
			return &interfaces.RenderResult{
				Status: interfaces.RenderStatusPartial,
				HTML:   `<html><title>Just a moment...</title><div id="cf-browser-verification"></div></html>`,
				Errors: []string{"selector timeout"},
			}, nil
		},
	}

	source := htmlTestSource("https://acme.com/careers")
	source.Config["requires_js"] = true

	s, err := New(source, Deps{Client: newTestClient(t), Renderer: renderer})
	require.NoError(t, err)

	_, err = s.Scrape(context.Background())
	var bot *BotProtectionError
	require.ErrorAs(t, err, &bot)
}

func TestHTMLScraper_EmptyRenderIsTransient(t *testing.T) {
	renderer := &mockRenderer{
		renderFunc: func(ctx context.Context, req interfaces.RenderRequest) (*interfaces.RenderResult, error) {
			return &interfaces.RenderResult{
				Status: interfaces.RenderStatusTimeout,
				Errors: []string{"navigation timed out"},
			}, nil
		},
	}

	source := htmlTestSource("https://acme.com/careers")
	source.Config["requires_js"] = true

	s, err := New(source, Deps{Client: newTestClient(t), Renderer: renderer})
	require.NoError(t, err)

	_, err = s.Scrape(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestHTMLScraper_RequiresRendererWhenJS(t *testing.T) {
	source := htmlTestSource("https://acme.com/careers")
	source.Config["requires_js"] = true

	_, err := New(source, Deps{Client: newTestClient(t)})
	var config *ConfigError
	require.ErrorAs(t, err, &config)
	assert.Contains(t, config.Reason, "requires_js")
}

func TestHTMLScraper_Pagination(t *testing.T) {
	var pages []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages = append(pages, r.URL.Query().Get("page"))
		if r.URL.Query().Get("page") == "1" {
			_, _ = w.Write([]byte(careersPage))
			return
		}
		_, _ = w.Write([]byte(`<html><body></body></html>`))
	}))
	defer server.Close()

	source := htmlTestSource(server.URL + "/careers")
	source.Config["pagination"] = map[string]interface{}{
		"param":     "page",
		"max_pages": 3,
	}

	s, err := New(source, atsDeps(t))
	require.NoError(t, err)

	records, err := s.Scrape(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, []string{"1", "2"}, pages, "an empty page stops the walk")
}

func TestSplitFieldSelector(t *testing.T) {
	tests := []struct {
		spec     string
		wantSel  string
		wantAttr string
	}{
		{"a.apply@href", "a.apply", "href"},
		{"h2", "h2", ""},
		{"@data-url", "", "data-url"},
		{`a[href^="/jobs"]@href`, `a[href^="/jobs"]`, "href"},
		{"span@", "span@", ""},
	}

	for _, tt := range tests {
		sel, attr := splitFieldSelector(tt.spec)
		assert.Equal(t, tt.wantSel, sel, tt.spec)
		assert.Equal(t, tt.wantAttr, attr, tt.spec)
	}
}
