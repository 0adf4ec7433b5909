package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/venari/internal/models"
)

const careersPage = `<html><body>
<div class="job"><h2><a href="/jobs/1">Senior Go Engineer</a></h2><span>Remote</span></div>
<div class="job"><h2><a href="/jobs/2">Staff Platform Engineer</a></h2><span>Remote</span></div>
</body></html>`

func htmlServer(t *testing.T, page string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(server.Close)
	return server
}

func seedDiscoveryItem(t *testing.T, env *testEnv, companyName, pageURL string) *models.QueueItem {
	t.Helper()
	item := models.NewQueueItem(models.ItemTypeSourceDiscovery)
	item.CompanyName = companyName
	item.URL = pageURL

	_, err := env.queue.Add(context.Background(), item)
	require.NoError(t, err)
	return item
}

func TestSourceWorker_ScrapeSourceQueuesJobs(t *testing.T) {
	env := newTestEnv(t)
	_, _, worker, _, _ := newWorkerSet(env)
	ctx := context.Background()

	server := jobsServer(t, apiJobsPayload(remoteGoJob("https://jobs.example.com/1")))
	source := seedAPISource(t, env, "Acme Board", server.URL)

	item := models.NewQueueItem(models.ItemTypeScrapeSource)
	item.SourceID = source.ID
	item.Source = source.Name
	_, err := env.queue.Add(ctx, item)
	require.NoError(t, err)

	require.NoError(t, worker.HandleScrapeSource(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Equal(t, "queued 1 jobs from Acme Board", got.ResultMessage)
	assert.Len(t, pendingJobs(t, env), 1)
}

func TestSourceWorker_ScrapeSourceMissing(t *testing.T) {
	env := newTestEnv(t)
	_, _, worker, _, _ := newWorkerSet(env)

	item := models.NewQueueItem(models.ItemTypeScrapeSource)
	item.SourceID = "src_missing"
	_, err := env.queue.Add(context.Background(), item)
	require.NoError(t, err)

	require.NoError(t, worker.HandleScrapeSource(context.Background(), item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ResultMessage, "not found")
}

func TestSourceWorker_DiscoverySkipsCoveredURL(t *testing.T) {
	env := newTestEnv(t)
	_, _, worker, _, _ := newWorkerSet(env)
	ctx := context.Background()

	existing := seedAPISource(t, env, "Acme Board", "https://careers.example.com/api")

	item := seedDiscoveryItem(t, env, "Acme", "https://careers.example.com/api")
	require.NoError(t, worker.HandleDiscovery(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Contains(t, got.ResultMessage, existing.ID)
	assert.Contains(t, got.ResultMessage, "already covers")
}

func TestSourceWorker_DiscoveryFailsWithoutURL(t *testing.T) {
	env := newTestEnv(t)
	_, _, worker, _, _ := newWorkerSet(env)

	item := seedDiscoveryItem(t, env, "Acme Robotics", "")
	require.NoError(t, worker.HandleDiscovery(context.Background(), item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ResultMessage, "no ats board found")
}

func TestSourceWorker_DiscoveryQueuesSingleJob(t *testing.T) {
	env := newTestEnv(t)
	_, _, worker, _, _ := newWorkerSet(env)
	ctx := context.Background()

	server := htmlServer(t, `<html><body><h1>Senior Go Engineer</h1><p>Join us.</p></body></html>`)
	pageURL := server.URL + "/jobs/42"

	env.ai.classifyURL = func(url, pageText string) (*models.SourceClassification, error) {
		assert.Equal(t, pageURL, url)
		assert.Contains(t, pageText, "Senior Go Engineer")
		assert.NotContains(t, pageText, "<h1>")
		return &models.SourceClassification{
			Category:    models.URLCategorySingleJob,
			CompanyName: "Acme Robotics",
			Confidence:  0.92,
		}, nil
	}

	item := seedDiscoveryItem(t, env, "", pageURL)
	require.NoError(t, worker.HandleDiscovery(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Contains(t, got.ResultMessage, "queued job")

	child := childOf(t, env, item.ID)
	assert.Equal(t, models.ItemTypeJob, child.Type)
	assert.Equal(t, pageURL, child.URL)
	assert.Equal(t, "Acme Robotics", child.CompanyName)
	assert.Equal(t, models.JobStageScrape, child.SubTask)
	assert.Equal(t, "source_discovery", child.SubmittedBy)
}

func TestSourceWorker_DiscoveryCreatesSourceFromProposal(t *testing.T) {
	env := newTestEnv(t)
	_, _, worker, _, _ := newWorkerSet(env)
	ctx := context.Background()

	server := htmlServer(t, careersPage)
	pageURL := server.URL + "/careers"

	env.ai.classifyURL = func(string, string) (*models.SourceClassification, error) {
		return &models.SourceClassification{
			Category:    models.URLCategoryCompany,
			CompanyName: "Acme Robotics",
			Confidence:  0.9,
		}, nil
	}
	env.ai.proposeConfig = func(draft *models.Source, sample string) (*models.SourceProposal, error) {
		assert.Equal(t, "Acme Robotics", draft.Name)
		assert.Contains(t, sample, `class="job"`)
		return &models.SourceProposal{
			SourceType: models.SourceTypeHTML,
			Config: map[string]interface{}{
				"job_selector": "div.job",
				"fields": map[string]interface{}{
					"title": "h2 a",
					"url":   "h2 a@href",
				},
				"base_url": server.URL,
			},
			Confidence: 0.85,
		}, nil
	}

	item := seedDiscoveryItem(t, env, "", pageURL)
	require.NoError(t, worker.HandleDiscovery(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Contains(t, got.ResultMessage, "probe found 2 jobs")

	created, err := env.sources.GetByURL(ctx, pageURL)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "Acme Robotics", created.Name)
	assert.Equal(t, models.SourceTypeHTML, created.SourceType)
	selector, _ := created.ConfigString("job_selector")
	assert.Equal(t, "div.job", selector)
}

func TestSourceWorker_DiscoveryRejectsUnusableProposal(t *testing.T) {
	env := newTestEnv(t)
	_, _, worker, _, _ := newWorkerSet(env)
	ctx := context.Background()

	server := htmlServer(t, careersPage)
	pageURL := server.URL + "/careers"

	env.ai.classifyURL = func(string, string) (*models.SourceClassification, error) {
		return &models.SourceClassification{Category: models.URLCategoryCompany, Confidence: 0.8}, nil
	}
	env.ai.proposeConfig = func(*models.Source, string) (*models.SourceProposal, error) {
		// No job_selector, so validation rejects it before any probe.
		return &models.SourceProposal{
			SourceType: models.SourceTypeHTML,
			Config:     map[string]interface{}{"url": pageURL},
		}, nil
	}

	item := seedDiscoveryItem(t, env, "Acme Robotics", pageURL)
	require.NoError(t, worker.HandleDiscovery(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ResultMessage, "could not derive a working config")

	// An unusable proposal never creates a row.
	_, err := env.sources.GetByURL(ctx, pageURL)
	assert.Error(t, err)
}

func TestSourceWorker_DiscoveryRejectsVendorPage(t *testing.T) {
	env := newTestEnv(t)
	_, _, worker, _, _ := newWorkerSet(env)

	server := htmlServer(t, `<html><body><h1>Hire with us</h1></body></html>`)

	env.ai.classifyURL = func(string, string) (*models.SourceClassification, error) {
		return &models.SourceClassification{Category: models.URLCategoryATSVendor, Confidence: 0.95}, nil
	}

	item := seedDiscoveryItem(t, env, "", server.URL)
	require.NoError(t, worker.HandleDiscovery(context.Background(), item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ResultMessage, "ats vendor page")
}

func TestSourceWorker_RecoverAppliesProposedConfig(t *testing.T) {
	env := newTestEnv(t)
	_, _, worker, _, _ := newWorkerSet(env)
	ctx := context.Background()

	server := htmlServer(t, careersPage)
	pageURL := server.URL + "/careers"

	source := &models.Source{
		Name:       "JS Board",
		SourceType: models.SourceTypeHTML,
		Config: map[string]interface{}{
			"url":          pageURL,
			"job_selector": "div.stale",
			"fields": map[string]interface{}{
				"title": "h2",
				"url":   "a@href",
			},
			"requires_js": true,
		},
	}
	_, err := env.sources.Create(ctx, source)
	require.NoError(t, err)

	env.ai.proposeConfig = func(draft *models.Source, sample string) (*models.SourceProposal, error) {
		assert.Contains(t, sample, "Senior Go Engineer")
		return &models.SourceProposal{
			SourceType: models.SourceTypeHTML,
			Config: map[string]interface{}{
				"job_selector": "div.job",
				"fields": map[string]interface{}{
					"title": "h2 a",
					"url":   "h2 a@href",
				},
				"base_url": server.URL,
			},
		}, nil
	}

	item := models.NewQueueItem(models.ItemTypeSourceRecover)
	item.SourceID = source.ID
	item.Source = source.Name
	_, err = env.queue.Add(ctx, item)
	require.NoError(t, err)

	require.NoError(t, worker.HandleRecover(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Contains(t, got.ResultMessage, "recovered JS Board")
	assert.Contains(t, got.ResultMessage, "probe found 2 jobs")

	recovered, err := env.sources.Get(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusActive, recovered.Status)
	assert.False(t, recovered.RequiresJS())
	selector, _ := recovered.ConfigString("job_selector")
	assert.Equal(t, "div.job", selector)
}

func TestSourceWorker_RecoverDisablesBehindProtection(t *testing.T) {
	env := newTestEnv(t)
	_, _, worker, _, _ := newWorkerSet(env)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html><title>Just a moment...</title></html>"))
	}))
	t.Cleanup(server.Close)

	source := &models.Source{
		Name:       "Walled Board",
		SourceType: models.SourceTypeHTML,
		Config: map[string]interface{}{
			"url":          server.URL,
			"job_selector": "div.job",
			"fields": map[string]interface{}{
				"title": "h2",
				"url":   "a@href",
			},
		},
	}
	_, err := env.sources.Create(ctx, source)
	require.NoError(t, err)

	item := models.NewQueueItem(models.ItemTypeSourceRecover)
	item.SourceID = source.ID
	_, err = env.queue.Add(ctx, item)
	require.NoError(t, err)

	require.NoError(t, worker.HandleRecover(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ResultMessage, "recovery aborted")

	walled, err := env.sources.Get(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusDisabled, walled.Status)
	assert.True(t, walled.HasDisableTag(models.DisableTagAntiBot))
}

func TestSourceWorker_RecoverDisablesWhenProbeFindsNothing(t *testing.T) {
	env := newTestEnv(t)
	_, _, worker, _, _ := newWorkerSet(env)
	ctx := context.Background()

	server := htmlServer(t, `<html><body><div class="different">No jobs here</div></body></html>`)

	source := &models.Source{
		Name:       "Drifted Board",
		SourceType: models.SourceTypeHTML,
		Config: map[string]interface{}{
			"url":          server.URL,
			"job_selector": "div.stale",
			"fields": map[string]interface{}{
				"title": "h2",
				"url":   "a@href",
			},
		},
	}
	_, err := env.sources.Create(ctx, source)
	require.NoError(t, err)

	env.ai.proposeConfig = func(*models.Source, string) (*models.SourceProposal, error) {
		return &models.SourceProposal{
			SourceType: models.SourceTypeHTML,
			Config: map[string]interface{}{
				"job_selector": "div.job",
				"fields": map[string]interface{}{
					"title": "h2",
					"url":   "a@href",
				},
			},
		}, nil
	}

	item := models.NewQueueItem(models.ItemTypeSourceRecover)
	item.SourceID = source.ID
	_, err = env.queue.Add(ctx, item)
	require.NoError(t, err)

	require.NoError(t, worker.HandleRecover(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ResultMessage, "automatic recovery failed")
	assert.Contains(t, got.ResultMessage, "probe scrape found no jobs")

	drifted, err := env.sources.Get(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusDisabled, drifted.Status)
	assert.True(t, strings.Contains(drifted.DisabledNotes, "automatic recovery failed"))
}

func TestSourceWorker_RecoverMissingSource(t *testing.T) {
	env := newTestEnv(t)
	_, _, worker, _, _ := newWorkerSet(env)

	item := models.NewQueueItem(models.ItemTypeSourceRecover)
	item.SourceID = "src_gone"
	_, err := env.queue.Add(context.Background(), item)
	require.NoError(t, err)

	require.NoError(t, worker.HandleRecover(context.Background(), item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ResultMessage, "not found")
}
