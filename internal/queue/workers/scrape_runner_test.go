package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

func seedScrapeItem(t *testing.T, env *testEnv, cfg *models.ScrapeRunConfig) *models.QueueItem {
	t.Helper()
	item := models.NewQueueItem(models.ItemTypeScrape)
	item.ScrapeConfig = cfg
	item.SubmittedBy = "test"

	_, err := env.queue.Add(context.Background(), item)
	require.NoError(t, err)
	return item
}

func intPtr(v int) *int { return &v }

func pendingJobs(t *testing.T, env *testEnv) []*models.QueueItem {
	t.Helper()
	pending, err := env.queue.GetPending(context.Background(), 100)
	require.NoError(t, err)

	var jobs []*models.QueueItem
	for _, item := range pending {
		if item.Type == models.ItemTypeJob {
			jobs = append(jobs, item)
		}
	}
	return jobs
}

func TestScrapeRunner_QueuesJobsFromAPISource(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, runner, _ := newWorkerSet(env)
	ctx := context.Background()

	recA := remoteGoJob("https://jobs.example.com/1")
	recB := remoteGoJob("https://jobs.example.com/2")
	recB.Title = "Principal Backend Engineer"
	server := jobsServer(t, apiJobsPayload(recA, recB))
	source := seedAPISource(t, env, "Acme Board", server.URL)

	progressEvents := make(chan interfaces.Event, 4)
	require.NoError(t, env.events.Subscribe(interfaces.EventScrapeProgress, func(_ context.Context, e interfaces.Event) error {
		progressEvents <- e
		return nil
	}))

	item := seedScrapeItem(t, env, nil)
	require.NoError(t, runner.Run(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Equal(t, "queued 2 jobs from 1 sources", got.ResultMessage)

	jobs := pendingJobs(t, env)
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		assert.Equal(t, models.JobStageScrape, job.SubTask)
		assert.Equal(t, source.ID, job.SourceID)
		assert.Equal(t, "scrape_runner", job.SubmittedBy)

		data, ok := job.StateMap(stateJobData)
		require.True(t, ok, "job %s should carry the scraped record", job.URL)
		assert.NotEmpty(t, data["title"])
	}

	updated, err := env.sources.Get(ctx, source.ID)
	require.NoError(t, err)
	assert.NotNil(t, updated.LastScrapedAt)
	assert.Zero(t, updated.ConsecutiveFailures)

	select {
	case e := <-progressEvents:
		payload, ok := e.Payload.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, source.ID, payload["source_id"])
		assert.Equal(t, 1, payload["sources_total"])
	case <-time.After(2 * time.Second):
		t.Fatal("no scrape progress event received")
	}
}

func TestScrapeRunner_ScreensAndDeduplicates(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, runner, _ := newWorkerSet(env)
	ctx := context.Background()

	good := remoteGoJob("https://jobs.example.com/good")
	excluded := remoteGoJob("https://jobs.example.com/excluded")
	excluded.Title = "Marketing Intern"
	duplicate := remoteGoJob("https://jobs.example.com/good")
	published := remoteGoJob("https://jobs.example.com/published")

	_, err := env.published.SaveMatch(ctx,
		&models.JobListing{URL: published.URL, Title: published.Title, CompanyName: published.Company},
		&models.JobMatch{URL: published.URL, Score: 70, Status: models.MatchStatusNew})
	require.NoError(t, err)

	server := jobsServer(t, apiJobsPayload(good, excluded, duplicate, published))
	seedAPISource(t, env, "Acme Board", server.URL)

	item := seedScrapeItem(t, env, nil)
	require.NoError(t, runner.Run(ctx, item))

	assert.Equal(t, "queued 1 jobs from 1 sources", getItem(t, env, item.ID).ResultMessage)

	jobs := pendingJobs(t, env)
	require.Len(t, jobs, 1)
	assert.Equal(t, good.URL, jobs[0].URL)
}

func TestScrapeRunner_DisablesSourceBehindAuthWall(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, runner, _ := newWorkerSet(env)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("insufficient permissions"))
	}))
	t.Cleanup(server.Close)
	source := seedAPISource(t, env, "Walled Board", server.URL)

	item := seedScrapeItem(t, env, nil)
	require.NoError(t, runner.Run(ctx, item))

	assert.Equal(t, "queued 0 jobs from 1 sources", getItem(t, env, item.ID).ResultMessage)

	updated, err := env.sources.Get(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusDisabled, updated.Status)
	assert.True(t, updated.HasDisableTag(models.DisableTagAuthRequired))
	assert.NotEmpty(t, updated.DisabledNotes)
}

func TestScrapeRunner_CountsFailureStrikes(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, runner, _ := newWorkerSet(env)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)
	source := seedAPISource(t, env, "Gone Board", server.URL)

	require.NoError(t, runner.Run(ctx, seedScrapeItem(t, env, nil)))

	updated, err := env.sources.Get(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ConsecutiveFailures)
	assert.Equal(t, models.SourceStatusActive, updated.Status)

	// The default threshold disables the source on the third consecutive
	// failure.
	require.NoError(t, runner.Run(ctx, seedScrapeItem(t, env, nil)))
	require.NoError(t, runner.Run(ctx, seedScrapeItem(t, env, nil)))

	updated, err = env.sources.Get(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusDisabled, updated.Status)
}

func TestScrapeRunner_ZeroJobsQueuesRecoveryAtThreshold(t *testing.T) {
	env := newTestEnv(t)
	env.pc.Renderer = &fakeRenderer{render: func(req interfaces.RenderRequest) (*interfaces.RenderResult, error) {
		return &interfaces.RenderResult{
			FinalURL: req.URL,
			Status:   200,
			HTML:     "<html><body><p>loading jobs</p></body></html>",
		}, nil
	}}
	_, _, _, runner, _ := newWorkerSet(env)
	ctx := context.Background()

	source := &models.Source{
		Name:       "JS Board",
		SourceType: models.SourceTypeHTML,
		Config: map[string]interface{}{
			"url":          "https://js.example.com/careers",
			"job_selector": "div.job",
			"fields": map[string]interface{}{
				"title": "h2",
				"url":   "a@href",
			},
			"requires_js": true,
		},
	}
	_, err := env.sources.Create(ctx, source)
	require.NoError(t, err)

	var lastItem *models.QueueItem
	for run := 1; run <= 3; run++ {
		lastItem = seedScrapeItem(t, env, nil)
		require.NoError(t, runner.Run(ctx, lastItem))

		updated, err := env.sources.Get(ctx, source.ID)
		require.NoError(t, err)
		assert.Equal(t, run, updated.ConsecutiveZeroJobs)
	}

	recovery := childOf(t, env, lastItem.ID)
	assert.Equal(t, models.ItemTypeSourceRecover, recovery.Type)
	assert.Equal(t, source.ID, recovery.SourceID)

	// Earlier runs stayed below the streak threshold and spawned nothing.
	pending, err := env.queue.GetPending(ctx, 100)
	require.NoError(t, err)
	recoveries := 0
	for _, item := range pending {
		if item.Type == models.ItemTypeSourceRecover {
			recoveries++
		}
	}
	assert.Equal(t, 1, recoveries)
}

func TestScrapeRunner_HonoursTargetMatches(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, runner, _ := newWorkerSet(env)
	ctx := context.Background()

	serverA := jobsServer(t, apiJobsPayload(remoteGoJob("https://jobs.example.com/a")))
	serverB := jobsServer(t, apiJobsPayload(remoteGoJob("https://jobs.example.com/b")))
	seedAPISource(t, env, "Board A", serverA.URL)
	seedAPISource(t, env, "Board B", serverB.URL)

	item := seedScrapeItem(t, env, &models.ScrapeRunConfig{TargetMatches: intPtr(1)})
	require.NoError(t, runner.Run(ctx, item))

	assert.Equal(t, "queued 1 jobs from 1 sources", getItem(t, env, item.ID).ResultMessage)
	assert.Len(t, pendingJobs(t, env), 1)
}

func TestScrapeRunner_HonoursMaxSources(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, runner, _ := newWorkerSet(env)
	ctx := context.Background()

	serverA := jobsServer(t, apiJobsPayload(remoteGoJob("https://jobs.example.com/a")))
	serverB := jobsServer(t, apiJobsPayload(remoteGoJob("https://jobs.example.com/b")))
	seedAPISource(t, env, "Board A", serverA.URL)
	seedAPISource(t, env, "Board B", serverB.URL)

	item := seedScrapeItem(t, env, &models.ScrapeRunConfig{MaxSources: intPtr(1)})
	require.NoError(t, runner.Run(ctx, item))

	assert.Equal(t, "queued 1 jobs from 1 sources", getItem(t, env, item.ID).ResultMessage)
}

func TestScrapeRunner_SelectsExplicitSources(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, runner, _ := newWorkerSet(env)
	ctx := context.Background()

	serverA := jobsServer(t, apiJobsPayload(remoteGoJob("https://jobs.example.com/a")))
	serverB := jobsServer(t, apiJobsPayload(remoteGoJob("https://jobs.example.com/b")))
	sourceA := seedAPISource(t, env, "Board A", serverA.URL)
	sourceB := seedAPISource(t, env, "Board B", serverB.URL)

	item := seedScrapeItem(t, env, &models.ScrapeRunConfig{
		SourceIDs:     []string{sourceB.ID},
		MinMatchScore: intPtr(80),
	})
	require.NoError(t, runner.Run(ctx, item))

	jobs := pendingJobs(t, env)
	require.Len(t, jobs, 1)
	assert.Equal(t, "https://jobs.example.com/b", jobs[0].URL)

	minScore, ok := metaInt(jobs[0], metaMinMatchScore)
	require.True(t, ok)
	assert.Equal(t, 80, minScore)

	untouched, err := env.sources.Get(ctx, sourceA.ID)
	require.NoError(t, err)
	assert.Nil(t, untouched.LastScrapedAt)
}

func TestScrapeRunner_NoActiveSources(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, runner, _ := newWorkerSet(env)

	item := seedScrapeItem(t, env, nil)
	require.NoError(t, runner.Run(context.Background(), item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Equal(t, "no active sources to scrape", got.ResultMessage)
}
