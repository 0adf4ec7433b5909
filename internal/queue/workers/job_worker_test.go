package workers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/venari/internal/models"
)

func jobState(rec models.JobRecord) map[string]interface{} {
	return map[string]interface{}{stateJobData: rec.ToMap()}
}

func scoredJobState(rec models.JobRecord, extraction *models.JobExtraction, score int) map[string]interface{} {
	return map[string]interface{}{
		stateJobData:    rec.ToMap(),
		stateExtraction: structToMap(extraction),
		stateScore:      score,
	}
}

func TestJobWorker_ScrapeUsesSeededRecord(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	rec := remoteGoJob("https://example.com/jobs/42")
	item := seedJobAt(t, env, models.JobStageScrape, rec.URL, jobState(rec))

	require.NoError(t, job.StageScrape(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.JobStagePrefilter, got.SubTask)
	assert.Equal(t, models.StatusPending, got.Status)

	data, ok := got.StateMap(stateJobData)
	require.True(t, ok)
	assert.Equal(t, "Senior Go Engineer", data["title"])
}

func TestJobWorker_ScrapeUnwrapsNestedPayload(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	rec := remoteGoJob("https://example.com/jobs/nested")
	item := models.NewQueueItem(models.ItemTypeJob)
	item.URL = rec.URL
	item.ScrapedData = map[string]interface{}{
		"job_data": map[string]interface{}{
			"job_data": rec.ToMap(),
		},
	}
	_, err := env.queue.Add(ctx, item)
	require.NoError(t, err)

	require.NoError(t, job.StageScrape(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.JobStagePrefilter, got.SubTask)
	data, ok := got.StateMap(stateJobData)
	require.True(t, ok)
	assert.Equal(t, "Senior Go Engineer", data["title"])
	assert.NotContains(t, data, "job_data")
}

func TestJobWorker_ScrapeFetchesBareURL(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	page := `<html><head><title>Posting</title>
		<script type="application/ld+json">{
			"@type": "JobPosting",
			"title": "Staff Platform Engineer",
			"description": "Own the ingestion platform end to end.",
			"hiringOrganization": {"name": "Acme Robotics", "sameAs": "https://acme.example.com"},
			"datePosted": "2026-08-20"
		}</script></head><body><h1>ignored</h1></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(server.Close)

	item := seedJobAt(t, env, models.JobStageScrape, server.URL+"/jobs/7", nil)
	require.NoError(t, job.StageScrape(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.JobStagePrefilter, got.SubTask)

	data, ok := got.StateMap(stateJobData)
	require.True(t, ok)
	assert.Equal(t, "Staff Platform Engineer", data["title"])
	assert.Equal(t, "Acme Robotics", data["company"])
	assert.Equal(t, server.URL+"/jobs/7", data["url"])
}

func TestJobWorker_ScrapeFailsWithoutDataOrURL(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)

	item := models.NewQueueItem(models.ItemTypeJob)
	item.CompanyName = "Acme"
	_, err := env.queue.Add(context.Background(), item)
	require.NoError(t, err)

	err = job.StageScrape(context.Background(), item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither scraped data nor a url")
}

func TestJobWorker_PrefilterRejectsExcludedTitle(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	rec := remoteGoJob("https://example.com/jobs/intern")
	rec.Title = "Software Engineering Intern"
	item := seedJobAt(t, env, models.JobStagePrefilter, rec.URL, jobState(rec))

	require.NoError(t, job.StagePrefilter(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusFiltered, got.Status)
	assert.Contains(t, got.ResultMessage, "excluded keyword")
}

func TestJobWorker_PrefilterBypassFlagAdvances(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	rec := remoteGoJob("https://example.com/jobs/bypass")
	rec.Title = "Software Engineering Intern"
	state := jobState(rec)
	state[stateBypassPrefilter] = true
	item := seedJobAt(t, env, models.JobStagePrefilter, rec.URL, state)

	require.NoError(t, job.StagePrefilter(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.JobStageExtract, got.SubTask)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestJobWorker_PrefilterPassesCleanRecord(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	rec := remoteGoJob("https://example.com/jobs/ok")
	item := seedJobAt(t, env, models.JobStagePrefilter, rec.URL, jobState(rec))

	require.NoError(t, job.StagePrefilter(ctx, item))
	assert.Equal(t, models.JobStageExtract, getItem(t, env, item.ID).SubTask)
}

func TestJobWorker_ExtractRepairsLowConfidence(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	repairCalled := false
	env.ai.extractJob = func(models.JobRecord) (*models.JobExtraction, error) {
		return &models.JobExtraction{Seniority: "senior", Confidence: 0.3}, nil
	}
	env.ai.repairExtraction = func(_ models.JobRecord, current *models.JobExtraction) (*models.JobExtraction, error) {
		repairCalled = true
		assert.InDelta(t, 0.3, current.Confidence, 0.001)
		return strongExtraction(), nil
	}

	rec := remoteGoJob("https://example.com/jobs/repair")
	item := seedJobAt(t, env, models.JobStageExtract, rec.URL, jobState(rec))

	require.NoError(t, job.StageExtract(ctx, item))
	assert.True(t, repairCalled)

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.JobStageScore, got.SubTask)

	extractionMap, ok := got.StateMap(stateExtraction)
	require.True(t, ok)
	assert.InDelta(t, 0.9, extractionMap["confidence"], 0.001)
}

func TestJobWorker_ExtractKeepsFirstPassWhenRepairFails(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	env.ai.extractJob = func(models.JobRecord) (*models.JobExtraction, error) {
		return &models.JobExtraction{Seniority: "mid", Confidence: 0.4}, nil
	}
	env.ai.repairExtraction = func(models.JobRecord, *models.JobExtraction) (*models.JobExtraction, error) {
		return nil, errors.New("model timeout")
	}

	rec := remoteGoJob("https://example.com/jobs/keep")
	item := seedJobAt(t, env, models.JobStageExtract, rec.URL, jobState(rec))

	require.NoError(t, job.StageExtract(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.JobStageScore, got.SubTask)

	extractionMap, ok := got.StateMap(stateExtraction)
	require.True(t, ok)
	assert.Equal(t, "mid", extractionMap["seniority"])
	assert.InDelta(t, 0.4, extractionMap["confidence"], 0.001)
}

func TestJobWorker_ScoreFiltersWeakMatch(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	rec := remoteGoJob("https://example.com/jobs/weak")
	state := map[string]interface{}{
		stateJobData:    rec.ToMap(),
		stateExtraction: structToMap(&models.JobExtraction{Confidence: 0.9}),
	}
	item := seedJobAt(t, env, models.JobStageScore, rec.URL, state)

	require.NoError(t, job.StageScore(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusFiltered, got.Status)
	assert.Contains(t, got.ResultMessage, "below threshold 60")
}

func TestJobWorker_ScoreAdvancesStrongMatch(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()
	rankGoHighly(t, env)

	rec := remoteGoJob("https://example.com/jobs/strong")
	state := map[string]interface{}{
		stateJobData:    rec.ToMap(),
		stateExtraction: structToMap(strongExtraction()),
	}
	item := seedJobAt(t, env, models.JobStageScore, rec.URL, state)

	require.NoError(t, job.StageScore(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.JobStageAnalyse, got.SubTask)

	score, ok := got.StateInt(stateScore)
	require.True(t, ok)
	assert.GreaterOrEqual(t, score, 60)
}

func TestJobWorker_ScoreHonoursMetadataThreshold(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()
	rankGoHighly(t, env)

	rec := remoteGoJob("https://example.com/jobs/picky")
	item := models.NewQueueItem(models.ItemTypeJob)
	item.URL = rec.URL
	item.SubTask = models.JobStageScore
	item.PipelineState = map[string]interface{}{
		stateJobData:    rec.ToMap(),
		stateExtraction: structToMap(strongExtraction()),
	}
	item.Metadata = map[string]interface{}{metaMinMatchScore: 95}
	_, err := env.queue.Add(ctx, item)
	require.NoError(t, err)

	require.NoError(t, job.StageScore(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusFiltered, got.Status)
	assert.Contains(t, got.ResultMessage, "below threshold 95")
}

func TestJobWorker_ScoreRejectsCommissionOnly(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	rec := remoteGoJob("https://example.com/jobs/commission")
	rec.Description = rec.Description + " This role is commission only."
	state := map[string]interface{}{
		stateJobData:    rec.ToMap(),
		stateExtraction: structToMap(strongExtraction()),
	}
	item := seedJobAt(t, env, models.JobStageScore, rec.URL, state)

	require.NoError(t, job.StageScore(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusFiltered, got.Status)
	assert.Contains(t, strings.ToLower(got.ResultMessage), "commission")
}

func TestJobWorker_AnalyseWaitsForCompanyThenProceeds(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	rec := remoteGoJob("https://example.com/jobs/enrich")
	rec.CompanyWebsite = "https://acme.example.com"
	item := seedJobAt(t, env, models.JobStageAnalyse, rec.URL, scoredJobState(rec, strongExtraction(), 72))

	// First pass: no company record, so the stage spawns enrichment and
	// requeues itself.
	require.NoError(t, job.StageAnalyse(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.JobStageAnalyse, got.SubTask)
	assert.Equal(t, models.StatusPending, got.Status)
	waits, _ := got.StateInt(stateCompanyWaitCount)
	assert.Equal(t, 1, waits)
	awaiting, _ := got.StateBool(stateAwaitingCompany)
	assert.True(t, awaiting)

	child := childOf(t, env, item.ID)
	assert.Equal(t, models.ItemTypeCompany, child.Type)
	assert.Equal(t, models.CompanyStageFetch, child.CompanySubTask)
	assert.Equal(t, "Acme Robotics", child.CompanyName)
	website, _ := child.MetaString(metaCompanyWebsite)
	assert.Equal(t, "https://acme.example.com", website)

	// Second pass: the enrichment is already in flight, so no new child
	// appears and the wait counter advances.
	require.NoError(t, job.StageAnalyse(ctx, got))
	got = getItem(t, env, item.ID)
	waits, _ = got.StateInt(stateCompanyWaitCount)
	assert.Equal(t, 2, waits)

	pending, err := env.queue.GetPending(ctx, 50)
	require.NoError(t, err)
	companyItems := 0
	for _, candidate := range pending {
		if candidate.Type == models.ItemTypeCompany {
			companyItems++
		}
	}
	assert.Equal(t, 1, companyItems)

	// Once the company record lands, the stage analyses with it.
	about := strings.Repeat("Acme Robotics builds autonomous warehouse systems. ", 4)
	_, err = env.companies.Save(ctx, &models.Company{
		Name:    "Acme Robotics",
		About:   about,
		Culture: about,
	})
	require.NoError(t, err)

	var analysedCompany *models.Company
	env.ai.analyzeMatch = func(_ models.JobRecord, _ *models.JobExtraction, company *models.Company, score int) (*models.MatchAnalysis, error) {
		analysedCompany = company
		assert.Equal(t, 72, score)
		return &models.MatchAnalysis{MatchedSkills: []string{"go"}}, nil
	}

	require.NoError(t, job.StageAnalyse(ctx, got))

	got = getItem(t, env, item.ID)
	assert.Equal(t, models.JobStageSave, got.SubTask)
	require.NotNil(t, analysedCompany)
	assert.Equal(t, "Acme Robotics", analysedCompany.Name)
	awaiting, _ = got.StateBool(stateAwaitingCompany)
	assert.False(t, awaiting)
}

func TestJobWorker_AnalyseProceedsAfterWaitLimit(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	rec := remoteGoJob("https://example.com/jobs/partial")
	state := scoredJobState(rec, strongExtraction(), 65)
	state[stateCompanyWaitCount] = 3
	item := seedJobAt(t, env, models.JobStageAnalyse, rec.URL, state)

	env.ai.analyzeMatch = func(_ models.JobRecord, _ *models.JobExtraction, company *models.Company, _ int) (*models.MatchAnalysis, error) {
		assert.Nil(t, company)
		return &models.MatchAnalysis{ExperienceMatch: "unknown company"}, nil
	}

	require.NoError(t, job.StageAnalyse(ctx, item))
	assert.Equal(t, models.JobStageSave, getItem(t, env, item.ID).SubTask)
}

func TestJobWorker_AnalyseSkipsEnrichmentForAggregators(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	board := seedAPISource(t, env, "Big Board", "https://board.example.com/api")
	board.AggregatorDomain = "board.example.com"
	require.NoError(t, env.sources.Update(ctx, board))

	rec := remoteGoJob("https://example.com/jobs/agg")
	item := models.NewQueueItem(models.ItemTypeJob)
	item.URL = rec.URL
	item.SubTask = models.JobStageAnalyse
	item.SourceID = board.ID
	item.PipelineState = scoredJobState(rec, strongExtraction(), 70)
	_, err := env.queue.Add(ctx, item)
	require.NoError(t, err)

	env.ai.analyzeMatch = func(models.JobRecord, *models.JobExtraction, *models.Company, int) (*models.MatchAnalysis, error) {
		return &models.MatchAnalysis{}, nil
	}

	require.NoError(t, job.StageAnalyse(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.JobStageSave, got.SubTask)

	pending, err := env.queue.GetPending(ctx, 50)
	require.NoError(t, err)
	for _, candidate := range pending {
		assert.NotEqual(t, models.ItemTypeCompany, candidate.Type)
	}
}

func TestJobWorker_SavePublishesMatch(t *testing.T) {
	env := newTestEnv(t)
	job, _, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	rec := remoteGoJob("https://example.com/jobs/save")
	state := scoredJobState(rec, strongExtraction(), 81)
	state[stateAnalysis] = structToMap(&models.MatchAnalysis{
		MatchedSkills: []string{"go", "sqlite"},
		KeyStrengths:  []string{"platform depth"},
	})
	item := seedJobAt(t, env, models.JobStageSave, rec.URL, state)

	require.NoError(t, job.StageSave(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Contains(t, got.ResultMessage, "score 81")

	exists, err := env.published.JobExists(ctx, rec.URL)
	require.NoError(t, err)
	assert.True(t, exists)

	matches, err := env.published.GetMatches(ctx, models.MatchFilters{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 81, matches[0].Score)
	assert.Equal(t, []string{"go", "sqlite"}, matches[0].MatchedSkills)
	assert.Equal(t, item.ID, matches[0].QueueItemID)
	assert.Equal(t, models.MatchStatusNew, matches[0].Status)
	assert.Equal(t, "senior", matches[0].IntakeData["seniority"])
}
