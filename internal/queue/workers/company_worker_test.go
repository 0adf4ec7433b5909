package workers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/venari/internal/models"
)

func seedCompanyAt(t *testing.T, env *testEnv, stage models.CompanyStage, name string, state map[string]interface{}) *models.QueueItem {
	t.Helper()
	item := models.NewQueueItem(models.ItemTypeCompany)
	item.CompanyName = name
	item.CompanySubTask = stage
	item.PipelineState = state

	_, err := env.queue.Add(context.Background(), item)
	require.NoError(t, err)
	return item
}

func companyFromItemState(t *testing.T, item *models.QueueItem) models.Company {
	t.Helper()
	data, ok := item.StateMap(stateCompanyRecord)
	require.True(t, ok, "no company record in state")
	var company models.Company
	require.NoError(t, mapToStruct(data, &company))
	return company
}

func TestCompanyWorker_FetchStoresWebsiteContent(t *testing.T) {
	env := newTestEnv(t)
	_, company, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	env.info.fetch = func(url string) (*models.WebsiteContent, error) {
		return &models.WebsiteContent{
			URL:       url,
			Markdown:  "# Acme Robotics\nWarehouse automation.",
			PageCount: 2,
		}, nil
	}

	item := models.NewQueueItem(models.ItemTypeCompany)
	item.CompanyName = "Acme Robotics"
	item.CompanySubTask = models.CompanyStageFetch
	item.Metadata = map[string]interface{}{metaCompanyWebsite: "https://acme.example.com"}
	_, err := env.queue.Add(ctx, item)
	require.NoError(t, err)

	require.NoError(t, company.StageFetch(ctx, item))
	assert.Equal(t, []string{"https://acme.example.com"}, env.info.fetched)

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.CompanyStageExtract, got.CompanySubTask)
	assert.Equal(t, models.StatusPending, got.Status)

	content, ok := got.StateMap(stateWebsiteContent)
	require.True(t, ok)
	assert.Contains(t, content["markdown"], "Warehouse automation")
}

func TestCompanyWorker_FetchFailsWithoutName(t *testing.T) {
	env := newTestEnv(t)
	_, company, _, _, _ := newWorkerSet(env)

	item := seedCompanyAt(t, env, models.CompanyStageFetch, "", nil)

	require.NoError(t, company.StageFetch(context.Background(), item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ResultMessage, "no company name")
}

func TestCompanyWorker_FetchUsesStoredWebsite(t *testing.T) {
	env := newTestEnv(t)
	_, company, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	_, err := env.companies.Save(ctx, &models.Company{
		Name:    "Acme Robotics",
		Website: "https://stored.example.com",
	})
	require.NoError(t, err)

	env.info.fetch = func(url string) (*models.WebsiteContent, error) {
		return &models.WebsiteContent{URL: url, Markdown: "stored site content"}, nil
	}

	item := seedCompanyAt(t, env, models.CompanyStageFetch, "Acme Robotics", nil)
	require.NoError(t, company.StageFetch(ctx, item))

	assert.Equal(t, []string{"https://stored.example.com"}, env.info.fetched)
	assert.Equal(t, models.CompanyStageExtract, getItem(t, env, item.ID).CompanySubTask)
}

func TestCompanyWorker_FetchFailsWithoutWebsite(t *testing.T) {
	env := newTestEnv(t)
	_, company, _, _, _ := newWorkerSet(env)

	item := seedCompanyAt(t, env, models.CompanyStageFetch, "Unknown Co", nil)

	require.NoError(t, company.StageFetch(context.Background(), item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ResultMessage, "no website known")
	assert.Empty(t, env.info.fetched)
}

func TestCompanyWorker_FetchErrorIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	_, company, _, _, _ := newWorkerSet(env)

	env.info.fetch = func(string) (*models.WebsiteContent, error) {
		return nil, errors.New("connection reset")
	}

	item := models.NewQueueItem(models.ItemTypeCompany)
	item.CompanyName = "Acme Robotics"
	item.CompanySubTask = models.CompanyStageFetch
	item.Metadata = map[string]interface{}{metaCompanyWebsite: "https://acme.example.com"}
	_, err := env.queue.Add(context.Background(), item)
	require.NoError(t, err)

	err = company.StageFetch(context.Background(), item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	// The item is left for the dispatcher's retry handling.
	assert.Equal(t, models.StatusPending, getItem(t, env, item.ID).Status)
}

func TestCompanyWorker_ExtractMergesStoredRecord(t *testing.T) {
	env := newTestEnv(t)
	_, company, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	storedAbout := strings.Repeat("Acme Robotics builds warehouse automation. ", 3)
	_, err := env.companies.Save(ctx, &models.Company{
		Name:  "Acme Robotics",
		About: storedAbout,
		Tier:  2,
	})
	require.NoError(t, err)

	env.ai.extractCompany = func(name, content string) (*models.Company, error) {
		assert.Equal(t, "Acme Robotics", name)
		assert.Contains(t, content, "fresh crawl")
		return &models.Company{Mission: "Automate every warehouse"}, nil
	}

	state := map[string]interface{}{
		stateWebsiteContent: structToMap(&models.WebsiteContent{
			URL:      "https://acme.example.com",
			Markdown: "fresh crawl markdown",
		}),
	}
	item := seedCompanyAt(t, env, models.CompanyStageExtract, "Acme Robotics", state)

	require.NoError(t, company.StageExtract(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.CompanyStageAnalyse, got.CompanySubTask)

	merged := companyFromItemState(t, got)
	assert.Equal(t, "Acme Robotics", merged.Name)
	assert.Equal(t, "Automate every warehouse", merged.Mission)
	assert.Equal(t, storedAbout, merged.About)
	assert.Equal(t, 2, merged.Tier)
	assert.Equal(t, "https://acme.example.com", merged.Website)
}

func TestCompanyWorker_AnalyseClassifies(t *testing.T) {
	env := newTestEnv(t)
	_, company, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	env.ai.classifyCompany = func(c *models.Company) (*models.Company, error) {
		c.Tier = 1
		c.PriorityScore = 90
		return c, nil
	}

	state := map[string]interface{}{
		stateCompanyRecord: structToMap(&models.Company{Name: "Acme Robotics", About: "robots"}),
	}
	item := seedCompanyAt(t, env, models.CompanyStageAnalyse, "Acme Robotics", state)

	require.NoError(t, company.StageAnalyse(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.CompanyStageSave, got.CompanySubTask)

	classified := companyFromItemState(t, got)
	assert.Equal(t, 1, classified.Tier)
	assert.Equal(t, 90, classified.PriorityScore)
}

func TestCompanyWorker_SavePersistsAndRegistersDone(t *testing.T) {
	env := newTestEnv(t)
	_, company, _, _, _ := newWorkerSet(env)
	ctx := context.Background()

	state := map[string]interface{}{
		stateCompanyRecord: structToMap(&models.Company{
			Name:    "Acme Robotics",
			Website: "https://acme.example.com",
			About:   "Warehouse automation",
		}),
	}
	item := seedCompanyAt(t, env, models.CompanyStageSave, "Acme Robotics", state)

	require.NoError(t, company.StageSave(ctx, item))

	got := getItem(t, env, item.ID)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Contains(t, got.ResultMessage, "enriched")

	saved, err := env.companies.GetByName(ctx, "Acme Robotics")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.example.com", saved.Website)

	// The registry remembers the completed run, so the analyse stage of a
	// JOB item does not immediately re-request enrichment.
	assert.True(t, company.HasCompanyTask("Acme Robotics"))
}

func TestCompanyWorker_TaskRegistryNormalisesNames(t *testing.T) {
	env := newTestEnv(t)
	_, company, _, _, _ := newWorkerSet(env)

	assert.False(t, company.HasCompanyTask("Acme Robotics"))

	company.trackRequested("Acme Robotics")
	assert.True(t, company.HasCompanyTask("  acme robotics "))
	assert.False(t, company.HasCompanyTask("Other Co"))

	company.trackDone("ACME ROBOTICS")
	assert.True(t, company.HasCompanyTask("Acme Robotics"))
}
