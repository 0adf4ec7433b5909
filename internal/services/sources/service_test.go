package sources

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/models"
)

type fakeSourceStorage struct {
	sources map[string]*models.Source
}

func newFakeSourceStorage() *fakeSourceStorage {
	return &fakeSourceStorage{sources: map[string]*models.Source{}}
}

func (f *fakeSourceStorage) SaveSource(_ context.Context, source *models.Source) error {
	copied := *source
	f.sources[source.ID] = &copied
	return nil
}

func (f *fakeSourceStorage) GetSource(_ context.Context, id string) (*models.Source, error) {
	source, ok := f.sources[id]
	if !ok {
		return nil, models.ErrSourceNotFound
	}
	copied := *source
	return &copied, nil
}

func (f *fakeSourceStorage) GetSourceByURL(_ context.Context, url string) (*models.Source, error) {
	for _, source := range f.sources {
		if u, ok := source.ConfigString("url"); ok && u == url {
			copied := *source
			return &copied, nil
		}
	}
	return nil, models.ErrSourceNotFound
}

func (f *fakeSourceStorage) ListSources(_ context.Context) ([]*models.Source, error) {
	out := make([]*models.Source, 0, len(f.sources))
	for _, source := range f.sources {
		copied := *source
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeSourceStorage) ListActiveSources(ctx context.Context) ([]*models.Source, error) {
	all, _ := f.ListSources(ctx)
	var active []*models.Source
	for _, source := range all {
		if source.Status == models.SourceStatusActive {
			active = append(active, source)
		}
	}
	return active, nil
}

func (f *fakeSourceStorage) UpdateSource(_ context.Context, source *models.Source) error {
	if _, ok := f.sources[source.ID]; !ok {
		return models.ErrSourceNotFound
	}
	copied := *source
	f.sources[source.ID] = &copied
	return nil
}

func (f *fakeSourceStorage) DeleteSource(_ context.Context, id string) error {
	if _, ok := f.sources[id]; !ok {
		return models.ErrSourceNotFound
	}
	delete(f.sources, id)
	return nil
}

func (f *fakeSourceStorage) CountByStatus(_ context.Context) (map[string]int, error) {
	counts := map[string]int{}
	for _, source := range f.sources {
		counts[source.Status]++
	}
	return counts, nil
}

func validHTMLSource() *models.Source {
	return &models.Source{
		Name:       "Acme Careers",
		SourceType: models.SourceTypeHTML,
		Config: map[string]interface{}{
			"url":          "https://acme.com/careers",
			"job_selector": ".job-card",
			"fields": map[string]interface{}{
				"title": ".title",
				"url":   "a@href",
			},
		},
	}
}

func TestCreate_AssignsIDAndDefaults(t *testing.T) {
	storage := newFakeSourceStorage()
	svc := NewService(storage, nil, arbor.NewLogger())

	source := validHTMLSource()
	id, err := svc.Create(context.Background(), source)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(id, "src_"))
	stored, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusActive, stored.Status)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestCreate_RejectsInvalidConfig(t *testing.T) {
	storage := newFakeSourceStorage()
	svc := NewService(storage, nil, arbor.NewLogger())

	source := validHTMLSource()
	delete(source.Config, "job_selector")

	_, err := svc.Create(context.Background(), source)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job_selector")
}

func TestRecordFailure_DisablesAtThreshold(t *testing.T) {
	storage := newFakeSourceStorage()
	svc := NewService(storage, nil, arbor.NewLogger())

	id, err := svc.Create(context.Background(), validHTMLSource())
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		source, err := svc.RecordFailure(context.Background(), id, "connection refused")
		require.NoError(t, err)
		assert.Equal(t, i, source.ConsecutiveFailures)
		assert.Equal(t, models.SourceStatusActive, source.Status)
	}

	source, err := svc.RecordFailure(context.Background(), id, "connection refused")
	require.NoError(t, err)
	assert.Equal(t, 3, source.ConsecutiveFailures)
	assert.Equal(t, models.SourceStatusDisabled, source.Status)
	assert.Contains(t, source.DisabledNotes, "3 consecutive failures")
}

func TestRecordSuccess_ResetsCounters(t *testing.T) {
	storage := newFakeSourceStorage()
	svc := NewService(storage, nil, arbor.NewLogger())

	id, err := svc.Create(context.Background(), validHTMLSource())
	require.NoError(t, err)

	_, err = svc.RecordFailure(context.Background(), id, "timeout")
	require.NoError(t, err)
	_, err = svc.RecordZeroJobs(context.Background(), id)
	require.NoError(t, err)

	require.NoError(t, svc.RecordSuccess(context.Background(), id, 12))

	source, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, source.ConsecutiveFailures)
	assert.Equal(t, 0, source.ConsecutiveZeroJobs)
	require.NotNil(t, source.LastScrapedAt)
	assert.WithinDuration(t, time.Now(), *source.LastScrapedAt, 5*time.Second)
}

func TestRecordZeroJobs_IncrementsAndReturnsCount(t *testing.T) {
	storage := newFakeSourceStorage()
	svc := NewService(storage, nil, arbor.NewLogger())

	id, err := svc.Create(context.Background(), validHTMLSource())
	require.NoError(t, err)

	count, err := svc.RecordZeroJobs(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = svc.RecordZeroJobs(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	source, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.NotNil(t, source.LastScrapedAt)
	assert.Equal(t, models.SourceStatusActive, source.Status, "zero jobs never disables directly")
}

func TestDisable_AddsTagsWithoutDuplicates(t *testing.T) {
	storage := newFakeSourceStorage()
	svc := NewService(storage, nil, arbor.NewLogger())

	id, err := svc.Create(context.Background(), validHTMLSource())
	require.NoError(t, err)

	require.NoError(t, svc.Disable(context.Background(), id, "login wall detected", models.DisableTagAuthRequired))
	require.NoError(t, svc.Disable(context.Background(), id, "still walled", models.DisableTagAuthRequired, models.DisableTagAntiBot))

	source, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusDisabled, source.Status)
	assert.Equal(t, []string{models.DisableTagAuthRequired, models.DisableTagAntiBot}, source.DisabledTags)
	assert.Equal(t, "still walled", source.DisabledNotes)
}

func TestEnable_ClearsFailureState(t *testing.T) {
	storage := newFakeSourceStorage()
	svc := NewService(storage, nil, arbor.NewLogger())

	id, err := svc.Create(context.Background(), validHTMLSource())
	require.NoError(t, err)

	_, err = svc.RecordFailure(context.Background(), id, "x")
	require.NoError(t, err)
	require.NoError(t, svc.Disable(context.Background(), id, "broken", models.DisableTagAntiBot))

	require.NoError(t, svc.Enable(context.Background(), id))

	source, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusActive, source.Status)
	assert.Equal(t, 0, source.ConsecutiveFailures)
	assert.Empty(t, source.DisabledNotes)
	assert.Empty(t, source.DisabledTags)
}

func TestCountByStatus(t *testing.T) {
	storage := newFakeSourceStorage()
	svc := NewService(storage, nil, arbor.NewLogger())

	first, err := svc.Create(context.Background(), validHTMLSource())
	require.NoError(t, err)

	second := validHTMLSource()
	second.Name = "Globex Careers"
	_, err = svc.Create(context.Background(), second)
	require.NoError(t, err)

	require.NoError(t, svc.Disable(context.Background(), first, "walled", models.DisableTagAuthRequired))

	counts, err := svc.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.SourceStatusActive])
	assert.Equal(t, 1, counts[models.SourceStatusDisabled])
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name       string
		sourceType string
		config     map[string]interface{}
		wantErr    string
	}{
		{
			name:       "valid html",
			sourceType: models.SourceTypeHTML,
			config: map[string]interface{}{
				"url":          "https://acme.com/careers",
				"job_selector": ".job",
				"fields":       map[string]interface{}{"title": ".t", "url": "a@href"},
			},
		},
		{
			name:       "html missing fields.url",
			sourceType: models.SourceTypeHTML,
			config: map[string]interface{}{
				"url":          "https://acme.com/careers",
				"job_selector": ".job",
				"fields":       map[string]interface{}{"title": ".t"},
			},
			wantErr: "fields.url",
		},
		{
			name:       "valid api",
			sourceType: models.SourceTypeAPI,
			config: map[string]interface{}{
				"url":           "https://acme.com/api/jobs",
				"response_path": "jobs",
				"fields":        map[string]interface{}{"title": "title", "url": "absolute_url"},
			},
		},
		{
			name:       "api missing response_path",
			sourceType: models.SourceTypeAPI,
			config: map[string]interface{}{
				"url":    "https://acme.com/api/jobs",
				"fields": map[string]interface{}{"title": "title"},
			},
			wantErr: "response_path",
		},
		{
			name:       "api bad pagination type",
			sourceType: models.SourceTypeAPI,
			config: map[string]interface{}{
				"url":           "https://acme.com/api/jobs",
				"response_path": "jobs",
				"fields":        map[string]interface{}{"title": "title"},
				"pagination":    map[string]interface{}{"type": "cursor", "param": "page"},
			},
			wantErr: "offset or page_num",
		},
		{
			name:       "valid rss",
			sourceType: models.SourceTypeRSS,
			config:     map[string]interface{}{"url": "https://acme.com/jobs.rss"},
		},
		{
			name:       "ats with board token",
			sourceType: models.SourceTypeGreenhouse,
			config:     map[string]interface{}{"board_token": "acme"},
		},
		{
			name:       "ats with url",
			sourceType: models.SourceTypeLever,
			config:     map[string]interface{}{"url": "https://jobs.lever.co/acme"},
		},
		{
			name:       "ats with neither",
			sourceType: models.SourceTypeAshby,
			config:     map[string]interface{}{},
			wantErr:    "board_token or url",
		},
		{
			name:       "bad url scheme",
			sourceType: models.SourceTypeRSS,
			config:     map[string]interface{}{"url": "ftp://acme.com/jobs"},
			wantErr:    "not a valid http(s) url",
		},
		{
			name:       "unknown type",
			sourceType: "csv",
			config:     map[string]interface{}{"url": "https://acme.com"},
			wantErr:    "unknown source type",
		},
		{
			name:       "empty type",
			sourceType: "",
			config:     map[string]interface{}{},
			wantErr:    "source type is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.sourceType, tt.config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
