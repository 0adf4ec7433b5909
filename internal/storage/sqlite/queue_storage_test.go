package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

// setupQueueTestDB creates a test database and returns cleanup function
func setupQueueTestDB(t *testing.T) (*SQLiteDB, func()) {
	tempDir := t.TempDir()
	dbPath := tempDir + "/test.db"

	logger := arbor.NewLogger()
	db, err := NewSQLiteDB(logger, dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
	}

	return db, cleanup
}

func newTestJobItem(url string) *models.QueueItem {
	item := models.NewQueueItem(models.ItemTypeJob)
	item.ID = common.NewItemID()
	item.TrackingID = common.NewTrackingID()
	item.URL = url
	item.SubTask = models.JobStageScrape
	return item
}

func TestQueueStorage_SaveAndGet(t *testing.T) {
	db, cleanup := setupQueueTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	storage := NewQueueStorage(db, logger)
	ctx := context.Background()

	item := newTestJobItem("https://example.com/jobs/123")
	item.CompanyName = "Example Corp"
	item.Source = "greenhouse"
	item.PipelineState = map[string]interface{}{
		"job_data": map[string]interface{}{"title": "Platform Engineer"},
	}
	item.Metadata = map[string]interface{}{"origin": "test"}

	err := storage.SaveItem(ctx, item)
	require.NoError(t, err)

	got, err := storage.GetItem(ctx, item.ID)
	require.NoError(t, err)

	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, models.ItemTypeJob, got.Type)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, "https://example.com/jobs/123", got.URL)
	assert.Equal(t, "Example Corp", got.CompanyName)
	assert.Equal(t, item.TrackingID, got.TrackingID)
	assert.Equal(t, models.JobStageScrape, got.SubTask)
	assert.Equal(t, models.DefaultMaxRetries, got.MaxRetries)
	assert.Nil(t, got.ParentItemID)
	assert.Nil(t, got.CompletedAt)

	jobData, ok := got.StateMap("job_data")
	require.True(t, ok)
	assert.Equal(t, "Platform Engineer", jobData["title"])

	origin, ok := got.MetaString("origin")
	require.True(t, ok)
	assert.Equal(t, "test", origin)
}

func TestQueueStorage_GetNotFound(t *testing.T) {
	db, cleanup := setupQueueTestDB(t)
	defer cleanup()

	storage := NewQueueStorage(db, arbor.NewLogger())

	_, err := storage.GetItem(context.Background(), "item_does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrItemNotFound)
}

func TestQueueStorage_DuplicateURL(t *testing.T) {
	db, cleanup := setupQueueTestDB(t)
	defer cleanup()

	storage := NewQueueStorage(db, arbor.NewLogger())
	ctx := context.Background()

	first := newTestJobItem("https://example.com/jobs/dup")
	require.NoError(t, storage.SaveItem(ctx, first))

	second := newTestJobItem("https://example.com/jobs/dup")
	err := storage.SaveItem(ctx, second)
	require.Error(t, err)
	assert.True(t, models.IsDuplicateItem(err), "expected DuplicateItemError, got %v", err)

	var dup *models.DuplicateItemError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "https://example.com/jobs/dup", dup.URL)

	// The original row is untouched.
	got, err := storage.GetItem(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestQueueStorage_EmptyURLNeverConflicts(t *testing.T) {
	db, cleanup := setupQueueTestDB(t)
	defer cleanup()

	storage := NewQueueStorage(db, arbor.NewLogger())
	ctx := context.Background()

	// SCRAPE and discovery items have no URL; any number may coexist.
	for i := 0; i < 3; i++ {
		item := models.NewQueueItem(models.ItemTypeScrape)
		item.ID = common.NewItemID()
		item.TrackingID = common.NewTrackingID()
		require.NoError(t, storage.SaveItem(ctx, item))
	}

	counts, err := storage.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[string(models.ItemTypeScrape)])
}

func TestQueueStorage_PendingOrderedByUpdatedAt(t *testing.T) {
	db, cleanup := setupQueueTestDB(t)
	defer cleanup()

	storage := NewQueueStorage(db, arbor.NewLogger())
	ctx := context.Background()

	// Timestamps are stored at millisecond precision, so short sleeps are
	// enough to order the rows.
	first := newTestJobItem("https://example.com/jobs/1")
	require.NoError(t, storage.SaveItem(ctx, first))
	time.Sleep(5 * time.Millisecond)

	second := newTestJobItem("https://example.com/jobs/2")
	require.NoError(t, storage.SaveItem(ctx, second))
	time.Sleep(5 * time.Millisecond)

	third := newTestJobItem("https://example.com/jobs/3")
	require.NoError(t, storage.SaveItem(ctx, third))

	pending, err := storage.GetItemsByStatus(ctx, models.StatusPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, first.ID, pending[0].ID, "oldest item should come first")
	assert.Equal(t, second.ID, pending[1].ID)
	assert.Equal(t, third.ID, pending[2].ID)

	// Touching the oldest item moves it to the back of the line.
	time.Sleep(5 * time.Millisecond)
	first.Status = models.StatusPending
	require.NoError(t, storage.UpdateItem(ctx, first))

	pending, err = storage.GetItemsByStatus(ctx, models.StatusPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, second.ID, pending[0].ID)
	assert.Equal(t, third.ID, pending[1].ID)
	assert.Equal(t, first.ID, pending[2].ID, "touched item should move last")
}

func TestQueueStorage_PendingLimit(t *testing.T) {
	db, cleanup := setupQueueTestDB(t)
	defer cleanup()

	storage := NewQueueStorage(db, arbor.NewLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		item := newTestJobItem("")
		require.NoError(t, storage.SaveItem(ctx, item))
	}

	pending, err := storage.GetItemsByStatus(ctx, models.StatusPending, 2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestQueueStorage_UpdateItem(t *testing.T) {
	db, cleanup := setupQueueTestDB(t)
	defer cleanup()

	storage := NewQueueStorage(db, arbor.NewLogger())
	ctx := context.Background()

	item := newTestJobItem("https://example.com/jobs/update")
	require.NoError(t, storage.SaveItem(ctx, item))

	now := time.Now().UTC()
	item.Status = models.StatusSuccess
	item.ResultMessage = "saved match match_abc"
	item.SubTask = models.JobStageSave
	item.ProcessedAt = &now
	item.CompletedAt = &now
	item.SetState("match_id", "match_abc")

	require.NoError(t, storage.UpdateItem(ctx, item))

	got, err := storage.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Equal(t, "saved match match_abc", got.ResultMessage)
	assert.Equal(t, models.JobStageSave, got.SubTask)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, now.UnixMilli(), got.CompletedAt.UnixMilli())

	matchID, ok := got.StateString("match_id")
	require.True(t, ok)
	assert.Equal(t, "match_abc", matchID)
}

func TestQueueStorage_UpdateMissingItem(t *testing.T) {
	db, cleanup := setupQueueTestDB(t)
	defer cleanup()

	storage := NewQueueStorage(db, arbor.NewLogger())

	item := newTestJobItem("https://example.com/jobs/ghost")
	err := storage.UpdateItem(context.Background(), item)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrItemNotFound)
}

func TestQueueStorage_DeleteItem(t *testing.T) {
	db, cleanup := setupQueueTestDB(t)
	defer cleanup()

	storage := NewQueueStorage(db, arbor.NewLogger())
	ctx := context.Background()

	item := newTestJobItem("https://example.com/jobs/delete")
	require.NoError(t, storage.SaveItem(ctx, item))

	require.NoError(t, storage.DeleteItem(ctx, item.ID))

	_, err := storage.GetItem(ctx, item.ID)
	assert.ErrorIs(t, err, models.ErrItemNotFound)

	err = storage.DeleteItem(ctx, item.ID)
	assert.ErrorIs(t, err, models.ErrItemNotFound)
}

func TestQueueStorage_URLExists(t *testing.T) {
	db, cleanup := setupQueueTestDB(t)
	defer cleanup()

	storage := NewQueueStorage(db, arbor.NewLogger())
	ctx := context.Background()

	item := newTestJobItem("https://example.com/jobs/exists")
	require.NoError(t, storage.SaveItem(ctx, item))

	exists, err := storage.URLExists(ctx, "https://example.com/jobs/exists")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = storage.URLExists(ctx, "https://example.com/jobs/other")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestQueueStorage_FindByURLAndType(t *testing.T) {
	db, cleanup := setupQueueTestDB(t)
	defer cleanup()

	storage := NewQueueStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := newTestJobItem("https://example.com/acme")
	require.NoError(t, storage.SaveItem(ctx, job))

	company := models.NewQueueItem(models.ItemTypeCompany)
	company.ID = common.NewItemID()
	company.TrackingID = job.TrackingID
	company.URL = ""
	company.CompanyName = "Acme"
	require.NoError(t, storage.SaveItem(ctx, company))

	found, err := storage.FindByURLAndType(ctx, "https://example.com/acme", models.ItemTypeJob)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, job.ID, found[0].ID)

	found, err = storage.FindByURLAndType(ctx, "https://example.com/acme", models.ItemTypeCompany)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestQueueStorage_Counts(t *testing.T) {
	db, cleanup := setupQueueTestDB(t)
	defer cleanup()

	storage := NewQueueStorage(db, arbor.NewLogger())
	ctx := context.Background()

	pendingItem := newTestJobItem("https://example.com/jobs/a")
	require.NoError(t, storage.SaveItem(ctx, pendingItem))

	doneItem := newTestJobItem("https://example.com/jobs/b")
	doneItem.Status = models.StatusSuccess
	require.NoError(t, storage.SaveItem(ctx, doneItem))

	scrapeItem := models.NewQueueItem(models.ItemTypeScrape)
	scrapeItem.ID = common.NewItemID()
	scrapeItem.TrackingID = common.NewTrackingID()
	require.NoError(t, storage.SaveItem(ctx, scrapeItem))

	byStatus, err := storage.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, byStatus[string(models.StatusPending)])
	assert.Equal(t, 1, byStatus[string(models.StatusSuccess)])

	byType, err := storage.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, byType[string(models.ItemTypeJob)])
	assert.Equal(t, 1, byType[string(models.ItemTypeScrape)])
}
