package workers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/venari/internal/models"
)

func newTestProcessor(env *testEnv) *Processor {
	_, _, _, _, dispatcher := newWorkerSet(env)
	return NewProcessor(env.pc, dispatcher)
}

func TestProcessor_StartStopRestart(t *testing.T) {
	env := newTestEnv(t)
	processor := newTestProcessor(env)

	assert.False(t, processor.IsRunning())
	assert.False(t, processor.Stats().Running)

	require.NoError(t, processor.Start())
	assert.True(t, processor.IsRunning())

	err := processor.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	require.NoError(t, processor.Stop())
	assert.False(t, processor.IsRunning())

	// Stopping an idle processor is a no-op.
	require.NoError(t, processor.Stop())

	require.NoError(t, processor.Restart())
	assert.True(t, processor.IsRunning())
	require.NoError(t, processor.Stop())
}

func TestProcessor_DrainsQueuedItems(t *testing.T) {
	env := newTestEnv(t)
	processor := newTestProcessor(env)

	// A scrape run with no sources completes in one pass.
	item := seedScrapeItem(t, env, nil)

	require.NoError(t, processor.Start())
	t.Cleanup(func() { _ = processor.Stop() })

	assert.Eventually(t, func() bool {
		got, err := env.queue.Get(context.Background(), item.ID)
		return err == nil && got.Status == models.StatusSuccess
	}, 5*time.Second, 20*time.Millisecond, "scrape item never completed")

	stats := processor.Stats()
	assert.True(t, stats.Running)
	assert.GreaterOrEqual(t, stats.ItemsProcessed, int64(1))
	assert.False(t, stats.LastPollAt.IsZero())
	assert.False(t, stats.StartedAt.IsZero())
}

func TestProcessor_CountsFailedAttempts(t *testing.T) {
	env := newTestEnv(t)
	processor := newTestProcessor(env)

	// The unconfigured AI fake fails the extract stage on every attempt, so
	// the item burns its retries and fails for good.
	rec := remoteGoJob("https://example.com/jobs/doomed")
	item := seedJobAt(t, env, models.JobStageExtract, rec.URL, jobState(rec))

	require.NoError(t, processor.Start())
	t.Cleanup(func() { _ = processor.Stop() })

	assert.Eventually(t, func() bool {
		got, err := env.queue.Get(context.Background(), item.ID)
		return err == nil && got.Status == models.StatusFailed
	}, 10*time.Second, 20*time.Millisecond, "item never failed permanently")

	stats := processor.Stats()
	assert.GreaterOrEqual(t, stats.ItemsProcessed, int64(3))
	assert.GreaterOrEqual(t, stats.ItemsFailed, int64(3))
}

func TestNextBackoffDoublesToCeiling(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, nextBackoff(100*time.Millisecond, 5*time.Second))
	assert.Equal(t, 5*time.Second, nextBackoff(3*time.Second, 5*time.Second))
	assert.Equal(t, 5*time.Second, nextBackoff(5*time.Second, 5*time.Second))
}
