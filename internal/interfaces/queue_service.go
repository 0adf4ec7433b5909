package interfaces

import (
	"context"

	"github.com/ternarybob/venari/internal/models"
)

// QueueService manages the durable work queue. Every mutation is a single
// transaction that also advances updated_at and is followed by an event on
// the event bus (item.created, item.updated, item.deleted).
type QueueService interface {
	// Add validates per-kind required fields, assigns an item id and a
	// tracking id when absent, and inserts the item as PENDING. Returns
	// models.DuplicateItemError when a unique-URL constraint is violated.
	Add(ctx context.Context, item *models.QueueItem) (string, error)

	Get(ctx context.Context, id string) (*models.QueueItem, error)

	// GetPending returns pending items ordered by updated_at ascending
	// (oldest first), limited.
	GetPending(ctx context.Context, limit int) ([]*models.QueueItem, error)

	// List returns items with the given status, limited. An empty status
	// lists across all statuses.
	List(ctx context.Context, status models.ItemStatus, limit int) ([]*models.QueueItem, error)

	// UpdateStatus transitions an item. PROCESSING sets processed_at;
	// terminal statuses set completed_at.
	UpdateStatus(ctx context.Context, id string, status models.ItemStatus, message, errorDetails string) error

	URLExists(ctx context.Context, url string) (bool, error)

	// HasPendingWorkForURL reports whether a PENDING or PROCESSING item for
	// the URL and type exists under the given lineage.
	HasPendingWorkForURL(ctx context.Context, url string, itemType models.ItemType, trackingID string) (bool, error)

	// CanSpawnItem applies the loop-prevention rules. When denied it returns
	// false plus a human-readable reason.
	CanSpawnItem(ctx context.Context, parent *models.QueueItem, targetURL string, targetType models.ItemType) (bool, string, error)

	// SpawnItemSafely creates a child under the parent's lineage after a
	// CanSpawnItem check. The child inherits tracking_id and records the
	// parent as parent_item_id. A denied spawn returns an empty id and the
	// denial reason, not an error.
	SpawnItemSafely(ctx context.Context, parent *models.QueueItem, child *models.QueueItem) (string, string, error)

	// SpawnNextPipelineStep advances a JOB item to the given stage by
	// requeueing it with a deep copy of the state. The item keeps its id,
	// so the unique-URL constraint is never violated mid-pipeline. An item
	// that reached a terminal status meanwhile (a cancel races the stage)
	// is not resurrected; models.ErrItemTerminal is returned instead.
	SpawnNextPipelineStep(ctx context.Context, parent *models.QueueItem, nextStage models.JobStage, state map[string]interface{}) (string, error)

	// RequeueWithState resets an item to PENDING with a replacement
	// pipeline state. Terminal items return models.ErrItemTerminal.
	RequeueWithState(ctx context.Context, id string, state map[string]interface{}) error

	// RequeueCompanyStep advances a COMPANY item in place to the next
	// company stage. Used when a unique-URL constraint prevents spawning
	// the stage as a new item.
	RequeueCompanyStep(ctx context.Context, id string, nextStage models.CompanyStage, state map[string]interface{}) error

	IncrementRetry(ctx context.Context, id string) error

	// Retry resets a FAILED item to PENDING, clearing processed_at,
	// completed_at, and error_details. Returns false when the item is not
	// in a retryable state.
	Retry(ctx context.Context, id string) (bool, error)

	Delete(ctx context.Context, id string) (bool, error)

	// Stats returns item counts keyed by status.
	Stats(ctx context.Context) (map[string]int, error)

	// StatsByType returns item counts keyed by item type.
	StatsByType(ctx context.Context) (map[string]int, error)
}
