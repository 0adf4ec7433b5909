// -----------------------------------------------------------------------
// Queue Service - durable work queue over SQLite storage
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// Service implements the QueueService interface. All mutations go through
// the storage layer in a single statement each, and every mutation is
// followed by an event on the bus so the websocket stream stays live.
type Service struct {
	storage interfaces.QueueStorage
	events  interfaces.EventService
	logger  arbor.ILogger
}

// NewService creates the queue service and subscribes it to cancel commands.
func NewService(storage interfaces.QueueStorage, events interfaces.EventService, logger arbor.ILogger) interfaces.QueueService {
	s := &Service{
		storage: storage,
		events:  events,
		logger:  logger,
	}

	if events != nil {
		if err := events.Subscribe(interfaces.EventCommandCancel, s.handleCancelCommand); err != nil {
			logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategoryQueue).
				Msg("Failed to subscribe to cancel commands")
		}
	}

	return s
}

// Add validates per-kind required fields, assigns ids, and inserts the item
// as PENDING. A unique-URL violation surfaces as models.DuplicateItemError.
func (s *Service) Add(ctx context.Context, item *models.QueueItem) (string, error) {
	if item == nil {
		return "", fmt.Errorf("item cannot be nil")
	}

	if err := validateItem(item); err != nil {
		return "", err
	}

	if item.ID == "" {
		item.ID = common.NewItemID()
	}
	if item.TrackingID == "" {
		item.TrackingID = common.NewTrackingID()
	}
	item.Status = models.StatusPending
	if item.MaxRetries <= 0 {
		item.MaxRetries = models.DefaultMaxRetries
	}
	if item.Type == models.ItemTypeJob && item.SubTask == "" {
		item.SubTask = models.JobStageScrape
	}

	if err := s.storage.SaveItem(ctx, item); err != nil {
		if models.IsDuplicateItem(err) {
			return "", err
		}
		return "", fmt.Errorf("failed to add queue item: %w", err)
	}

	s.logger.Info().
		Str(common.FieldCategory, common.CategoryQueue).
		Str(common.FieldAction, common.ActionEnqueue).
		Str("item_id", item.ID).
		Str("item_type", string(item.Type)).
		Str("tracking_id", item.TrackingID).
		Msg("Queue item added")

	s.publish(ctx, interfaces.EventItemCreated, item)
	return item.ID, nil
}

// validateItem enforces the per-kind intake rules.
func validateItem(item *models.QueueItem) error {
	switch item.Type {
	case models.ItemTypeJob:
		if item.URL == "" {
			return fmt.Errorf("job item requires a url")
		}
	case models.ItemTypeCompany:
		if item.CompanyName == "" {
			return fmt.Errorf("company item requires a company_name")
		}
		if item.CompanySubTask == "" {
			return fmt.Errorf("company item requires a sub-stage")
		}
	case models.ItemTypeScrape:
		// scrape_config is optional; nil means scrape everything.
	case models.ItemTypeSourceDiscovery:
		if item.CompanyName == "" && item.URL == "" {
			return fmt.Errorf("source discovery item requires a company_name or url")
		}
	case models.ItemTypeScrapeSource, models.ItemTypeSourceRecover:
		if item.SourceID == "" {
			return fmt.Errorf("%s item requires a source_id", item.Type)
		}
	default:
		return fmt.Errorf("unknown item type: %s", item.Type)
	}
	return nil
}

// Get retrieves an item by id
func (s *Service) Get(ctx context.Context, id string) (*models.QueueItem, error) {
	return s.storage.GetItem(ctx, id)
}

// GetPending returns pending items oldest-first
func (s *Service) GetPending(ctx context.Context, limit int) ([]*models.QueueItem, error) {
	return s.storage.GetItemsByStatus(ctx, models.StatusPending, limit)
}

// List returns items newest-first, optionally filtered by status
func (s *Service) List(ctx context.Context, status models.ItemStatus, limit int) ([]*models.QueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.storage.ListItems(ctx, status, limit)
}

// UpdateStatus transitions an item. PROCESSING stamps processed_at; terminal
// statuses stamp completed_at.
func (s *Service) UpdateStatus(ctx context.Context, id string, status models.ItemStatus, message, errorDetails string) error {
	item, err := s.storage.GetItem(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	item.Status = status
	item.ResultMessage = message
	item.ErrorDetails = errorDetails

	switch {
	case status == models.StatusProcessing:
		item.ProcessedAt = &now
	case status.IsTerminal():
		item.CompletedAt = &now
	}

	if err := s.storage.UpdateItem(ctx, item); err != nil {
		return err
	}

	s.logger.Debug().
		Str(common.FieldCategory, common.CategoryQueue).
		Str("item_id", id).
		Str("status", string(status)).
		Msg("Queue item status updated")

	s.publish(ctx, interfaces.EventItemUpdated, item)
	return nil
}

// URLExists reports whether any item carries the URL
func (s *Service) URLExists(ctx context.Context, url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	return s.storage.URLExists(ctx, url)
}

// HasPendingWorkForURL reports whether a PENDING or PROCESSING item for the
// URL and type exists under the given lineage.
func (s *Service) HasPendingWorkForURL(ctx context.Context, url string, itemType models.ItemType, trackingID string) (bool, error) {
	if url == "" {
		return false, nil
	}

	items, err := s.storage.FindByURLAndType(ctx, url, itemType)
	if err != nil {
		return false, err
	}

	for _, item := range items {
		if item.TrackingID != trackingID {
			continue
		}
		if item.Status == models.StatusPending || item.Status == models.StatusProcessing {
			return true, nil
		}
	}
	return false, nil
}

// CanSpawnItem applies the loop-prevention rules:
//
//	(a) a matching URL+type item is PENDING or PROCESSING under the same
//	    tracking_id,
//	(b) a matching item reached FILTERED, SKIPPED, or FAILED under the same
//	    lineage,
//	(c) a matching item already succeeded, in any lineage.
//
// Items without a URL never collide and are always allowed.
func (s *Service) CanSpawnItem(ctx context.Context, parent *models.QueueItem, targetURL string, targetType models.ItemType) (bool, string, error) {
	if parent == nil {
		return false, "", fmt.Errorf("parent cannot be nil")
	}
	if targetURL == "" {
		return true, "", nil
	}

	matches, err := s.storage.FindByURLAndType(ctx, targetURL, targetType)
	if err != nil {
		return false, "", err
	}

	for _, match := range matches {
		switch match.Status {
		case models.StatusPending, models.StatusProcessing:
			if match.TrackingID == parent.TrackingID {
				return false, fmt.Sprintf("item %s is already %s in this lineage", match.ID, match.Status), nil
			}
		case models.StatusFiltered, models.StatusSkipped, models.StatusFailed:
			if match.TrackingID == parent.TrackingID {
				return false, fmt.Sprintf("item %s already ended %s in this lineage", match.ID, match.Status), nil
			}
		case models.StatusSuccess:
			return false, fmt.Sprintf("item %s already completed successfully", match.ID), nil
		}
	}

	return true, "", nil
}

// SpawnItemSafely creates a child under the parent's lineage after a loop
// check. A denied spawn returns an empty id plus the denial reason, not an
// error; a unique-URL race surfaces as models.DuplicateItemError so callers
// can fall back to an in-place requeue.
func (s *Service) SpawnItemSafely(ctx context.Context, parent *models.QueueItem, child *models.QueueItem) (string, string, error) {
	if parent == nil || child == nil {
		return "", "", fmt.Errorf("parent and child cannot be nil")
	}

	allowed, reason, err := s.CanSpawnItem(ctx, parent, child.URL, child.Type)
	if err != nil {
		return "", "", err
	}
	if !allowed {
		s.logger.Debug().
			Str(common.FieldCategory, common.CategoryQueue).
			Str(common.FieldAction, common.ActionSpawn).
			Str("parent_id", parent.ID).
			Str("reason", reason).
			Msg("Spawn denied")
		return "", reason, nil
	}

	child.TrackingID = parent.TrackingID
	parentID := parent.ID
	child.ParentItemID = &parentID

	if child.ID == "" {
		child.ID = common.NewItemID()
	}
	child.Status = models.StatusPending
	if child.MaxRetries <= 0 {
		child.MaxRetries = parent.MaxRetries
	}

	if err := s.storage.SaveItem(ctx, child); err != nil {
		return "", "", err
	}

	s.logger.Info().
		Str(common.FieldCategory, common.CategoryQueue).
		Str(common.FieldAction, common.ActionSpawn).
		Str("parent_id", parent.ID).
		Str("child_id", child.ID).
		Str("child_type", string(child.Type)).
		Msg("Child item spawned")

	s.publish(ctx, interfaces.EventItemCreated, child)
	return child.ID, "", nil
}

// SpawnNextPipelineStep advances a JOB item to the given stage. The item is
// requeued in place with a deep copy of the state, keeping its id so the
// unique-URL constraint holds across the whole pipeline.
func (s *Service) SpawnNextPipelineStep(ctx context.Context, parent *models.QueueItem, nextStage models.JobStage, state map[string]interface{}) (string, error) {
	if parent == nil {
		return "", fmt.Errorf("parent cannot be nil")
	}
	if nextStage == "" {
		return "", fmt.Errorf("next stage cannot be empty")
	}

	item, err := s.storage.GetItem(ctx, parent.ID)
	if err != nil {
		return "", err
	}
	if item.Status.IsTerminal() {
		return "", fmt.Errorf("%w: %s is %s", models.ErrItemTerminal, item.ID, item.Status)
	}

	newState := models.CloneMap(state)
	if newState == nil {
		newState = make(map[string]interface{})
	}
	newState["pipeline_stage"] = string(nextStage)

	item.Status = models.StatusPending
	item.SubTask = nextStage
	item.PipelineState = newState
	item.ResultMessage = ""
	item.ErrorDetails = ""

	if err := s.storage.UpdateItem(ctx, item); err != nil {
		return "", err
	}

	s.logger.Debug().
		Str(common.FieldCategory, common.CategoryQueue).
		Str(common.FieldAction, common.ActionStage).
		Str("item_id", item.ID).
		Str("stage", string(nextStage)).
		Msg("Pipeline step advanced")

	s.publish(ctx, interfaces.EventItemUpdated, item)
	return item.ID, nil
}

// RequeueWithState resets an item to PENDING with a replacement pipeline
// state. Used by wait loops that need another pass at the same stage.
func (s *Service) RequeueWithState(ctx context.Context, id string, state map[string]interface{}) error {
	item, err := s.storage.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if item.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", models.ErrItemTerminal, item.ID, item.Status)
	}

	item.Status = models.StatusPending
	item.PipelineState = models.CloneMap(state)

	if err := s.storage.UpdateItem(ctx, item); err != nil {
		return err
	}

	s.logger.Debug().
		Str(common.FieldCategory, common.CategoryQueue).
		Str(common.FieldAction, common.ActionRequeue).
		Str("item_id", id).
		Msg("Item requeued with new state")

	s.publish(ctx, interfaces.EventItemUpdated, item)
	return nil
}

// RequeueCompanyStep advances a COMPANY item in place to the next company
// stage. This is the fallback when the unique-URL constraint prevents
// spawning the stage as a new item.
func (s *Service) RequeueCompanyStep(ctx context.Context, id string, nextStage models.CompanyStage, state map[string]interface{}) error {
	item, err := s.storage.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if item.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", models.ErrItemTerminal, item.ID, item.Status)
	}

	item.Status = models.StatusPending
	item.CompanySubTask = nextStage
	item.PipelineState = models.CloneMap(state)
	item.ResultMessage = ""
	item.ErrorDetails = ""

	if err := s.storage.UpdateItem(ctx, item); err != nil {
		return err
	}

	s.logger.Debug().
		Str(common.FieldCategory, common.CategoryQueue).
		Str(common.FieldAction, common.ActionRequeue).
		Str("item_id", id).
		Str("stage", string(nextStage)).
		Msg("Company step advanced in place")

	s.publish(ctx, interfaces.EventItemUpdated, item)
	return nil
}

// IncrementRetry bumps the retry counter without changing status
func (s *Service) IncrementRetry(ctx context.Context, id string) error {
	item, err := s.storage.GetItem(ctx, id)
	if err != nil {
		return err
	}

	item.RetryCount++

	if err := s.storage.UpdateItem(ctx, item); err != nil {
		return err
	}

	s.publish(ctx, interfaces.EventItemUpdated, item)
	return nil
}

// Retry resets a FAILED item to PENDING, clearing the processing timestamps
// and error details. Returns false when the item is not retryable.
func (s *Service) Retry(ctx context.Context, id string) (bool, error) {
	item, err := s.storage.GetItem(ctx, id)
	if err != nil {
		return false, err
	}

	if item.Status != models.StatusFailed {
		return false, nil
	}

	item.Status = models.StatusPending
	item.RetryCount = 0
	item.ResultMessage = ""
	item.ErrorDetails = ""
	item.ProcessedAt = nil
	item.CompletedAt = nil

	if err := s.storage.UpdateItem(ctx, item); err != nil {
		return false, err
	}

	s.logger.Info().
		Str(common.FieldCategory, common.CategoryQueue).
		Str(common.FieldAction, common.ActionRetry).
		Str("item_id", id).
		Msg("Failed item reset for retry")

	s.publish(ctx, interfaces.EventItemUpdated, item)
	return true, nil
}

// Delete removes an item. Returns false when it did not exist.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	err := s.storage.DeleteItem(ctx, id)
	if err != nil {
		if err == models.ErrItemNotFound {
			return false, nil
		}
		return false, err
	}

	s.publish(ctx, interfaces.EventItemDeleted, map[string]string{"item_id": id})
	return true, nil
}

// Stats returns item counts keyed by status
func (s *Service) Stats(ctx context.Context) (map[string]int, error) {
	return s.storage.CountByStatus(ctx)
}

// StatsByType returns item counts keyed by item type
func (s *Service) StatsByType(ctx context.Context) (map[string]int, error) {
	return s.storage.CountByType(ctx)
}

// handleCancelCommand translates a command.cancel event into a SKIPPED
// transition. Cancellation is observed at the next stage boundary; it never
// interrupts an executing stage.
func (s *Service) handleCancelCommand(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(map[string]string)
	if !ok {
		return fmt.Errorf("cancel command payload must be map[string]string")
	}
	itemID := payload["item_id"]
	if itemID == "" {
		return fmt.Errorf("cancel command missing item_id")
	}

	item, err := s.storage.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Status.IsTerminal() {
		return nil
	}

	s.logger.Info().
		Str(common.FieldCategory, common.CategoryQueue).
		Str(common.FieldAction, common.ActionCancel).
		Str("item_id", itemID).
		Msg("Cancelling queue item")

	return s.UpdateStatus(ctx, itemID, models.StatusSkipped, "cancelled by operator", "")
}

// publish emits a queue event without blocking the caller. Event failures
// are logged inside the event service.
func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryQueue).
			Str("event_type", string(eventType)).
			Msg("Failed to publish queue event")
	}
}
