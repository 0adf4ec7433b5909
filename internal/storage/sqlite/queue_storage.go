package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

const queueColumns = `id, type, status, url, company_name, company_id, source, source_id,
	tracking_id, parent_item_id, sub_task, company_sub_task,
	pipeline_state, scraped_data, scrape_config, discovery_config, metadata,
	retry_count, max_retries, result_message, error_details, submitted_by,
	created_at, updated_at, processed_at, completed_at`

// QueueStorage implements SQLite persistence for queue items
type QueueStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewQueueStorage creates a new queue storage instance
func NewQueueStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.QueueStorage {
	return &QueueStorage{
		db:     db,
		logger: logger,
	}
}

// SaveItem inserts a queue item. A unique-URL violation returns
// models.DuplicateItemError.
func (s *QueueStorage) SaveItem(ctx context.Context, item *models.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pipelineState, err := marshalJSON(item.PipelineState)
	if err != nil {
		return err
	}
	scrapedData, err := marshalJSON(item.ScrapedData)
	if err != nil {
		return err
	}
	var scrapeConfig sql.NullString
	if item.ScrapeConfig != nil {
		scrapeConfig, err = marshalJSON(item.ScrapeConfig)
		if err != nil {
			return err
		}
	}
	discoveryConfig, err := marshalJSON(item.DiscoveryConfig)
	if err != nil {
		return err
	}
	metadata, err := marshalJSON(item.Metadata)
	if err != nil {
		return err
	}

	var parentItemID sql.NullString
	if item.ParentItemID != nil {
		parentItemID = nullableString(*item.ParentItemID)
	}

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	query := `
		INSERT INTO job_queue (` + queueColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.db.ExecContext(ctx, query,
		item.ID,
		string(item.Type),
		string(item.Status),
		nullableString(item.URL),
		nullableString(item.CompanyName),
		nullableString(item.CompanyID),
		nullableString(item.Source),
		nullableString(item.SourceID),
		item.TrackingID,
		parentItemID,
		nullableString(string(item.SubTask)),
		nullableString(string(item.CompanySubTask)),
		pipelineState,
		scrapedData,
		scrapeConfig,
		discoveryConfig,
		metadata,
		item.RetryCount,
		item.MaxRetries,
		nullableString(item.ResultMessage),
		nullableString(item.ErrorDetails),
		nullableString(item.SubmittedBy),
		timeToMillis(item.CreatedAt),
		timeToMillis(item.UpdatedAt),
		nullableMillis(item.ProcessedAt),
		nullableMillis(item.CompletedAt),
	)

	if err != nil {
		if isUniqueViolation(err) {
			return &models.DuplicateItemError{URL: item.URL, Type: item.Type}
		}
		s.logger.Error().Err(err).Str("item_id", item.ID).Msg("Failed to save queue item")
		return fmt.Errorf("failed to save queue item: %w", err)
	}

	s.logger.Debug().
		Str("item_id", item.ID).
		Str("type", string(item.Type)).
		Msg("Queue item saved")
	return nil
}

// GetItem retrieves an item by ID
func (s *QueueStorage) GetItem(ctx context.Context, id string) (*models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM job_queue WHERE id = ?`
	row := s.db.db.QueryRowContext(ctx, query, id)
	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrItemNotFound
	}
	return item, err
}

// GetItemsByStatus returns items in a status ordered by updated_at
// ascending (oldest first), limited.
func (s *QueueStorage) GetItemsByStatus(ctx context.Context, status models.ItemStatus, limit int) ([]*models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM job_queue
		WHERE status = ?
		ORDER BY updated_at ASC, id ASC
		LIMIT ?`

	rows, err := s.db.db.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue items: %w", err)
	}
	defer rows.Close()

	return collectQueueItems(rows)
}

// ListItems returns items newest-first for the admin view. An empty status
// lists across all statuses.
func (s *QueueStorage) ListItems(ctx context.Context, status models.ItemStatus, limit int) ([]*models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM job_queue`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY updated_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	return collectQueueItems(rows)
}

// UpdateItem rewrites the mutable columns of an item and stamps updated_at.
func (s *QueueStorage) UpdateItem(ctx context.Context, item *models.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pipelineState, err := marshalJSON(item.PipelineState)
	if err != nil {
		return err
	}
	scrapedData, err := marshalJSON(item.ScrapedData)
	if err != nil {
		return err
	}
	metadata, err := marshalJSON(item.Metadata)
	if err != nil {
		return err
	}

	item.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE job_queue SET
			status = ?,
			company_id = ?,
			sub_task = ?,
			company_sub_task = ?,
			pipeline_state = ?,
			scraped_data = ?,
			metadata = ?,
			retry_count = ?,
			result_message = ?,
			error_details = ?,
			updated_at = ?,
			processed_at = ?,
			completed_at = ?
		WHERE id = ?
	`

	result, err := s.db.db.ExecContext(ctx, query,
		string(item.Status),
		nullableString(item.CompanyID),
		nullableString(string(item.SubTask)),
		nullableString(string(item.CompanySubTask)),
		pipelineState,
		scrapedData,
		metadata,
		item.RetryCount,
		nullableString(item.ResultMessage),
		nullableString(item.ErrorDetails),
		timeToMillis(item.UpdatedAt),
		nullableMillis(item.ProcessedAt),
		nullableMillis(item.CompletedAt),
		item.ID,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("item_id", item.ID).Msg("Failed to update queue item")
		return fmt.Errorf("failed to update queue item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrItemNotFound
	}
	return nil
}

// DeleteItem removes an item by ID
func (s *QueueStorage) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.db.ExecContext(ctx, `DELETE FROM job_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete queue item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrItemNotFound
	}
	return nil
}

// URLExists reports whether any item carries the URL
func (s *QueueStorage) URLExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM job_queue WHERE url = ?)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check url existence: %w", err)
	}
	return exists, nil
}

// FindByURLAndType returns every item matching the URL and type.
func (s *QueueStorage) FindByURLAndType(ctx context.Context, url string, itemType models.ItemType) ([]*models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM job_queue WHERE url = ? AND type = ?`
	rows, err := s.db.db.QueryContext(ctx, query, url, string(itemType))
	if err != nil {
		return nil, fmt.Errorf("failed to query queue items by url: %w", err)
	}
	defer rows.Close()

	return collectQueueItems(rows)
}

// CountByStatus returns item counts keyed by status
func (s *QueueStorage) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.countGrouped(ctx, "status")
}

// CountByType returns item counts keyed by item type
func (s *QueueStorage) CountByType(ctx context.Context) (map[string]int, error) {
	return s.countGrouped(ctx, "type")
}

func (s *QueueStorage) countGrouped(ctx context.Context, column string) (map[string]int, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM job_queue GROUP BY `+column)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var item models.QueueItem
	var url, companyName, companyID, source, sourceID sql.NullString
	var parentItemID, subTask, companySubTask sql.NullString
	var pipelineState, scrapedData, scrapeConfig, discoveryConfig, metadata sql.NullString
	var resultMessage, errorDetails, submittedBy sql.NullString
	var itemType, status string
	var createdAt, updatedAt int64
	var processedAt, completedAt sql.NullInt64

	err := row.Scan(
		&item.ID,
		&itemType,
		&status,
		&url,
		&companyName,
		&companyID,
		&source,
		&sourceID,
		&item.TrackingID,
		&parentItemID,
		&subTask,
		&companySubTask,
		&pipelineState,
		&scrapedData,
		&scrapeConfig,
		&discoveryConfig,
		&metadata,
		&item.RetryCount,
		&item.MaxRetries,
		&resultMessage,
		&errorDetails,
		&submittedBy,
		&createdAt,
		&updatedAt,
		&processedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Type = models.ItemType(itemType)
	item.Status = models.ItemStatus(status)
	item.URL = url.String
	item.CompanyName = companyName.String
	item.CompanyID = companyID.String
	item.Source = source.String
	item.SourceID = sourceID.String
	if parentItemID.Valid {
		parent := parentItemID.String
		item.ParentItemID = &parent
	}
	item.SubTask = models.JobStage(subTask.String)
	item.CompanySubTask = models.CompanyStage(companySubTask.String)
	item.ResultMessage = resultMessage.String
	item.ErrorDetails = errorDetails.String
	item.SubmittedBy = submittedBy.String
	item.CreatedAt = millisToTime(createdAt)
	item.UpdatedAt = millisToTime(updatedAt)
	item.ProcessedAt = millisToTimePtr(processedAt)
	item.CompletedAt = millisToTimePtr(completedAt)

	if item.PipelineState, err = unmarshalMap(pipelineState); err != nil {
		return nil, err
	}
	if item.ScrapedData, err = unmarshalMap(scrapedData); err != nil {
		return nil, err
	}
	if item.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, err
	}
	if item.DiscoveryConfig, err = unmarshalMap(discoveryConfig); err != nil {
		return nil, err
	}
	if scrapeConfig.Valid && scrapeConfig.String != "" {
		var cfg models.ScrapeRunConfig
		if err := unmarshalInto(scrapeConfig.String, &cfg); err != nil {
			return nil, err
		}
		item.ScrapeConfig = &cfg
	}

	return &item, nil
}

func collectQueueItems(rows *sql.Rows) ([]*models.QueueItem, error) {
	items := make([]*models.QueueItem, 0)
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
