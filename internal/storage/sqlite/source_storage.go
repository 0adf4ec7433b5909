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

const sourceColumns = `id, name, source_type, config, status, company_id, aggregator_domain,
	last_scraped_at, consecutive_failures, consecutive_zero_jobs,
	disabled_notes, disabled_tags, created_at, updated_at`

// SourceStorage implements SQLite persistence for scraping sources
type SourceStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewSourceStorage creates a new source storage instance
func NewSourceStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.SourceStorage {
	return &SourceStorage{
		db:     db,
		logger: logger,
	}
}

// SaveSource creates or updates a source
func (s *SourceStorage) SaveSource(ctx context.Context, source *models.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := marshalJSON(source.Config)
	if err != nil {
		return err
	}
	disabledTags, err := marshalJSON(source.DisabledTags)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if source.CreatedAt.IsZero() {
		source.CreatedAt = now
	}
	source.UpdatedAt = now

	query := `
		INSERT INTO job_sources (` + sourceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source_type = excluded.source_type,
			config = excluded.config,
			status = excluded.status,
			company_id = excluded.company_id,
			aggregator_domain = excluded.aggregator_domain,
			last_scraped_at = excluded.last_scraped_at,
			consecutive_failures = excluded.consecutive_failures,
			consecutive_zero_jobs = excluded.consecutive_zero_jobs,
			disabled_notes = excluded.disabled_notes,
			disabled_tags = excluded.disabled_tags,
			updated_at = excluded.updated_at
	`

	_, err = s.db.db.ExecContext(ctx, query,
		source.ID,
		source.Name,
		source.SourceType,
		config,
		source.Status,
		nullableString(source.CompanyID),
		nullableString(source.AggregatorDomain),
		nullableMillis(source.LastScrapedAt),
		source.ConsecutiveFailures,
		source.ConsecutiveZeroJobs,
		nullableString(source.DisabledNotes),
		disabledTags,
		timeToMillis(source.CreatedAt),
		timeToMillis(source.UpdatedAt),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("source_id", source.ID).Msg("Failed to save source")
		return fmt.Errorf("failed to save source: %w", err)
	}

	s.logger.Debug().
		Str("source_id", source.ID).
		Str("source_type", source.SourceType).
		Msg("Source saved")
	return nil
}

// GetSource retrieves a source by ID
func (s *SourceStorage) GetSource(ctx context.Context, id string) (*models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM job_sources WHERE id = ?`
	source, err := scanSource(s.db.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrSourceNotFound
	}
	return source, err
}

// GetSourceByURL finds the source whose config url matches. Used by
// discovery to avoid materialising the same source twice.
func (s *SourceStorage) GetSourceByURL(ctx context.Context, url string) (*models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM job_sources
		WHERE json_extract(config, '$.url') = ?
		LIMIT 1`
	source, err := scanSource(s.db.db.QueryRowContext(ctx, query, url))
	if err == sql.ErrNoRows {
		return nil, models.ErrSourceNotFound
	}
	return source, err
}

// ListSources returns every source
func (s *SourceStorage) ListSources(ctx context.Context) ([]*models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM job_sources ORDER BY created_at ASC`
	rows, err := s.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	return collectSources(rows)
}

// ListActiveSources returns active sources in scrape rotation order:
// oldest last_scraped_at first, never-scraped sources before everything.
func (s *SourceStorage) ListActiveSources(ctx context.Context) ([]*models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM job_sources
		WHERE status = ?
		ORDER BY last_scraped_at IS NOT NULL, last_scraped_at ASC, created_at ASC`
	rows, err := s.db.db.QueryContext(ctx, query, models.SourceStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}
	defer rows.Close()

	return collectSources(rows)
}

// UpdateSource rewrites a source row
func (s *SourceStorage) UpdateSource(ctx context.Context, source *models.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := marshalJSON(source.Config)
	if err != nil {
		return err
	}
	disabledTags, err := marshalJSON(source.DisabledTags)
	if err != nil {
		return err
	}

	source.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE job_sources SET
			name = ?,
			source_type = ?,
			config = ?,
			status = ?,
			company_id = ?,
			aggregator_domain = ?,
			last_scraped_at = ?,
			consecutive_failures = ?,
			consecutive_zero_jobs = ?,
			disabled_notes = ?,
			disabled_tags = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.db.ExecContext(ctx, query,
		source.Name,
		source.SourceType,
		config,
		source.Status,
		nullableString(source.CompanyID),
		nullableString(source.AggregatorDomain),
		nullableMillis(source.LastScrapedAt),
		source.ConsecutiveFailures,
		source.ConsecutiveZeroJobs,
		nullableString(source.DisabledNotes),
		disabledTags,
		timeToMillis(source.UpdatedAt),
		source.ID,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("source_id", source.ID).Msg("Failed to update source")
		return fmt.Errorf("failed to update source: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrSourceNotFound
	}
	return nil
}

// DeleteSource removes a source by ID
func (s *SourceStorage) DeleteSource(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.db.ExecContext(ctx, `DELETE FROM job_sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrSourceNotFound
	}
	return nil
}

// CountByStatus returns source counts keyed by status
func (s *SourceStorage) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM job_sources GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanSource(row rowScanner) (*models.Source, error) {
	var source models.Source
	var config, companyID, aggregatorDomain, disabledNotes, disabledTags sql.NullString
	var lastScrapedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&source.ID,
		&source.Name,
		&source.SourceType,
		&config,
		&source.Status,
		&companyID,
		&aggregatorDomain,
		&lastScrapedAt,
		&source.ConsecutiveFailures,
		&source.ConsecutiveZeroJobs,
		&disabledNotes,
		&disabledTags,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	source.CompanyID = companyID.String
	source.AggregatorDomain = aggregatorDomain.String
	source.DisabledNotes = disabledNotes.String
	source.LastScrapedAt = millisToTimePtr(lastScrapedAt)
	source.CreatedAt = millisToTime(createdAt)
	source.UpdatedAt = millisToTime(updatedAt)

	if source.Config, err = unmarshalMap(config); err != nil {
		return nil, err
	}
	if source.DisabledTags, err = unmarshalStrings(disabledTags); err != nil {
		return nil, err
	}

	// Imported rows sometimes carry the failure counter inside config;
	// honour it when the column is still zero.
	if source.ConsecutiveFailures == 0 {
		if v, ok := source.ConfigInt("consecutive_failures"); ok {
			source.ConsecutiveFailures = v
		}
	}

	return &source, nil
}

func collectSources(rows *sql.Rows) ([]*models.Source, error) {
	sources := make([]*models.Source, 0)
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}
