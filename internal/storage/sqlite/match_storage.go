package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

const matchColumns = `id, listing_id, url, score, matched_skills, missing_skills,
	experience_match, key_strengths, potential_concerns, customization_recommendations,
	intake_data, tracking_id, queue_item_id, status, notes, document_url,
	created_at, updated_at`

// MatchStorage implements SQLite persistence for published listings and
// their scored matches.
type MatchStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewMatchStorage creates a new match storage instance
func NewMatchStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.MatchStorage {
	return &MatchStorage{
		db:     db,
		logger: logger,
	}
}

// SaveListing inserts a listing. The url column is unique; when a listing
// for the URL already exists its stored id is returned and the row is left
// untouched.
func (s *MatchStorage) SaveListing(ctx context.Context, listing *models.JobListing) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO job_listings (id, url, title, company_name, company_id,
			location, description, source, posted_date, salary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING
	`

	_, err := s.db.db.ExecContext(ctx, query,
		listing.ID,
		listing.URL,
		listing.Title,
		listing.CompanyName,
		nullableString(listing.CompanyID),
		nullableString(listing.Location),
		nullableString(listing.Description),
		nullableString(listing.Source),
		nullableString(listing.PostedDate),
		nullableString(listing.Salary),
		timeToMillis(listing.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save listing: %w", err)
	}

	var storedID string
	err = s.db.db.QueryRowContext(ctx,
		`SELECT id FROM job_listings WHERE url = ?`, listing.URL).Scan(&storedID)
	if err != nil {
		return "", fmt.Errorf("failed to read back listing id: %w", err)
	}
	return storedID, nil
}

// GetListingByURL retrieves a listing by its normalized URL
func (s *MatchStorage) GetListingByURL(ctx context.Context, url string) (*models.JobListing, error) {
	query := `SELECT id, url, title, company_name, company_id, location, description,
		source, posted_date, salary, created_at
		FROM job_listings WHERE url = ?`

	var listing models.JobListing
	var companyID, location, description, source, postedDate, salary sql.NullString
	var createdAt int64

	err := s.db.db.QueryRowContext(ctx, query, url).Scan(
		&listing.ID,
		&listing.URL,
		&listing.Title,
		&listing.CompanyName,
		&companyID,
		&location,
		&description,
		&source,
		&postedDate,
		&salary,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}

	listing.CompanyID = companyID.String
	listing.Location = location.String
	listing.Description = description.String
	listing.Source = source.String
	listing.PostedDate = postedDate.String
	listing.Salary = salary.String
	listing.CreatedAt = millisToTime(createdAt)
	return &listing, nil
}

// ListingExists reports whether a listing exists for the URL
func (s *MatchStorage) ListingExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM job_listings WHERE url = ?)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check listing existence: %w", err)
	}
	return exists, nil
}

// BatchCheckListings returns url → exists for each given URL in one query
func (s *MatchStorage) BatchCheckListings(ctx context.Context, urls []string) (map[string]bool, error) {
	result := make(map[string]bool, len(urls))
	if len(urls) == 0 {
		return result, nil
	}
	for _, u := range urls {
		result[u] = false
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(urls)), ",")
	args := make([]interface{}, len(urls))
	for i, u := range urls {
		args[i] = u
	}

	rows, err := s.db.db.QueryContext(ctx,
		`SELECT url FROM job_listings WHERE url IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to batch check listings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		result[url] = true
	}
	return result, rows.Err()
}

// SaveMatch inserts a match. One match exists per listing; a duplicate save
// returns the existing match id unchanged.
func (s *MatchStorage) SaveMatch(ctx context.Context, match *models.JobMatch) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matchedSkills, err := marshalJSON(match.MatchedSkills)
	if err != nil {
		return "", err
	}
	missingSkills, err := marshalJSON(match.MissingSkills)
	if err != nil {
		return "", err
	}
	keyStrengths, err := marshalJSON(match.KeyStrengths)
	if err != nil {
		return "", err
	}
	concerns, err := marshalJSON(match.PotentialConcerns)
	if err != nil {
		return "", err
	}
	recommendations, err := marshalJSON(match.CustomizationRecommendations)
	if err != nil {
		return "", err
	}
	intakeData, err := marshalJSON(match.IntakeData)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	if match.CreatedAt.IsZero() {
		match.CreatedAt = now
	}
	match.UpdatedAt = now
	if match.Status == "" {
		match.Status = models.MatchStatusNew
	}

	query := `
		INSERT INTO job_matches (` + matchColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_id) DO NOTHING
	`

	_, err = s.db.db.ExecContext(ctx, query,
		match.ID,
		match.ListingID,
		match.URL,
		match.Score,
		matchedSkills,
		missingSkills,
		nullableString(match.ExperienceMatch),
		keyStrengths,
		concerns,
		recommendations,
		intakeData,
		nullableString(match.TrackingID),
		nullableString(match.QueueItemID),
		match.Status,
		nullableString(match.Notes),
		nullableString(match.DocumentURL),
		timeToMillis(match.CreatedAt),
		timeToMillis(match.UpdatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save match: %w", err)
	}

	var storedID string
	err = s.db.db.QueryRowContext(ctx,
		`SELECT id FROM job_matches WHERE listing_id = ?`, match.ListingID).Scan(&storedID)
	if err != nil {
		return "", fmt.Errorf("failed to read back match id: %w", err)
	}
	return storedID, nil
}

// GetMatch retrieves a match by ID
func (s *MatchStorage) GetMatch(ctx context.Context, id string) (*models.JobMatch, error) {
	query := `SELECT ` + matchColumns + ` FROM job_matches WHERE id = ?`
	match, err := scanMatch(s.db.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrMatchNotFound
	}
	return match, err
}

// GetMatchByListingID retrieves the match for a listing
func (s *MatchStorage) GetMatchByListingID(ctx context.Context, listingID string) (*models.JobMatch, error) {
	query := `SELECT ` + matchColumns + ` FROM job_matches WHERE listing_id = ?`
	match, err := scanMatch(s.db.db.QueryRowContext(ctx, query, listingID))
	if err == sql.ErrNoRows {
		return nil, models.ErrMatchNotFound
	}
	return match, err
}

// GetMatches returns matches narrowed by the given filters, newest first
func (s *MatchStorage) GetMatches(ctx context.Context, filters models.MatchFilters) ([]*models.JobMatch, error) {
	query := `SELECT m.id, m.listing_id, m.url, m.score, m.matched_skills, m.missing_skills,
		m.experience_match, m.key_strengths, m.potential_concerns, m.customization_recommendations,
		m.intake_data, m.tracking_id, m.queue_item_id, m.status, m.notes, m.document_url,
		m.created_at, m.updated_at
		FROM job_matches m
		JOIN job_listings l ON l.id = m.listing_id
		WHERE 1=1`

	args := []interface{}{}

	if filters.MinScore > 0 {
		query += " AND m.score >= ?"
		args = append(args, filters.MinScore)
	}
	if filters.Status != "" {
		query += " AND m.status = ?"
		args = append(args, filters.Status)
	}
	if filters.Company != "" {
		query += " AND l.company_name LIKE ? COLLATE NOCASE"
		args = append(args, "%"+filters.Company+"%")
	}
	if filters.TrackingID != "" {
		query += " AND m.tracking_id = ?"
		args = append(args, filters.TrackingID)
	}

	query += " ORDER BY m.created_at DESC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.JobMatch, 0)
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

// UpdateMatchStatus transitions a match's workflow status
func (s *MatchStorage) UpdateMatchStatus(ctx context.Context, id, status, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.db.ExecContext(ctx,
		`UPDATE job_matches SET status = ?, notes = ?, updated_at = ? WHERE id = ?`,
		status, nullableString(notes), timeToMillis(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update match status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrMatchNotFound
	}
	return nil
}

// UpdateDocumentGenerated records the generated document URL for a match
func (s *MatchStorage) UpdateDocumentGenerated(ctx context.Context, id, documentURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.db.ExecContext(ctx,
		`UPDATE job_matches SET document_url = ?, updated_at = ? WHERE id = ?`,
		documentURL, timeToMillis(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update document url: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrMatchNotFound
	}
	return nil
}

func scanMatch(row rowScanner) (*models.JobMatch, error) {
	var match models.JobMatch
	var matchedSkills, missingSkills, keyStrengths, concerns, recommendations sql.NullString
	var intakeData, trackingID, queueItemID, experienceMatch, notes, documentURL sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&match.ID,
		&match.ListingID,
		&match.URL,
		&match.Score,
		&matchedSkills,
		&missingSkills,
		&experienceMatch,
		&keyStrengths,
		&concerns,
		&recommendations,
		&intakeData,
		&trackingID,
		&queueItemID,
		&match.Status,
		&notes,
		&documentURL,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	match.ExperienceMatch = experienceMatch.String
	match.TrackingID = trackingID.String
	match.QueueItemID = queueItemID.String
	match.Notes = notes.String
	match.DocumentURL = documentURL.String
	match.CreatedAt = millisToTime(createdAt)
	match.UpdatedAt = millisToTime(updatedAt)

	if match.MatchedSkills, err = unmarshalStrings(matchedSkills); err != nil {
		return nil, err
	}
	if match.MissingSkills, err = unmarshalStrings(missingSkills); err != nil {
		return nil, err
	}
	if match.KeyStrengths, err = unmarshalStrings(keyStrengths); err != nil {
		return nil, err
	}
	if match.PotentialConcerns, err = unmarshalStrings(concerns); err != nil {
		return nil, err
	}
	if match.CustomizationRecommendations, err = unmarshalStrings(recommendations); err != nil {
		return nil, err
	}
	if match.IntakeData, err = unmarshalMap(intakeData); err != nil {
		return nil, err
	}

	return &match, nil
}
