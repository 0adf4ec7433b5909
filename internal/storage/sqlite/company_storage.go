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

const companyColumns = `id, name, website, about, culture, mission, tech_stack,
	tier, priority_score, size, has_portland_office, created_at, updated_at`

// CompanyStorage implements SQLite persistence for company records
type CompanyStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewCompanyStorage creates a new company storage instance
func NewCompanyStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.CompanyStorage {
	return &CompanyStorage{
		db:     db,
		logger: logger,
	}
}

// SaveCompany creates or updates a company. Names are unique
// case-insensitively; a save against an existing name updates that row.
func (s *CompanyStorage) SaveCompany(ctx context.Context, company *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	techStack, err := marshalJSON(company.TechStack)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if company.CreatedAt.IsZero() {
		company.CreatedAt = now
	}
	company.UpdatedAt = now

	hasPortland := 0
	if company.HasPortlandOffice {
		hasPortland = 1
	}

	query := `
		INSERT INTO companies (` + companyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			website = excluded.website,
			about = excluded.about,
			culture = excluded.culture,
			mission = excluded.mission,
			tech_stack = excluded.tech_stack,
			tier = excluded.tier,
			priority_score = excluded.priority_score,
			size = excluded.size,
			has_portland_office = excluded.has_portland_office,
			updated_at = excluded.updated_at
	`

	_, err = s.db.db.ExecContext(ctx, query,
		company.ID,
		company.Name,
		nullableString(company.Website),
		nullableString(company.About),
		nullableString(company.Culture),
		nullableString(company.Mission),
		techStack,
		company.Tier,
		company.PriorityScore,
		nullableString(company.Size),
		hasPortland,
		timeToMillis(company.CreatedAt),
		timeToMillis(company.UpdatedAt),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("company", company.Name).Msg("Failed to save company")
		return fmt.Errorf("failed to save company: %w", err)
	}

	s.logger.Debug().Str("company_id", company.ID).Str("company", company.Name).Msg("Company saved")
	return nil
}

// GetCompany retrieves a company by ID
func (s *CompanyStorage) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = ?`
	company, err := scanCompany(s.db.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrCompanyNotFound
	}
	return company, err
}

// GetCompanyByName retrieves a company by case-insensitive name
func (s *CompanyStorage) GetCompanyByName(ctx context.Context, name string) (*models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE name = ? COLLATE NOCASE`
	company, err := scanCompany(s.db.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, models.ErrCompanyNotFound
	}
	return company, err
}

// ListCompanies returns every company ordered by name
func (s *CompanyStorage) ListCompanies(ctx context.Context) ([]*models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies ORDER BY name COLLATE NOCASE ASC`
	rows, err := s.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	companies := make([]*models.Company, 0)
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, company)
	}
	return companies, rows.Err()
}

// DeleteCompany removes a company by ID
func (s *CompanyStorage) DeleteCompany(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.db.ExecContext(ctx, `DELETE FROM companies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete company: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrCompanyNotFound
	}
	return nil
}

func scanCompany(row rowScanner) (*models.Company, error) {
	var company models.Company
	var website, about, culture, mission, techStack, size sql.NullString
	var hasPortland int
	var createdAt, updatedAt int64

	err := row.Scan(
		&company.ID,
		&company.Name,
		&website,
		&about,
		&culture,
		&mission,
		&techStack,
		&company.Tier,
		&company.PriorityScore,
		&size,
		&hasPortland,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	company.Website = website.String
	company.About = about.String
	company.Culture = culture.String
	company.Mission = mission.String
	company.Size = size.String
	company.HasPortlandOffice = hasPortland != 0
	company.CreatedAt = millisToTime(createdAt)
	company.UpdatedAt = millisToTime(updatedAt)

	if company.TechStack, err = unmarshalStrings(techStack); err != nil {
		return nil, err
	}

	return &company, nil
}
