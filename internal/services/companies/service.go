// -----------------------------------------------------------------------
// Company Service - normalised company records and the good-data gate
// -----------------------------------------------------------------------

package companies

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

const defaultGoodDataMinLength = 100

// Service implements interfaces.CompanyService over the company storage.
type Service struct {
	storage  interfaces.CompanyStorage
	settings interfaces.SettingsService
	logger   arbor.ILogger
}

// NewService creates a company service. The settings service supplies the
// good-data minimum length and may be nil in tests.
func NewService(storage interfaces.CompanyStorage, settings interfaces.SettingsService, logger arbor.ILogger) interfaces.CompanyService {
	return &Service{
		storage:  storage,
		settings: settings,
		logger:   logger,
	}
}

// Save persists a company, assigning an id when absent. Names are trimmed
// and sanitised before storage; saves against an existing name update it.
func (s *Service) Save(ctx context.Context, company *models.Company) (string, error) {
	if company == nil {
		return "", fmt.Errorf("company is required")
	}
	company.Name = common.SanitizeText(strings.TrimSpace(company.Name))
	if company.Name == "" {
		return "", fmt.Errorf("company name is required")
	}
	if company.ID == "" {
		if existing, err := s.storage.GetCompanyByName(ctx, company.Name); err == nil {
			company.ID = existing.ID
			if company.CreatedAt.IsZero() {
				company.CreatedAt = existing.CreatedAt
			}
		} else {
			company.ID = common.NewCompanyID()
		}
	}

	if err := s.storage.SaveCompany(ctx, company); err != nil {
		return "", err
	}

	s.logger.Debug().
		Str(common.FieldCategory, common.CategoryDatabase).
		Str(common.FieldAction, common.ActionProcess).
		Str("company_id", company.ID).
		Str("name", company.Name).
		Msg("Company saved")
	return company.ID, nil
}

// Get retrieves a company by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Company, error) {
	return s.storage.GetCompany(ctx, id)
}

// GetByName retrieves a company by its case-insensitive name.
func (s *Service) GetByName(ctx context.Context, name string) (*models.Company, error) {
	return s.storage.GetCompanyByName(ctx, strings.TrimSpace(name))
}

// List returns all companies.
func (s *Service) List(ctx context.Context) ([]*models.Company, error) {
	return s.storage.ListCompanies(ctx)
}

// Delete removes a company record.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.storage.DeleteCompany(ctx, id)
}

// HasGoodData reports whether the named company is complete enough that the
// job pipeline should not spawn another enrichment run. A missing record is
// simply not good data.
func (s *Service) HasGoodData(ctx context.Context, name string) (bool, error) {
	company, err := s.storage.GetCompanyByName(ctx, strings.TrimSpace(name))
	if errors.Is(err, models.ErrCompanyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return company.HasGoodData(s.goodDataMinLength(ctx)), nil
}

func (s *Service) goodDataMinLength(ctx context.Context) int {
	if s.settings == nil {
		return defaultGoodDataMinLength
	}
	worker, err := s.settings.WorkerSettings(ctx)
	if err != nil || worker.GoodDataMinLength <= 0 {
		return defaultGoodDataMinLength
	}
	return worker.GoodDataMinLength
}
