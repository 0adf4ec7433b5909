package interfaces

import (
	"context"

	"github.com/ternarybob/venari/internal/models"
)

// SourceService manages scraping sources and their failure bookkeeping.
// The strike rules here disable sources; they are unrelated to the per-job
// strike filter.
type SourceService interface {
	Create(ctx context.Context, source *models.Source) (string, error)
	Get(ctx context.Context, id string) (*models.Source, error)
	GetByURL(ctx context.Context, url string) (*models.Source, error)
	List(ctx context.Context) ([]*models.Source, error)
	ListActive(ctx context.Context) ([]*models.Source, error)
	Update(ctx context.Context, source *models.Source) error
	Delete(ctx context.Context, id string) error

	// RecordFailure increments consecutive_failures and disables the source
	// when the configured threshold is reached. Returns the updated source.
	RecordFailure(ctx context.Context, id, reason string) (*models.Source, error)

	// RecordSuccess resets consecutive_failures and consecutive_zero_jobs
	// and stamps last_scraped_at.
	RecordSuccess(ctx context.Context, id string, jobCount int) error

	// RecordZeroJobs increments consecutive_zero_jobs, stamps
	// last_scraped_at, and returns the new count.
	RecordZeroJobs(ctx context.Context, id string) (int, error)

	// Disable marks the source disabled with notes and classification tags
	// (auth_required, protected_api, anti_bot).
	Disable(ctx context.Context, id, notes string, tags ...string) error

	// Enable reactivates a disabled source and clears failure counters.
	Enable(ctx context.Context, id string) error

	CountByStatus(ctx context.Context) (map[string]int, error)
}

// CompanyService manages normalized company records
type CompanyService interface {
	Save(ctx context.Context, company *models.Company) (string, error)
	Get(ctx context.Context, id string) (*models.Company, error)
	GetByName(ctx context.Context, name string) (*models.Company, error)
	List(ctx context.Context) ([]*models.Company, error)
	Delete(ctx context.Context, id string) error

	// HasGoodData reports whether the named company already carries about
	// and culture text above the configured minimum length.
	HasGoodData(ctx context.Context, name string) (bool, error)
}
