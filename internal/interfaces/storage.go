package interfaces

import (
	"context"

	"github.com/ternarybob/venari/internal/models"
)

// QueueStorage - persistence for queue items
type QueueStorage interface {
	SaveItem(ctx context.Context, item *models.QueueItem) error
	GetItem(ctx context.Context, id string) (*models.QueueItem, error)
	GetItemsByStatus(ctx context.Context, status models.ItemStatus, limit int) ([]*models.QueueItem, error)

	// ListItems returns items ordered by updated_at descending (newest
	// first), limited. An empty status lists across all statuses.
	ListItems(ctx context.Context, status models.ItemStatus, limit int) ([]*models.QueueItem, error)

	UpdateItem(ctx context.Context, item *models.QueueItem) error
	DeleteItem(ctx context.Context, id string) error

	// URLExists reports whether any item carries the URL.
	URLExists(ctx context.Context, url string) (bool, error)

	// FindByURLAndType returns every item matching the URL and type,
	// regardless of status or lineage.
	FindByURLAndType(ctx context.Context, url string, itemType models.ItemType) ([]*models.QueueItem, error)

	CountByStatus(ctx context.Context) (map[string]int, error)
	CountByType(ctx context.Context) (map[string]int, error)
}

// SourceStorage - persistence for scraping sources
type SourceStorage interface {
	SaveSource(ctx context.Context, source *models.Source) error
	GetSource(ctx context.Context, id string) (*models.Source, error)
	GetSourceByURL(ctx context.Context, url string) (*models.Source, error)
	ListSources(ctx context.Context) ([]*models.Source, error)

	// ListActiveSources returns active sources ordered by last_scraped_at
	// ascending with never-scraped sources first.
	ListActiveSources(ctx context.Context) ([]*models.Source, error)

	UpdateSource(ctx context.Context, source *models.Source) error
	DeleteSource(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// CompanyStorage - persistence for company records
type CompanyStorage interface {
	SaveCompany(ctx context.Context, company *models.Company) error
	GetCompany(ctx context.Context, id string) (*models.Company, error)
	GetCompanyByName(ctx context.Context, name string) (*models.Company, error)
	ListCompanies(ctx context.Context) ([]*models.Company, error)
	DeleteCompany(ctx context.Context, id string) error
}

// MatchStorage - persistence for published listings and matches
type MatchStorage interface {
	// SaveListing inserts a listing keyed by normalized URL; when the URL
	// already exists the stored listing id is returned unchanged.
	SaveListing(ctx context.Context, listing *models.JobListing) (string, error)
	GetListingByURL(ctx context.Context, url string) (*models.JobListing, error)
	ListingExists(ctx context.Context, url string) (bool, error)
	BatchCheckListings(ctx context.Context, urls []string) (map[string]bool, error)

	SaveMatch(ctx context.Context, match *models.JobMatch) (string, error)
	GetMatch(ctx context.Context, id string) (*models.JobMatch, error)
	GetMatchByListingID(ctx context.Context, listingID string) (*models.JobMatch, error)
	GetMatches(ctx context.Context, filters models.MatchFilters) ([]*models.JobMatch, error)
	UpdateMatchStatus(ctx context.Context, id, status, notes string) error
	UpdateDocumentGenerated(ctx context.Context, id string, documentURL string) error
}

// SettingsStorage - persistence for configuration documents
type SettingsStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string]string, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	QueueStorage() QueueStorage
	SourceStorage() SourceStorage
	CompanyStorage() CompanyStorage
	MatchStorage() MatchStorage
	SettingsStorage() SettingsStorage
	DB() interface{}
	Close() error
}
