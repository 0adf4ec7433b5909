package interfaces

import (
	"context"

	"github.com/ternarybob/venari/internal/models"
)

// PublishedStore is the narrow adapter over the user-facing record of job
// matches. All URLs are normalized before comparison.
type PublishedStore interface {
	// SaveMatch persists a listing and its match. Idempotent per
	// normalized URL: a duplicate returns the existing match id.
	SaveMatch(ctx context.Context, listing *models.JobListing, match *models.JobMatch) (string, error)

	UpdateDocumentGenerated(ctx context.Context, matchID, documentURL string) error
	UpdateStatus(ctx context.Context, matchID, status, notes string) error
	GetMatches(ctx context.Context, filters models.MatchFilters) ([]*models.JobMatch, error)
	JobExists(ctx context.Context, url string) (bool, error)
	BatchCheckExists(ctx context.Context, urls []string) (map[string]bool, error)
}
