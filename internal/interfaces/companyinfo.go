package interfaces

import (
	"context"

	"github.com/ternarybob/venari/internal/models"
)

// CompanyInfoService fetches a company's public website and condenses it to
// markdown for the extraction adapter.
type CompanyInfoService interface {
	FetchWebsite(ctx context.Context, websiteURL string) (*models.WebsiteContent, error)
}
