package interfaces

import (
	"context"

	"github.com/ternarybob/venari/internal/models"
)

// AIService exposes the narrow LLM tasks used by the pipeline. Each task
// runs through a per-task provider fallback chain configured in the AI
// settings document; replies are parsed even when the model wraps the
// JSON in prose or fences, and returned typed.
type AIService interface {
	// ExtractJob extracts structured fields from a scraped job record.
	ExtractJob(ctx context.Context, job models.JobRecord) (*models.JobExtraction, error)

	// RepairExtraction re-runs extraction focused on the missing fields and
	// merges the result into current. Confidence never decreases.
	RepairExtraction(ctx context.Context, job models.JobRecord, current *models.JobExtraction) (*models.JobExtraction, error)

	// AnalyzeMatch produces the qualitative analysis for a job that already
	// passed the deterministic score gate.
	AnalyzeMatch(ctx context.Context, job models.JobRecord, extraction *models.JobExtraction, company *models.Company, score int) (*models.MatchAnalysis, error)

	// ExtractCompany pulls about/culture/mission/tech-stack fields out of
	// fetched website content.
	ExtractCompany(ctx context.Context, companyName, websiteContent string) (*models.Company, error)

	// ClassifyCompany assigns tier, priority score, size class, and the
	// Portland-office flag.
	ClassifyCompany(ctx context.Context, company *models.Company) (*models.Company, error)

	// ProposeSourceConfig suggests a working scraper configuration for a
	// failing source from a sample of its page or API payload.
	ProposeSourceConfig(ctx context.Context, source *models.Source, sample string) (*models.SourceProposal, error)

	// ClassifySourceURL categorises a candidate careers URL.
	ClassifySourceURL(ctx context.Context, url, pageText string) (*models.SourceClassification, error)
}
