package interfaces

import (
	"context"

	"github.com/ternarybob/venari/internal/models"
)

// SettingsService loads typed configuration documents from the settings
// store with caching. Defaults are seeded on first run; Reload drops the
// cache so the next read sees fresh rows.
type SettingsService interface {
	FilterSettings(ctx context.Context) (*models.FilterSettings, error)
	StrikeSettings(ctx context.Context) (*models.StrikeSettings, error)
	Profile(ctx context.Context) (*models.ProfileSettings, error)
	TechRanks(ctx context.Context) (*models.TechRanks, error)
	StopList(ctx context.Context) (*models.StopList, error)
	WorkerSettings(ctx context.Context) (*models.WorkerSettings, error)
	SchedulerSettings(ctx context.Context) (*models.SchedulerSettings, error)
	AISettings(ctx context.Context) (*models.AISettings, error)

	// GetDocument and SetDocument expose raw documents for the config API.
	GetDocument(ctx context.Context, key string) (string, error)
	SetDocument(ctx context.Context, key, value string) error

	// Reload invalidates the cache.
	Reload()
}
