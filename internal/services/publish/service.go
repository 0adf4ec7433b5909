// -----------------------------------------------------------------------
// Publish Service - user-facing record of scored job matches
// -----------------------------------------------------------------------

package publish

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// Service implements interfaces.PublishedStore over the match storage. Every
// URL is normalised before it touches the store, so the scrape runner, the
// dispatcher, and the save stage all agree on identity.
type Service struct {
	matches interfaces.MatchStorage
	logger  arbor.ILogger
}

// NewService creates a published-store adapter.
func NewService(matches interfaces.MatchStorage, logger arbor.ILogger) interfaces.PublishedStore {
	return &Service{
		matches: matches,
		logger:  logger,
	}
}

// SaveMatch persists the listing and its match in one pass. Idempotent per
// normalised URL: when the listing already exists the stored match id is
// returned and nothing is overwritten.
func (s *Service) SaveMatch(ctx context.Context, listing *models.JobListing, match *models.JobMatch) (string, error) {
	if listing == nil || match == nil {
		return "", fmt.Errorf("listing and match are required")
	}
	if listing.URL == "" {
		return "", fmt.Errorf("listing url is required")
	}

	listing.URL = common.NormalizeURL(listing.URL)
	if listing.ID == "" {
		listing.ID = common.NewListingID()
	}

	listingID, err := s.matches.SaveListing(ctx, listing)
	if err != nil {
		return "", fmt.Errorf("save listing: %w", err)
	}

	match.ListingID = listingID
	match.URL = listing.URL
	if match.ID == "" {
		match.ID = common.NewMatchID()
	}

	matchID, err := s.matches.SaveMatch(ctx, match)
	if err != nil {
		return "", fmt.Errorf("save match: %w", err)
	}

	if matchID != match.ID {
		s.logger.Debug().
			Str(common.FieldCategory, common.CategoryPipeline).
			Str(common.FieldAction, common.ActionPublish).
			Str("url", listing.URL).
			Str("match_id", matchID).
			Msg("Listing already published, returning stored match")
	} else {
		s.logger.Info().
			Str(common.FieldCategory, common.CategoryPipeline).
			Str(common.FieldAction, common.ActionPublish).
			Str("url", listing.URL).
			Str("match_id", matchID).
			Int("score", match.Score).
			Msg("Match published")
	}
	return matchID, nil
}

// UpdateDocumentGenerated records a generated application document.
func (s *Service) UpdateDocumentGenerated(ctx context.Context, matchID, documentURL string) error {
	return s.matches.UpdateDocumentGenerated(ctx, matchID, documentURL)
}

// UpdateStatus moves a match through its workflow states.
func (s *Service) UpdateStatus(ctx context.Context, matchID, status, notes string) error {
	switch status {
	case models.MatchStatusNew, models.MatchStatusApplied, models.MatchStatusArchived:
	default:
		return fmt.Errorf("unknown match status %q", status)
	}
	return s.matches.UpdateMatchStatus(ctx, matchID, status, notes)
}

// GetMatches returns matches narrowed by the given filters.
func (s *Service) GetMatches(ctx context.Context, filters models.MatchFilters) ([]*models.JobMatch, error) {
	return s.matches.GetMatches(ctx, filters)
}

// JobExists reports whether a listing has been published for the URL.
func (s *Service) JobExists(ctx context.Context, url string) (bool, error) {
	return s.matches.ListingExists(ctx, common.NormalizeURL(url))
}

// BatchCheckExists checks many URLs in one query. The returned map is keyed
// by the caller's original URLs.
func (s *Service) BatchCheckExists(ctx context.Context, urls []string) (map[string]bool, error) {
	if len(urls) == 0 {
		return map[string]bool{}, nil
	}

	normalised := make([]string, len(urls))
	for i, u := range urls {
		normalised[i] = common.NormalizeURL(u)
	}

	found, err := s.matches.BatchCheckListings(ctx, normalised)
	if err != nil {
		return nil, err
	}

	result := make(map[string]bool, len(urls))
	for i, u := range urls {
		result[u] = found[normalised[i]]
	}
	return result, nil
}
