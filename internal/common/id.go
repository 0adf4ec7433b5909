package common

import (
	"github.com/google/uuid"
)

// NewItemID generates a unique queue item ID with the "item_" prefix
// Format: item_<uuid>
func NewItemID() string {
	return "item_" + uuid.New().String()
}

// NewSourceID generates a unique job source ID with the "src_" prefix
func NewSourceID() string {
	return "src_" + uuid.New().String()
}

// NewCompanyID generates a unique company ID with the "comp_" prefix
func NewCompanyID() string {
	return "comp_" + uuid.New().String()
}

// NewListingID generates a unique job listing ID with the "listing_" prefix
func NewListingID() string {
	return "listing_" + uuid.New().String()
}

// NewMatchID generates a unique job match ID with the "match_" prefix
func NewMatchID() string {
	return "match_" + uuid.New().String()
}

// NewTrackingID generates a lineage tracking ID with the "track_" prefix.
// Every descendant spawned from an initial submission inherits this value.
func NewTrackingID() string {
	return "track_" + uuid.New().String()
}
