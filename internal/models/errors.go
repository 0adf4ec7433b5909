package models

import (
	"errors"
	"fmt"
)

// DuplicateItemError reports a unique-URL constraint violation on queue
// insert. Callers ingesting scraped jobs treat it as benign.
type DuplicateItemError struct {
	URL  string
	Type ItemType
}

func (e *DuplicateItemError) Error() string {
	return fmt.Sprintf("queue item already exists for url %s (type %s)", e.URL, e.Type)
}

// IsDuplicateItem reports whether err is a duplicate-URL insert violation.
func IsDuplicateItem(err error) bool {
	var dup *DuplicateItemError
	return errors.As(err, &dup)
}

// ErrItemNotFound is returned when a queue item id does not exist.
var ErrItemNotFound = errors.New("queue item not found")

// ErrItemTerminal is returned when a requeue would resurrect an item that
// already reached a terminal status, e.g. one cancelled mid-stage.
var ErrItemTerminal = errors.New("queue item already terminal")

// ErrSourceNotFound is returned when a source id does not exist.
var ErrSourceNotFound = errors.New("source not found")

// ErrCompanyNotFound is returned when a company id or name does not exist.
var ErrCompanyNotFound = errors.New("company not found")

// ErrListingNotFound is returned when a published listing does not exist.
var ErrListingNotFound = errors.New("job listing not found")

// ErrMatchNotFound is returned when a published match does not exist.
var ErrMatchNotFound = errors.New("job match not found")

// ErrSettingNotFound is returned when a settings document key is absent.
var ErrSettingNotFound = errors.New("setting not found")
