package catalog

import (
	"errors"

	"gorm.io/gorm"
)

// ErrEntryNotFound is returned when no catalog entry matches the lookup.
var ErrEntryNotFound = errors.New("catalog entry not found")

// convertNotFoundError maps gorm's record-not-found to the package sentinel so
// callers never depend on gorm error types.
func convertNotFoundError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrEntryNotFound
	}
	return err
}
