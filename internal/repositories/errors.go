package repositories

import (
	"errors"

	"gorm.io/gorm"
)

// IsNotFoundError reports whether err means the record does not exist
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateError reports whether err is a unique constraint violation.
// The database must be opened with gorm.Config.TranslateError.
func IsDuplicateError(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
