package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// uniqueViolationMarkers are driver messages for a unique index conflict, for
// dialects where gorm's TranslateError does not map the error.
var uniqueViolationMarkers = []string{
	"SQLSTATE 23505",
	"duplicate key value violates unique constraint",
	"UNIQUE constraint failed",
	"Error 1062",
}

// IsDuplicateKeyErr reports whether err is a unique-index conflict. Callers
// use it to turn a lost insert race into the existing row or a conflict error.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	for _, marker := range uniqueViolationMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
