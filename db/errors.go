package db

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned by point lookups that matched no row.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err is ErrNotFound or a bare sql.ErrNoRows.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}

func noRowsToNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
