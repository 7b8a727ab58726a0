package store

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned by updates and deletes of rows that do not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("record already exists")
)

// RowStatus is the soft-delete marker of a row.
type RowStatus string

const (
	// Normal is the status for normal rows.
	Normal RowStatus = "NORMAL"
	// Archived is the status for soft-deleted rows; default-scope reads skip them.
	Archived RowStatus = "ARCHIVED"
)

func (r RowStatus) String() string {
	return string(r)
}

// EscapeLike escapes the LIKE wildcards in s so it matches literally.
// Drivers use it with ESCAPE '\'.
func EscapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
