// Package scope implements row-level filtering for multi-tenant programs.
// A scope is a dot-separated path ("amsterdam.west"); a request scoped to
// "amsterdam" sees rows scoped to "amsterdam" and any sub-scope beneath it.
// The predicate is passed explicitly into repository calls rather than hidden
// in request-bound state, so filtering stays testable.
package scope

import (
	"strings"

	"gorm.io/gorm"
)

// Scope is an explicit row filter. The zero value matches everything.
type Scope struct {
	Value string
}

// All returns the unrestricted scope.
func All() Scope { return Scope{} }

// New normalizes a raw scope string.
func New(raw string) Scope {
	return Scope{Value: strings.ToLower(strings.TrimSpace(raw))}
}

// IsAll reports whether the scope matches every row.
func (s Scope) IsAll() bool { return s.Value == "" }

// Matches reports whether a row scope falls inside this scope.
func (s Scope) Matches(rowScope string) bool {
	if s.IsAll() {
		return true
	}
	rowScope = strings.ToLower(strings.TrimSpace(rowScope))
	return rowScope == s.Value || strings.HasPrefix(rowScope, s.Value+".")
}

// Apply adds the scope predicate to a gorm statement. The column must be a
// trusted identifier supplied by the repository, never user input.
func (s Scope) Apply(stmt *gorm.DB, column string) *gorm.DB {
	if s.IsAll() {
		return stmt
	}
	return stmt.Where(column+" = ? OR "+column+" LIKE ?", s.Value, s.Value+".%")
}
