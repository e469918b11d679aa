// Package store provides persistence for sites, content trees and slugs.
package store

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when a site, node, type, document or slug does
	// not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateID is returned when creating an entity with an existing ID,
	// or a second slug for the same node and locale.
	ErrDuplicateID = errors.New("entity with this ID already exists")

	// ErrDuplicateSlug is returned when a slug text is already used by another
	// node of the same site.
	ErrDuplicateSlug = errors.New("slug text already used on this site")

	// ErrCustomSlug is returned when a generated write targets a pinned slug.
	ErrCustomSlug = errors.New("slug is custom and cannot be regenerated")

	// ErrForeignKey is returned when a write references a missing site, type
	// or parent node.
	ErrForeignKey = errors.New("referenced entity does not exist")

	ErrConnectionFailed = errors.New("database connection failed")
	ErrMigrationFailed  = errors.New("database migration failed")

	// ErrInvalidData is returned when a stored JSON column cannot be decoded.
	ErrInvalidData = errors.New("invalid data format")

	ErrTxFailed = errors.New("transaction failed")
)

// StoreError carries the operation and entity a store failure belongs to.
// It unwraps to one of the sentinels above.
type StoreError struct {
	Op      string // e.g. "InsertSlug"
	Entity  string // "slug", "node", "site"...
	ID      string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	for _, part := range []string{e.Entity, e.ID} {
		if part != "" {
			b.WriteByte(' ')
			b.WriteString(part)
		}
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, entity, id, message string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, ID: id, Message: message, Err: err}
}

// wrapf builds a StoreError whose message is formatted from args.
func wrapf(op, entity, id string, sentinel error, format string, args ...any) *StoreError {
	return NewStoreError(op, entity, id, fmt.Sprintf(format, args...), sentinel)
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateSlug reports whether err is, or wraps, ErrDuplicateSlug.
func IsDuplicateSlug(err error) bool {
	return errors.Is(err, ErrDuplicateSlug)
}

// IsDuplicateID reports whether err is, or wraps, ErrDuplicateID.
func IsDuplicateID(err error) bool {
	return errors.Is(err, ErrDuplicateID)
}

// IsCustomSlug reports whether err is, or wraps, ErrCustomSlug.
func IsCustomSlug(err error) bool {
	return errors.Is(err, ErrCustomSlug)
}
