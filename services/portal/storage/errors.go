// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import "errors"

var (
	// ErrNotFound is returned when no document has the requested ID or
	// unique field value.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when a concurrent transaction modified the
	// same document first.
	ErrConflict = errors.New("concurrent modification")

	// ErrDuplicate is returned when an insert reuses an ID or a unique
	// field value.
	ErrDuplicate = errors.New("duplicate document")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store closed")
)

// DuplicateError names the unique field that collided.
type DuplicateError struct {
	Collection string
	Field      string
	Value      string
}

func (e *DuplicateError) Error() string {
	return e.Collection + ": duplicate " + e.Field + " " + `"` + e.Value + `"`
}

// Is makes errors.Is(err, ErrDuplicate) true.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}
