// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a status change is not
	// allowed from the document's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCommentRequired is returned for rejections without a comment.
	ErrCommentRequired = errors.New("comment required")

	// ErrNotEditable is returned when a document cannot be changed in its
	// current status (closed ticket, transfer past the applicant stage,
	// active academic year deletion).
	ErrNotEditable = errors.New("not editable in current status")
)

// ValidationError reports a bad input field. Handlers answer 400.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %q to %q", e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) true.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
