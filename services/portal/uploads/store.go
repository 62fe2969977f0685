// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package uploads stores ticket attachments.
//
// Two backends implement Store: DiskStore writes under a local directory
// and GCSStore writes to a Cloud Storage bucket. Policy decides what may
// be stored before any bytes reach a backend.
package uploads

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	// ErrObjectNotFound is returned when a key has no object.
	ErrObjectNotFound = errors.New("object not found")

	// ErrTooLarge is returned when an upload exceeds Policy.MaxBytes.
	ErrTooLarge = errors.New("file too large")

	// ErrUnsupportedType is returned when the sniffed content type is not
	// allowed by the Policy.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrEmptyFile is returned for zero-byte uploads.
	ErrEmptyFile = errors.New("file is empty")

	// ErrInvalidKey is returned for keys that would escape the store.
	ErrInvalidKey = errors.New("invalid object key")
)

// Backend names, used in config and metrics labels.
const (
	BackendDisk = "disk"
	BackendGCS  = "gcs"
)

// Store persists opaque objects by slash-separated key.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save writes r under key and returns the bytes written. A partial
	// object is never left behind on error.
	Save(ctx context.Context, key, contentType string, r io.Reader) (int64, error)

	// Open returns the object body. The caller closes it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing key returns
	// ErrObjectNotFound.
	Delete(ctx context.Context, key string) error

	// Backend names the implementation.
	Backend() string

	Close() error
}

// AttachmentKey builds the object key for a ticket attachment. The
// extension of fileName is kept so downloads have a sensible type.
func AttachmentKey(ticketID, attachmentID, fileName string) string {
	ext := strings.ToLower(path.Ext(SanitizeFileName(fileName)))
	if len(ext) > 8 {
		ext = ""
	}
	return "tickets/" + ticketID + "/" + attachmentID + ext
}

// cleanKey rejects empty, absolute and parent-relative keys.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned != key {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
