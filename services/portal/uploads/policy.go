// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package uploads

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
)

// DefaultMaxBytes is the attachment size cap when none is configured.
const DefaultMaxBytes = 10 << 20

// sniffLen is how much http.DetectContentType looks at.
const sniffLen = 512

// Policy limits what may be uploaded.
type Policy struct {
	// MaxBytes caps the object size. Zero means DefaultMaxBytes.
	MaxBytes int64

	// AllowedTypes lists accepted media types without parameters.
	AllowedTypes []string
}

// DefaultPolicy accepts documents and images up to DefaultMaxBytes.
func DefaultPolicy() Policy {
	return Policy{
		MaxBytes: DefaultMaxBytes,
		AllowedTypes: []string{
			"application/pdf",
			"application/zip",
			"image/jpeg",
			"image/png",
			"image/gif",
			"text/plain",
		},
	}
}

// Limit returns the effective size cap.
func (p Policy) Limit() int64 {
	if p.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return p.MaxBytes
}

// Inspect sniffs the content type of r and returns a reader that
// replays the sniffed bytes and fails with ErrTooLarge past MaxBytes.
//
// # Inputs
//
//   - declaredSize: Size reported by the client, or -1 when unknown.
//     Used only to fail early.
//   - r: The upload body.
//
// # Outputs
//
//   - string: The detected media type, without parameters.
//   - io.Reader: Body to hand to Store.Save.
//   - error: ErrTooLarge, ErrEmptyFile, ErrUnsupportedType or a read
//     error.
func (p Policy) Inspect(declaredSize int64, r io.Reader) (string, io.Reader, error) {
	limit := p.Limit()
	if declaredSize > limit {
		return "", nil, ErrTooLarge
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, err
	}
	if n == 0 {
		return "", nil, ErrEmptyFile
	}
	head = head[:n]

	mediaType, _, err := mime.ParseMediaType(http.DetectContentType(head))
	if err != nil || !slices.Contains(p.AllowedTypes, mediaType) {
		return "", nil, ErrUnsupportedType
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	return mediaType, &capReader{r: body, remaining: limit}, nil
}

// capReader fails with ErrTooLarge once more than remaining bytes have
// been read.
type capReader struct {
	r         io.Reader
	remaining int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return 0, ErrTooLarge
	}
	return n, err
}

// SanitizeFileName strips directories and control characters from a
// client-supplied file name.
//
//	SanitizeFileName("../../etc/passwd") // "passwd"
//	SanitizeFileName("")                 // "file"
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '"' {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "file"
	}
	if r := []rune(name); len(r) > 200 {
		name = string(r[len(r)-200:])
	}
	return name
}
