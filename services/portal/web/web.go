// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package web embeds the server-rendered page templates and the static
// assets served under /static.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Funcs are the helpers available in every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"roleLabel": datatypes.RoleLabel,
		"ticketStatusLabel": func(s string) string {
			if meta, ok := datatypes.TicketStatusMetadata[s]; ok {
				return meta.Label
			}
			return s
		},
		"transferStatusLabel": func(s string) string {
			if label, ok := datatypes.TransferStatusLabels[s]; ok {
				return label
			}
			return s
		},
		"priorityLabel": func(p string) string {
			switch p {
			case datatypes.PriorityLow:
				return "کم"
			case datatypes.PriorityHigh:
				return "زیاد"
			}
			return "متوسط"
		},
		"formatTime": func(t any) string {
			switch v := t.(type) {
			case time.Time:
				if v.IsZero() {
					return ""
				}
				return v.Format("2006-01-02 15:04")
			case *time.Time:
				if v == nil || v.IsZero() {
					return ""
				}
				return v.Format("2006-01-02 15:04")
			}
			return ""
		},
	}
}

// Templates parses every page template.
func Templates() (*template.Template, error) {
	return template.New("pages").Funcs(Funcs()).ParseFS(templateFS, "templates/*.html")
}

// Static returns the asset file system rooted at static/.
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The directory is embedded at build time; a failure here is a
		// build problem.
		panic(err)
	}
	return http.FS(sub)
}
