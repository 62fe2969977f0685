// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Paging defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageQuery holds the page and pageSize query parameters.
type PageQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"pageSize" binding:"omitempty,min=1,max=100"`
}

// Page is one page of a list response.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// Paginate slices items according to q. Out-of-range pages are empty.
func Paginate[T any](items []T, q PageQuery) Page[T] {
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	switch {
	case size < 1:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}

	start := (page - 1) * size
	if start > len(items) {
		start = len(items)
	}
	end := min(start+size, len(items))

	out := make([]T, end-start)
	copy(out, items[start:end])
	return Page[T]{Items: out, Total: len(items), Page: page, PageSize: size}
}

// DashboardSummary counts documents by status within the caller's scope.
type DashboardSummary struct {
	Tickets       map[string]int `json:"tickets"`
	Transfers     map[string]int `json:"transfers"`
	OpenTickets   int            `json:"openTickets"`
	ActiveYear    string         `json:"activeYear,omitempty"`
	TotalTickets  int            `json:"totalTickets"`
	TotalTransfer int            `json:"totalTransfers"`
}
