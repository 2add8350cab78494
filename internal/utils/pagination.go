// Package utils provides small, generic helpers used by the HTTP layer.
// They carry no domain knowledge.
package utils

import "strconv"

// Page bounds used by list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination is the metadata returned next to a page of items.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// AtoiDefault parses s, returning def when s is empty or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses raw page and page_size values into 1-based, bounded
// numbers.
func ClampPage(rawPage, rawSize string) (page, size int) {
	page = AtoiDefault(rawPage, 1)
	if page < 1 {
		page = 1
	}
	size = AtoiDefault(rawSize, DefaultPageSize)
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// Paginate returns the requested window of items. A page past the end
// yields an empty, non-nil slice.
func Paginate[T any](items []T, page, size int) ([]T, Pagination) {
	total := len(items)
	pages := (total + size - 1) / size
	meta := Pagination{
		Page:       page,
		PageSize:   size,
		Total:      int64(total),
		TotalPages: pages,
		HasNext:    page < pages,
	}
	start := (page - 1) * size
	if start >= total {
		return []T{}, meta
	}
	end := start + size
	if end > total {
		end = total
	}
	return items[start:end], meta
}
