// Package utils holds query parameter helpers shared by the list endpoints.
package utils

import "strconv"

// Default and maximum page sizes for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s as a decimal int, returning def when s is empty or
// not a valid int. Surrounding spaces are not trimmed.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Limit resolves a requested row count: non-positive means def, anything
// above max is capped at max.
func Limit(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// Page normalizes a 1-based page and page size and returns the row offset.
func Page(page, pageSize int) (normPage, normSize, offset int) {
	if page < 1 {
		page = 1
	}
	pageSize = Limit(pageSize, DefaultPageSize, MaxPageSize)
	return page, pageSize, (page - 1) * pageSize
}
