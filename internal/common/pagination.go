package common

import (
	"net/url"
	"strconv"
)

// Pagination is the page metadata attached to list responses.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// NewPagination derives the page count for total items split into pages of limit.
func NewPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// ParsePagination reads page and limit from query values. Missing or
// non-positive values fall back to page 1 and defaultLimit; limit is capped
// at maxLimit.
func ParsePagination(values url.Values, defaultLimit, maxLimit int) (page, limit int) {
	page, limit = 1, defaultLimit
	if p, err := strconv.Atoi(values.Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(values.Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

// Window returns the [start, end) bounds of page within n items.
func Window(page, limit, n int) (start, end int) {
	start = min((page-1)*limit, n)
	end = min(start+limit, n)
	return start, end
}
