package shared

import (
	"math"
	"net/url"
	"strconv"
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(limit, offset, total int) Pagination {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return Pagination{Limit: limit, Offset: offset, Total: total, TotalPages: totalPages}
}

// Page bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// PageFromQuery reads limit and offset query parameters, clamping both.
func PageFromQuery(values url.Values) (limit, offset int) {
	limit, _ = strconv.Atoi(values.Get("limit"))
	offset, _ = strconv.Atoi(values.Get("offset"))
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
