package persistence

import "github.com/clientpulse/backend/internal/domain/shared"

// normalizePagination returns the effective page and page size for building
// paginated results. Zero values fall back to the first page at the default
// size so total-page math never divides by zero.
func normalizePagination(filter shared.Filter) (page, pageSize int) {
	page = filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize = filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return page, pageSize
}
