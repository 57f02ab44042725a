package api

import (
	"net/http"

	"github.com/oriys/tenantgate/internal/domain"
)

type paginationMetadata struct {
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	Returned   int   `json:"returned"`
	Total      int64 `json:"total"`
	HasMore    bool  `json:"has_more"`
	NextOffset *int  `json:"next_offset,omitempty"`
}

type paginatedListResponse struct {
	Items      any                `json:"items"`
	Pagination paginationMetadata `json:"pagination"`
}

// estimateTotal is used when the exact count is unknown.
func estimateTotal(page domain.Page, returned int) int64 {
	total := page.Offset + returned
	if page.Limit > 0 && returned >= page.Limit {
		total++
	}
	return int64(total)
}

func writePaginatedList(w http.ResponseWriter, page domain.Page, returned int, total int64, items any) {
	if total < 0 {
		total = int64(returned)
	}
	hasMore := int64(page.Offset)+int64(returned) < total
	var nextOffset *int
	if hasMore {
		next := page.Offset + returned
		nextOffset = &next
	}
	writeJSON(w, http.StatusOK, paginatedListResponse{
		Items: items,
		Pagination: paginationMetadata{
			Limit:      page.Limit,
			Offset:     page.Offset,
			Returned:   returned,
			Total:      total,
			HasMore:    hasMore,
			NextOffset: nextOffset,
		},
	})
}
