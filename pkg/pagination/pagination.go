package pagination

import (
	"net/http"
	"strconv"

	apperrors "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/errors"
)

const (
	DefaultSize = 10
	MaxSize     = 100

	// MaxResultWindow bounds (page+1)*size, matching the search index's
	// index.max_result_window.
	MaxResultWindow = 10000
)

// Params holds 0-based pagination parameters extracted from query strings.
type Params struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// DefaultParams returns the first page at the default size.
func DefaultParams() Params {
	return Params{Page: 0, Size: DefaultSize}
}

// Offset is the number of items skipped before this page.
func (p Params) Offset() int {
	return p.Page * p.Size
}

// FromRequest extracts `page` and `size` from the query string. Absent values
// fall back to the defaults; malformed or out of range values are rejected.
func FromRequest(r *http.Request) (Params, error) {
	p := DefaultParams()
	q := r.URL.Query()

	if raw := q.Get("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return p, apperrors.InvalidInput("page must be an integer")
		}
		if v < 0 {
			return p, apperrors.InvalidInput("page must be >= 0")
		}
		p.Page = v
	}

	if raw := q.Get("size"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return p, apperrors.InvalidInput("size must be an integer")
		}
		if v < 1 || v > MaxSize {
			return p, apperrors.InvalidInputf("size must be between 1 and %d", MaxSize)
		}
		p.Size = v
	}

	if p.Page > MaxResultWindow/p.Size-1 {
		return p, apperrors.InvalidInputf("page * size must not exceed %d results", MaxResultWindow)
	}

	return p, nil
}

// TotalPages is ceil(total/size), or 0 when size is 0.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	s := int64(size)
	return int((total + s - 1) / s)
}

// HasNext reports whether a page follows page.
func HasNext(page int, total int64, size int) bool {
	return page < TotalPages(total, size)-1
}

// HasPrevious reports whether a page precedes page.
func HasPrevious(page int) bool {
	return page > 0
}

// Meta is the JSON form of a page position with its derived fields filled in.
type Meta struct {
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	HasNext       bool  `json:"hasNext"`
	HasPrevious   bool  `json:"hasPrevious"`
}

// NewMeta computes the derived fields for a page.
func NewMeta(page, size int, total int64) Meta {
	return Meta{
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    TotalPages(total, size),
		HasNext:       HasNext(page, total, size),
		HasPrevious:   HasPrevious(page),
	}
}
