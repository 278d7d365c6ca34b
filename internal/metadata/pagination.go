package metadata

import (
	"slices"
	"time"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// Pagination limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Order directions.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ListParams selects a page of records ordered by creation time. After
// and Before are record ids.
type ListParams struct {
	After  string
	Before string
	Limit  int
	Order  string
}

// Normalize applies defaults and rejects out-of-range values.
func (p ListParams) Normalize() (ListParams, error) {
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		return p, errdefs.Configuration("limit must be between 1 and %d, got %d", MaxLimit, p.Limit)
	}
	switch p.Order {
	case "":
		p.Order = OrderDesc
	case OrderAsc, OrderDesc:
	default:
		return p, errdefs.Configuration("order must be asc or desc, got %q", p.Order)
	}
	return p, nil
}

// Page is one page of a list.
type Page[T any] struct {
	Data    []T    `json:"data"`
	FirstID string `json:"first_id"`
	LastID  string `json:"last_id"`
	HasMore bool   `json:"has_more"`
}

func newPage[T any](items []T, hasMore bool, id func(T) string) Page[T] {
	p := Page[T]{Data: items, HasMore: hasMore}
	if p.Data == nil {
		p.Data = []T{}
	}
	if len(items) > 0 {
		p.FirstID = id(items[0])
		p.LastID = id(items[len(items)-1])
	}
	return p
}

// sortKey orders records by creation time, then id.
type sortKey struct {
	created time.Time
	id      string
}

func (a sortKey) less(b sortKey) bool {
	if !a.created.Equal(b.created) {
		return a.created.Before(b.created)
	}
	return a.id < b.id
}

// paginate pages items held in memory. params must be normalized.
func paginate[T any](items []T, params ListParams, key func(T) sortKey) (Page[T], error) {
	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b T) int {
		ka, kb := key(a), key(b)
		switch {
		case ka.less(kb):
			return -1
		case kb.less(ka):
			return 1
		default:
			return 0
		}
	})
	if params.Order == OrderDesc {
		slices.Reverse(sorted)
	}

	id := func(t T) string { return key(t).id }
	lo, hi := 0, len(sorted)
	if params.After != "" {
		i := slices.IndexFunc(sorted, func(t T) bool { return id(t) == params.After })
		if i < 0 {
			return Page[T]{}, errdefs.Configuration("unknown cursor %q", params.After)
		}
		lo = i + 1
	}
	if params.Before != "" {
		i := slices.IndexFunc(sorted, func(t T) bool { return id(t) == params.Before })
		if i < 0 {
			return Page[T]{}, errdefs.Configuration("unknown cursor %q", params.Before)
		}
		hi = i
	}
	if lo >= hi {
		return newPage[T](nil, false, id), nil
	}
	window := sorted[lo:hi]

	// With only a before cursor, the page is the records nearest to it.
	if params.Before != "" && params.After == "" {
		start := max(0, len(window)-params.Limit)
		return newPage(window[start:], start > 0, id), nil
	}
	n := min(params.Limit, len(window))
	return newPage(window[:n], len(window) > n, id), nil
}
