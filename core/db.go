package core

import (
	"context"
	"database/sql"
	"math"
	"strings"
)

type (
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	// Transactor runs fn inside a single transaction; repositories pick the transaction up from ctx.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// pagination
const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageQuery holds the common listing parameters: page number, page size and a free text search.
type PageQuery struct {
	Page   int    `query:"page"`
	Size   int    `query:"size"`
	Search string `query:"q"`
}

// Clean normalizes the query: defaults for missing values, size capped to MaxPageSize.
func (pq *PageQuery) Clean() {
	if pq.Page < 1 {
		pq.Page = DefaultPage
	}
	if pq.Size < 1 {
		pq.Size = DefaultPageSize
	}
	if pq.Size > MaxPageSize {
		pq.Size = MaxPageSize
	}
	// keep (Page-1)*Size inside int
	if pq.Page > math.MaxInt/pq.Size {
		pq.Page = math.MaxInt / pq.Size
	}
	pq.Search = CleanString(pq.Search)
}

// Offset is the number of rows before the page. It saturates instead of overflowing.
func (pq PageQuery) Offset() int {
	if pq.Page < 1 || pq.Size < 1 {
		return 0
	}
	if pq.Page-1 > math.MaxInt/pq.Size {
		return math.MaxInt
	}
	return (pq.Page - 1) * pq.Size
}

// SearchPattern returns an ILIKE pattern for Search, with LIKE wildcards escaped.
func (pq PageQuery) SearchPattern() string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(pq.Search) + "%"
}

type PageMeta struct {
	TotalItems   int `json:"totalItems"`
	ItemCount    int `json:"itemCount"`
	ItemsPerPage int `json:"itemsPerPage"`
	TotalPages   int `json:"totalPages"`
	CurrentPage  int `json:"currentPage"`
}

type Page[T any] struct {
	Items []T      `json:"items"`
	Meta  PageMeta `json:"meta"`
}

// NewPage builds a Page from one page of items and the total number of matching rows.
func NewPage[T any](items []T, total int, pq PageQuery) Page[T] {
	if items == nil {
		items = []T{}
	}
	var pages int
	if pq.Size > 0 {
		pages = int(math.Ceil(float64(total) / float64(pq.Size)))
	}
	return Page[T]{
		Items: items,
		Meta: PageMeta{
			TotalItems:   total,
			ItemCount:    len(items),
			ItemsPerPage: pq.Size,
			TotalPages:   pages,
			CurrentPage:  pq.Page,
		},
	}
}

// Paginate slices an in-memory result set; used by the in-memory repositories.
func Paginate[T any](all []T, pq PageQuery) Page[T] {
	start := pq.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if pq.Size >= 0 && pq.Size < end-start {
		end = start + pq.Size
	}
	return NewPage(all[start:end], len(all), pq)
}
