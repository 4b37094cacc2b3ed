package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageQuery_Clean(t *testing.T) {
	tests := []struct {
		name string
		in   PageQuery
		want PageQuery
	}{
		{name: "defaults", in: PageQuery{}, want: PageQuery{Page: DefaultPage, Size: DefaultPageSize}},
		{name: "negative", in: PageQuery{Page: -3, Size: -1}, want: PageQuery{Page: DefaultPage, Size: DefaultPageSize}},
		{name: "size capped", in: PageQuery{Page: 2, Size: 1000, Search: "  Gasabo "}, want: PageQuery{Page: 2, Size: MaxPageSize, Search: "Gasabo"}},
		{name: "huge page", in: PageQuery{Page: 92233720368547760, Size: 100}, want: PageQuery{Page: math.MaxInt / 100, Size: 100}},
		{name: "max page", in: PageQuery{Page: math.MaxInt, Size: 1}, want: PageQuery{Page: math.MaxInt, Size: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pq := tt.in
			pq.Clean()
			assert.Equal(t, tt.want, pq)
			assert.GreaterOrEqual(t, pq.Offset(), 0)
		})
	}
}

func TestPageQuery_Offset(t *testing.T) {
	assert.Equal(t, 0, PageQuery{Page: 1, Size: 10}.Offset())
	assert.Equal(t, 20, PageQuery{Page: 3, Size: 10}.Offset())
	assert.Equal(t, 0, PageQuery{}.Offset())
	assert.Equal(t, math.MaxInt, PageQuery{Page: 92233720368547760, Size: 100}.Offset())
}

func TestPaginate(t *testing.T) {
	all := []int{1, 2, 3}

	page := Paginate(all, PageQuery{Page: 2, Size: 2})
	assert.Equal(t, []int{3}, page.Items)
	assert.Equal(t, PageMeta{TotalItems: 3, ItemCount: 1, ItemsPerPage: 2, TotalPages: 2, CurrentPage: 2}, page.Meta)

	pq := PageQuery{Page: 92233720368547760, Size: 100}
	pq.Clean()
	page = Paginate(all, pq)
	assert.Equal(t, []int{}, page.Items)
	assert.Equal(t, PageMeta{TotalItems: 3, ItemCount: 0, ItemsPerPage: 100, TotalPages: 1, CurrentPage: pq.Page}, page.Meta)

	// uncleaned queries do not panic either
	page = Paginate(all, PageQuery{Page: math.MaxInt, Size: math.MaxInt})
	assert.Empty(t, page.Items)
	page = Paginate(all, PageQuery{Page: 1, Size: math.MaxInt})
	assert.Equal(t, all, page.Items)
}
