package shared

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginationBounds(t *testing.T) {
	p := NewPagination(2, 10, 25)
	assert.Equal(t, 3, p.TotalPages)
	start, end := p.Bounds()
	assert.Equal(t, 10, start)
	assert.Equal(t, 20, end)

	last := NewPagination(5, 10, 25)
	start, end = last.Bounds()
	assert.Equal(t, 25, start)
	assert.Equal(t, 25, end)
}

func TestPaginationFromQueryDefaults(t *testing.T) {
	p := PaginationFromQuery(url.Values{"per_page": {"9000"}}, 3)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 500, p.PerPage)
	start, end := p.Bounds()
	assert.Equal(t, 0, start)
	assert.Equal(t, 3, end)
}
