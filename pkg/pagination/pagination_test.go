package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/errors"
)

func TestFromRequest_Defaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	p, err := FromRequest(req)

	require.NoError(t, err)
	assert.Equal(t, 0, p.Page)
	assert.Equal(t, DefaultSize, p.Size)
	assert.Equal(t, 0, p.Offset())
}

func TestFromRequest_CustomValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/search?page=3&size=50", nil)
	p, err := FromRequest(req)

	require.NoError(t, err)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 50, p.Size)
	assert.Equal(t, 150, p.Offset())
}

func TestFromRequest_Rejects(t *testing.T) {
	for _, query := range []string{
		"page=-1",
		"page=abc",
		"size=0",
		"size=101",
		"size=ten",
		"page=1000",
		"page=99&size=101",
		"page=100&size=100",
		"page=9223372036854775807&size=100",
		"page=3334&size=3",
	} {
		t.Run(query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/search?"+query, nil)
			_, err := FromRequest(req)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestFromRequest_LastPageInResultWindow(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/search?page=99&size=100", nil)
	p, err := FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, MaxResultWindow, p.Offset()+p.Size)

	req = httptest.NewRequest(http.MethodGet, "/search?page=3332&size=3", nil)
	p, err = FromRequest(req)
	require.NoError(t, err)
	assert.LessOrEqual(t, p.Offset()+p.Size, MaxResultWindow)
}

func TestFromRequest_BoundarySizes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/search?size=1", nil)
	p, err := FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Size)

	req = httptest.NewRequest(http.MethodGet, "/search?size=100", nil)
	p, err = FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Size)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 3, TotalPages(25, 10))
	assert.Equal(t, 2, TotalPages(20, 10))
	assert.Equal(t, 1, TotalPages(1, 10))
	assert.Equal(t, 0, TotalPages(0, 10))
	assert.Equal(t, 0, TotalPages(25, 0))
}

func TestNewMeta_TwentyFiveByTen(t *testing.T) {
	last := NewMeta(2, 10, 25)
	assert.Equal(t, 3, last.TotalPages)
	assert.False(t, last.HasNext)
	assert.True(t, last.HasPrevious)

	first := NewMeta(0, 10, 25)
	assert.True(t, first.HasNext)
	assert.False(t, first.HasPrevious)
}

func TestNewMeta_Empty(t *testing.T) {
	m := NewMeta(0, 10, 0)
	assert.Equal(t, 0, m.TotalPages)
	assert.False(t, m.HasNext)
	assert.False(t, m.HasPrevious)
}

func TestNewMeta_ZeroSize(t *testing.T) {
	m := NewMeta(0, 0, 25)
	assert.Equal(t, 0, m.TotalPages)
	assert.False(t, m.HasNext)
}
