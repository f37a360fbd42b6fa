package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAnalyteIDValidate(t *testing.T) {
	assert.Error(t, AnalyteID("").Validate())
	assert.NoError(t, AnalyteID("REG153_012").Validate())
}

func TestVendorIsGlobal(t *testing.T) {
	assert.True(t, Vendor("").IsGlobal())
	assert.False(t, Vendor("Caduceon").IsGlobal())
}

func TestNewIDValidate(t *testing.T) {
	id := NewID()
	assert.NoError(t, id.Validate())
	assert.Error(t, ID("not-a-uuid").Validate())
	assert.Error(t, ID("").Validate())
}

func TestPaginationNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       Pagination
		wantPage int
		wantSize int
	}{
		{"defaults", Pagination{}, 1, 20},
		{"negative page", Pagination{Page: -3, PageSize: 10}, 1, 10},
		{"oversized", Pagination{Page: 2, PageSize: 10000}, 2, 500},
		{"unchanged", Pagination{Page: 3, PageSize: 50}, 3, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Normalize()
			assert.Equal(t, tt.wantPage, tt.in.Page)
			assert.Equal(t, tt.wantSize, tt.in.PageSize)
		})
	}
}

func TestPaginationOffset(t *testing.T) {
	p := Pagination{Page: 3, PageSize: 25}
	assert.Equal(t, 50, p.Offset())
}

func TestDateRangeContains(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	r := DateRange{From: from, To: to}

	assert.True(t, r.Contains(from))
	assert.True(t, r.Contains(to))
	assert.True(t, r.Contains(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(from.Add(-time.Second)))
	assert.False(t, r.Contains(to.Add(time.Second)))
}
