package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefFor(t *testing.T) {
	id := Channel{Name: "Alpha", StreamURL: "http://x/a.ts", Group: "News"}.Identity()

	first := RefFor(id, 0)
	assert.Len(t, string(first), 16)
	assert.Equal(t, first, RefFor(Identity{Name: "Alpha", StreamURL: "http://x/a.ts"}, 0))
	assert.Equal(t, first+"-2", RefFor(id, 2))

	assert.NotEqual(t, first, RefFor(Identity{Name: "Alpha", StreamURL: "http://x/b.ts"}, 0))
	// the separator keeps shifted boundaries apart
	assert.NotEqual(t, RefFor(Identity{Name: "ab", StreamURL: "c"}, 0), RefFor(Identity{Name: "a", StreamURL: "bc"}, 0))
}

func TestParseSortOrder(t *testing.T) {
	tests := map[string]SortOrder{
		"":        SortDefault,
		"default": SortDefault,
		"newest":  SortNewest,
		"az":      SortAZ,
		"za":      SortZA,
		"AZ":      SortDefault,
		"oldest":  SortDefault,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseSortOrder(in), in)
	}
}

func TestParseViewMode(t *testing.T) {
	assert.Equal(t, ViewGrid, ParseViewMode("grid"))
	assert.Equal(t, ViewList, ParseViewMode("list"))
	assert.Equal(t, ViewList, ParseViewMode(""))
	assert.Equal(t, ViewList, ParseViewMode("tiles"))
}
