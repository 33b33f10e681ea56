package idgen

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsUnique(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := New()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %q after %d calls", id, i)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestNewIsURLSafe(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := New()
		assert.Len(t, id, DefaultSize)
		assert.Equal(t, id, url.PathEscape(id))
		for _, r := range id {
			assert.Contains(t, alphabet, string(r))
		}
	}
}

func TestNewNClampsSize(t *testing.T) {
	tests := []struct {
		name string
		size int
		want int
	}{
		{name: "zero", size: 0, want: 1},
		{name: "negative", size: -4, want: 1},
		{name: "in range", size: 16, want: 16},
		{name: "full uuid", size: 22, want: 22},
		{name: "too large", size: 64, want: 22},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, NewN(tt.size), tt.want)
		})
	}
}
