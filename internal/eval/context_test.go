package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextLookup(t *testing.T) {
	ctx := Context{
		"population": float64(12000),
		"settlement": map[string]any{
			"name": "Stagfall",
			"coords": map[string]any{
				"x": float64(4),
			},
		},
		"settlement.terrain": "hills",
	}

	tests := []struct {
		path   string
		want   any
		wantOK bool
	}{
		{"population", float64(12000), true},
		{"settlement.name", "Stagfall", true},
		{"settlement.coords.x", float64(4), true},
		{"settlement.terrain", "hills", true},
		{"settlement.missing", nil, false},
		{"population.nested", nil, false},
		{"absent", nil, false},
		{"", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			v, ok := ctx.Lookup(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestContextLookup_NilContext(t *testing.T) {
	var ctx Context
	v, ok := ctx.Lookup("anything")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestContextMerge(t *testing.T) {
	base := Context{"a": 1, "b": 2}
	merged := base.Merge(Context{"b": 20, "c": 30})

	assert.Equal(t, Context{"a": 1, "b": 20, "c": 30}, merged)
	assert.Equal(t, Context{"a": 1, "b": 2}, base)
}
