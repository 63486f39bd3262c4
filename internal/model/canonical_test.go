package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	b, err := MarshalCanonical(map[string]any{
		"zulu":  1,
		"alpha": 2,
		"mike":  3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mike":3,"zulu":1}`, string(b))
}

func TestMarshalCanonical_AllowsNull(t *testing.T) {
	b, err := MarshalCanonical(map[string]any{"missing": nil})
	require.NoError(t, err)
	assert.Equal(t, `{"missing":null}`, string(b))
}

func TestMarshalCanonical_WholeFloats(t *testing.T) {
	b, err := MarshalCanonical([]any{float64(12000), float64(2.5)})
	require.NoError(t, err)
	assert.Equal(t, `[12000,2.5]`, string(b))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	b, err := MarshalCanonical("a<b&c>d")
	require.NoError(t, err)
	assert.Equal(t, `"a<b&c>d"`, string(b))
}

func TestMarshalCanonical_Deterministic(t *testing.T) {
	obj := map[string]any{
		"name": "Stagfall",
		"tags": []any{"river", "hills"},
		"pop":  float64(12000),
		"meta": map[string]any{"b": true, "a": nil},
	}

	first, err := MarshalCanonical(obj)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestMarshalCanonical_RejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(math.Inf(1))
	require.Error(t, err)

	_, err = MarshalCanonical(math.NaN())
	require.Error(t, err)
}
