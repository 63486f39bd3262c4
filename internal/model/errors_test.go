package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_CodePredicates(t *testing.T) {
	tests := []struct {
		err  error
		pred func(error) bool
	}{
		{NewEntityNotFound("settlement", "s1"), IsNotFound},
		{NewFormulaTooComplex(12, 10), IsTooComplex},
		{NewCircularDependency([]string{"a", "b", "a"}), IsCircular},
		{NewForbiddenPath("settlement", "/id"), IsForbiddenPath},
		{NewConflict("variable", "v1", 3), IsConflict},
		{NewStoreUnavailable("cache get", errors.New("timeout")), IsStoreUnavailable},
	}

	for _, tt := range tests {
		assert.True(t, tt.pred(tt.err), "%v", tt.err)
		// Predicates see through wrapping.
		wrapped := fmt.Errorf("outer: %w", tt.err)
		assert.True(t, tt.pred(wrapped), "wrapped %v", tt.err)
	}
}

func TestError_CircularNamesPath(t *testing.T) {
	err := NewCircularDependency([]string{"cond:a", "var:b", "cond:a"})
	assert.Contains(t, err.Error(), "cond:a -> var:b -> cond:a")
}

func TestError_StoreUnavailableUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStoreUnavailable("entity load", cause)
	require.ErrorIs(t, err, cause)
}

func TestCodeOf_NonTaxonomyError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}
