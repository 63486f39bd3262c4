package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfall/reckoner/internal/model"
)

func mustNode(t *testing.T, doc string) model.Node {
	t.Helper()
	n, err := model.DecodeNode([]byte(doc))
	require.NoError(t, err)
	return n
}

func TestEvaluate_Literal(t *testing.T) {
	v, err := Evaluate(mustNode(t, `42`), nil)
	require.NoError(t, err)
	assert.Equal(t, float64(42), v)
}

func TestEvaluate_VarLookup(t *testing.T) {
	ctx := Context{"population": float64(12000)}

	v, err := Evaluate(mustNode(t, `{"var": "population"}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(12000), v)
}

func TestEvaluate_MissingVarIsNilNotError(t *testing.T) {
	v, err := Evaluate(mustNode(t, `{"var": "nope"}`), Context{})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEvaluate_VarDefault(t *testing.T) {
	v, err := Evaluate(mustNode(t, `{"var": ["level", 1]}`), Context{})
	require.NoError(t, err)
	assert.Equal(t, float64(1), v)
}

func TestEvaluate_NestedPathLookup(t *testing.T) {
	ctx := Context{"settlement": map[string]any{"name": "Stagfall"}}

	v, err := Evaluate(mustNode(t, `{"var": "settlement.name"}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, "Stagfall", v)
}

func TestEvaluate_FlatKeyWinsOverNested(t *testing.T) {
	ctx := Context{
		"settlement.structures": []any{"temple"},
		"settlement":            map[string]any{"structures": []any{"mill"}},
	}

	v, err := Evaluate(mustNode(t, `{"var": "settlement.structures"}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"temple"}, v)
}

func TestEvaluate_Comparison(t *testing.T) {
	ctx := Context{"population": float64(12000)}

	tests := []struct {
		doc  string
		want bool
	}{
		{`{">": [{"var": "population"}, 10000]}`, true},
		{`{">": [{"var": "population"}, 20000]}`, false},
		{`{">=": [{"var": "population"}, 12000]}`, true},
		{`{"<": [{"var": "population"}, 20000]}`, true},
		{`{"<=": [{"var": "population"}, 11999]}`, false},
		{`{"==": [{"var": "population"}, 12000]}`, true},
		{`{"!=": [{"var": "population"}, 12000]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			v, err := Evaluate(mustNode(t, tt.doc), ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestEvaluate_NullOrdersBelowEverything(t *testing.T) {
	ctx := Context{} // "population" missing -> nil

	tests := []struct {
		doc  string
		want bool
	}{
		{`{"<": [{"var": "population"}, 0]}`, true},
		{`{"<": [{"var": "population"}, -100]}`, true},
		{`{">": [{"var": "population"}, 10000]}`, false},
		{`{"<": [{"var": "population"}, "anything"]}`, true},
		{`{"==": [{"var": "population"}, null]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			v, err := Evaluate(mustNode(t, tt.doc), ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestEvaluate_ArithmeticOnNullYieldsNull(t *testing.T) {
	for _, doc := range []string{
		`{"+": [{"var": "missing"}, 5]}`,
		`{"*": [3, {"var": "missing"}]}`,
		`{"/": [{"var": "missing"}, 2]}`,
	} {
		v, err := Evaluate(mustNode(t, doc), Context{})
		require.NoError(t, err, doc)
		assert.Nil(t, v, doc)
	}
}

func TestEvaluate_Arithmetic(t *testing.T) {
	ctx := Context{"unrest": float64(4)}

	tests := []struct {
		doc  string
		want float64
	}{
		{`{"+": [1, 2, 3]}`, 6},
		{`{"-": [10, {"var": "unrest"}]}`, 6},
		{`{"-": [5]}`, -5},
		{`{"*": [2, 3, 4]}`, 24},
		{`{"/": [9, 2]}`, 4.5},
		{`{"%": [9, 4]}`, 1},
		{`{"min": [7, {"var": "unrest"}, 9]}`, 4},
		{`{"max": [7, {"var": "unrest"}, 9]}`, 9},
	}

	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			v, err := Evaluate(mustNode(t, tt.doc), ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestEvaluate_DivisionByZero(t *testing.T) {
	_, err := Evaluate(mustNode(t, `{"/": [1, 0]}`), nil)
	require.Error(t, err)
	assert.Equal(t, model.CodeEvaluationError, model.CodeOf(err))
}

func TestEvaluate_BoolOps(t *testing.T) {
	ctx := Context{"besieged": true, "population": float64(12000)}

	tests := []struct {
		doc  string
		want bool
	}{
		{`{"and": [{"var": "besieged"}, {">": [{"var": "population"}, 10]}]}`, true},
		{`{"and": [{"var": "besieged"}, false]}`, false},
		{`{"or": [false, {"var": "besieged"}]}`, true},
		{`{"or": [false, null]}`, false},
		{`{"!": {"var": "besieged"}}`, false},
		{`{"!": {"var": "missing"}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			v, err := Evaluate(mustNode(t, tt.doc), ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestEvaluate_If(t *testing.T) {
	ctx := Context{"unrest": float64(7)}

	v, err := Evaluate(mustNode(t, `{"if": [{">": [{"var": "unrest"}, 5]}, "rioting", "calm"]}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, "rioting", v)

	v, err = Evaluate(mustNode(t, `{"if": [{">": [{"var": "unrest"}, 10]}, "rioting", {">": [{"var": "unrest"}, 5]}, "uneasy", "calm"]}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, "uneasy", v)
}

func TestEvaluate_In(t *testing.T) {
	ctx := Context{"terrain": "hills", "structures": []any{"temple", "mill"}}

	v, err := Evaluate(mustNode(t, `{"in": [{"var": "terrain"}, ["plains", "hills"]]}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Evaluate(mustNode(t, `{"in": ["shrine", {"var": "structures"}]}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestEvaluate_IncompatibleOrdering(t *testing.T) {
	_, err := Evaluate(mustNode(t, `{">": ["abc", 5]}`), nil)
	require.Error(t, err)
	assert.Equal(t, model.CodeEvaluationError, model.CodeOf(err))
}

func TestEvaluate_UnknownOperator(t *testing.T) {
	_, err := Evaluate(mustNode(t, `{"frobnicate": [1]}`), nil)
	require.Error(t, err)
	assert.Equal(t, model.CodeEvaluationError, model.CodeOf(err))
}

func TestEvaluate_UnresolvedDomainOpFails(t *testing.T) {
	_, err := Evaluate(mustNode(t, `{"settlement.level": []}`), nil)
	require.Error(t, err)
	assert.Equal(t, model.CodeEvaluationError, model.CodeOf(err))
	assert.Contains(t, err.Error(), "pre-resolved")
}

func TestEvaluateTraced_RecordsSubValues(t *testing.T) {
	ctx := Context{"population": float64(12000)}

	v, trace, err := EvaluateTraced(mustNode(t, `{">": [{"var": "population"}, 10000]}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, true, v)
	require.NotNil(t, trace)
	assert.Equal(t, float64(12000), trace.SubValues["population"])
	assert.Equal(t, true, trace.Value)
	assert.Contains(t, trace.Formula, `"var":"population"`)
}
