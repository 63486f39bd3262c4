package eval

import (
	"github.com/emberfall/reckoner/internal/model"
)

// Trace is a structured explanation of one evaluation: the formula, the
// sub-values resolved while evaluating it, and the final result. Used by
// variable debugging surfaces and golden-trace tests.
type Trace struct {
	Formula   string         `json:"formula"`
	SubValues map[string]any `json:"sub_values"`
	Value     any            `json:"value"`
}

func (t *Trace) recordRead(path string, value any) {
	if t.SubValues == nil {
		t.SubValues = map[string]any{}
	}
	t.SubValues[path] = value
}

// CanonicalMap returns the trace as a plain map for canonical JSON
// serialization (golden files).
func (t *Trace) CanonicalMap() map[string]any {
	sub := make(map[string]any, len(t.SubValues))
	for k, v := range t.SubValues {
		sub[k] = v
	}
	return map[string]any{
		"formula":    t.Formula,
		"sub_values": sub,
		"value":      t.Value,
	}
}

// EvaluateTraced evaluates a literal-only tree and records a trace.
// Same contract as Evaluate otherwise.
func EvaluateTraced(n model.Node, ctx Context) (any, *Trace, error) {
	if d := model.Depth(n); d > model.MaxExpressionDepth {
		return nil, nil, model.NewFormulaTooComplex(d, model.MaxExpressionDepth)
	}

	formula, err := model.EncodeNode(n)
	if err != nil {
		return nil, nil, err
	}

	trace := &Trace{Formula: string(formula), SubValues: map[string]any{}}
	e := &evaluator{ctx: ctx, trace: trace}

	val, err := e.eval(n)
	if err != nil {
		return nil, nil, err
	}
	trace.Value = val
	return val, trace, nil
}
