package eval

import (
	"fmt"
	"math"
	"strings"

	"github.com/emberfall/reckoner/internal/model"
)

// Evaluate runs the synchronous core pass over a literal-only tree.
// It is a pure function: no I/O, no suspension. Domain operators must be
// resolved first (see ResolveDomainOps); encountering one here is an
// EVALUATION_ERROR.
//
// Missing context paths evaluate to nil. Trees deeper than
// model.MaxExpressionDepth fail with FORMULA_TOO_COMPLEX before any
// operator runs.
func Evaluate(n model.Node, ctx Context) (any, error) {
	if d := model.Depth(n); d > model.MaxExpressionDepth {
		return nil, model.NewFormulaTooComplex(d, model.MaxExpressionDepth)
	}
	e := &evaluator{ctx: ctx}
	return e.eval(n)
}

type evaluator struct {
	ctx   Context
	trace *Trace
}

func (e *evaluator) eval(n model.Node) (any, error) {
	switch v := n.(type) {
	case model.Literal:
		return v.Value, nil

	case model.VarRef:
		val, ok := e.ctx.Lookup(v.Path)
		if !ok && v.Default != nil {
			def, err := e.eval(v.Default)
			if err != nil {
				return nil, err
			}
			e.record(v.Path, def)
			return def, nil
		}
		e.record(v.Path, val)
		return val, nil

	case model.Operator:
		return e.evalOperator(v)

	case model.DomainOp:
		return nil, model.NewEvaluationError(v.Name(), "domain operator was not pre-resolved")

	default:
		return nil, model.NewEvaluationError(fmt.Sprintf("%T", n), "unknown node type")
	}
}

func (e *evaluator) evalOperator(op model.Operator) (any, error) {
	switch op.Name {
	case "and":
		for _, arg := range op.Args {
			v, err := e.eval(arg)
			if err != nil {
				return nil, err
			}
			if !Truthy(v) {
				return false, nil
			}
		}
		return true, nil

	case "or":
		for _, arg := range op.Args {
			v, err := e.eval(arg)
			if err != nil {
				return nil, err
			}
			if Truthy(v) {
				return true, nil
			}
		}
		return false, nil

	case "!", "not":
		if len(op.Args) != 1 {
			return nil, model.NewEvaluationError(op.Name, "requires exactly one operand")
		}
		v, err := e.eval(op.Args[0])
		if err != nil {
			return nil, err
		}
		return !Truthy(v), nil

	case "if":
		return e.evalIf(op)

	case "==", "!=", ">", ">=", "<", "<=":
		return e.evalComparison(op)

	case "+", "-", "*", "/", "%", "min", "max":
		return e.evalArithmetic(op)

	case "in":
		return e.evalIn(op)

	default:
		return nil, model.NewEvaluationError(op.Name, "unknown operator")
	}
}

// evalIf handles [cond, then, else] and chained
// [cond1, val1, cond2, val2, ..., else] forms.
func (e *evaluator) evalIf(op model.Operator) (any, error) {
	args := op.Args
	for len(args) >= 2 {
		cond, err := e.eval(args[0])
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return e.eval(args[1])
		}
		args = args[2:]
	}
	if len(args) == 1 {
		return e.eval(args[0])
	}
	return nil, nil
}

func (e *evaluator) evalComparison(op model.Operator) (any, error) {
	if len(op.Args) != 2 {
		return nil, model.NewEvaluationError(op.Name, "requires exactly two operands")
	}
	a, err := e.eval(op.Args[0])
	if err != nil {
		return nil, err
	}
	b, err := e.eval(op.Args[1])
	if err != nil {
		return nil, err
	}

	switch op.Name {
	case "==":
		return equal(a, b), nil
	case "!=":
		return !equal(a, b), nil
	}

	cmp, ok := compare(a, b)
	if !ok {
		return nil, model.NewEvaluationError(op.Name,
			fmt.Sprintf("cannot order %T against %T", a, b))
	}

	switch op.Name {
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	case "<":
		return cmp < 0, nil
	default: // "<="
		return cmp <= 0, nil
	}
}

func (e *evaluator) evalArithmetic(op model.Operator) (any, error) {
	if len(op.Args) == 0 {
		return nil, model.NewEvaluationError(op.Name, "requires at least one operand")
	}

	vals := make([]any, len(op.Args))
	for i, arg := range op.Args {
		v, err := e.eval(arg)
		if err != nil {
			return nil, err
		}
		// Numeric ops on null yield null, not an error.
		if v == nil {
			return nil, nil
		}
		vals[i] = v
	}

	nums := make([]float64, len(vals))
	for i, v := range vals {
		f, ok := asNumber(v)
		if !ok {
			return nil, model.NewEvaluationError(op.Name,
				fmt.Sprintf("operand %d is not a number (%T)", i, v))
		}
		nums[i] = f
	}

	switch op.Name {
	case "+":
		sum := 0.0
		for _, f := range nums {
			sum += f
		}
		return sum, nil
	case "-":
		if len(nums) == 1 {
			return -nums[0], nil
		}
		acc := nums[0]
		for _, f := range nums[1:] {
			acc -= f
		}
		return acc, nil
	case "*":
		acc := 1.0
		for _, f := range nums {
			acc *= f
		}
		return acc, nil
	case "/":
		if len(nums) != 2 {
			return nil, model.NewEvaluationError(op.Name, "requires exactly two operands")
		}
		if nums[1] == 0 {
			return nil, model.NewEvaluationError(op.Name, "division by zero")
		}
		return nums[0] / nums[1], nil
	case "%":
		if len(nums) != 2 {
			return nil, model.NewEvaluationError(op.Name, "requires exactly two operands")
		}
		if nums[1] == 0 {
			return nil, model.NewEvaluationError(op.Name, "division by zero")
		}
		return math.Mod(nums[0], nums[1]), nil
	case "min":
		acc := nums[0]
		for _, f := range nums[1:] {
			acc = math.Min(acc, f)
		}
		return acc, nil
	default: // "max"
		acc := nums[0]
		for _, f := range nums[1:] {
			acc = math.Max(acc, f)
		}
		return acc, nil
	}
}

func (e *evaluator) evalIn(op model.Operator) (any, error) {
	if len(op.Args) != 2 {
		return nil, model.NewEvaluationError("in", "requires exactly two operands")
	}
	needle, err := e.eval(op.Args[0])
	if err != nil {
		return nil, err
	}
	haystack, err := e.eval(op.Args[1])
	if err != nil {
		return nil, err
	}

	switch hs := haystack.(type) {
	case []any:
		for _, elem := range hs {
			if equal(needle, elem) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := needle.(string)
		if !ok {
			return false, nil
		}
		return strings.Contains(hs, s), nil
	case nil:
		return false, nil
	default:
		return nil, model.NewEvaluationError("in",
			fmt.Sprintf("second operand must be an array or string, got %T", haystack))
	}
}

func (e *evaluator) record(path string, value any) {
	if e.trace != nil {
		e.trace.recordRead(path, value)
	}
}

// Truthy reports the boolean interpretation of a value:
// nil, false, zero, empty string, and empty arrays are false.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	default:
		if f, ok := asNumber(v); ok {
			return f != 0
		}
		return true
	}
}

// asNumber coerces numeric types to float64.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// equal is deep equality with numeric coercion. nil equals only nil.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := asNumber(a); ok {
		if fb, ok := asNumber(b); ok {
			return fa == fb
		}
		return false
	}
	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		return ok && va == vb
	case bool:
		vb, ok := b.(bool)
		return ok && va == vb
	case []any:
		vb, ok := b.([]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !equal(va[i], vb[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// compare orders two values. nil is less than any defined value; numbers
// order numerically, strings lexicographically, bools false-before-true.
// Mixed defined types do not order.
func compare(a, b any) (int, bool) {
	if a == nil && b == nil {
		return 0, true
	}
	if a == nil {
		return -1, true
	}
	if b == nil {
		return 1, true
	}

	if fa, ok := asNumber(a); ok {
		fb, ok := asNumber(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}

	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case sa < sb:
			return -1, true
		case sa > sb:
			return 1, true
		default:
			return 0, true
		}
	}

	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case ba == bb:
			return 0, true
		case !ba:
			return -1, true
		default:
			return 1, true
		}
	}

	return 0, false
}
