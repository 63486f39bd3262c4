package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MaxExpressionDepth bounds expression-tree recursion. Trees deeper than
// this are rejected at decode and validation time with FORMULA_TOO_COMPLEX.
const MaxExpressionDepth = 10

// Node is a sealed interface over the expression-node union.
// Only Literal, VarRef, Operator, and DomainOp implement it.
type Node interface {
	node() // Sealed - only these types implement it
}

// Literal is a constant value: nil, bool, float64, string, or a plain
// []any of such values. Arrays never contain nested operator nodes; an
// array in node position is always literal data (e.g. the right-hand
// side of an "in" test).
type Literal struct {
	Value any
}

func (Literal) node() {}

// VarRef reads a dotted path from the evaluation context.
// A missing path evaluates to nil unless Default is set.
type VarRef struct {
	Path    string
	Default Node // optional, may be nil
}

func (VarRef) node() {}

// Operator is a generic boolean/comparison/arithmetic node.
// The operator vocabulary is closed; see eval for the dispatch table.
type Operator struct {
	Name string
	Args []Node
}

func (Operator) node() {}

// DomainOp is an engine-specific operator such as "settlement.level" or
// "settlement.hasStructureType". Domain operators may require a store
// lookup and are pre-resolved into literals before the core evaluation
// pass. EntityID overrides the context entity when set.
type DomainOp struct {
	Namespace string
	Property  string
	EntityID  string // optional explicit target entity
	Args      []Node
}

func (DomainOp) node() {}

// Name returns the full "namespace.property" operator name.
func (d DomainOp) Name() string {
	return d.Namespace + "." + d.Property
}

// Depth returns the depth of the tree rooted at n. Leaves have depth 1.
func Depth(n Node) int {
	switch v := n.(type) {
	case Literal:
		return 1
	case VarRef:
		if v.Default != nil {
			return 1 + Depth(v.Default)
		}
		return 1
	case Operator:
		return 1 + maxChildDepth(v.Args)
	case DomainOp:
		return 1 + maxChildDepth(v.Args)
	default:
		return 1
	}
}

func maxChildDepth(args []Node) int {
	max := 0
	for _, a := range args {
		if d := Depth(a); d > max {
			max = d
		}
	}
	return max
}

// DecodeNode parses a JSON-shaped expression document into a Node tree.
//
// The node vocabulary:
//   - scalars and arrays decode to Literal
//   - {"var": "path"} or {"var": ["path", default]} decode to VarRef
//   - {"name": args} with a dotted name decodes to DomainOp
//   - {"name": args} otherwise decodes to Operator
//
// Objects with zero or multiple keys are malformed. Trees deeper than
// MaxExpressionDepth are rejected with FORMULA_TOO_COMPLEX.
func DecodeNode(data []byte) (Node, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode expression: %w", err)
	}

	n, err := nodeFromValue(raw)
	if err != nil {
		return nil, err
	}

	if d := Depth(n); d > MaxExpressionDepth {
		return nil, NewFormulaTooComplex(d, MaxExpressionDepth)
	}

	return n, nil
}

// nodeFromValue converts a decoded JSON value into a Node.
func nodeFromValue(v any) (Node, error) {
	switch val := v.(type) {
	case nil, bool, string:
		return Literal{Value: val}, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number out of range: %s", val)
		}
		return Literal{Value: f}, nil
	case []any:
		lit, err := literalSlice(val)
		if err != nil {
			return nil, err
		}
		return Literal{Value: lit}, nil
	case map[string]any:
		return nodeFromObject(val)
	default:
		return nil, fmt.Errorf("unsupported expression value: %T", v)
	}
}

func nodeFromObject(obj map[string]any) (Node, error) {
	if len(obj) != 1 {
		return nil, fmt.Errorf("expression object must have exactly one key, got %d", len(obj))
	}

	var name string
	var rawArgs any
	for k, v := range obj {
		name, rawArgs = k, v
	}

	if name == "var" {
		return varRefFromValue(rawArgs)
	}

	if ns, prop, ok := strings.Cut(name, "."); ok {
		return domainOpFromValue(ns, prop, rawArgs)
	}

	args, err := argNodes(rawArgs)
	if err != nil {
		return nil, fmt.Errorf("operator %q: %w", name, err)
	}
	return Operator{Name: name, Args: args}, nil
}

// domainOpFromValue decodes a domain operator body. The body is either an
// argument list or an object of the form {"id": "...", "args": [...]}
// targeting an explicit entity.
func domainOpFromValue(ns, prop string, raw any) (Node, error) {
	op := DomainOp{Namespace: ns, Property: prop}

	if m, isObj := raw.(map[string]any); isObj {
		id, ok := m["id"].(string)
		if !ok {
			return nil, fmt.Errorf("operator %q: object body requires a string \"id\"", ns+"."+prop)
		}
		op.EntityID = id
		if extra, ok := m["args"]; ok {
			args, err := argNodes(extra)
			if err != nil {
				return nil, fmt.Errorf("operator %q: %w", ns+"."+prop, err)
			}
			op.Args = args
		}
		return op, nil
	}

	args, err := argNodes(raw)
	if err != nil {
		return nil, fmt.Errorf("operator %q: %w", ns+"."+prop, err)
	}
	op.Args = args
	return op, nil
}

func varRefFromValue(raw any) (Node, error) {
	switch val := raw.(type) {
	case string:
		return VarRef{Path: val}, nil
	case []any:
		if len(val) == 0 || len(val) > 2 {
			return nil, fmt.Errorf("var node takes a path and optional default, got %d elements", len(val))
		}
		path, ok := val[0].(string)
		if !ok {
			return nil, fmt.Errorf("var path must be a string, got %T", val[0])
		}
		ref := VarRef{Path: path}
		if len(val) == 2 {
			def, err := nodeFromValue(val[1])
			if err != nil {
				return nil, fmt.Errorf("var default: %w", err)
			}
			ref.Default = def
		}
		return ref, nil
	default:
		return nil, fmt.Errorf("var node requires a string path, got %T", raw)
	}
}

// argNodes decodes operator arguments. JSON allows a single argument to
// appear bare instead of wrapped in an array.
func argNodes(raw any) ([]Node, error) {
	if raw == nil {
		return nil, nil
	}
	if list, ok := raw.([]any); ok {
		args := make([]Node, len(list))
		for i, elem := range list {
			n, err := nodeFromValue(elem)
			if err != nil {
				return nil, fmt.Errorf("arg[%d]: %w", i, err)
			}
			args[i] = n
		}
		return args, nil
	}
	n, err := nodeFromValue(raw)
	if err != nil {
		return nil, err
	}
	return []Node{n}, nil
}

// literalSlice normalizes a decoded JSON array into literal values.
// Nested operator objects inside literal arrays are rejected.
func literalSlice(list []any) ([]any, error) {
	out := make([]any, len(list))
	for i, elem := range list {
		switch v := elem.(type) {
		case nil, bool, string:
			out[i] = v
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("array[%d]: number out of range", i)
			}
			out[i] = f
		case []any:
			inner, err := literalSlice(v)
			if err != nil {
				return nil, err
			}
			out[i] = inner
		default:
			return nil, fmt.Errorf("array[%d]: operator nodes are not allowed inside literal arrays", i)
		}
	}
	return out, nil
}

// EncodeNode serializes a Node tree back to its JSON document form.
// Round-trips with DecodeNode.
func EncodeNode(n Node) ([]byte, error) {
	v, err := nodeToValue(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func nodeToValue(n Node) (any, error) {
	switch v := n.(type) {
	case Literal:
		return v.Value, nil
	case VarRef:
		if v.Default == nil {
			return map[string]any{"var": v.Path}, nil
		}
		def, err := nodeToValue(v.Default)
		if err != nil {
			return nil, err
		}
		return map[string]any{"var": []any{v.Path, def}}, nil
	case Operator:
		args, err := nodeValues(v.Args)
		if err != nil {
			return nil, err
		}
		return map[string]any{v.Name: args}, nil
	case DomainOp:
		args, err := nodeValues(v.Args)
		if err != nil {
			return nil, err
		}
		if v.EntityID != "" {
			body := map[string]any{"id": v.EntityID}
			if len(args) > 0 {
				body["args"] = args
			}
			return map[string]any{v.Name(): body}, nil
		}
		return map[string]any{v.Name(): args}, nil
	default:
		return nil, fmt.Errorf("unknown node type: %T", n)
	}
}

func nodeValues(args []Node) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := nodeToValue(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
