package eval

import (
	"context"
	"fmt"
	"sort"

	"github.com/emberfall/reckoner/internal/model"
)

// DomainResolver resolves one namespace of domain operators. Resolution
// may require a store lookup, which is why domain operators are handled
// in a separate pre-pass rather than inside the synchronous core.
type DomainResolver interface {
	// Namespace returns the operator namespace (e.g. "settlement").
	Namespace() string

	// Resolve computes the operator value for the target entity.
	// entityID is the explicit target when set, otherwise the context
	// entity the caller supplied.
	Resolve(ctx context.Context, property, entityID string, args []any) (any, error)

	// Dependency maps a property to its canonical dependency name for
	// static extraction (e.g. hasStructureType and structureCount both
	// read "settlement.structures"). ok is false for unknown properties.
	Dependency(property string) (dep string, ok bool)
}

// Registry holds domain resolvers by namespace. The registry is built
// once at engine construction and read-only afterwards.
type Registry struct {
	resolvers map[string]DomainResolver
}

// NewRegistry creates a registry over the given resolvers.
func NewRegistry(resolvers ...DomainResolver) *Registry {
	m := make(map[string]DomainResolver, len(resolvers))
	for _, r := range resolvers {
		m[r.Namespace()] = r
	}
	return &Registry{resolvers: m}
}

// Resolver returns the resolver for a namespace, if registered.
func (r *Registry) Resolver(namespace string) (DomainResolver, bool) {
	if r == nil {
		return nil, false
	}
	res, ok := r.resolvers[namespace]
	return res, ok
}

// ResolveDomainOps pre-evaluates every domain-operator subtree into a
// literal, depth-first, so the core evaluator only ever sees resolved
// operands. defaultEntityID is the context entity used when an operator
// does not name an explicit target.
//
// Operator arguments are themselves resolved and then evaluated against
// evalCtx before the resolver is called, so nested domain operators and
// variable references inside arguments work.
func ResolveDomainOps(ctx context.Context, n model.Node, defaultEntityID string, reg *Registry, evalCtx Context) (model.Node, error) {
	switch v := n.(type) {
	case model.Literal:
		return v, nil

	case model.VarRef:
		if v.Default == nil {
			return v, nil
		}
		def, err := ResolveDomainOps(ctx, v.Default, defaultEntityID, reg, evalCtx)
		if err != nil {
			return nil, err
		}
		return model.VarRef{Path: v.Path, Default: def}, nil

	case model.Operator:
		args, err := resolveChildren(ctx, v.Args, defaultEntityID, reg, evalCtx)
		if err != nil {
			return nil, err
		}
		return model.Operator{Name: v.Name, Args: args}, nil

	case model.DomainOp:
		res, ok := reg.Resolver(v.Namespace)
		if !ok {
			return nil, model.NewEvaluationError(v.Name(), "no resolver registered for namespace")
		}

		args, err := resolveChildren(ctx, v.Args, defaultEntityID, reg, evalCtx)
		if err != nil {
			return nil, err
		}
		argVals := make([]any, len(args))
		for i, a := range args {
			val, err := Evaluate(a, evalCtx)
			if err != nil {
				return nil, fmt.Errorf("resolve %s arg %d: %w", v.Name(), i, err)
			}
			argVals[i] = val
		}

		entityID := v.EntityID
		if entityID == "" {
			entityID = defaultEntityID
		}

		val, err := res.Resolve(ctx, v.Property, entityID, argVals)
		if err != nil {
			return nil, fmt.Errorf("resolve %s for entity %q: %w", v.Name(), entityID, err)
		}
		return model.Literal{Value: val}, nil

	default:
		return nil, model.NewEvaluationError(fmt.Sprintf("%T", n), "unknown node type")
	}
}

func resolveChildren(ctx context.Context, args []model.Node, defaultEntityID string, reg *Registry, evalCtx Context) ([]model.Node, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]model.Node, len(args))
	for i, a := range args {
		r, err := ResolveDomainOps(ctx, a, defaultEntityID, reg, evalCtx)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// Reads statically extracts the set of variable/property paths an
// expression reads, without evaluating anything. Domain operators map to
// their canonical dependency names through the registry; operators with
// no registered resolver fall back to their literal "namespace.property"
// name. Extraction is best-effort static analysis: unknown nodes
// contribute nothing.
func Reads(n model.Node, reg *Registry) []string {
	seen := map[string]bool{}
	collectReads(n, reg, seen)

	out := make([]string, 0, len(seen))
	for path := range seen {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func collectReads(n model.Node, reg *Registry, seen map[string]bool) {
	switch v := n.(type) {
	case model.Literal:
		// No reads.
	case model.VarRef:
		seen[v.Path] = true
		if v.Default != nil {
			collectReads(v.Default, reg, seen)
		}
	case model.Operator:
		for _, a := range v.Args {
			collectReads(a, reg, seen)
		}
	case model.DomainOp:
		dep := v.Name()
		if res, ok := reg.Resolver(v.Namespace); ok {
			if canonical, ok := res.Dependency(v.Property); ok {
				dep = canonical
			}
		}
		seen[dep] = true
		for _, a := range v.Args {
			collectReads(a, reg, seen)
		}
	}
}

// ReadsFromJSON extracts reads from a raw expression document.
// Malformed documents return an empty set: extraction is best-effort
// static analysis, not a correctness gate.
func ReadsFromJSON(data []byte, reg *Registry) []string {
	n, err := model.DecodeNode(data)
	if err != nil {
		return nil
	}
	return Reads(n, reg)
}
