package evalctx

import (
	"context"
	"fmt"

	"github.com/emberfall/reckoner/internal/eval"
	"github.com/emberfall/reckoner/internal/model"
	"github.com/emberfall/reckoner/internal/store"
)

// SettlementResolver serves the "settlement" operator namespace from
// entity snapshots.
//
// Properties:
//
//	settlement.level                -> numeric "level" field
//	settlement.hasStructureType(t)  -> whether "structures" contains t
//	settlement.structureCount       -> len("structures")
type SettlementResolver struct {
	entities store.EntityStore
}

// NewSettlementResolver creates the resolver.
func NewSettlementResolver(entities store.EntityStore) *SettlementResolver {
	return &SettlementResolver{entities: entities}
}

// Namespace implements eval.DomainResolver.
func (r *SettlementResolver) Namespace() string { return "settlement" }

// Dependency implements eval.DomainResolver. Both structure properties
// read the same underlying collection.
func (r *SettlementResolver) Dependency(property string) (string, bool) {
	switch property {
	case "hasStructureType", "structureCount":
		return "settlement.structures", true
	case "level":
		return "settlement.level", true
	}
	return "", false
}

// Resolve implements eval.DomainResolver.
func (r *SettlementResolver) Resolve(ctx context.Context, property, entityID string, args []any) (any, error) {
	fields, err := loadFields(ctx, r.entities, "settlement", entityID)
	if err != nil {
		return nil, err
	}

	switch property {
	case "level":
		return fields["level"], nil

	case "hasStructureType":
		if len(args) != 1 {
			return nil, model.NewEvaluationError("settlement.hasStructureType", "requires exactly one argument")
		}
		want, ok := args[0].(string)
		if !ok {
			return nil, model.NewEvaluationError("settlement.hasStructureType",
				fmt.Sprintf("argument must be a string, got %T", args[0]))
		}
		for _, s := range structures(fields) {
			if s == want {
				return true, nil
			}
		}
		return false, nil

	case "structureCount":
		return float64(len(structures(fields))), nil

	default:
		return nil, model.NewEvaluationError("settlement."+property, "unknown property")
	}
}

func structures(fields map[string]any) []string {
	raw, _ := fields["structures"].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// PartyResolver serves the "party" operator namespace.
//
// Properties:
//
//	party.size -> len("members")
type PartyResolver struct {
	entities store.EntityStore
}

// NewPartyResolver creates the resolver.
func NewPartyResolver(entities store.EntityStore) *PartyResolver {
	return &PartyResolver{entities: entities}
}

// Namespace implements eval.DomainResolver.
func (r *PartyResolver) Namespace() string { return "party" }

// Dependency implements eval.DomainResolver.
func (r *PartyResolver) Dependency(property string) (string, bool) {
	if property == "size" {
		return "party.members", true
	}
	return "", false
}

// Resolve implements eval.DomainResolver.
func (r *PartyResolver) Resolve(ctx context.Context, property, entityID string, _ []any) (any, error) {
	if property != "size" {
		return nil, model.NewEvaluationError("party."+property, "unknown property")
	}
	fields, err := loadFields(ctx, r.entities, "party", entityID)
	if err != nil {
		return nil, err
	}
	members, _ := fields["members"].([]any)
	return float64(len(members)), nil
}

func loadFields(ctx context.Context, entities store.EntityStore, entityType, entityID string) (map[string]any, error) {
	snap, err := entities.Load(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return snap.Fields()
}

// DefaultRegistry wires the built-in domain resolvers over one entity
// store.
func DefaultRegistry(entities store.EntityStore) *eval.Registry {
	return eval.NewRegistry(
		NewSettlementResolver(entities),
		NewPartyResolver(entities),
	)
}
