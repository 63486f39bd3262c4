package engine

import (
	"context"

	"github.com/emberfall/reckoner/internal/cache"
	"github.com/emberfall/reckoner/internal/evalctx"
	"github.com/emberfall/reckoner/internal/graph"
	"github.com/emberfall/reckoner/internal/model"
)

// Invalidate fans a mutation out to the cache entries it stales, using
// the dependency graph to stay as narrow as possible.
//
// Entity and variable changes delete exact keys for every node reachable
// by reverse read edges from the changed node. Definition changes are
// structural: the graph itself is stale, so it is dropped and the
// affected computed-field entries are removed by wildcard instead -
// deliberate over-invalidation, since without the old graph there is no
// way to enumerate the exact audience of the previous definition.
//
// Cache failures are logged and ignored; invalidation is idempotent and
// the next mutation retries the same deletes.
func (e *Engine) Invalidate(ctx context.Context, change model.Change) error {
	switch change.Kind {
	case model.ConditionDefinitionChanged:
		return e.invalidateStructural(ctx, change)
	case model.VariableChanged:
		return e.invalidateVariable(ctx, change)
	case model.EntityChanged:
		return e.invalidateEntity(ctx, change)
	default:
		return model.NewEvaluationError("invalidate", "unknown change kind "+string(change.Kind))
	}
}

func (e *Engine) invalidateStructural(ctx context.Context, change model.Change) error {
	e.dropGraph(change.CampaignID, change.BranchID)

	pattern := cache.BranchPattern(change.CampaignID, change.BranchID)
	if change.EntityType != "" {
		pattern = cache.EntityTypePattern(change.CampaignID, change.BranchID, change.EntityType)
	}
	n1 := e.cacheDeletePattern(ctx, pattern)
	n2 := e.cacheDeletePattern(ctx, cache.CampaignVariablePattern(change.CampaignID))

	e.logger.Debug("structural invalidation",
		"campaign_id", change.CampaignID, "branch_id", change.BranchID,
		"pattern", pattern, "removed", n1+n2)
	return nil
}

func (e *Engine) invalidateVariable(ctx context.Context, change model.Change) error {
	e.cacheDelete(ctx, cache.VariableValueKey(change.CampaignID, change.ScopeID, change.Key))

	g, err := e.Graph(ctx, change.CampaignID, change.BranchID)
	if err != nil {
		return err
	}
	// Class-scoped conditions anchor their reads on the entity type, not
	// the concrete entity, so both anchors feed the fan-out. The changed
	// variable's scope ID pins class-scoped dependents to a single entity.
	keys := []string{graph.VariableNodeKey(change.ScopeID, change.Key)}
	if entityType := evalctx.EntityTypeForScope(change.Scope); entityType != "" {
		keys = append(keys, graph.VariableNodeKey(entityType, change.Key))
	}
	deps := g.Dependents(keys...)

	// A campaign variable feeds every entity context through the fallback
	// edges, so no single entity pins its class-scoped dependents; those
	// fall back to the type wildcard in deleteDependents.
	subjectID := change.ScopeID
	if change.Scope == model.ScopeCampaign {
		subjectID = ""
	}
	e.deleteDependents(ctx, change.CampaignID, change.BranchID, subjectID, deps)
	return nil
}

func (e *Engine) invalidateEntity(ctx context.Context, change model.Change) error {
	e.cacheDelete(ctx, cache.ComputedFieldsKey(
		change.CampaignID, change.BranchID, change.EntityType, change.EntityID))

	g, err := e.Graph(ctx, change.CampaignID, change.BranchID)
	if err != nil {
		return err
	}
	deps := g.DependentsOfScope(change.EntityID)
	deps = append(deps, g.DependentsOfScope(change.EntityType)...)
	e.deleteDependents(ctx, change.CampaignID, change.BranchID, change.EntityID, deps)
	return nil
}

// deleteDependents translates graph nodes into cache deletes. Exact keys
// whenever the node or the changed subject pins down a single entity;
// the class-scoped wildcard is the fallback of last resort.
func (e *Engine) deleteDependents(ctx context.Context, campaignID, branchID, subjectID string, deps []graph.Node) {
	for _, n := range deps {
		switch n.Kind {
		case graph.KindVariable:
			e.cacheDelete(ctx, cache.VariableValueKey(campaignID, n.Scope, n.Name))
		case graph.KindCondition:
			switch {
			case n.EntityID != "":
				e.cacheDelete(ctx, cache.ComputedFieldsKey(campaignID, branchID, n.EntityType, n.EntityID))
			case subjectID != "":
				e.cacheDelete(ctx, cache.ComputedFieldsKey(campaignID, branchID, n.EntityType, subjectID))
			default:
				e.cacheDeletePattern(ctx, cache.EntityTypePattern(campaignID, branchID, n.EntityType))
			}
		}
	}
}

func (e *Engine) cacheDelete(ctx context.Context, key string) {
	if err := e.cache.Delete(ctx, key); err != nil {
		e.logger.Warn("cache delete failed", "key", key, "error", err)
	}
}

func (e *Engine) cacheDeletePattern(ctx context.Context, pattern string) int {
	n, err := e.cache.DeletePattern(ctx, pattern)
	if err != nil {
		e.logger.Warn("cache pattern delete failed", "pattern", pattern, "error", err)
		return 0
	}
	return n
}
