package engine

import (
	"context"
	"encoding/json"

	"github.com/emberfall/reckoner/internal/cache"
	"github.com/emberfall/reckoner/internal/eval"
	"github.com/emberfall/reckoner/internal/evalctx"
	"github.com/emberfall/reckoner/internal/model"
)

// EvaluateComputedFields evaluates every condition applying to one entity
// and returns the computed fields keyed by condition name. Results are
// cached until invalidation; a cache failure is treated as a miss, never
// an error.
//
// A condition whose expression fails at runtime contributes a null field
// and a warning log. Degradation stays invisible to callers beyond the
// null.
func (e *Engine) EvaluateComputedFields(ctx context.Context, campaignID, branchID, entityType, entityID string) (map[string]any, error) {
	key := cache.ComputedFieldsKey(campaignID, branchID, entityType, entityID)
	if data, ok := e.cacheGet(ctx, key); ok {
		var out map[string]any
		if err := json.Unmarshal(data, &out); err == nil {
			return out, nil
		}
		e.logger.Warn("computed fields: undecodable cache entry, recomputing", "key", key)
	}

	conds, err := e.store.ListConditions(ctx, campaignID, branchID)
	if err != nil {
		return nil, err
	}

	evalCtx, err := e.ctxb.Build(ctx, campaignID, entityType, entityID, nil)
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	for _, c := range conds {
		if c.EntityType != entityType {
			continue
		}
		if c.EntityID != "" && c.EntityID != entityID {
			continue
		}

		val, err := e.evalExpression(ctx, c.Expression, entityID, evalCtx)
		if err != nil {
			e.logger.Warn("condition evaluation failed, reporting null",
				"condition_id", c.ID, "name", c.Name,
				"entity_type", entityType, "entity_id", entityID, "error", err)
			val = nil
		}
		out[c.Name] = val
	}

	if data, err := model.MarshalCanonical(out); err == nil {
		e.cacheSet(ctx, key, data)
	}
	return out, nil
}

// EvaluateVariable evaluates one variable. Stored variables return their
// value directly. Derived variables evaluate their formula against the
// scope's context and return a structured trace; extra overlays the
// context and bypasses the value cache.
func (e *Engine) EvaluateVariable(ctx context.Context, variableID string, extra eval.Context) (any, *eval.Trace, error) {
	v, err := e.store.GetVariable(ctx, variableID)
	if err != nil {
		return nil, nil, err
	}
	if v.DeletedAt != nil {
		return nil, nil, model.NewEntityNotFound("state_variable", variableID)
	}
	if !v.IsDerived() {
		return v.Value, nil, nil
	}

	key := cache.VariableValueKey(v.CampaignID, v.ScopeID, v.Key)
	if extra == nil {
		if data, ok := e.cacheGet(ctx, key); ok {
			var val any
			if err := json.Unmarshal(data, &val); err == nil {
				return val, nil, nil
			}
		}
	}

	entityType := evalctx.EntityTypeForScope(v.Scope)
	evalCtx, err := e.ctxb.Build(ctx, v.CampaignID, entityType, v.ScopeID, extra)
	if err != nil {
		return nil, nil, err
	}

	resolved, err := eval.ResolveDomainOps(ctx, v.Formula, v.ScopeID, e.reg, evalCtx)
	if err != nil {
		return nil, nil, err
	}
	val, trace, err := eval.EvaluateTraced(resolved, evalCtx)
	if err != nil {
		return nil, nil, err
	}

	if extra == nil {
		if data, err := model.MarshalCanonical(val); err == nil {
			e.cacheSet(ctx, key, data)
		}
	}
	return val, trace, nil
}

// evalExpression runs the two evaluation passes: resolve domain
// operators, then the pure core.
func (e *Engine) evalExpression(ctx context.Context, n model.Node, entityID string, evalCtx eval.Context) (any, error) {
	resolved, err := eval.ResolveDomainOps(ctx, n, entityID, e.reg, evalCtx)
	if err != nil {
		return nil, err
	}
	return eval.Evaluate(resolved, evalCtx)
}

// cacheGet treats every cache failure as a miss.
func (e *Engine) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	data, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("cache get failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return data, ok
}

// cacheSet logs and moves on when the cache rejects a write.
func (e *Engine) cacheSet(ctx context.Context, key string, data []byte) {
	if err := e.cache.Set(ctx, key, data, e.ttl); err != nil {
		e.logger.Warn("cache set failed, continuing uncached", "key", key, "error", err)
	}
}
