package engine

import (
	"context"

	"github.com/emberfall/reckoner/internal/model"
)

// Definition mutations validate first, write second, invalidate last.
// Validation failures (cycles, depth, forbidden paths) block the write
// entirely; the store is never left holding a definition the graph
// would reject.

// CreateCondition validates and stores a new condition.
func (e *Engine) CreateCondition(ctx context.Context, c *model.Condition) error {
	if err := e.ValidateCondition(ctx, c); err != nil {
		return err
	}
	if err := e.store.SaveCondition(ctx, c); err != nil {
		return err
	}
	return e.Invalidate(ctx, definitionChange(c.CampaignID, c.BranchID, c.EntityType))
}

// UpdateCondition validates and replaces a condition definition.
func (e *Engine) UpdateCondition(ctx context.Context, c *model.Condition) error {
	if err := e.ValidateCondition(ctx, c); err != nil {
		return err
	}
	if err := e.store.UpdateCondition(ctx, c); err != nil {
		return err
	}
	return e.Invalidate(ctx, definitionChange(c.CampaignID, c.BranchID, c.EntityType))
}

// DeleteCondition soft-deletes a condition.
func (e *Engine) DeleteCondition(ctx context.Context, id string) error {
	c, err := e.store.GetCondition(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.DeleteCondition(ctx, id); err != nil {
		return err
	}
	return e.Invalidate(ctx, definitionChange(c.CampaignID, c.BranchID, c.EntityType))
}

// CreateEffect validates and stores a new effect.
func (e *Engine) CreateEffect(ctx context.Context, ef *model.Effect) error {
	if err := e.ValidateEffect(ctx, ef); err != nil {
		return err
	}
	if err := e.store.SaveEffect(ctx, ef); err != nil {
		return err
	}
	return e.Invalidate(ctx, definitionChange(ef.CampaignID, ef.BranchID, ef.EntityType))
}

// UpdateEffect validates and replaces an effect definition.
func (e *Engine) UpdateEffect(ctx context.Context, ef *model.Effect) error {
	if err := e.ValidateEffect(ctx, ef); err != nil {
		return err
	}
	if err := e.store.UpdateEffect(ctx, ef); err != nil {
		return err
	}
	return e.Invalidate(ctx, definitionChange(ef.CampaignID, ef.BranchID, ef.EntityType))
}

// DeleteEffect soft-deletes an effect.
func (e *Engine) DeleteEffect(ctx context.Context, id string) error {
	ef, err := e.store.GetEffect(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.DeleteEffect(ctx, id); err != nil {
		return err
	}
	return e.Invalidate(ctx, definitionChange(ef.CampaignID, ef.BranchID, ef.EntityType))
}

// CreateVariable validates and stores a new variable. branchID scopes
// the invalidation fan-out; variables themselves are branch-agnostic.
func (e *Engine) CreateVariable(ctx context.Context, branchID string, v *model.StateVariable) error {
	if err := e.ValidateVariable(ctx, v); err != nil {
		return err
	}
	if err := e.store.SaveVariable(ctx, v); err != nil {
		return err
	}
	if v.IsDerived() {
		// A new formula changes the graph shape.
		return e.Invalidate(ctx, definitionChange(v.CampaignID, branchID, ""))
	}
	e.dropGraph(v.CampaignID, branchID)
	return e.Invalidate(ctx, variableChange(v, branchID))
}

// UpdateVariable writes a new value or formula under optimistic
// concurrency; a version conflict surfaces to the caller unretried.
func (e *Engine) UpdateVariable(ctx context.Context, branchID string, v *model.StateVariable) error {
	if err := e.ValidateVariable(ctx, v); err != nil {
		return err
	}
	if err := e.store.UpdateVariable(ctx, v); err != nil {
		return err
	}
	if v.IsDerived() {
		return e.Invalidate(ctx, definitionChange(v.CampaignID, branchID, ""))
	}
	return e.Invalidate(ctx, variableChange(v, branchID))
}

// DeleteVariable soft-deletes a variable under optimistic concurrency.
func (e *Engine) DeleteVariable(ctx context.Context, branchID, id string, expectedVersion int64) error {
	v, err := e.store.GetVariable(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.DeleteVariable(ctx, id, expectedVersion); err != nil {
		return err
	}
	if v.IsDerived() {
		return e.Invalidate(ctx, definitionChange(v.CampaignID, branchID, ""))
	}
	e.dropGraph(v.CampaignID, branchID)
	return e.Invalidate(ctx, variableChange(v, branchID))
}

// SaveEntity upserts an entity snapshot and invalidates its downstream
// cache entries.
func (e *Engine) SaveEntity(ctx context.Context, campaignID, branchID string, snap *model.EntitySnapshot) error {
	if err := e.store.Save(ctx, snap); err != nil {
		return err
	}
	return e.Invalidate(ctx, model.Change{
		Kind:       model.EntityChanged,
		CampaignID: campaignID,
		BranchID:   branchID,
		EntityType: snap.EntityType,
		EntityID:   snap.EntityID,
	})
}

func definitionChange(campaignID, branchID, entityType string) model.Change {
	return model.Change{
		Kind:       model.ConditionDefinitionChanged,
		CampaignID: campaignID,
		BranchID:   branchID,
		EntityType: entityType,
	}
}

func variableChange(v *model.StateVariable, branchID string) model.Change {
	return model.Change{
		Kind:       model.VariableChanged,
		CampaignID: v.CampaignID,
		BranchID:   branchID,
		Scope:      v.Scope,
		ScopeID:    v.ScopeID,
		Key:        v.Key,
	}
}
