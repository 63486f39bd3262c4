package engine

import (
	"context"

	"github.com/emberfall/reckoner/internal/effect"
	"github.com/emberfall/reckoner/internal/model"
)

// ExecuteEffects runs every active effect for one entity and timing
// phase, then invalidates the entity's cached state if anything was
// applied. Individual effect failures are recorded, not fatal.
func (e *Engine) ExecuteEffects(ctx context.Context, campaignID, branchID, entityType, entityID string, timing model.Timing, actor string) (*effect.Result, error) {
	g, err := e.Graph(ctx, campaignID, branchID)
	if err != nil {
		return nil, err
	}
	res, err := e.runner.ExecuteForEntity(ctx, g, campaignID, branchID, entityType, entityID, timing, actor)
	if err != nil {
		return nil, err
	}
	if res.Succeeded > 0 {
		if err := e.Invalidate(ctx, model.Change{
			Kind:       model.EntityChanged,
			CampaignID: campaignID,
			BranchID:   branchID,
			EntityType: entityType,
			EntityID:   entityID,
		}); err != nil {
			return res, err
		}
	}
	return res, nil
}

// ExecuteEffectsWithDependencies runs a chosen effect subset in the
// order the dependency graph dictates, then invalidates every entity a
// successful effect touched. A cyclic subset fails before any patch is
// applied.
func (e *Engine) ExecuteEffectsWithDependencies(ctx context.Context, campaignID, branchID string, effectIDs []string, actor string) (*effect.Result, error) {
	g, err := e.Graph(ctx, campaignID, branchID)
	if err != nil {
		return nil, err
	}
	res, err := e.runner.ExecuteWithDependencies(ctx, g, effectIDs, actor)
	if err != nil {
		return nil, err
	}

	touched := map[[2]string]bool{}
	for _, rec := range res.Details {
		if !rec.Succeeded() {
			continue
		}
		id := [2]string{rec.EntityType, rec.EntityID}
		if touched[id] {
			continue
		}
		touched[id] = true
		if err := e.Invalidate(ctx, model.Change{
			Kind:       model.EntityChanged,
			CampaignID: campaignID,
			BranchID:   branchID,
			EntityType: rec.EntityType,
			EntityID:   rec.EntityID,
		}); err != nil {
			return res, err
		}
	}
	return res, nil
}
