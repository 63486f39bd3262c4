package engine

import (
	"context"

	"github.com/emberfall/reckoner/internal/graph"
	"github.com/emberfall/reckoner/internal/model"
)

// ValidateCondition checks a condition definition before it is stored:
// depth limit first, then a trial graph build with the candidate in place
// to catch dependency cycles. Validation failures block the write and
// surface directly; they are never downgraded to warnings.
func (e *Engine) ValidateCondition(ctx context.Context, c *model.Condition) error {
	if c.Expression == nil {
		return model.NewEvaluationError("condition", "expression is required")
	}
	if d := model.Depth(c.Expression); d > model.MaxExpressionDepth {
		return model.NewFormulaTooComplex(d, model.MaxExpressionDepth)
	}
	return e.trialBuild(ctx, c.CampaignID, c.BranchID, c.ID, func(b *graph.Builder) {
		b.AddCondition(c)
	})
}

// ValidateEffect checks an effect definition: a known timing, a
// non-empty payload, and every mutating patch path on the whitelist.
func (e *Engine) ValidateEffect(_ context.Context, ef *model.Effect) error {
	if !model.ValidTimings[ef.Timing] {
		return model.NewEvaluationError("effect", "unknown timing "+string(ef.Timing))
	}
	if len(ef.Payload) == 0 {
		return model.NewEvaluationError("effect", "payload is empty")
	}
	return e.wl.Validate(ef.EntityType, ef.Payload)
}

// ValidateVariable checks a variable definition. Stored variables always
// pass; derived variables get the same depth and cycle validation as
// conditions. Variables are branch-agnostic, so the trial build runs
// against the variable set alone.
func (e *Engine) ValidateVariable(ctx context.Context, v *model.StateVariable) error {
	if !v.IsDerived() {
		return nil
	}
	if d := model.Depth(v.Formula); d > model.MaxExpressionDepth {
		return model.NewFormulaTooComplex(d, model.MaxExpressionDepth)
	}

	b := graph.NewBuilder(v.CampaignID, "", e.reg)
	vars, err := e.store.ListVariables(ctx, v.CampaignID)
	if err != nil {
		return err
	}
	for _, existing := range vars {
		if existing.ID == v.ID {
			continue
		}
		b.AddVariable(existing)
	}
	b.AddVariable(v)
	_, err = b.Build()
	return err
}

// trialBuild rebuilds the branch graph from the store with one candidate
// row swapped in for replaceID and reports the build result. The cached
// graph is not touched.
func (e *Engine) trialBuild(ctx context.Context, campaignID, branchID, replaceID string, add func(*graph.Builder)) error {
	b := graph.NewBuilder(campaignID, branchID, e.reg)

	vars, err := e.store.ListVariables(ctx, campaignID)
	if err != nil {
		return err
	}
	for _, v := range vars {
		b.AddVariable(v)
	}

	conds, err := e.store.ListConditions(ctx, campaignID, branchID)
	if err != nil {
		return err
	}
	for _, c := range conds {
		if c.ID == replaceID {
			continue
		}
		b.AddCondition(c)
	}

	effects, err := e.store.ListEffects(ctx, campaignID, branchID)
	if err != nil {
		return err
	}
	for _, ef := range effects {
		if ef.ID == replaceID {
			continue
		}
		b.AddEffect(ef)
	}

	add(b)
	_, err = b.Build()
	return err
}
