package evalctx

import (
	"context"
	"log/slog"

	"github.com/emberfall/reckoner/internal/eval"
	"github.com/emberfall/reckoner/internal/model"
	"github.com/emberfall/reckoner/internal/store"
)

// ScopeForEntityType maps an entity type to its variable scope. Types
// without a dedicated scope fall back to the generic entity scope.
func ScopeForEntityType(entityType string) model.VariableScope {
	switch entityType {
	case "settlement":
		return model.ScopeSettlement
	case "party":
		return model.ScopeParty
	default:
		return model.ScopeEntity
	}
}

// EntityTypeForScope is the inverse mapping, used when evaluating a
// variable and only its scope is known.
func EntityTypeForScope(scope model.VariableScope) string {
	switch scope {
	case model.ScopeSettlement:
		return "settlement"
	case model.ScopeParty:
		return "party"
	case model.ScopeCampaign:
		return "campaign"
	default:
		return "entity"
	}
}

// Builder assembles evaluation contexts from the entity and variable
// stores.
type Builder struct {
	entities  store.EntityStore
	variables store.VariableStore
	reg       *eval.Registry
	logger    *slog.Logger
}

// NewBuilder creates a context builder. reg resolves domain operators
// inside derived-variable formulas; logger may be nil.
func NewBuilder(entities store.EntityStore, variables store.VariableStore, reg *eval.Registry, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{entities: entities, variables: variables, reg: reg, logger: logger}
}

// Build assembles the context for one entity, layered bottom-up:
//
//  1. the entity's stored fields
//  2. campaign-scoped variables
//  3. variables scoped to the entity itself
//  4. derived variable values, computed against the layers below
//  5. the caller's extra overlay, which wins every collision
//
// A missing entity or an unreadable variable degrades to a partial
// context with a warning log. Only store I/O failures surface as errors.
func (b *Builder) Build(ctx context.Context, campaignID, entityType, entityID string, extra eval.Context) (eval.Context, error) {
	out := eval.Context{}

	snap, err := b.entities.Load(ctx, entityType, entityID)
	switch {
	case model.IsNotFound(err):
		b.logger.Warn("context build: entity missing, continuing with partial context",
			"entity_type", entityType, "entity_id", entityID)
	case err != nil:
		return nil, err
	default:
		fields, err := snap.Fields()
		if err != nil {
			b.logger.Warn("context build: undecodable entity data, skipping fields",
				"entity_type", entityType, "entity_id", entityID, "error", err)
		} else {
			for k, v := range fields {
				out[k] = v
			}
		}
	}

	var all []*model.StateVariable

	campaignVars, err := b.variables.FindByScope(ctx, campaignID, model.ScopeCampaign, campaignID)
	if err != nil {
		return nil, err
	}
	all = append(all, campaignVars...)

	scopedVars, err := b.variables.FindByScope(ctx, campaignID, ScopeForEntityType(entityType), entityID)
	if err != nil {
		return nil, err
	}
	all = append(all, scopedVars...)

	// Stored values first so derived formulas can read them.
	byKey := map[string]*model.StateVariable{}
	for _, v := range all {
		byKey[v.Key] = v
		if !v.IsDerived() {
			out[v.Key] = v.Value
		}
	}

	r := &deriver{
		goCtx:    ctx,
		ctx:      out,
		byKey:    byKey,
		reg:      b.reg,
		entityID: entityID,
		logger:   b.logger,
		visiting: map[string]bool{},
	}
	for _, v := range all {
		if v.IsDerived() {
			out[v.Key] = r.value(v.Key)
		}
	}

	return out.Merge(extra), nil
}

// deriver computes derived variable values with memoization. The visiting
// set breaks reference loops defensively; genuinely cyclic definitions are
// rejected at authoring time by graph validation, so hitting one here only
// means the stored definitions predate that check.
type deriver struct {
	goCtx    context.Context
	ctx      eval.Context
	byKey    map[string]*model.StateVariable
	reg      *eval.Registry
	entityID string
	logger   *slog.Logger
	visiting map[string]bool
	done     map[string]bool
}

func (d *deriver) value(key string) any {
	if d.done[key] {
		return d.ctx[key]
	}
	v, ok := d.byKey[key]
	if !ok || !v.IsDerived() {
		return d.ctx[key]
	}
	if d.visiting[key] {
		d.logger.Warn("context build: derived variable loop, treating as null", "key", key)
		return nil
	}
	d.visiting[key] = true
	defer delete(d.visiting, key)

	// Resolve the formula's inputs first so evaluation order does not
	// depend on map iteration.
	for _, path := range eval.Reads(v.Formula, d.reg) {
		if dep, ok := d.byKey[path]; ok && dep.IsDerived() {
			d.ctx[path] = d.value(path)
		}
	}

	// Domain operators resolve against the context entity, same two-pass
	// shape as condition evaluation.
	val, err := d.evaluate(v.Formula)
	if err != nil {
		d.logger.Warn("context build: derived variable failed, treating as null",
			"key", key, "variable_id", v.ID, "error", err)
		val = nil
	}
	d.ctx[key] = val
	d.markDone(key)
	return val
}

func (d *deriver) evaluate(formula model.Node) (any, error) {
	resolved, err := eval.ResolveDomainOps(d.goCtx, formula, d.entityID, d.reg, d.ctx)
	if err != nil {
		return nil, err
	}
	return eval.Evaluate(resolved, d.ctx)
}

func (d *deriver) markDone(key string) {
	if d.done == nil {
		d.done = map[string]bool{}
	}
	d.done[key] = true
}
