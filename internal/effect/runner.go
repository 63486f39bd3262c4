package effect

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/emberfall/reckoner/internal/graph"
	"github.com/emberfall/reckoner/internal/model"
	"github.com/emberfall/reckoner/internal/store"
)

// Result summarizes one execution batch.
type Result struct {
	Succeeded int
	Failed    int
	Details   []*model.EffectExecution
}

// Runner executes effect batches. Construct with NewRunner.
type Runner struct {
	entities store.EntityStore
	effects  store.EffectStore
	log      store.ExecutionLog

	whitelist Whitelist
	ids       IDGenerator
	now       func() time.Time
	logger    *slog.Logger
}

// Option adjusts runner construction.
type Option func(*Runner)

// WithIDGenerator replaces the execution ID source. Tests use
// FixedGenerator for deterministic records.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Runner) { r.ids = g }
}

// WithNow replaces the time source.
func WithNow(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithWhitelist replaces the default patch whitelist.
func WithWhitelist(w Whitelist) Option {
	return func(r *Runner) { r.whitelist = w }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a runner over the given stores.
func NewRunner(entities store.EntityStore, effects store.EffectStore, log store.ExecutionLog, opts ...Option) *Runner {
	r := &Runner{
		entities:  entities,
		effects:   effects,
		log:       log,
		whitelist: DefaultWhitelist(),
		ids:       UUIDv7Generator{},
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ExecuteForEntity runs every active effect for one entity and timing
// phase, sequentially, priority ascending with creation order breaking
// ties. When the batch carries cross write-dependencies the graph's
// effect order overrides priority; g may be nil to skip that pass. A
// failing effect writes its audit record and the batch continues; patch
// application must observe each prior patch's result, so effects are
// never applied concurrently.
func (r *Runner) ExecuteForEntity(ctx context.Context, g *graph.Graph, campaignID, branchID, entityType, entityID string, timing model.Timing, actor string) (*Result, error) {
	effects, err := r.effects.FindEffects(ctx, campaignID, branchID, entityType, entityID, timing)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(effects, func(i, j int) bool {
		if effects[i].Priority != effects[j].Priority {
			return effects[i].Priority < effects[j].Priority
		}
		return effects[i].CreatedSeq < effects[j].CreatedSeq
	})
	if g != nil && len(effects) > 1 {
		if ordered, ok := r.dependencyOrder(g, effects); ok {
			effects = ordered
		}
	}
	return r.run(ctx, effects, actor)
}

// dependencyOrder reorders a batch by the graph's effect order. A cyclic
// or partially indexed batch keeps the priority order instead: unlike
// ExecuteWithDependencies, this path must not block resolution.
func (r *Runner) dependencyOrder(g *graph.Graph, effects []*model.Effect) ([]*model.Effect, bool) {
	ids := make([]string, len(effects))
	byID := make(map[string]*model.Effect, len(effects))
	for i, e := range effects {
		ids[i] = e.ID
		byID[e.ID] = e
	}

	order, err := g.EffectOrder(ids)
	if err != nil {
		r.logger.Warn("effect batch has cyclic write dependencies, keeping priority order", "error", err)
		return nil, false
	}
	if len(order) != len(effects) {
		return nil, false
	}

	out := make([]*model.Effect, 0, len(effects))
	for _, n := range order {
		e, ok := byID[n.RefID]
		if !ok {
			return nil, false
		}
		out = append(out, e)
	}
	return out, true
}

// ExecuteWithDependencies runs a specific effect subset in the dependency
// order computed from the campaign graph. Unlike ExecuteForEntity, a
// cyclic subset aborts the whole batch before anything is applied: there
// is no correct order to recover with.
func (r *Runner) ExecuteWithDependencies(ctx context.Context, g *graph.Graph, effectIDs []string, actor string) (*Result, error) {
	order, err := g.EffectOrder(effectIDs)
	if err != nil {
		return nil, err
	}

	effects := make([]*model.Effect, 0, len(order))
	for _, node := range order {
		e, err := r.effects.GetEffect(ctx, node.RefID)
		if err != nil {
			return nil, err
		}
		effects = append(effects, e)
	}
	return r.run(ctx, effects, actor)
}

func (r *Runner) run(ctx context.Context, effects []*model.Effect, actor string) (*Result, error) {
	res := &Result{}
	for _, e := range effects {
		rec := r.apply(ctx, e, actor)
		if err := r.log.AppendExecution(ctx, rec); err != nil {
			return nil, err
		}
		if rec.Succeeded() {
			res.Succeeded++
		} else {
			res.Failed++
			r.logger.Warn("effect failed",
				"effect_id", e.ID, "entity_type", e.EntityType,
				"entity_id", e.EntityID, "error", rec.Error)
		}
		res.Details = append(res.Details, rec)
	}
	return res, nil
}

// apply runs one effect end to end and always returns an audit record;
// failures land in the record's Error field instead of aborting the batch.
func (r *Runner) apply(ctx context.Context, e *model.Effect, actor string) *model.EffectExecution {
	rec := &model.EffectExecution{
		ID:         r.ids.Generate(),
		EffectID:   e.ID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Actor:      actor,
		ExecutedAt: r.now().UTC(),
		Context:    json.RawMessage(`{}`),
	}

	snap, err := r.entities.Load(ctx, e.EntityType, e.EntityID)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}

	// Canonical snapshot of the entity as the effect saw it.
	if fields, err := snap.Fields(); err == nil {
		if canonical, err := model.MarshalCanonical(fields); err == nil {
			rec.Context = canonical
		}
	}

	if err := r.whitelist.Validate(e.EntityType, e.Payload); err != nil {
		rec.Error = err.Error()
		return rec
	}

	if _, err := r.entities.ApplyPatch(ctx, e.EntityType, e.EntityID, e.Payload, snap.Version); err != nil {
		rec.Error = err.Error()
		return rec
	}

	rec.Applied = e.Payload
	return rec
}
