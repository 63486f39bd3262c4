package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/emberfall/reckoner/internal/model"
)

// Memory is an in-process Store for tests and ephemeral runs. It enforces
// the same versioning and soft-delete contracts as SQLite. Thread-safe.
type Memory struct {
	mu         sync.RWMutex
	clock      *seqClock
	entities   map[string]*model.EntitySnapshot // entityType "/" entityID
	variables  map[string]*model.StateVariable
	conditions map[string]*model.Condition
	effects    map[string]*model.Effect
	executions []*model.EffectExecution
	execIDs    map[string]bool
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		clock:      newSeqClockAt(0),
		entities:   map[string]*model.EntitySnapshot{},
		variables:  map[string]*model.StateVariable{},
		conditions: map[string]*model.Condition{},
		effects:    map[string]*model.Effect{},
		execIDs:    map[string]bool{},
	}
}

func entityKey(entityType, entityID string) string {
	return entityType + "/" + entityID
}

// --- entities ---

func (m *Memory) Load(_ context.Context, entityType, entityID string) (*model.EntitySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.entities[entityKey(entityType, entityID)]
	if !ok {
		return nil, model.NewEntityNotFound(entityType, entityID)
	}
	out := *snap
	out.Data = append(json.RawMessage(nil), snap.Data...)
	return &out, nil
}

func (m *Memory) Save(_ context.Context, snap *model.EntitySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *snap
	if stored.Version == 0 {
		stored.Version = 1
	}
	if len(stored.Data) == 0 {
		stored.Data = json.RawMessage(`{}`)
	} else {
		stored.Data = append(json.RawMessage(nil), snap.Data...)
	}
	m.entities[entityKey(snap.EntityType, snap.EntityID)] = &stored
	return nil
}

func (m *Memory) ApplyPatch(_ context.Context, entityType, entityID string, patch model.PatchDoc, expectedVersion int64) (*model.EntitySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entityKey(entityType, entityID)
	snap, ok := m.entities[key]
	if !ok {
		return nil, model.NewEntityNotFound(entityType, entityID)
	}
	if snap.Version != expectedVersion {
		return nil, model.NewConflict("entity", entityType+"/"+entityID, expectedVersion)
	}

	patched, err := applyPatchDoc(snap.Data, patch)
	if err != nil {
		return nil, err
	}

	updated := &model.EntitySnapshot{
		EntityType: entityType,
		EntityID:   entityID,
		Data:       patched,
		Version:    snap.Version + 1,
	}
	m.entities[key] = updated

	out := *updated
	out.Data = append(json.RawMessage(nil), updated.Data...)
	return &out, nil
}

// --- state variables ---

func (m *Memory) GetVariable(_ context.Context, id string) (*model.StateVariable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.variables[id]
	if !ok {
		return nil, model.NewEntityNotFound("state_variable", id)
	}
	out := *v
	return &out, nil
}

func (m *Memory) FindByScope(_ context.Context, campaignID string, scope model.VariableScope, scopeID string) ([]*model.StateVariable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.StateVariable
	for _, v := range m.variables {
		if v.DeletedAt != nil || v.CampaignID != campaignID || v.Scope != scope || v.ScopeID != scopeID {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	sortBySeq(out, func(v *model.StateVariable) int64 { return v.CreatedSeq })
	return out, nil
}

func (m *Memory) ListVariables(_ context.Context, campaignID string) ([]*model.StateVariable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.StateVariable
	for _, v := range m.variables {
		if v.DeletedAt != nil || v.CampaignID != campaignID {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	sortBySeq(out, func(v *model.StateVariable) int64 { return v.CreatedSeq })
	return out, nil
}

func (m *Memory) SaveVariable(_ context.Context, v *model.StateVariable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.CreatedSeq == 0 {
		v.CreatedSeq = m.clock.Next()
	}
	v.Version = 1
	cp := *v
	m.variables[v.ID] = &cp
	return nil
}

func (m *Memory) UpdateVariable(_ context.Context, v *model.StateVariable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.variables[v.ID]
	if !ok || cur.DeletedAt != nil {
		return model.NewEntityNotFound("state_variable", v.ID)
	}
	if cur.Version != v.Version {
		return model.NewConflict("state_variable", v.ID, v.Version)
	}
	v.Version++
	cp := *v
	m.variables[v.ID] = &cp
	return nil
}

func (m *Memory) DeleteVariable(_ context.Context, id string, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.variables[id]
	if !ok || cur.DeletedAt != nil {
		return model.NewEntityNotFound("state_variable", id)
	}
	if cur.Version != expectedVersion {
		return model.NewConflict("state_variable", id, expectedVersion)
	}
	now := time.Now().UTC()
	cur.DeletedAt = &now
	cur.Version++
	return nil
}

// --- conditions ---

func (m *Memory) GetCondition(_ context.Context, id string) (*model.Condition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conditions[id]
	if !ok {
		return nil, model.NewEntityNotFound("condition", id)
	}
	out := *c
	return &out, nil
}

func (m *Memory) ListConditions(_ context.Context, campaignID, branchID string) ([]*model.Condition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Condition
	for _, c := range m.conditions {
		if c.DeletedAt != nil || !c.IsActive || c.CampaignID != campaignID || c.BranchID != branchID {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sortBySeq(out, func(c *model.Condition) int64 { return c.CreatedSeq })
	return out, nil
}

func (m *Memory) SaveCondition(_ context.Context, c *model.Condition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.CreatedSeq == 0 {
		c.CreatedSeq = m.clock.Next()
	}
	cp := *c
	m.conditions[c.ID] = &cp
	return nil
}

func (m *Memory) UpdateCondition(_ context.Context, c *model.Condition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.conditions[c.ID]
	if !ok || cur.DeletedAt != nil {
		return model.NewEntityNotFound("condition", c.ID)
	}
	cp := *c
	cp.CreatedSeq = cur.CreatedSeq
	m.conditions[c.ID] = &cp
	return nil
}

func (m *Memory) DeleteCondition(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.conditions[id]
	if !ok || cur.DeletedAt != nil {
		return model.NewEntityNotFound("condition", id)
	}
	now := time.Now().UTC()
	cur.DeletedAt = &now
	return nil
}

// --- effects ---

func (m *Memory) GetEffect(_ context.Context, id string) (*model.Effect, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.effects[id]
	if !ok {
		return nil, model.NewEntityNotFound("effect", id)
	}
	out := *e
	return &out, nil
}

func (m *Memory) ListEffects(_ context.Context, campaignID, branchID string) ([]*model.Effect, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Effect
	for _, e := range m.effects {
		if e.DeletedAt != nil || !e.IsActive || e.CampaignID != campaignID || e.BranchID != branchID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sortBySeq(out, func(e *model.Effect) int64 { return e.CreatedSeq })
	return out, nil
}

func (m *Memory) FindEffects(_ context.Context, campaignID, branchID, entityType, entityID string, timing model.Timing) ([]*model.Effect, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Effect
	for _, e := range m.effects {
		if e.DeletedAt != nil || !e.IsActive {
			continue
		}
		if e.CampaignID != campaignID || e.BranchID != branchID ||
			e.EntityType != entityType || e.EntityID != entityID || e.Timing != timing {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sortBySeq(out, func(e *model.Effect) int64 { return e.CreatedSeq })
	return out, nil
}

func (m *Memory) SaveEffect(_ context.Context, e *model.Effect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.CreatedSeq == 0 {
		e.CreatedSeq = m.clock.Next()
	}
	cp := *e
	m.effects[e.ID] = &cp
	return nil
}

func (m *Memory) UpdateEffect(_ context.Context, e *model.Effect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.effects[e.ID]
	if !ok || cur.DeletedAt != nil {
		return model.NewEntityNotFound("effect", e.ID)
	}
	cp := *e
	cp.CreatedSeq = cur.CreatedSeq
	m.effects[e.ID] = &cp
	return nil
}

func (m *Memory) DeleteEffect(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.effects[id]
	if !ok || cur.DeletedAt != nil {
		return model.NewEntityNotFound("effect", id)
	}
	now := time.Now().UTC()
	cur.DeletedAt = &now
	return nil
}

// --- execution log ---

func (m *Memory) AppendExecution(_ context.Context, rec *model.EffectExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.execIDs[rec.ID] {
		return nil
	}
	m.execIDs[rec.ID] = true
	cp := *rec
	m.executions = append(m.executions, &cp)
	return nil
}

func (m *Memory) ExecutionsForEntity(_ context.Context, entityType, entityID string) ([]*model.EffectExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.EffectExecution
	for _, rec := range m.executions {
		if rec.EntityType == entityType && rec.EntityID == entityID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func sortBySeq[T any](items []*T, seq func(*T) int64) {
	sort.Slice(items, func(i, j int) bool {
		return seq(items[i]) < seq(items[j])
	})
}
