package model

import (
	"encoding/json"
	"time"
)

// VariableScope identifies what a StateVariable is attached to.
type VariableScope string

const (
	ScopeCampaign   VariableScope = "CAMPAIGN"
	ScopeSettlement VariableScope = "SETTLEMENT"
	ScopeParty      VariableScope = "PARTY"
	ScopeEntity     VariableScope = "ENTITY"
)

// Timing is the effect execution phase.
type Timing string

const (
	TimingPre       Timing = "PRE"
	TimingOnResolve Timing = "ON_RESOLVE"
	TimingPost      Timing = "POST"
)

// ValidTimings defines allowed timing phases.
var ValidTimings = map[Timing]bool{
	TimingPre:       true,
	TimingOnResolve: true,
	TimingPost:      true,
}

// EntitySnapshot is an immutable view of an entity row.
// Data is the entity's JSON document; Version backs optimistic updates.
type EntitySnapshot struct {
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Data       json.RawMessage `json:"data"`
	Version    int64           `json:"version"`
}

// Fields decodes the snapshot data into a map. A nil snapshot or empty
// data yields an empty map.
func (s *EntitySnapshot) Fields() (map[string]any, error) {
	out := map[string]any{}
	if s == nil || len(s.Data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(s.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Condition is a declarative rule producing one computed field.
//
// A condition applies either to a single entity (EntityID set) or to every
// entity of EntityType in the campaign (EntityID empty, "applies to class").
// Mutating a condition always invalidates the campaign's dependency graph.
type Condition struct {
	ID         string     `json:"id"`
	CampaignID string     `json:"campaign_id"`
	BranchID   string     `json:"branch_id"`
	Name       string     `json:"name"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id,omitempty"`
	Expression Node       `json:"-"`
	Priority   int        `json:"priority"`
	IsActive   bool       `json:"is_active"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	CreatedSeq int64      `json:"created_seq"`
}

// StateVariable is a scoped key/value row. Exactly one of Value and
// Formula is populated: stored variables carry Value, derived variables
// carry Formula. Version backs optimistic concurrency; DeletedAt marks
// tombstones that context building and graph construction must skip.
type StateVariable struct {
	ID         string        `json:"id"`
	CampaignID string        `json:"campaign_id"`
	Scope      VariableScope `json:"scope"`
	ScopeID    string        `json:"scope_id"`
	Key        string        `json:"key"`
	Value      any           `json:"value,omitempty"`
	Formula    Node          `json:"-"`
	Version    int64         `json:"version"`
	DeletedAt  *time.Time    `json:"deleted_at,omitempty"`
	CreatedSeq int64         `json:"created_seq"`
}

// IsDerived reports whether the variable computes its value from a formula.
func (v *StateVariable) IsDerived() bool {
	return v.Formula != nil
}

// DependencyKey is the stable graph-node key for this variable.
// Format: "scope:scopeId:key" lowercased scope.
func (v *StateVariable) DependencyKey() string {
	return VariableKey(v.Scope, v.ScopeID, v.Key)
}

// VariableKey builds the stable graph-node key for a variable coordinate.
func VariableKey(scope VariableScope, scopeID, key string) string {
	return string(scope) + ":" + scopeID + ":" + key
}

// PatchOp is a single RFC 6902 operation inside an effect payload.
type PatchOp struct {
	Op    string          `json:"op"` // add | remove | replace | test
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// PatchDoc is an ordered list of patch operations.
type PatchDoc []PatchOp

// Effect is a timed, ordered structured patch applied to an entity as part
// of resolving an encounter or event.
type Effect struct {
	ID         string     `json:"id"`
	CampaignID string     `json:"campaign_id"`
	BranchID   string     `json:"branch_id"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Payload    PatchDoc   `json:"payload"`
	Timing     Timing     `json:"timing"`
	Priority   int        `json:"priority"`
	IsActive   bool       `json:"is_active"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	CreatedSeq int64      `json:"created_seq"`
}

// EffectExecution is an append-only audit record: one row per execution
// attempt, never mutated.
type EffectExecution struct {
	ID         string          `json:"id"`
	EffectID   string          `json:"effect_id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Actor      string          `json:"actor"`
	ExecutedAt time.Time       `json:"executed_at"`
	Context    json.RawMessage `json:"context"`          // canonical snapshot at execution time
	Applied    PatchDoc        `json:"applied,omitempty"` // patch as applied, on success
	Error      string          `json:"error,omitempty"`   // populated on failure
}

// Succeeded reports whether the execution applied its patch.
func (e *EffectExecution) Succeeded() bool {
	return e.Error == ""
}

// ChangeKind identifies what mutated, for invalidation fan-out.
type ChangeKind string

const (
	// EntityChanged: an entity's stored fields changed.
	EntityChanged ChangeKind = "ENTITY_CHANGED"

	// VariableChanged: a stored variable's value changed.
	VariableChanged ChangeKind = "VARIABLE_CHANGED"

	// ConditionDefinitionChanged: a condition, derived-variable formula, or
	// effect payload definition changed. Structural - forces a graph rebuild
	// and pattern-scoped cache invalidation.
	ConditionDefinitionChanged ChangeKind = "CONDITION_DEFINITION_CHANGED"
)

// Change describes one mutation entering the invalidation coordinator.
type Change struct {
	Kind       ChangeKind
	CampaignID string
	BranchID   string

	// EntityChanged fields.
	EntityType string
	EntityID   string

	// VariableChanged fields.
	Scope   VariableScope
	ScopeID string
	Key     string
}
