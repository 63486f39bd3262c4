package store

import (
	"context"

	"github.com/emberfall/reckoner/internal/model"
)

// EntityStore persists entity snapshots.
type EntityStore interface {
	// Load returns the current snapshot, or ENTITY_NOT_FOUND.
	Load(ctx context.Context, entityType, entityID string) (*model.EntitySnapshot, error)

	// Save upserts a snapshot. New rows start at version 1; existing rows
	// are overwritten unconditionally (seeding and administrative writes).
	Save(ctx context.Context, snap *model.EntitySnapshot) error

	// ApplyPatch applies an RFC 6902 patch to the current entity document
	// and persists the result, bumping the version. expectedVersion guards
	// against concurrent writers: a mismatch is OPTIMISTIC_LOCK_CONFLICT
	// and nothing is written. Pass the version from the snapshot the patch
	// was computed against.
	ApplyPatch(ctx context.Context, entityType, entityID string, patch model.PatchDoc, expectedVersion int64) (*model.EntitySnapshot, error)
}

// VariableStore persists state variables.
type VariableStore interface {
	// GetVariable returns a variable by ID, tombstones included.
	GetVariable(ctx context.Context, id string) (*model.StateVariable, error)

	// FindByScope returns the live variables attached to one scope.
	FindByScope(ctx context.Context, campaignID string, scope model.VariableScope, scopeID string) ([]*model.StateVariable, error)

	// ListVariables returns every live variable in a campaign, in
	// creation order. Used for graph building.
	ListVariables(ctx context.Context, campaignID string) ([]*model.StateVariable, error)

	// SaveVariable inserts a new variable, assigning Version 1 and a
	// creation sequence number.
	SaveVariable(ctx context.Context, v *model.StateVariable) error

	// UpdateVariable writes a new value/formula if v.Version matches the
	// stored row, then bumps the version. A mismatch is
	// OPTIMISTIC_LOCK_CONFLICT.
	UpdateVariable(ctx context.Context, v *model.StateVariable) error

	// DeleteVariable soft-deletes under the same version check.
	DeleteVariable(ctx context.Context, id string, expectedVersion int64) error
}

// ConditionStore persists condition definitions.
type ConditionStore interface {
	GetCondition(ctx context.Context, id string) (*model.Condition, error)

	// ListConditions returns the live, active conditions of one branch in
	// creation order.
	ListConditions(ctx context.Context, campaignID, branchID string) ([]*model.Condition, error)

	SaveCondition(ctx context.Context, c *model.Condition) error
	UpdateCondition(ctx context.Context, c *model.Condition) error
	DeleteCondition(ctx context.Context, id string) error
}

// EffectStore persists effect definitions.
type EffectStore interface {
	GetEffect(ctx context.Context, id string) (*model.Effect, error)

	// ListEffects returns the live, active effects of one branch in
	// creation order.
	ListEffects(ctx context.Context, campaignID, branchID string) ([]*model.Effect, error)

	// FindEffects returns the live, active effects targeting one entity
	// at one timing, in creation order.
	FindEffects(ctx context.Context, campaignID, branchID, entityType, entityID string, timing model.Timing) ([]*model.Effect, error)

	SaveEffect(ctx context.Context, e *model.Effect) error
	UpdateEffect(ctx context.Context, e *model.Effect) error
	DeleteEffect(ctx context.Context, id string) error
}

// ExecutionLog is the append-only effect execution audit trail.
type ExecutionLog interface {
	// AppendExecution inserts one record. Duplicate IDs are silently
	// ignored so retried batches stay idempotent.
	AppendExecution(ctx context.Context, rec *model.EffectExecution) error

	// ExecutionsForEntity returns the audit records for one entity,
	// oldest first.
	ExecutionsForEntity(ctx context.Context, entityType, entityID string) ([]*model.EffectExecution, error)
}

// Store is the full persistence surface the engine consumes.
type Store interface {
	EntityStore
	VariableStore
	ConditionStore
	EffectStore
	ExecutionLog
}
