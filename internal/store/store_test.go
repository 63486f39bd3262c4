package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfall/reckoner/internal/model"
)

// Both implementations run the same contract suite.
func withStores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := Open(filepath.Join(t.TempDir(), "reckoner.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func mustNode(t *testing.T, doc string) model.Node {
	t.Helper()
	n, err := model.DecodeNode([]byte(doc))
	require.NoError(t, err)
	return n
}

func TestEntityLifecycle(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.Load(ctx, "settlement", "s1")
		require.Error(t, err)
		assert.True(t, model.IsNotFound(err))

		require.NoError(t, s.Save(ctx, &model.EntitySnapshot{
			EntityType: "settlement",
			EntityID:   "s1",
			Data:       json.RawMessage(`{"level": 3, "name": "Stagfall"}`),
		}))

		snap, err := s.Load(ctx, "settlement", "s1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), snap.Version)

		fields, err := snap.Fields()
		require.NoError(t, err)
		assert.Equal(t, float64(3), fields["level"])
	})
}

func TestApplyPatch(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, &model.EntitySnapshot{
			EntityType: "settlement",
			EntityID:   "s1",
			Data:       json.RawMessage(`{"level": 3}`),
		}))

		patch := model.PatchDoc{
			{Op: "replace", Path: "/level", Value: json.RawMessage(`5`)},
		}

		snap, err := s.ApplyPatch(ctx, "settlement", "s1", patch, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), snap.Version)

		fields, err := snap.Fields()
		require.NoError(t, err)
		assert.Equal(t, float64(5), fields["level"])

		// Stale version is rejected and nothing changes.
		_, err = s.ApplyPatch(ctx, "settlement", "s1", patch, 1)
		require.Error(t, err)
		assert.True(t, model.IsConflict(err))

		snap, err = s.Load(ctx, "settlement", "s1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), snap.Version)

		_, err = s.ApplyPatch(ctx, "settlement", "missing", patch, 1)
		assert.True(t, model.IsNotFound(err))
	})
}

func TestVariableVersioning(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		v := &model.StateVariable{
			ID:         "v-pop",
			CampaignID: "cmp-1",
			Scope:      model.ScopeSettlement,
			ScopeID:    "s1",
			Key:        "population",
			Value:      float64(12000),
		}
		require.NoError(t, s.SaveVariable(ctx, v))
		assert.Equal(t, int64(1), v.Version)
		assert.NotZero(t, v.CreatedSeq)

		v.Value = float64(5000)
		require.NoError(t, s.UpdateVariable(ctx, v))
		assert.Equal(t, int64(2), v.Version)

		// A stale writer loses.
		stale := *v
		stale.Version = 1
		stale.Value = float64(99)
		err := s.UpdateVariable(ctx, &stale)
		require.Error(t, err)
		assert.True(t, model.IsConflict(err))

		got, err := s.GetVariable(ctx, "v-pop")
		require.NoError(t, err)
		assert.Equal(t, float64(5000), got.Value)
	})
}

func TestVariableSoftDelete(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		v := &model.StateVariable{
			ID:         "v-pop",
			CampaignID: "cmp-1",
			Scope:      model.ScopeSettlement,
			ScopeID:    "s1",
			Key:        "population",
			Value:      float64(12000),
		}
		require.NoError(t, s.SaveVariable(ctx, v))
		require.NoError(t, s.DeleteVariable(ctx, "v-pop", 1))

		// Tombstone drops out of listings but direct get still sees it.
		list, err := s.FindByScope(ctx, "cmp-1", model.ScopeSettlement, "s1")
		require.NoError(t, err)
		assert.Empty(t, list)

		got, err := s.GetVariable(ctx, "v-pop")
		require.NoError(t, err)
		assert.NotNil(t, got.DeletedAt)

		// Updating a tombstone is not found, not a conflict.
		err = s.UpdateVariable(ctx, got)
		require.Error(t, err)
		assert.True(t, model.IsNotFound(err))
	})
}

func TestDerivedVariableRoundTrip(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		v := &model.StateVariable{
			ID:         "v-density",
			CampaignID: "cmp-1",
			Scope:      model.ScopeSettlement,
			ScopeID:    "s1",
			Key:        "density",
			Formula:    mustNode(t, `{"/": [{"var": "population"}, 10]}`),
		}
		require.NoError(t, s.SaveVariable(ctx, v))

		got, err := s.GetVariable(ctx, "v-density")
		require.NoError(t, err)
		require.True(t, got.IsDerived())

		raw, err := model.EncodeNode(got.Formula)
		require.NoError(t, err)
		assert.JSONEq(t, `{"/": [{"var": "population"}, 10]}`, string(raw))
	})
}

func TestConditionListing(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		active := &model.Condition{
			ID: "c-1", CampaignID: "cmp-1", BranchID: "main",
			Name: "prosperity", EntityType: "settlement", EntityID: "s1",
			Expression: mustNode(t, `{">": [{"var": "population"}, 10000]}`),
			IsActive:   true,
		}
		inactive := &model.Condition{
			ID: "c-2", CampaignID: "cmp-1", BranchID: "main",
			Name: "dormant", EntityType: "settlement",
			Expression: mustNode(t, `true`),
			IsActive:   false,
		}
		otherBranch := &model.Condition{
			ID: "c-3", CampaignID: "cmp-1", BranchID: "fork",
			Name: "forked", EntityType: "settlement",
			Expression: mustNode(t, `true`),
			IsActive:   true,
		}
		require.NoError(t, s.SaveCondition(ctx, active))
		require.NoError(t, s.SaveCondition(ctx, inactive))
		require.NoError(t, s.SaveCondition(ctx, otherBranch))

		list, err := s.ListConditions(ctx, "cmp-1", "main")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "c-1", list[0].ID)

		require.NoError(t, s.DeleteCondition(ctx, "c-1"))
		list, err = s.ListConditions(ctx, "cmp-1", "main")
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestEffectTargeting(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		mk := func(id, entityID string, timing model.Timing, priority int) *model.Effect {
			return &model.Effect{
				ID: id, CampaignID: "cmp-1", BranchID: "main",
				EntityType: "settlement", EntityID: entityID,
				Payload: model.PatchDoc{
					{Op: "replace", Path: "/level", Value: json.RawMessage(`5`)},
				},
				Timing: timing, Priority: priority, IsActive: true,
			}
		}
		require.NoError(t, s.SaveEffect(ctx, mk("e-1", "s1", model.TimingPre, 2)))
		require.NoError(t, s.SaveEffect(ctx, mk("e-2", "s1", model.TimingPre, 1)))
		require.NoError(t, s.SaveEffect(ctx, mk("e-3", "s1", model.TimingPost, 1)))
		require.NoError(t, s.SaveEffect(ctx, mk("e-4", "s2", model.TimingPre, 1)))

		list, err := s.FindEffects(ctx, "cmp-1", "main", "settlement", "s1", model.TimingPre)
		require.NoError(t, err)
		require.Len(t, list, 2)
		// Creation order; the runner applies its own priority sort.
		assert.Equal(t, "e-1", list[0].ID)
		assert.Equal(t, "e-2", list[1].ID)
	})
}

func TestExecutionLogIdempotency(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		rec := &model.EffectExecution{
			ID:         "x-1",
			EffectID:   "e-1",
			EntityType: "settlement",
			EntityID:   "s1",
			Actor:      "gm",
			ExecutedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Context:    json.RawMessage(`{"population":12000}`),
			Applied: model.PatchDoc{
				{Op: "replace", Path: "/level", Value: json.RawMessage(`5`)},
			},
		}
		require.NoError(t, s.AppendExecution(ctx, rec))
		require.NoError(t, s.AppendExecution(ctx, rec)) // duplicate, ignored

		failed := &model.EffectExecution{
			ID:         "x-2",
			EffectID:   "e-2",
			EntityType: "settlement",
			EntityID:   "s1",
			ExecutedAt: time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC),
			Error:      "patch path \"/id\" is not writable",
		}
		require.NoError(t, s.AppendExecution(ctx, failed))

		list, err := s.ExecutionsForEntity(ctx, "settlement", "s1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.True(t, list[0].Succeeded())
		assert.False(t, list[1].Succeeded())
		assert.Equal(t, rec.Applied, list[0].Applied)
	})
}

func TestCreationSequenceMonotonic(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		c := &model.Condition{
			ID: "c-1", CampaignID: "cmp-1", BranchID: "main",
			Name: "first", EntityType: "settlement",
			Expression: mustNode(t, `true`), IsActive: true,
		}
		require.NoError(t, s.SaveCondition(ctx, c))

		e := &model.Effect{
			ID: "e-1", CampaignID: "cmp-1", BranchID: "main",
			EntityType: "settlement", EntityID: "s1",
			Payload: model.PatchDoc{{Op: "add", Path: "/x", Value: json.RawMessage(`1`)}},
			Timing:  model.TimingPre, IsActive: true,
		}
		require.NoError(t, s.SaveEffect(ctx, e))

		// Sequence numbers are shared across kinds and strictly increase.
		assert.Greater(t, e.CreatedSeq, c.CreatedSeq)
	})
}
