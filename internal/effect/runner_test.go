package effect

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfall/reckoner/internal/eval"
	"github.com/emberfall/reckoner/internal/graph"
	"github.com/emberfall/reckoner/internal/model"
	"github.com/emberfall/reckoner/internal/store"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newRunner(t *testing.T, s *store.Memory, ids ...string) *Runner {
	t.Helper()
	return NewRunner(s, s, s,
		WithIDGenerator(NewFixedGenerator(ids...)),
		WithNow(fixedNow),
	)
}

func seedSettlement(t *testing.T, s *store.Memory) {
	t.Helper()
	require.NoError(t, s.Save(context.Background(), &model.EntitySnapshot{
		EntityType: "settlement",
		EntityID:   "s1",
		Data:       json.RawMessage(`{"level": 3, "name": "Stagfall"}`),
	}))
}

func saveEffect(t *testing.T, s *store.Memory, id string, priority int, doc model.PatchDoc) {
	t.Helper()
	require.NoError(t, s.SaveEffect(context.Background(), &model.Effect{
		ID: id, CampaignID: "cmp-1", BranchID: "main",
		EntityType: "settlement", EntityID: "s1",
		Payload: doc, Timing: model.TimingPre, Priority: priority, IsActive: true,
	}))
}

func TestExecuteForEntity_AppliesInPriorityOrder(t *testing.T) {
	s := store.NewMemory()
	seedSettlement(t, s)
	// Both effects replace the same field; the higher priority number
	// runs second and wins.
	saveEffect(t, s, "e-late", 2, model.PatchDoc{
		{Op: "replace", Path: "/level", Value: json.RawMessage(`9`)},
	})
	saveEffect(t, s, "e-early", 1, model.PatchDoc{
		{Op: "replace", Path: "/level", Value: json.RawMessage(`5`)},
	})

	r := newRunner(t, s, "x-1", "x-2")
	res, err := r.ExecuteForEntity(context.Background(), nil, "cmp-1", "main",
		"settlement", "s1", model.TimingPre, "gm")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	require.Len(t, res.Details, 2)
	assert.Equal(t, "e-early", res.Details[0].EffectID)
	assert.Equal(t, "e-late", res.Details[1].EffectID)

	snap, err := s.Load(context.Background(), "settlement", "s1")
	require.NoError(t, err)
	fields, _ := snap.Fields()
	assert.Equal(t, float64(9), fields["level"])
	// One version bump per applied patch.
	assert.Equal(t, int64(3), snap.Version)
}

func TestExecuteForEntity_FailureDoesNotAbortBatch(t *testing.T) {
	s := store.NewMemory()
	seedSettlement(t, s)
	// Priority 1 targets a forbidden path; priority 2 is valid.
	saveEffect(t, s, "e-bad", 1, model.PatchDoc{
		{Op: "replace", Path: "/id", Value: json.RawMessage(`"forged"`)},
	})
	saveEffect(t, s, "e-good", 2, model.PatchDoc{
		{Op: "replace", Path: "/level", Value: json.RawMessage(`5`)},
	})

	r := newRunner(t, s, "x-1", "x-2")
	res, err := r.ExecuteForEntity(context.Background(), nil, "cmp-1", "main",
		"settlement", "s1", model.TimingPre, "gm")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)

	// Exactly one audit record carries an error, and the entity only
	// took the valid patch.
	records, err := s.ExecutionsForEntity(context.Background(), "settlement", "s1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	var failed []*model.EffectExecution
	for _, rec := range records {
		if !rec.Succeeded() {
			failed = append(failed, rec)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, "e-bad", failed[0].EffectID)
	assert.Contains(t, failed[0].Error, "/id")

	snap, _ := s.Load(context.Background(), "settlement", "s1")
	fields, _ := snap.Fields()
	assert.Equal(t, float64(5), fields["level"])
	assert.NotContains(t, string(snap.Data), "forged")
}

func TestExecuteForEntity_ForbiddenPathLeavesEntityUnchanged(t *testing.T) {
	s := store.NewMemory()
	seedSettlement(t, s)
	saveEffect(t, s, "e-bad", 1, model.PatchDoc{
		{Op: "replace", Path: "/id", Value: json.RawMessage(`"x"`)},
	})

	before, _ := s.Load(context.Background(), "settlement", "s1")

	r := newRunner(t, s, "x-1")
	res, err := r.ExecuteForEntity(context.Background(), nil, "cmp-1", "main",
		"settlement", "s1", model.TimingPre, "gm")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	after, _ := s.Load(context.Background(), "settlement", "s1")
	assert.Equal(t, before.Version, after.Version)
	assert.JSONEq(t, string(before.Data), string(after.Data))
}

func TestExecuteForEntity_RecordsCanonicalContext(t *testing.T) {
	s := store.NewMemory()
	seedSettlement(t, s)
	saveEffect(t, s, "e-1", 1, model.PatchDoc{
		{Op: "replace", Path: "/level", Value: json.RawMessage(`5`)},
	})

	r := newRunner(t, s, "x-1")
	res, err := r.ExecuteForEntity(context.Background(), nil, "cmp-1", "main",
		"settlement", "s1", model.TimingPre, "gm")
	require.NoError(t, err)
	require.Len(t, res.Details, 1)

	rec := res.Details[0]
	assert.Equal(t, "x-1", rec.ID)
	assert.Equal(t, "gm", rec.Actor)
	assert.Equal(t, fixedNow(), rec.ExecutedAt)
	// The context snapshot shows the entity before the patch, in
	// canonical key order.
	assert.Equal(t, `{"level":3,"name":"Stagfall"}`, string(rec.Context))
}

func TestExecuteForEntity_MissingEntityRecordsFailure(t *testing.T) {
	s := store.NewMemory()
	saveEffect(t, s, "e-1", 1, model.PatchDoc{
		{Op: "replace", Path: "/level", Value: json.RawMessage(`5`)},
	})

	r := newRunner(t, s, "x-1")
	res, err := r.ExecuteForEntity(context.Background(), nil, "cmp-1", "main",
		"settlement", "s1", model.TimingPre, "gm")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Details[0].Error, "not found")
}

func TestExecuteForEntity_CrossDependentBatchUsesGraphOrder(t *testing.T) {
	s := store.NewMemory()
	seedSettlement(t, s)
	require.NoError(t, s.SaveVariable(context.Background(), &model.StateVariable{
		ID: "v-density", CampaignID: "cmp-1",
		Scope: model.ScopeSettlement, ScopeID: "s1", Key: "density",
		Formula: mustNode(t, `{"/": [{"var": "population"}, 10]}`),
	}))
	// e-density has the lower priority number but overwrites a value
	// downstream of e-pop's write, so the graph order puts it second.
	saveEffect(t, s, "e-density", 1, model.PatchDoc{
		{Op: "add", Path: "/density", Value: json.RawMessage(`7`)},
	})
	saveEffect(t, s, "e-pop", 9, model.PatchDoc{
		{Op: "add", Path: "/population", Value: json.RawMessage(`70`)},
	})

	g := buildGraph(t, s)

	r := newRunner(t, s, "x-1", "x-2")
	res, err := r.ExecuteForEntity(context.Background(), g, "cmp-1", "main",
		"settlement", "s1", model.TimingPre, "gm")
	require.NoError(t, err)
	require.Len(t, res.Details, 2)
	assert.Equal(t, "e-pop", res.Details[0].EffectID)
	assert.Equal(t, "e-density", res.Details[1].EffectID)
}

func TestExecuteForEntity_CyclicBatchKeepsPriorityOrder(t *testing.T) {
	s := store.NewMemory()
	seedSettlement(t, s)
	require.NoError(t, s.SaveVariable(context.Background(), &model.StateVariable{
		ID: "v-density", CampaignID: "cmp-1",
		Scope: model.ScopeSettlement, ScopeID: "s1", Key: "density",
		Formula: mustNode(t, `{"/": [{"var": "population"}, 10]}`),
	}))
	require.NoError(t, s.SaveVariable(context.Background(), &model.StateVariable{
		ID: "v-pressure", CampaignID: "cmp-1",
		Scope: model.ScopeSettlement, ScopeID: "s1", Key: "pressure",
		Formula: mustNode(t, `{"*": [{"var": "density"}, 2]}`),
	}))
	saveEffect(t, s, "e-1", 1, model.PatchDoc{
		{Op: "add", Path: "/population", Value: json.RawMessage(`1`)},
		{Op: "add", Path: "/pressure", Value: json.RawMessage(`1`)},
	})
	saveEffect(t, s, "e-2", 2, model.PatchDoc{
		{Op: "add", Path: "/density", Value: json.RawMessage(`1`)},
		{Op: "add", Path: "/population", Value: json.RawMessage(`1`)},
	})

	g := buildGraph(t, s)

	// No correct order exists; the phase still runs, priority ascending.
	r := newRunner(t, s, "x-1", "x-2")
	res, err := r.ExecuteForEntity(context.Background(), g, "cmp-1", "main",
		"settlement", "s1", model.TimingPre, "gm")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	require.Len(t, res.Details, 2)
	assert.Equal(t, "e-1", res.Details[0].EffectID)
	assert.Equal(t, "e-2", res.Details[1].EffectID)
}

func TestExecuteWithDependencies_TopoOrderOverridesPriority(t *testing.T) {
	s := store.NewMemory()
	seedSettlement(t, s)
	require.NoError(t, s.SaveVariable(context.Background(), &model.StateVariable{
		ID: "v-density", CampaignID: "cmp-1",
		Scope: model.ScopeSettlement, ScopeID: "s1", Key: "density",
		Formula: mustNode(t, `{"/": [{"var": "population"}, 10]}`),
	}))
	saveEffect(t, s, "e-density", 1, model.PatchDoc{
		{Op: "add", Path: "/density", Value: json.RawMessage(`7`)},
	})
	saveEffect(t, s, "e-pop", 9, model.PatchDoc{
		{Op: "add", Path: "/population", Value: json.RawMessage(`70`)},
	})

	g := buildGraph(t, s)

	r := newRunner(t, s, "x-1", "x-2")
	res, err := r.ExecuteWithDependencies(context.Background(), g,
		[]string{"e-density", "e-pop"}, "gm")
	require.NoError(t, err)
	require.Len(t, res.Details, 2)
	assert.Equal(t, "e-pop", res.Details[0].EffectID)
	assert.Equal(t, "e-density", res.Details[1].EffectID)
}

func TestExecuteWithDependencies_CycleAbortsBeforeApplying(t *testing.T) {
	s := store.NewMemory()
	seedSettlement(t, s)
	require.NoError(t, s.SaveVariable(context.Background(), &model.StateVariable{
		ID: "v-density", CampaignID: "cmp-1",
		Scope: model.ScopeSettlement, ScopeID: "s1", Key: "density",
		Formula: mustNode(t, `{"/": [{"var": "population"}, 10]}`),
	}))
	require.NoError(t, s.SaveVariable(context.Background(), &model.StateVariable{
		ID: "v-pressure", CampaignID: "cmp-1",
		Scope: model.ScopeSettlement, ScopeID: "s1", Key: "pressure",
		Formula: mustNode(t, `{"*": [{"var": "density"}, 2]}`),
	}))
	saveEffect(t, s, "e-1", 1, model.PatchDoc{
		{Op: "add", Path: "/population", Value: json.RawMessage(`1`)},
		{Op: "add", Path: "/pressure", Value: json.RawMessage(`1`)},
	})
	saveEffect(t, s, "e-2", 2, model.PatchDoc{
		{Op: "add", Path: "/density", Value: json.RawMessage(`1`)},
		{Op: "add", Path: "/population", Value: json.RawMessage(`1`)},
	})

	g := buildGraph(t, s)

	before, _ := s.Load(context.Background(), "settlement", "s1")

	r := newRunner(t, s)
	_, err := r.ExecuteWithDependencies(context.Background(), g,
		[]string{"e-1", "e-2"}, "gm")
	require.Error(t, err)
	assert.True(t, model.IsCircular(err))

	// Nothing was applied and nothing was logged.
	after, _ := s.Load(context.Background(), "settlement", "s1")
	assert.Equal(t, before.Version, after.Version)
	records, _ := s.ExecutionsForEntity(context.Background(), "settlement", "s1")
	assert.Empty(t, records)
}

func TestWhitelist(t *testing.T) {
	w := DefaultWhitelist()

	assert.True(t, w.Allows("settlement", "/level"))
	assert.True(t, w.Allows("settlement", "/variables/morale"))
	assert.False(t, w.Allows("settlement", "/id"))
	assert.False(t, w.Allows("settlement", "/created_at"))
	assert.False(t, w.Allows("unknown_type", "/level"))

	err := w.Validate("settlement", model.PatchDoc{
		{Op: "test", Path: "/id", Value: json.RawMessage(`"s1"`)}, // reads are fine
		{Op: "replace", Path: "/level", Value: json.RawMessage(`5`)},
	})
	assert.NoError(t, err)

	err = w.Validate("settlement", model.PatchDoc{
		{Op: "replace", Path: "/id", Value: json.RawMessage(`"x"`)},
	})
	require.Error(t, err)
	assert.True(t, model.IsForbiddenPath(err))
}

func TestLoadWhitelist(t *testing.T) {
	w, err := LoadWhitelist([]byte("settlement: [level, name]\nparty: [members]\n"))
	require.NoError(t, err)
	assert.True(t, w.Allows("settlement", "/level"))
	assert.False(t, w.Allows("settlement", "/structures"))
	assert.True(t, w.Allows("party", "/members"))
}

func mustNode(t *testing.T, doc string) model.Node {
	t.Helper()
	n, err := model.DecodeNode([]byte(doc))
	require.NoError(t, err)
	return n
}

func buildGraph(t *testing.T, s *store.Memory) *graph.Graph {
	t.Helper()
	ctx := context.Background()
	b := graph.NewBuilder("cmp-1", "main", eval.NewRegistry())

	vars, err := s.ListVariables(ctx, "cmp-1")
	require.NoError(t, err)
	for _, v := range vars {
		b.AddVariable(v)
	}
	effects, err := s.ListEffects(ctx, "cmp-1", "main")
	require.NoError(t, err)
	for _, e := range effects {
		b.AddEffect(e)
	}
	g, err := b.Build()
	require.NoError(t, err)
	return g
}
