package engine

import (
	"context"

	"github.com/emberfall/reckoner/internal/graph"
)

func branchKey(campaignID, branchID string) string {
	return campaignID + "/" + branchID
}

// Graph returns the dependency graph for one campaign+branch, building
// and caching it on first use. Rebuilds race safely: both racers build a
// complete graph from the store and the last store wins.
func (e *Engine) Graph(ctx context.Context, campaignID, branchID string) (*graph.Graph, error) {
	if g, ok := e.graphs.Load(branchKey(campaignID, branchID)); ok {
		return g.(*graph.Graph), nil
	}
	g, err := e.buildGraph(ctx, campaignID, branchID)
	if err != nil {
		return nil, err
	}
	e.graphs.Store(branchKey(campaignID, branchID), g)
	return g, nil
}

// dropGraph discards the cached graph so the next reader rebuilds it.
func (e *Engine) dropGraph(campaignID, branchID string) {
	e.graphs.Delete(branchKey(campaignID, branchID))
}

func (e *Engine) buildGraph(ctx context.Context, campaignID, branchID string) (*graph.Graph, error) {
	b := graph.NewBuilder(campaignID, branchID, e.reg)

	vars, err := e.store.ListVariables(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	for _, v := range vars {
		b.AddVariable(v)
	}

	conds, err := e.store.ListConditions(ctx, campaignID, branchID)
	if err != nil {
		return nil, err
	}
	for _, c := range conds {
		b.AddCondition(c)
	}

	effects, err := e.store.ListEffects(ctx, campaignID, branchID)
	if err != nil {
		return nil, err
	}
	for _, ef := range effects {
		b.AddEffect(ef)
	}

	return b.Build()
}
