// Package graph builds the per-campaign dependency graph over conditions,
// derived variables, and effects, and answers the two questions the engine
// asks of it: "what order do these evaluate in" and "who is downstream of
// this change".
//
// Graphs are immutable once built. The engine rebuilds a branch's graph
// whole on every definition change and swaps the cached pointer atomically;
// concurrent readers may briefly see a stale graph, which is safe because
// invalidation is idempotent.
//
// Cycle detection runs at build time using Tarjan's strongly-connected
// components and is a hard failure: a cyclic rule set is rejected before it
// can be stored, so runtime evaluation never has to break ties in a loop.
package graph
