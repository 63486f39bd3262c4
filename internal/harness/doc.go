// Package harness runs declarative YAML scenarios against a real engine
// over an in-memory SQLite store.
//
// A scenario seeds entities, variables, conditions, and effects, then
// executes a sequence of steps: evaluating computed fields, mutating
// variables, executing effects, and evaluating derived variables. Each
// step appends one event to the trace; traces serialize to canonical
// JSON and compare byte-for-byte against golden files, so any behavior
// drift shows up as a golden diff.
//
// Determinism: execution IDs come from a sequential generator and the
// clock is fixed, so a scenario produces the same trace on every run.
package harness
