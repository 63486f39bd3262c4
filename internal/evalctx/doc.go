// Package evalctx assembles the evaluation context for one entity: its
// stored fields, the state variables in scope, and the values of derived
// variables, flattened into the dotted-path map the evaluator reads.
//
// Context building degrades gracefully. A missing entity or a broken
// formula produces a partial context and a warning log, never a hard
// failure: computed fields for a half-missing entity should still show
// what can be shown.
package evalctx
