// Package effect executes structured patches against entities: path
// whitelisting, ordered sequential application, and append-only audit
// records.
//
// Execution is deliberately forgiving at the batch level: one failing
// effect is recorded and skipped, the rest of the batch proceeds. Only the
// dependency-aware entry point fails a whole batch up front, and only for
// cyclic ordering constraints, because there is no correct order to apply.
package effect
