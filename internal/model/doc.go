// Package model provides the foundation types for the reckoner engine.
//
// This package contains type definitions, the expression-node vocabulary,
// the error taxonomy, and canonical JSON serialization. All other internal
// packages import model; model imports nothing internal. This keeps the
// type layer free of circular dependencies.
//
// Key design constraints:
//   - Expression nodes form a closed, sealed union (Literal, VarRef,
//     Operator, DomainOp) dispatched by type switch, never reflection.
//   - Expression trees are immutable after decoding: constructed once,
//     evaluated many times.
//   - All JSON tags use snake_case.
package model
