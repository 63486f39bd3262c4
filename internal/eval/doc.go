// Package eval implements expression evaluation over the model node union.
//
// Evaluation is split into two passes:
//
//  1. ResolveDomainOps walks the tree depth-first and replaces every
//     domain-operator subtree with a literal by calling the registered
//     resolver. This is the only pass that may touch I/O.
//  2. Evaluate runs the purely synchronous core pass over the now
//     literal-only tree. The core operators (and/or/comparison/arithmetic)
//     assume already-resolved operands and never suspend.
//
// Null semantics follow a documented total order: null compares less than
// any defined value, and numeric operations on null yield null rather
// than an error.
package eval
