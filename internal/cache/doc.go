// Package cache defines the byte cache behind computed-field evaluation
// and the key scheme the invalidation coordinator targets.
//
// The cache is strictly a performance layer: every operation is allowed to
// fail or miss without affecting correctness, and callers treat failures
// as misses. The Memory implementation serves single-process deployments
// and tests; the interface leaves room for a networked backend.
package cache
