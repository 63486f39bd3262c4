// Package engine is the facade over evaluation, dependency tracking,
// caching, and effect execution. The surrounding application talks to
// Engine and nothing below it.
//
// Engine owns the per-branch dependency graphs: each is rebuilt whole on
// definition changes and swapped atomically, so concurrent readers either
// see the old graph or the new one, never a partial rebuild. Everything
// else is request-scoped; no background work happens here.
package engine
