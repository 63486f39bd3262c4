package eval

import "strings"

// Context is the per-entity evaluation environment: entity properties,
// resolved state variables, and caller overlays, keyed by dotted paths.
type Context map[string]any

// Lookup resolves a dotted path against the context. A flat key match
// wins over nested traversal so that variables stored under literal
// dotted keys (e.g. "settlement.structures") resolve directly.
// Missing paths return (nil, false); evaluation treats them as null.
func (c Context) Lookup(path string) (any, bool) {
	if c == nil || path == "" {
		return nil, false
	}
	if v, ok := c[path]; ok {
		return v, true
	}

	parts := strings.Split(path, ".")
	var cur any = map[string]any(c)
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Merge returns a copy of c with overlay layered on top. Overlay keys win.
// Either side may be nil.
func (c Context) Merge(overlay Context) Context {
	merged := make(Context, len(c)+len(overlay))
	for k, v := range c {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
