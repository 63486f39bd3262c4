package effect

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/emberfall/reckoner/internal/model"
)

// Whitelist lists the writable root fields per entity type. Identifiers,
// timestamps, and foreign keys stay off the list so no patch can forge
// them.
type Whitelist map[string]map[string]bool

// NewWhitelist builds a whitelist from entity type to writable fields.
func NewWhitelist(fields map[string][]string) Whitelist {
	w := make(Whitelist, len(fields))
	for entityType, list := range fields {
		set := make(map[string]bool, len(list))
		for _, f := range list {
			set[f] = true
		}
		w[entityType] = set
	}
	return w
}

// DefaultWhitelist covers the built-in entity types.
func DefaultWhitelist() Whitelist {
	return NewWhitelist(map[string][]string{
		"settlement": {"level", "name", "population", "structures", "unrest", "variables"},
		"party":      {"name", "members", "morale", "variables"},
	})
}

// LoadWhitelist parses a YAML document mapping entity types to writable
// fields:
//
//	settlement: [level, name, structures]
//	party: [name, members]
func LoadWhitelist(data []byte) (Whitelist, error) {
	var fields map[string][]string
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse whitelist: %w", err)
	}
	return NewWhitelist(fields), nil
}

// rootField extracts the first segment of an RFC 6901 pointer.
func rootField(pointer string) string {
	p := strings.TrimPrefix(pointer, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}

// Allows reports whether a patch pointer targets a writable field.
// Unknown entity types allow nothing.
func (w Whitelist) Allows(entityType, pointer string) bool {
	set, ok := w[entityType]
	if !ok {
		return false
	}
	return set[rootField(pointer)]
}

// Validate checks every mutating operation of a patch against the
// whitelist. test operations read without writing and pass freely.
// The first violation is FORBIDDEN_PATH naming the offending pointer.
func (w Whitelist) Validate(entityType string, doc model.PatchDoc) error {
	for _, op := range doc {
		if op.Op == "test" {
			continue
		}
		if !w.Allows(entityType, op.Path) {
			return model.NewForbiddenPath(entityType, op.Path)
		}
	}
	return nil
}
