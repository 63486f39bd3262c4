package store

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/emberfall/reckoner/internal/model"
)

// applyPatchDoc applies an RFC 6902 patch document to an entity document
// and returns the patched copy. The input document is never mutated.
func applyPatchDoc(data json.RawMessage, doc model.PatchDoc) (json.RawMessage, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}

	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	patched, err := patch.Apply(data)
	if err != nil {
		return nil, fmt.Errorf("apply patch: %w", err)
	}
	return patched, nil
}
