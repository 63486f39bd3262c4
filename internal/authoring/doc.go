// Package authoring validates rule documents before they reach the
// engine. Documents are YAML or JSON; structural validation runs
// against embedded CUE schemas, so authoring errors carry the schema's
// constraint messages rather than whatever a hand-rolled check would
// say. Expression bodies are validated separately by the node decoder,
// which enforces the operator vocabulary and the depth limit.
package authoring
