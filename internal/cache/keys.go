package cache

// Key scheme. Colon-delimited segments, campaign first so a campaign's
// entire footprint is one wildcard away:
//
//	cf:<campaign>:<branch>:<entityType>:<entityID>   computed fields
//	var:<campaign>:<scopeID>:<key>                   derived variable value
//
// Entity-scoped invalidation deletes exact keys; pattern-scoped
// invalidation uses the *Pattern helpers.

// ComputedFieldsKey is the cache key for one entity's computed fields.
func ComputedFieldsKey(campaignID, branchID, entityType, entityID string) string {
	return "cf:" + campaignID + ":" + branchID + ":" + entityType + ":" + entityID
}

// VariableValueKey is the cache key for one derived variable's value.
// Scope IDs are unique across scopes, so the scope kind is not part of
// the key.
func VariableValueKey(campaignID, scopeID, key string) string {
	return "var:" + campaignID + ":" + scopeID + ":" + key
}

// EntityTypePattern matches the computed fields of every entity of a type
// within a branch. Used when a class-scoped condition definition changes.
func EntityTypePattern(campaignID, branchID, entityType string) string {
	return "cf:" + campaignID + ":" + branchID + ":" + entityType + ":*"
}

// BranchPattern matches every computed-field entry in a branch.
func BranchPattern(campaignID, branchID string) string {
	return "cf:" + campaignID + ":" + branchID + ":*"
}

// CampaignVariablePattern matches every cached variable value in a
// campaign.
func CampaignVariablePattern(campaignID string) string {
	return "var:" + campaignID + ":*"
}
