package scope

import "github.com/synapsedb/synapse/internal/apperrors"

// Global is the sentinel scope id meaning "visible from every scope."
const Global = ""

// RequireWriteScope validates a write's scope id: every write needs a
// scope unless the caller explicitly opts into writing a global entity.
func RequireWriteScope(scopeID string, explicitGlobal bool) error {
	if scopeID == Global && !explicitGlobal {
		return apperrors.NewScopeMismatch("scope: write requires a scope id, or explicit global opt-in")
	}
	return nil
}

// Visible reports whether an entity scoped to entityScope is visible to a
// reader in readerScope: same scope, or the entity is global.
func Visible(readerScope, entityScope string) bool {
	return entityScope == Global || entityScope == readerScope
}

// CheckEdge validates that a graph edge between two scoped entities doesn't
// cross two distinct non-global scopes.
func CheckEdge(sourceScope, targetScope string) error {
	if sourceScope != Global && targetScope != Global && sourceScope != targetScope {
		return apperrors.NewScopeMismatch("scope: cannot link across scopes %q and %q", sourceScope, targetScope)
	}
	return nil
}
