// Package retrieval selects a relevance-ranked, resource-bounded subset of
// stored segments to hand to answer generation.
package retrieval

// Budget bounds a single context-selection call. It is a configuration
// value, never mutated at runtime; different call sites may supply different
// budgets (normal vs degraded).
type Budget struct {
	// MaxContextTokens caps the summed approximate token count of the
	// selected chunks.
	MaxContextTokens int
	// MaxSegmentCount caps the number of selected chunks.
	MaxSegmentCount int
	// MaxDocuments, when positive, restricts the search to that many of the
	// caller's scoped documents.
	MaxDocuments int
	// MemoryThresholdMB is the heap usage above which the selector asks the
	// host for best-effort reclamation before proceeding.
	MemoryThresholdMB int
}

// DefaultBudget is the normal-profile budget for chat queries.
func DefaultBudget() Budget {
	return Budget{
		MaxContextTokens:  3000,
		MaxSegmentCount:   8,
		MemoryThresholdMB: 400,
	}
}

// FallbackBudget is the degraded profile substituted when a call under the
// default profile fails: a single segment from a single document under a
// much smaller token ceiling.
func FallbackBudget() Budget {
	return Budget{
		MaxContextTokens:  800,
		MaxSegmentCount:   1,
		MaxDocuments:      1,
		MemoryThresholdMB: 256,
	}
}
