package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lexichat/backend/internal/vectorstore"
)

// candidateMultiplier inflates the similarity-search limit over the segment
// budget so post-filtering still has enough candidates to choose from.
const candidateMultiplier = 5

// QueryEmbedder embeds a query string for similarity search.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs a similarity search, degrading to an empty result on
// transient store failure.
type Searcher interface {
	Query(ctx context.Context, vector []float32, documentIDs []string, topK int) []vectorstore.ContextChunk
}

// reclaimer is the optional best-effort memory reclamation hook a Governor
// may expose.
type reclaimer interface {
	Reclaim()
}

// Selector picks the context chunks for a question under a Budget.
type Selector struct {
	embedder QueryEmbedder
	store    Searcher
	governor Governor
	logger   *slog.Logger
}

// NewSelector creates a selector. governor may be nil to disable admission
// control.
func NewSelector(embedder QueryEmbedder, store Searcher, governor Governor, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		embedder: embedder,
		store:    store,
		governor: governor,
		logger:   logger,
	}
}

// SelectContext embeds the query, retrieves an inflated candidate set and
// greedily accepts candidates by descending relevance, stopping at the
// first candidate that would breach the token or segment budget.
func (s *Selector) SelectContext(ctx context.Context, query string, documentIDs []string, budget Budget) ([]vectorstore.ContextChunk, error) {
	release := s.admit(ctx, budget)
	defer release()

	if budget.MaxDocuments > 0 && len(documentIDs) > budget.MaxDocuments {
		documentIDs = documentIDs[:budget.MaxDocuments]
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates := s.store.Query(ctx, vector, documentIDs, budget.MaxSegmentCount*candidateMultiplier)
	if len(candidates) == 0 {
		return nil, nil
	}

	// Stable sort keeps original retrieval order on score ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RelevanceScore > candidates[j].RelevanceScore
	})

	selected := make([]vectorstore.ContextChunk, 0, budget.MaxSegmentCount)
	tokens := 0
	for _, candidate := range candidates {
		if len(selected) >= budget.MaxSegmentCount {
			break
		}
		if tokens+candidate.ApproxTokens > budget.MaxContextTokens {
			// Stop at the first breach; do not skip ahead to a smaller
			// later candidate.
			break
		}
		selected = append(selected, candidate)
		tokens += candidate.ApproxTokens
	}

	s.logger.Debug("selected context",
		"candidates", len(candidates), "selected", len(selected), "tokens", tokens)
	return selected, nil
}

// admit probes memory pressure before retrieval. Over the threshold it asks
// for best-effort reclamation and waits briefly, but never fails the request
// solely due to memory pressure. The returned func releases any reservation.
func (s *Selector) admit(ctx context.Context, budget Budget) func() {
	if s.governor == nil {
		return func() {}
	}

	// Rough working-set estimate: budgeted context characters.
	estimate := uint64(budget.MaxContextTokens) * 4
	threshold := uint64(budget.MemoryThresholdMB) * 1024 * 1024

	if s.governor.TryAcquire(estimate, threshold) {
		return func() { s.governor.Release(estimate) }
	}

	s.logger.Warn("memory pressure before retrieval, requesting reclamation",
		"estimated_bytes", estimate, "threshold_bytes", threshold)
	if r, ok := s.governor.(reclaimer); ok {
		r.Reclaim()
	}
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
	}

	if s.governor.TryAcquire(estimate, threshold) {
		return func() { s.governor.Release(estimate) }
	}
	// Still over threshold: proceed anyway, unreserved.
	return func() {}
}
