package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexichat/backend/internal/vectorstore"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, vectorstore.VectorDimension), nil
}

type fakeSearcher struct {
	chunks      []vectorstore.ContextChunk
	gotTopK     int
	gotDocIDs   []string
	queryCalled bool
}

func (f *fakeSearcher) Query(ctx context.Context, vector []float32, documentIDs []string, topK int) []vectorstore.ContextChunk {
	f.queryCalled = true
	f.gotTopK = topK
	f.gotDocIDs = documentIDs
	return f.chunks
}

func chunksWithTokens(tokens ...int) []vectorstore.ContextChunk {
	out := make([]vectorstore.ContextChunk, len(tokens))
	for i, n := range tokens {
		out[i] = vectorstore.ContextChunk{
			ID:             fmt.Sprintf("doc-1-chunk-%d", i),
			DocumentID:     "doc-1",
			Text:           "clause",
			RelevanceScore: 1 - float64(i)*0.01,
			ApproxTokens:   n,
		}
	}
	return out
}

func TestSelectContext_BudgetTruncation(t *testing.T) {
	// 10 candidates of 500 tokens against a 2200-token ceiling: exactly 4
	// fit (2000), the 5th would breach.
	store := &fakeSearcher{chunks: chunksWithTokens(500, 500, 500, 500, 500, 500, 500, 500, 500, 500)}
	sel := NewSelector(&fakeEmbedder{}, store, nil, nil)

	selected, err := sel.SelectContext(context.Background(), "q", nil, Budget{
		MaxContextTokens: 2200,
		MaxSegmentCount:  20,
	})
	require.NoError(t, err)
	assert.Len(t, selected, 4)
}

func TestSelectContext_NeverExceedsBudget(t *testing.T) {
	cases := []struct {
		name   string
		tokens []int
		budget Budget
	}{
		{"tight tokens", []int{300, 400, 100, 900, 50}, Budget{MaxContextTokens: 700, MaxSegmentCount: 10}},
		{"tight segments", []int{10, 10, 10, 10, 10}, Budget{MaxContextTokens: 1000, MaxSegmentCount: 2}},
		{"single chunk too large", []int{5000}, Budget{MaxContextTokens: 100, MaxSegmentCount: 5}},
		{"empty candidates", nil, Budget{MaxContextTokens: 100, MaxSegmentCount: 5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeSearcher{chunks: chunksWithTokens(tc.tokens...)}
			sel := NewSelector(&fakeEmbedder{}, store, nil, nil)

			selected, err := sel.SelectContext(context.Background(), "q", nil, tc.budget)
			require.NoError(t, err)

			total := 0
			for _, chunk := range selected {
				total += chunk.ApproxTokens
			}
			assert.LessOrEqual(t, total, tc.budget.MaxContextTokens)
			assert.LessOrEqual(t, len(selected), tc.budget.MaxSegmentCount)
		})
	}
}

func TestSelectContext_SortsByScoreStable(t *testing.T) {
	store := &fakeSearcher{chunks: []vectorstore.ContextChunk{
		{ID: "a", RelevanceScore: 0.5, ApproxTokens: 10},
		{ID: "b", RelevanceScore: 0.9, ApproxTokens: 10},
		{ID: "c", RelevanceScore: 0.5, ApproxTokens: 10}, // ties with "a", retrieval order kept
		{ID: "d", RelevanceScore: 0.7, ApproxTokens: 10},
	}}
	sel := NewSelector(&fakeEmbedder{}, store, nil, nil)

	selected, err := sel.SelectContext(context.Background(), "q", nil, Budget{
		MaxContextTokens: 100,
		MaxSegmentCount:  4,
	})
	require.NoError(t, err)
	require.Len(t, selected, 4)

	assert.Equal(t, "b", selected[0].ID)
	assert.Equal(t, "d", selected[1].ID)
	assert.Equal(t, "a", selected[2].ID)
	assert.Equal(t, "c", selected[3].ID)
}

func TestSelectContext_InflatesCandidateCount(t *testing.T) {
	store := &fakeSearcher{}
	sel := NewSelector(&fakeEmbedder{}, store, nil, nil)

	_, err := sel.SelectContext(context.Background(), "q", nil, Budget{
		MaxContextTokens: 1000,
		MaxSegmentCount:  8,
	})
	require.NoError(t, err)
	assert.Equal(t, 40, store.gotTopK)
}

func TestSelectContext_FallbackBudgetRestrictsDocuments(t *testing.T) {
	store := &fakeSearcher{chunks: chunksWithTokens(100)}
	sel := NewSelector(&fakeEmbedder{}, store, nil, nil)

	docIDs := []string{"doc-1", "doc-2", "doc-3"}
	selected, err := sel.SelectContext(context.Background(), "q", docIDs, FallbackBudget())
	require.NoError(t, err)

	assert.Equal(t, []string{"doc-1"}, store.gotDocIDs)
	assert.LessOrEqual(t, len(selected), 1)
}

func TestSelectContext_EmbedErrorPropagates(t *testing.T) {
	sel := NewSelector(&fakeEmbedder{err: fmt.Errorf("boom")}, &fakeSearcher{}, nil, nil)

	_, err := sel.SelectContext(context.Background(), "q", nil, DefaultBudget())
	assert.Error(t, err)
}

// pressureGovernor denies the first acquire, then admits after Reclaim.
type pressureGovernor struct {
	denials       int
	reclaimed     bool
	acquired      int
	released      int
	gotThresholds []uint64
}

func (g *pressureGovernor) TryAcquire(estimatedBytes, thresholdBytes uint64) bool {
	g.gotThresholds = append(g.gotThresholds, thresholdBytes)
	if g.denials > 0 {
		g.denials--
		return false
	}
	g.acquired++
	return true
}

func (g *pressureGovernor) Release(estimatedBytes uint64) { g.released++ }
func (g *pressureGovernor) Reclaim()                      { g.reclaimed = true }

func TestSelectContext_MemoryPressureDoesNotFailRequest(t *testing.T) {
	gov := &pressureGovernor{denials: 1}
	store := &fakeSearcher{chunks: chunksWithTokens(100)}
	sel := NewSelector(&fakeEmbedder{}, store, gov, nil)

	selected, err := sel.SelectContext(context.Background(), "q", nil, DefaultBudget())
	require.NoError(t, err)
	assert.NotEmpty(t, selected)
	assert.True(t, gov.reclaimed, "reclamation should be requested under pressure")
	assert.Equal(t, gov.acquired, gov.released)
}

func TestSelectContext_PressurePersistsStillProceeds(t *testing.T) {
	gov := &pressureGovernor{denials: 2}
	store := &fakeSearcher{chunks: chunksWithTokens(100)}
	sel := NewSelector(&fakeEmbedder{}, store, gov, nil)

	selected, err := sel.SelectContext(context.Background(), "q", nil, DefaultBudget())
	require.NoError(t, err)
	assert.NotEmpty(t, selected)
}

// The budget's threshold must reach the governor, so the degraded profile
// admits under its tighter ceiling rather than the constructed default.
func TestSelectContext_BudgetThresholdReachesGovernor(t *testing.T) {
	gov := &pressureGovernor{}
	store := &fakeSearcher{chunks: chunksWithTokens(100)}
	sel := NewSelector(&fakeEmbedder{}, store, gov, nil)

	_, err := sel.SelectContext(context.Background(), "q", nil, DefaultBudget())
	require.NoError(t, err)
	_, err = sel.SelectContext(context.Background(), "q", nil, FallbackBudget())
	require.NoError(t, err)

	require.Len(t, gov.gotThresholds, 2)
	assert.Equal(t, uint64(DefaultBudget().MemoryThresholdMB)*1024*1024, gov.gotThresholds[0])
	assert.Equal(t, uint64(FallbackBudget().MemoryThresholdMB)*1024*1024, gov.gotThresholds[1])
}

func TestMemoryGovernor(t *testing.T) {
	gov := NewMemoryGovernor(1) // 1 MiB default threshold
	gov.readHeap = func() uint64 { return 0 }

	assert.True(t, gov.TryAcquire(512*1024, 0))
	assert.False(t, gov.TryAcquire(1024*1024, 0), "over threshold with reservation held")
	gov.Release(512 * 1024)
	assert.True(t, gov.TryAcquire(1024*1024, 0))

	// Release never underflows.
	gov.Release(1 << 40)
	assert.True(t, gov.TryAcquire(1024, 0))
}

func TestMemoryGovernor_PerCallThreshold(t *testing.T) {
	gov := NewMemoryGovernor(1)
	gov.readHeap = func() uint64 { return 0 }

	// A larger per-call threshold admits what the default would deny.
	assert.False(t, gov.TryAcquire(2*1024*1024, 0))
	assert.True(t, gov.TryAcquire(2*1024*1024, 4*1024*1024))
	gov.Release(2 * 1024 * 1024)

	// A tighter per-call threshold denies what the default would admit.
	assert.False(t, gov.TryAcquire(512*1024, 256*1024))
}

func TestMemoryGovernor_HeapCounts(t *testing.T) {
	gov := NewMemoryGovernor(1)
	gov.readHeap = func() uint64 { return 2 * 1024 * 1024 }

	assert.False(t, gov.TryAcquire(1, 0), "heap already over threshold")
}
