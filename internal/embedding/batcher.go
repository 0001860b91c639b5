package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lexichat/backend/internal/pkg/retry"
	"github.com/lexichat/backend/internal/segment"
	"github.com/lexichat/backend/internal/vectorstore"
)

const (
	// DefaultBatchSize is the number of segments per provider call. Small
	// batches keep peak memory flat on a constrained host.
	DefaultBatchSize = 10

	// DefaultPacing is the delay between successive batches, a deliberate
	// throughput trade-off to avoid provider rate-limit rejection.
	DefaultPacing = 100 * time.Millisecond
)

// provider is the embedding API surface the batcher depends on.
type provider interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Batcher turns segments into vector-store records, batching provider calls
// and retrying rate-limited batches with exponential backoff.
type Batcher struct {
	api       provider
	batchSize int
	pacing    time.Duration
	policy    retry.Policy
	logger    *slog.Logger
}

// NewBatcher creates a batcher over the given client with default batch size,
// pacing and retry policy.
func NewBatcher(client *Client, logger *slog.Logger) *Batcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{
		api:       client,
		batchSize: DefaultBatchSize,
		pacing:    DefaultPacing,
		policy:    retry.Default(),
		logger:    logger,
	}
}

// EmbedSegments embeds all segments and returns one record per segment with
// deterministic ids and sanitized metadata. A failure inside a batch fails
// that whole batch and propagates; the caller decides whether to abort or
// skip the document.
func (b *Batcher) EmbedSegments(ctx context.Context, segments []segment.Segment) ([]vectorstore.Record, error) {
	records := make([]vectorstore.Record, 0, len(segments))

	for i := 0; i < len(segments); i += b.batchSize {
		end := min(i+b.batchSize, len(segments))
		batch := segments[i:end]

		texts := make([]string, len(batch))
		for j, seg := range batch {
			texts[j] = seg.Text
		}

		vectors, err := b.embedWithRetry(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}

		for j, seg := range batch {
			records = append(records, vectorstore.Record{
				ID:     seg.ID(),
				Vector: vectors[j],
				Metadata: vectorstore.SanitizeMetadata(map[string]any{
					vectorstore.FieldRecordID:      seg.ID(),
					vectorstore.FieldDocumentID:    seg.DocumentID,
					vectorstore.FieldDocumentName:  seg.DocumentName,
					vectorstore.FieldSequenceIndex: seg.SequenceIndex,
					vectorstore.FieldText:          seg.Text,
				}),
			})
		}

		b.logger.Debug("embedded batch", "from", i, "to", end)
		if end < len(segments) {
			time.Sleep(b.pacing)
		}
	}

	return records, nil
}

// EmbedQuery embeds a single query string for similarity search.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := b.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vectors[0], nil
}

func (b *Batcher) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := b.policy.Do(ctx, func() error {
		var opErr error
		vectors, opErr = b.api.CreateEmbeddings(ctx, texts)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	for i, vector := range vectors {
		if len(vector) != Dimension {
			return nil, fmt.Errorf("embedding %d has %d dimensions, expected %d",
				i, len(vector), Dimension)
		}
	}
	return vectors, nil
}
