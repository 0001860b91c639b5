// Package vectorstore owns the lifecycle of the remote vector index: lazy
// connection management, batched writes, cascading deletes and similarity
// queries. No other component touches the index directly.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/lexichat/backend/internal/pkg/retry"
	"github.com/lexichat/backend/internal/segment"
)

const (
	// DefaultUpsertBatchSize is the number of records per upsert call.
	DefaultUpsertBatchSize = 50

	// DefaultUpsertDelay is the pause between successive upsert batches,
	// a throughput trade-off to keep the store and its host responsive.
	DefaultUpsertDelay = 200 * time.Millisecond

	// DefaultDeleteBatchSize is the number of ids per delete call on the
	// fallback delete-by-id path.
	DefaultDeleteBatchSize = 1000

	// fallbackDeleteScanLimit bounds the candidate scan on the fallback
	// delete path.
	fallbackDeleteScanLimit = 10000
)

// Gateway manages a single shared Qdrant connection. The connection is
// constructed lazily on first use and re-attempted on demand after a failed
// initialization; concurrent callers never race to build two clients.
type Gateway struct {
	host   string
	port   int
	logger *slog.Logger

	UpsertBatchSize int
	UpsertDelay     time.Duration
	DeleteBatchSize int

	mu     sync.Mutex
	client *qdrant.Client
	ready  bool
}

// NewGateway creates a gateway for the given Qdrant host. No connection is
// made until the first operation.
func NewGateway(host string, port int, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		host:            host,
		port:            port,
		logger:          logger,
		UpsertBatchSize: DefaultUpsertBatchSize,
		UpsertDelay:     DefaultUpsertDelay,
		DeleteBatchSize: DefaultDeleteBatchSize,
	}
}

// ensureConnected returns the shared client, constructing and probing it on
// first use. A failed construction leaves the gateway uninitialized so the
// next call retries from scratch.
func (g *Gateway) ensureConnected(ctx context.Context) (*qdrant.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ready {
		return g.client, nil
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: g.host,
		Port: g.port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %v", ErrUnreachable, err)
	}

	// Probe before marking ready: an index-stats call confirms the
	// connection is actually live.
	if err := g.probe(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if err := g.ensureCollection(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	g.client = client
	g.ready = true
	g.logger.Info("vector store connected", "host", g.host, "port", g.port)
	return g.client, nil
}

func (g *Gateway) probe(ctx context.Context, client *qdrant.Client) error {
	policy := retry.Policy{
		MaxAttempts:         3,
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
		IsRetryable:         func(error) bool { return true },
	}
	return policy.Do(ctx, func() error {
		result, err := client.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		if result == nil || result.Title == "" {
			return fmt.Errorf("health check returned invalid response")
		}
		return nil
	})
}

// ensureCollection creates the segments collection and its payload index if
// missing. Idempotent.
func (g *Gateway) ensureCollection(ctx context.Context, client *qdrant.Client) error {
	collections, err := client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, name := range collections {
		if name == CollectionName {
			return nil
		}
	}

	err = client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     VectorDimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	// Filtered deletes and scoped queries match on document_id; without the
	// index those filters degrade to full scans.
	_, err = client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: CollectionName,
		FieldName:      FieldDocumentID,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("create payload index: %w", err)
	}

	return nil
}

// Health performs a single health check against the store.
func (g *Gateway) Health(ctx context.Context) error {
	client, err := g.ensureConnected(ctx)
	if err != nil {
		return err
	}
	result, err := client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Upsert writes records in batches. A failure on the very first batch aborts
// the whole operation; failures on later batches are logged and skipped, so
// partial success is possible but never silent total failure.
func (g *Gateway) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for i, record := range records {
		if len(record.Vector) != VectorDimension {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(record.Vector), VectorDimension)
		}
	}

	client, err := g.ensureConnected(ctx)
	if err != nil {
		return err
	}

	var failed int
	for i := 0; i < len(records); i += g.UpsertBatchSize {
		end := min(i+g.UpsertBatchSize, len(records))
		points := make([]*qdrant.PointStruct, 0, end-i)
		for _, record := range records[i:end] {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(segment.PointID(record.ID)),
				Vectors: qdrant.NewVectors(record.Vector...),
				Payload: qdrant.NewValueMap(SanitizeMetadata(record.Metadata)),
			})
		}

		_, err := client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: CollectionName,
			Points:         points,
		})
		if err != nil {
			if i == 0 {
				return fmt.Errorf("%w: %v", ErrFirstBatchFailed, err)
			}
			failed += end - i
			g.logger.Warn("upsert batch failed, continuing",
				"from", i, "to", end, "error", err)
		}

		if end < len(records) {
			time.Sleep(g.UpsertDelay)
		}
	}

	if failed > 0 {
		g.logger.Warn("upsert completed with partial failure",
			"total", len(records), "failed", failed)
	}
	return nil
}

// DeleteByDocument removes every vector belonging to documentID. It first
// attempts a single filtered delete; if the store rejects it, falls back to
// querying matching ids and deleting them in batches. Either path converges
// to zero remaining vectors for the document.
func (g *Gateway) DeleteByDocument(ctx context.Context, documentID string) error {
	client, err := g.ensureConnected(ctx)
	if err != nil {
		return err
	}

	filter := documentFilter(documentID)

	_, err = client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err == nil {
		g.logger.Info("deleted document vectors", "document_id", documentID)
		return nil
	}

	g.logger.Warn("filtered delete failed, falling back to delete-by-id",
		"document_id", documentID, "error", err)
	return g.deleteByIDFallback(ctx, client, filter, documentID)
}

// deleteByIDFallback scans the index for the document's points with a neutral
// zero vector and removes them id by id.
func (g *Gateway) deleteByIDFallback(ctx context.Context, client *qdrant.Client, filter *qdrant.Filter, documentID string) error {
	zero := make([]float32, VectorDimension)
	results, err := client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(zero...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(fallbackDeleteScanLimit)),
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return fmt.Errorf("fallback scan for document %s: %w", documentID, err)
	}
	if len(results) == 0 {
		return nil
	}

	ids := make([]*qdrant.PointId, len(results))
	for i, result := range results {
		ids[i] = result.Id
	}

	for i := 0; i < len(ids); i += g.DeleteBatchSize {
		end := min(i+g.DeleteBatchSize, len(ids))
		_, err := client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: CollectionName,
			Points:         qdrant.NewPointsSelector(ids[i:end]...),
		})
		if err != nil {
			return fmt.Errorf("fallback delete batch %d-%d: %w", i, end, err)
		}
	}

	g.logger.Info("deleted document vectors via fallback path",
		"document_id", documentID, "count", len(ids))
	return nil
}

// Query runs a similarity search, optionally restricted to documentIDs, and
// returns up to topK ranked chunks. Transient store failures degrade to an
// empty result so retrieval never breaks the chat flow; the error is logged.
func (g *Gateway) Query(ctx context.Context, vector []float32, documentIDs []string, topK int) []ContextChunk {
	chunks, err := g.queryRaw(ctx, vector, documentIDs, topK)
	if err != nil {
		g.logger.Warn("similarity query failed, returning empty context", "error", err)
		return nil
	}
	return chunks
}

func (g *Gateway) queryRaw(ctx context.Context, vector []float32, documentIDs []string, topK int) ([]ContextChunk, error) {
	if len(vector) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), VectorDimension)
	}

	client, err := g.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}

	var filter *qdrant.Filter
	if len(documentIDs) > 0 {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeywords(FieldDocumentID, documentIDs...),
			},
		}
	}

	results, err := client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	chunks := make([]ContextChunk, 0, len(results))
	for _, result := range results {
		payload := result.Payload

		// Missing or mistyped payload fields default to safe empty values
		// rather than failing the whole query.
		text := payload[FieldText].GetStringValue()
		chunks = append(chunks, ContextChunk{
			ID:             payload[FieldRecordID].GetStringValue(),
			DocumentID:     payload[FieldDocumentID].GetStringValue(),
			Text:           text,
			RelevanceScore: clampScore(float64(result.Score)),
			ApproxTokens:   segment.EstimateTokens(text),
		})
	}
	return chunks, nil
}

// Stats returns collection statistics, used by health reporting and the CLI.
func (g *Gateway) Stats(ctx context.Context) (*Stats, error) {
	client, err := g.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	collection, err := client.GetCollectionInfo(ctx, CollectionName)
	if err != nil {
		return nil, fmt.Errorf("get collection info: %w", err)
	}
	return &Stats{PointsCount: collection.GetPointsCount()}, nil
}

// Close closes the shared connection if one was established.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		err := g.client.Close()
		g.client = nil
		g.ready = false
		return err
	}
	return nil
}

func documentFilter(documentID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(FieldDocumentID, documentID),
		},
	}
}

// clampScore maps a cosine similarity onto [0,1].
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
