// Package ingest orchestrates the document indexing flow: split the
// document into segments, embed them, and upsert the vectors.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lexichat/backend/internal/segment"
	"github.com/lexichat/backend/internal/vectorstore"
)

// Embedder turns segments into vector records.
type Embedder interface {
	EmbedSegments(ctx context.Context, segments []segment.Segment) ([]vectorstore.Record, error)
}

// Store persists vector records.
type Store interface {
	Upsert(ctx context.Context, records []vectorstore.Record) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Result contains statistics about a single document ingestion.
type Result struct {
	DocumentID   string
	DocumentName string
	Segments     int
	Bytes        int
	Duration     time.Duration
}

// Pipeline wires the splitter, the embedding batcher and the vector store.
type Pipeline struct {
	splitter *segment.Splitter
	embedder Embedder
	store    Store
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline with the given components.
func NewPipeline(splitter *segment.Splitter, embedder Embedder, store Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// IngestText indexes a document whose full text is already in memory.
// Re-ingesting the same documentID overwrites the previous segments in
// place; stale trailing segments from a longer earlier version are
// removed first.
func (p *Pipeline) IngestText(ctx context.Context, documentID, documentName, text string) (*Result, error) {
	start := time.Now()

	segments := p.splitter.Split(text, documentID, documentName)
	if len(segments) == 0 {
		return nil, fmt.Errorf("document %s: no indexable content", documentID)
	}
	p.logger.Debug("Split document", "document_id", documentID, "segments", len(segments))

	records, err := p.embedder.EmbedSegments(ctx, segments)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", documentID, err)
	}

	// Clear any previous version so shrunken re-uploads do not leave
	// orphaned tail segments behind.
	if err := p.store.DeleteByDocument(ctx, documentID); err != nil {
		p.logger.Warn("Failed to clear previous document version",
			"document_id", documentID, "error", err)
	}

	if err := p.store.Upsert(ctx, records); err != nil {
		return nil, fmt.Errorf("store document %s: %w", documentID, err)
	}

	result := &Result{
		DocumentID:   documentID,
		DocumentName: documentName,
		Segments:     len(segments),
		Bytes:        len(text),
		Duration:     time.Since(start),
	}
	p.logger.Info("Indexed document",
		"document_id", documentID,
		"name", documentName,
		"segments", result.Segments,
		"duration", result.Duration,
	)
	return result, nil
}

// IngestFile reads the file at path and indexes it under documentID.
func (p *Pipeline) IngestFile(ctx context.Context, documentID, documentName, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", documentID, err)
	}
	return p.IngestText(ctx, documentID, documentName, string(data))
}

// DeleteDocument removes every segment belonging to the document.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) error {
	if err := p.store.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	p.logger.Info("Deleted document", "document_id", documentID)
	return nil
}
