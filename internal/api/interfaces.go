package api

import (
	"context"

	"github.com/lexichat/backend/internal/answer"
	"github.com/lexichat/backend/internal/ingest"
	"github.com/lexichat/backend/internal/retrieval"
	"github.com/lexichat/backend/internal/vectorstore"
)

// Ingestor indexes assembled uploads and removes documents.
type Ingestor interface {
	IngestFile(ctx context.Context, documentID, documentName, path string) (*ingest.Result, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// ContextSelector picks the context chunks for a question under a budget.
type ContextSelector interface {
	SelectContext(ctx context.Context, query string, documentIDs []string, budget retrieval.Budget) ([]vectorstore.ContextChunk, error)
}

// AnswerGenerator produces the chat answer from the selected context.
type AnswerGenerator interface {
	Answer(ctx context.Context, query string, chunks []vectorstore.ContextChunk) (*answer.Answer, error)
}

// StoreAdmin exposes the vector store's health and size.
type StoreAdmin interface {
	Health(ctx context.Context) error
	Stats(ctx context.Context) (*vectorstore.Stats, error)
}
