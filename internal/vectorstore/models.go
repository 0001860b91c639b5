package vectorstore

// CollectionName is the single Qdrant collection holding all segment vectors.
const CollectionName = "segments"

// VectorDimension is the embedding size for text-embedding-3-small.
const VectorDimension = 1536

// Payload field names stored with every vector.
const (
	FieldRecordID      = "record_id"
	FieldDocumentID    = "document_id"
	FieldDocumentName  = "document_name"
	FieldSequenceIndex = "sequence_index"
	FieldText          = "text"
)

// Record is a vector-store record: a deterministic logical id, a fixed-length
// vector and a bounded metadata map.
type Record struct {
	ID       string // "{documentId}-chunk-{sequenceIndex}"
	Vector   []float32
	Metadata map[string]any
}

// ContextChunk is an ephemeral query-time result, built fresh per similarity
// search and never persisted.
type ContextChunk struct {
	ID             string
	DocumentID     string
	Text           string
	RelevanceScore float64 // 0..1
	ApproxTokens   int
}

// Stats contains collection statistics.
type Stats struct {
	PointsCount uint64
}
