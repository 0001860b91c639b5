package api

// ChatRequest asks a question against previously indexed documents.
// DocumentIDs narrows retrieval to those documents; empty means all.
type ChatRequest struct {
	Message     string   `json:"message"`
	DocumentIDs []string `json:"documentIds,omitempty"`
}

// Reference points at a context passage the answer was grounded on.
type Reference struct {
	DocumentID string  `json:"documentId"`
	Snippet    string  `json:"snippet"`
	Confidence float64 `json:"confidence"`
}

// ChatResponse carries the generated answer and its supporting references.
type ChatResponse struct {
	Response   string      `json:"response"`
	References []Reference `json:"references"`
	TokensUsed int64       `json:"tokensUsed,omitempty"`
}

// IngestResponse reports the outcome of indexing a finalized upload.
type IngestResponse struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	Segments int    `json:"segments"`
	Success  bool   `json:"success"`
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status      string `json:"status"`
	VectorStore string `json:"vectorStore"`
	Points      uint64 `json:"points,omitempty"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
