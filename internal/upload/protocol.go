// Package upload implements both sides of the chunked transfer protocol:
// the client that splits a file into byte ranges and uploads them under
// bounded concurrency, and the server-side session manager that receives,
// tracks and reassembles them.
package upload

// Multipart form field names for the chunk endpoint.
const (
	FormFieldChunk       = "chunk"
	FormFieldFileID      = "fileId"
	FormFieldChunkIndex  = "chunkIndex"
	FormFieldTotalChunks = "totalChunks"
)

// Protocol endpoints, relative to the server base URL.
const (
	EndpointInitiate = "/upload/initiate"
	EndpointChunk    = "/upload/chunk"
	EndpointFinalize = "/upload/finalize"
	EndpointAbort    = "/upload/abort"
)

// InitiateRequest opens an upload session.
type InitiateRequest struct {
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
	FileType    string `json:"fileType"`
	FileSize    int64  `json:"fileSize"`
	TotalChunks int    `json:"totalChunks"`
}

// FinalizeRequest asks the server to reassemble a completed session.
type FinalizeRequest struct {
	FileID string `json:"fileId"`
}

// FinalizeResponse is the reassembled-file result. Finalize is idempotent:
// repeating it on a finalized session returns the same response.
type FinalizeResponse struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	Success  bool   `json:"success"`
}

// AbortRequest discards a session and its received chunk data.
type AbortRequest struct {
	FileID string `json:"fileId"`
}
