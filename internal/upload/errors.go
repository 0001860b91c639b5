package upload

import "errors"

var (
	ErrSessionNotFound   = errors.New("upload session not found")
	ErrFileTooLarge      = errors.New("file exceeds maximum upload size")
	ErrChunksIncomplete  = errors.New("not all chunks received")
	ErrSessionFinalized  = errors.New("upload session already finalized")
	ErrChunkIndexInvalid = errors.New("chunk index out of range")
)
