package upload

import (
	"fmt"
	"sync"
)

// Status is the lifecycle state of an upload session.
type Status string

const (
	StatusInitiated         Status = "initiated"
	StatusUploading         Status = "uploading"
	StatusAllChunksReceived Status = "all_chunks_received"
	StatusFinalized         Status = "finalized"
	StatusAborted           Status = "aborted"
)

// Session is the server-side state of one chunked upload. All mutation goes
// through the Manager while holding the session mutex. Received chunk
// indices are tracked as a set, not a counter, so duplicates and gaps are
// detected correctly.
type Session struct {
	mu sync.Mutex

	FileID      string
	FileName    string
	MimeType    string
	TotalBytes  int64
	TotalChunks int

	received map[int]struct{}
	status   Status
	dir      string // spool directory holding one file per chunk index

	// result caches the finalize response for idempotent repeat calls.
	result *FinalizeResponse
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ReceivedCount returns the number of distinct chunk indices received.
func (s *Session) ReceivedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

// markReceived records a chunk index and advances the state machine.
// Invariant: status is AllChunksReceived exactly when every index is present.
func (s *Session) markReceived(index int) {
	s.received[index] = struct{}{}
	if len(s.received) == s.TotalChunks {
		s.status = StatusAllChunksReceived
	} else {
		s.status = StatusUploading
	}
}

func (s *Session) chunkPath(index int) string {
	return fmt.Sprintf("%s/chunk_%06d", s.dir, index)
}

func (s *Session) assembledPath() string {
	return s.dir + "/assembled"
}
