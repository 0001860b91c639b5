package upload

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/lexichat/backend/internal/pkg/errs"
)

// DefaultRetention is how long a finalized or aborted session (and its
// assembled file) is kept before garbage collection.
const DefaultRetention = 30 * time.Minute

// Manager owns all upload sessions. Sessions live in a TTL cache: open
// sessions do not expire, terminal ones are garbage-collected after the
// retention window, removing their spool directory on eviction.
type Manager struct {
	sessions    *cache.Cache
	baseDir     string
	maxFileSize int64
	retention   time.Duration
	logger      *slog.Logger
}

// NewManager creates a manager spooling chunk data under baseDir.
func NewManager(baseDir string, maxFileSize int64, retention time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}

	sessions := cache.New(cache.NoExpiration, time.Minute)
	m := &Manager{
		sessions:    sessions,
		baseDir:     baseDir,
		maxFileSize: maxFileSize,
		retention:   retention,
		logger:      logger,
	}
	sessions.OnEvicted(func(fileID string, value any) {
		if session, ok := value.(*Session); ok {
			if err := os.RemoveAll(session.dir); err != nil {
				logger.Warn("failed to remove session spool dir",
					"file_id", fileID, "error", err)
			}
		}
	})
	return m
}

// Initiate creates a session for the described file. Oversized files are
// rejected with a permanent validation error before any chunk is accepted.
func (m *Manager) Initiate(req InitiateRequest) error {
	if req.FileID == "" || req.TotalChunks <= 0 || req.FileSize <= 0 {
		return fmt.Errorf("%w: invalid initiate request", errs.ErrValidation)
	}
	if m.maxFileSize > 0 && req.FileSize > m.maxFileSize {
		return fmt.Errorf("%w: %w: %d bytes exceeds ceiling of %d",
			errs.ErrValidation, ErrFileTooLarge, req.FileSize, m.maxFileSize)
	}

	dir := filepath.Join(m.baseDir, req.FileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	session := &Session{
		FileID:      req.FileID,
		FileName:    req.FileName,
		MimeType:    req.FileType,
		TotalBytes:  req.FileSize,
		TotalChunks: req.TotalChunks,
		received:    make(map[int]struct{}, req.TotalChunks),
		status:      StatusInitiated,
		dir:         dir,
	}
	m.sessions.Set(req.FileID, session, cache.NoExpiration)

	m.logger.Info("upload session initiated",
		"file_id", req.FileID, "file_name", req.FileName,
		"size", req.FileSize, "chunks", req.TotalChunks)
	return nil
}

// ReceiveChunk stores one chunk's bytes. Chunks arriving for an aborted
// session are ignored without error; duplicates overwrite idempotently.
func (m *Manager) ReceiveChunk(fileID string, chunkIndex int, data io.Reader) error {
	session, err := m.lookup(fileID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	switch session.status {
	case StatusAborted:
		// In-flight uploads may still arrive after abort; discard silently.
		m.logger.Debug("chunk for aborted session ignored",
			"file_id", fileID, "chunk", chunkIndex)
		return nil
	case StatusFinalized:
		return fmt.Errorf("%w: %s", ErrSessionFinalized, fileID)
	}

	if chunkIndex < 0 || chunkIndex >= session.TotalChunks {
		return fmt.Errorf("%w: %d of %d", ErrChunkIndexInvalid, chunkIndex, session.TotalChunks)
	}

	file, err := os.Create(session.chunkPath(chunkIndex))
	if err != nil {
		return fmt.Errorf("create chunk file: %w", err)
	}
	if _, err := io.Copy(file, data); err != nil {
		file.Close()
		return fmt.Errorf("write chunk %d: %w", chunkIndex, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close chunk file: %w", err)
	}

	session.markReceived(chunkIndex)
	return nil
}

// Finalize reassembles the file strictly by chunk index, never by arrival
// order. Idempotent: repeating it on a finalized session returns the cached
// result without reprocessing.
func (m *Manager) Finalize(fileID string) (*FinalizeResponse, error) {
	session, err := m.lookup(fileID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.status == StatusFinalized {
		return session.result, nil
	}
	if session.status != StatusAllChunksReceived {
		return nil, fmt.Errorf("%w: %d of %d chunks received",
			ErrChunksIncomplete, len(session.received), session.TotalChunks)
	}

	size, err := m.assemble(session)
	if err != nil {
		return nil, err
	}

	session.status = StatusFinalized
	session.result = &FinalizeResponse{
		FileID:   session.FileID,
		FileName: session.FileName,
		FileSize: size,
		Success:  true,
	}
	// Start the retention clock now that the session is terminal.
	m.sessions.Set(fileID, session, m.retention)

	m.logger.Info("upload finalized", "file_id", fileID, "size", size)
	return session.result, nil
}

func (m *Manager) assemble(session *Session) (int64, error) {
	out, err := os.Create(session.assembledPath())
	if err != nil {
		return 0, fmt.Errorf("create assembled file: %w", err)
	}
	defer out.Close()

	var size int64
	for i := 0; i < session.TotalChunks; i++ {
		chunk, err := os.Open(session.chunkPath(i))
		if err != nil {
			return 0, fmt.Errorf("open chunk %d: %w", i, err)
		}
		n, err := io.Copy(out, chunk)
		chunk.Close()
		if err != nil {
			return 0, fmt.Errorf("append chunk %d: %w", i, err)
		}
		size += n
	}

	if size != session.TotalBytes {
		return 0, fmt.Errorf("assembled %d bytes, expected %d", size, session.TotalBytes)
	}
	return size, nil
}

// Abort marks the session aborted and discards received chunk data. Valid
// any time before Finalized; aborting twice is a no-op.
func (m *Manager) Abort(fileID string) error {
	session, err := m.lookup(fileID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	switch session.status {
	case StatusFinalized:
		return fmt.Errorf("%w: cannot abort", ErrSessionFinalized)
	case StatusAborted:
		return nil
	}

	session.status = StatusAborted
	if err := os.RemoveAll(session.dir); err != nil {
		m.logger.Warn("failed to discard chunk data", "file_id", fileID, "error", err)
	}
	m.sessions.Set(fileID, session, m.retention)

	m.logger.Info("upload aborted", "file_id", fileID)
	return nil
}

// AssembledPath returns the reassembled file location for a finalized
// session, for downstream text extraction.
func (m *Manager) AssembledPath(fileID string) (string, error) {
	session, err := m.lookup(fileID)
	if err != nil {
		return "", err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.status != StatusFinalized {
		return "", fmt.Errorf("%w: session not finalized", ErrChunksIncomplete)
	}
	return session.assembledPath(), nil
}

func (m *Manager) lookup(fileID string) (*Session, error) {
	value, ok := m.sessions.Get(fileID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, fileID)
	}
	return value.(*Session), nil
}
