package upload

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexichat/backend/internal/pkg/errs"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), 50<<20, time.Minute, nil)
}

func initiated(t *testing.T, m *Manager, fileID string, size int64, chunks int) {
	t.Helper()
	require.NoError(t, m.Initiate(InitiateRequest{
		FileID:      fileID,
		FileName:    "contract.pdf",
		FileType:    "application/pdf",
		FileSize:    size,
		TotalChunks: chunks,
	}))
}

func TestManager_InitiateRejectsOversizedFile(t *testing.T) {
	m := NewManager(t.TempDir(), 50<<20, time.Minute, nil)

	err := m.Initiate(InitiateRequest{
		FileID:      "f1",
		FileName:    "huge.pdf",
		FileSize:    60 << 20,
		TotalChunks: 60,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestManager_StatusInvariant(t *testing.T) {
	m := testManager(t)
	initiated(t, m, "f1", 6, 3)

	session, err := m.lookup("f1")
	require.NoError(t, err)
	assert.Equal(t, StatusInitiated, session.Status())

	require.NoError(t, m.ReceiveChunk("f1", 0, bytes.NewReader([]byte("ab"))))
	assert.Equal(t, StatusUploading, session.Status())

	require.NoError(t, m.ReceiveChunk("f1", 2, bytes.NewReader([]byte("ef"))))
	assert.Equal(t, StatusUploading, session.Status())

	// AllChunksReceived exactly when the received set is complete.
	require.NoError(t, m.ReceiveChunk("f1", 1, bytes.NewReader([]byte("cd"))))
	assert.Equal(t, StatusAllChunksReceived, session.Status())
	assert.Equal(t, 3, session.ReceivedCount())
}

func TestManager_DuplicateChunkNotDoubleCounted(t *testing.T) {
	m := testManager(t)
	initiated(t, m, "f1", 4, 2)

	require.NoError(t, m.ReceiveChunk("f1", 0, bytes.NewReader([]byte("ab"))))
	require.NoError(t, m.ReceiveChunk("f1", 0, bytes.NewReader([]byte("ab"))))

	session, _ := m.lookup("f1")
	assert.Equal(t, 1, session.ReceivedCount())
	assert.Equal(t, StatusUploading, session.Status())
}

func TestManager_ReassemblyByIndexNotArrival(t *testing.T) {
	m := testManager(t)
	initiated(t, m, "f1", 6, 3)

	// Deliver out of order; reassembly must follow chunk index.
	require.NoError(t, m.ReceiveChunk("f1", 2, bytes.NewReader([]byte("ef"))))
	require.NoError(t, m.ReceiveChunk("f1", 0, bytes.NewReader([]byte("ab"))))
	require.NoError(t, m.ReceiveChunk("f1", 1, bytes.NewReader([]byte("cd"))))

	result, err := m.Finalize("f1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(6), result.FileSize)

	path, err := m.AssembledPath("f1")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
}

func TestManager_FinalizeBeforeCompleteFails(t *testing.T) {
	m := testManager(t)
	initiated(t, m, "f1", 4, 2)
	require.NoError(t, m.ReceiveChunk("f1", 0, bytes.NewReader([]byte("ab"))))

	_, err := m.Finalize("f1")
	assert.ErrorIs(t, err, ErrChunksIncomplete)
}

func TestManager_FinalizeIdempotent(t *testing.T) {
	m := testManager(t)
	initiated(t, m, "f1", 4, 2)
	require.NoError(t, m.ReceiveChunk("f1", 0, bytes.NewReader([]byte("ab"))))
	require.NoError(t, m.ReceiveChunk("f1", 1, bytes.NewReader([]byte("cd"))))

	first, err := m.Finalize("f1")
	require.NoError(t, err)
	second, err := m.Finalize("f1")
	require.NoError(t, err)

	assert.Equal(t, first, second, "repeat finalize returns the same result")
}

func TestManager_AbortDiscardsChunks(t *testing.T) {
	m := testManager(t)
	initiated(t, m, "f1", 4, 2)
	require.NoError(t, m.ReceiveChunk("f1", 0, bytes.NewReader([]byte("ab"))))

	session, _ := m.lookup("f1")
	require.NoError(t, m.Abort("f1"))
	assert.Equal(t, StatusAborted, session.Status())
	assert.NoDirExists(t, session.dir)

	// Abort twice is a no-op.
	assert.NoError(t, m.Abort("f1"))
}

func TestManager_ChunkAfterAbortIgnored(t *testing.T) {
	m := testManager(t)
	initiated(t, m, "f1", 4, 2)
	require.NoError(t, m.Abort("f1"))

	// An in-flight chunk lands after abort: accepted silently, no state change.
	require.NoError(t, m.ReceiveChunk("f1", 1, bytes.NewReader([]byte("cd"))))

	session, _ := m.lookup("f1")
	assert.Equal(t, StatusAborted, session.Status())
	assert.Equal(t, 0, session.ReceivedCount())
}

func TestManager_AbortAfterFinalizeRejected(t *testing.T) {
	m := testManager(t)
	initiated(t, m, "f1", 2, 1)
	require.NoError(t, m.ReceiveChunk("f1", 0, bytes.NewReader([]byte("ab"))))
	_, err := m.Finalize("f1")
	require.NoError(t, err)

	assert.ErrorIs(t, m.Abort("f1"), ErrSessionFinalized)
}

func TestManager_ChunkIndexOutOfRange(t *testing.T) {
	m := testManager(t)
	initiated(t, m, "f1", 4, 2)

	err := m.ReceiveChunk("f1", 5, bytes.NewReader([]byte("zz")))
	assert.ErrorIs(t, err, ErrChunkIndexInvalid)
}

func TestManager_UnknownSession(t *testing.T) {
	m := testManager(t)
	err := m.ReceiveChunk("missing", 0, bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
