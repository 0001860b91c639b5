package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lexichat/backend/internal/pkg/errs"
	"github.com/lexichat/backend/internal/pkg/retry"
	"github.com/lexichat/backend/pkg/httpx"
)

// Config tunes the chunked upload client.
type Config struct {
	// ChunkSize is the byte length of each chunk.
	ChunkSize int64
	// MaxConcurrency bounds in-flight chunk uploads.
	MaxConcurrency int
	// RetryAttempts is the total attempts per chunk, including the first.
	RetryAttempts uint
	// ChunkTimeout bounds each individual attempt.
	ChunkTimeout time.Duration
	// RetryBackoff is the wait after the first failed attempt; it doubles
	// per attempt (2s, 4s, 8s with the default).
	RetryBackoff time.Duration
	// MaxFileSize is the absolute ceiling; larger files fail fast without
	// any chunk being created.
	MaxFileSize int64
}

// DefaultConfig returns the production tuning: 1 MiB chunks, two workers,
// three attempts per chunk with 30s timeouts, 50 MiB ceiling.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      1 << 20,
		MaxConcurrency: 2,
		RetryAttempts:  3,
		ChunkTimeout:   30 * time.Second,
		RetryBackoff:   2 * time.Second,
		MaxFileSize:    50 << 20,
	}
}

// Progress is a cumulative upload progress report. Reports are monotonic in
// bytes acknowledged by the server, regardless of chunk completion order.
type Progress struct {
	BytesUploaded   int64
	TotalBytes      int64
	ChunksCompleted int
	TotalChunks     int
	Percent         float64
}

// ProgressFunc receives progress after every acknowledged chunk.
type ProgressFunc func(Progress)

// Result describes a completed upload.
type Result struct {
	FileID     string
	FileSize   int64
	UploadTime time.Duration
}

// Client uploads files to the chunked transfer endpoints.
type Client struct {
	connector *httpx.Connector
	cfg       Config
	logger    *slog.Logger
}

// NewClient creates an upload client for the server at baseURL.
func NewClient(baseURL string, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		connector: httpx.NewConnector(baseURL),
		cfg:       cfg,
		logger:    logger,
	}
}

// UploadFile splits file into chunk-size byte ranges and uploads them under
// bounded concurrency, then finalizes the session. Each range is read lazily
// through a section reader, so the file is never materialized in memory.
func (c *Client) UploadFile(ctx context.Context, file io.ReaderAt, size int64, fileName, mimeType string, onProgress ProgressFunc) (*Result, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: empty file", errs.ErrValidation)
	}
	if c.cfg.MaxFileSize > 0 && size > c.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %w: %d bytes exceeds ceiling of %d",
			errs.ErrValidation, ErrFileTooLarge, size, c.cfg.MaxFileSize)
	}

	start := time.Now()
	fileID := uuid.New().String()
	totalChunks := int((size + c.cfg.ChunkSize - 1) / c.cfg.ChunkSize)

	err := c.connector.DoJSON(ctx, http.MethodPost, EndpointInitiate, InitiateRequest{
		FileID:      fileID,
		FileName:    fileName,
		FileType:    mimeType,
		FileSize:    size,
		TotalChunks: totalChunks,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("initiate upload: %w", err)
	}

	tracker := &progressTracker{
		totalBytes:  size,
		totalChunks: totalChunks,
		report:      onProgress,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.cfg.MaxConcurrency)

	for index := 0; index < totalChunks; index++ {
		offset := int64(index) * c.cfg.ChunkSize
		length := min(c.cfg.ChunkSize, size-offset)

		group.Go(func() error {
			if err := c.uploadChunk(groupCtx, fileID, index, totalChunks, file, offset, length); err != nil {
				return fmt.Errorf("chunk %d: %w", index, err)
			}
			tracker.advance(length)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		c.abortBestEffort(fileID)
		return nil, err
	}

	var finalized FinalizeResponse
	err = c.connector.DoJSON(ctx, http.MethodPost, EndpointFinalize, FinalizeRequest{FileID: fileID}, &finalized)
	if err != nil {
		return nil, fmt.Errorf("finalize upload: %w", err)
	}
	if !finalized.Success {
		return nil, fmt.Errorf("finalize upload: server reported failure")
	}

	c.logger.Info("upload complete",
		"file_id", fileID, "size", finalized.FileSize,
		"chunks", totalChunks, "duration", time.Since(start))

	return &Result{
		FileID:     fileID,
		FileSize:   finalized.FileSize,
		UploadTime: time.Since(start),
	}, nil
}

// uploadChunk sends one byte range with per-attempt timeout and exponential
// backoff between attempts. Exhausting attempts surfaces the last error.
func (c *Client) uploadChunk(ctx context.Context, fileID string, index, totalChunks int, file io.ReaderAt, offset, length int64) error {
	policy := retry.Policy{
		MaxAttempts:     c.cfg.RetryAttempts,
		InitialInterval: c.cfg.RetryBackoff,
		MaxInterval:     c.cfg.RetryBackoff * 8,
		Multiplier:      2,
		// Deterministic 2^attempt backoff, no jitter.
		RandomizationFactor: 0,
	}

	return policy.Do(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.ChunkTimeout)
		defer cancel()

		// A fresh section reader per attempt: a lazy view over the range,
		// never a copy of the file.
		section := io.NewSectionReader(file, offset, length)

		return c.connector.DoMultipart(attemptCtx, http.MethodPost, EndpointChunk, func(w *multipart.Writer) error {
			if err := w.WriteField(FormFieldFileID, fileID); err != nil {
				return err
			}
			if err := w.WriteField(FormFieldChunkIndex, strconv.Itoa(index)); err != nil {
				return err
			}
			if err := w.WriteField(FormFieldTotalChunks, strconv.Itoa(totalChunks)); err != nil {
				return err
			}
			part, err := w.CreateFormFile(FormFieldChunk, fmt.Sprintf("chunk_%d", index))
			if err != nil {
				return err
			}
			_, err = io.Copy(part, section)
			return err
		}, nil)
	})
}

// Abort discards the server-side session. Valid any time before finalize.
func (c *Client) Abort(ctx context.Context, fileID string) error {
	return c.connector.DoJSON(ctx, http.MethodDelete, EndpointAbort, AbortRequest{FileID: fileID}, nil)
}

func (c *Client) abortBestEffort(fileID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Abort(ctx, fileID); err != nil {
		c.logger.Warn("abort after failed upload did not succeed",
			"file_id", fileID, "error", err)
	}
}

// progressTracker accumulates acknowledged bytes under a mutex so reports
// stay cumulative and strictly monotonic even with concurrent chunk workers.
type progressTracker struct {
	mu          sync.Mutex
	bytes       int64
	chunks      int
	totalBytes  int64
	totalChunks int
	report      ProgressFunc
}

func (t *progressTracker) advance(chunkBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bytes += chunkBytes
	t.chunks++
	if t.report == nil {
		return
	}
	// Reported under the lock so observers never see reports out of order.
	t.report(Progress{
		BytesUploaded:   t.bytes,
		TotalBytes:      t.totalBytes,
		ChunksCompleted: t.chunks,
		TotalChunks:     t.totalChunks,
		Percent:         float64(t.bytes) / float64(t.totalBytes) * 100,
	})
}
