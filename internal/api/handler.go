// Package api exposes the HTTP surface: the chunked upload protocol,
// the chat query endpoint, document deletion and health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"

	"github.com/lexichat/backend/internal/pkg/errs"
	"github.com/lexichat/backend/internal/retrieval"
	"github.com/lexichat/backend/internal/upload"
	"github.com/lexichat/backend/internal/vectorstore"
)

// maxChunkMemory bounds the in-memory part of multipart parsing; larger
// chunks spill to temp files.
const maxChunkMemory = 4 << 20

// snippetLimit caps reference snippets in chat responses.
const snippetLimit = 200

// healthTimeout bounds the vector-store probe on /health.
const healthTimeout = 3 * time.Second

// Handler holds the wired application components behind the routes.
type Handler struct {
	uploads   *upload.Manager
	ingestor  Ingestor
	selector  ContextSelector
	generator AnswerGenerator
	store     StoreAdmin
	budget    retrieval.Budget
	logger    *slog.Logger

	// ingested caches the indexing result per fileId so a repeated
	// finalize returns the prior outcome instead of re-embedding the
	// document. Entries expire with the upload retention window.
	ingested *cache.Cache
}

// NewHandler creates the HTTP handler set. retention bounds how long a
// finalized upload's indexing result stays answerable for repeat calls;
// it should match the session manager's retention.
func NewHandler(
	uploads *upload.Manager,
	ingestor Ingestor,
	selector ContextSelector,
	generator AnswerGenerator,
	store StoreAdmin,
	budget retrieval.Budget,
	retention time.Duration,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		uploads:   uploads,
		ingestor:  ingestor,
		selector:  selector,
		generator: generator,
		store:     store,
		budget:    budget,
		logger:    logger,
		ingested:  cache.New(retention, retention),
	}
}

// InitiateUpload handles POST /upload/initiate.
func (h *Handler) InitiateUpload(w http.ResponseWriter, r *http.Request) {
	var req upload.InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.uploads.Initiate(req); err != nil {
		h.handleError(w, err)
		return
	}
	h.logger.Info("Upload session opened",
		"file_id", req.FileID, "name", req.FileName,
		"size", req.FileSize, "chunks", req.TotalChunks)
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "initiated"})
}

// ReceiveChunk handles POST /upload/chunk (multipart form).
func (h *Handler) ReceiveChunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxChunkMemory); err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to parse form", err)
		return
	}
	fileID := r.FormValue(upload.FormFieldFileID)
	chunkIndex, err := strconv.Atoi(r.FormValue(upload.FormFieldChunkIndex))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid chunk index", err)
		return
	}
	file, _, err := r.FormFile(upload.FormFieldChunk)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "chunk data is required", err)
		return
	}
	defer file.Close()

	if err := h.uploads.ReceiveChunk(fileID, chunkIndex, file); err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// FinalizeUpload handles POST /upload/finalize. The assembled file is
// indexed synchronously; the upload only succeeds once it is searchable.
func (h *Handler) FinalizeUpload(w http.ResponseWriter, r *http.Request) {
	var req upload.FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := h.uploads.Finalize(req.FileID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	// Finalize is idempotent: a repeat call returns the cached indexing
	// result without reprocessing.
	if prior, ok := h.ingested.Get(req.FileID); ok {
		h.respondJSON(w, http.StatusOK, prior.(IngestResponse))
		return
	}

	path, err := h.uploads.AssembledPath(req.FileID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	ingested, err := h.ingestor.IngestFile(r.Context(), result.FileID, result.FileName, path)
	if err != nil {
		h.logger.Warn("Indexing failed after finalize",
			"file_id", result.FileID, "error", err)
		h.handleError(w, err)
		return
	}

	response := IngestResponse{
		FileID:   result.FileID,
		FileName: result.FileName,
		FileSize: result.FileSize,
		Segments: ingested.Segments,
		Success:  true,
	}
	h.ingested.SetDefault(req.FileID, response)
	h.respondJSON(w, http.StatusOK, response)
}

// AbortUpload handles POST /upload/abort.
func (h *Handler) AbortUpload(w http.ResponseWriter, r *http.Request) {
	var req upload.AbortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.uploads.Abort(req.FileID); err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.respondError(w, http.StatusBadRequest, "message is required", errs.ErrValidation)
		return
	}

	chunks, err := h.selector.SelectContext(r.Context(), req.Message, req.DocumentIDs, h.budget)
	if err != nil {
		// Degraded profile: one small chunk from one document.
		h.logger.Warn("Context selection failed, retrying with fallback budget", "error", err)
		chunks, err = h.selector.SelectContext(r.Context(), req.Message, req.DocumentIDs, retrieval.FallbackBudget())
		if err != nil {
			h.handleError(w, err)
			return
		}
	}

	answered, err := h.generator.Answer(r.Context(), req.Message, chunks)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, ChatResponse{
		Response:   answered.Text,
		References: buildReferences(chunks),
		TokensUsed: answered.TokensUsed,
	})
}

// DeleteDocument handles DELETE /documents/{id}.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		h.respondError(w, http.StatusBadRequest, "document id is required", errs.ErrValidation)
		return
	}
	if err := h.ingestor.DeleteDocument(r.Context(), documentID); err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Health handles GET /health. The store probe is bounded so an
// unreachable index reports degraded instead of hanging the check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "healthy", VectorStore: "connected"}
	if err := h.store.Health(ctx); err != nil {
		resp.Status = "degraded"
		resp.VectorStore = "unreachable"
		h.respondJSON(w, http.StatusOK, resp)
		return
	}
	if stats, err := h.store.Stats(ctx); err == nil {
		resp.Points = stats.PointsCount
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func buildReferences(chunks []vectorstore.ContextChunk) []Reference {
	refs := make([]Reference, 0, len(chunks))
	for _, chunk := range chunks {
		snippet := chunk.Text
		if len(snippet) > snippetLimit {
			snippet = snippet[:snippetLimit]
		}
		refs = append(refs, Reference{
			DocumentID: chunk.DocumentID,
			Snippet:    snippet,
			Confidence: chunk.RelevanceScore,
		})
	}
	return refs
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string, err error) {
	h.logger.Warn(message, "status", status, "error", err)
	h.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// handleError maps domain errors to HTTP statuses. Provider-side failures
// surface as gateway errors since the client cannot fix them.
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, upload.ErrSessionNotFound):
		h.respondError(w, http.StatusNotFound, "upload session not found", err)
	case errors.Is(err, upload.ErrFileTooLarge):
		h.respondError(w, http.StatusRequestEntityTooLarge, "file exceeds size limit", err)
	case errors.Is(err, upload.ErrChunksIncomplete):
		h.respondError(w, http.StatusConflict, "upload is not complete", err)
	case errors.Is(err, upload.ErrSessionFinalized):
		h.respondError(w, http.StatusConflict, "upload already finalized", err)
	case errors.Is(err, upload.ErrChunkIndexInvalid):
		h.respondError(w, http.StatusBadRequest, "chunk index out of range", err)
	case errors.Is(err, errs.ErrValidation):
		h.respondError(w, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, errs.ErrRateLimited):
		h.respondError(w, http.StatusTooManyRequests, "provider rate limited", err)
	case errors.Is(err, errs.ErrAuth):
		h.respondError(w, http.StatusBadGateway, "provider rejected credentials", err)
	case errors.Is(err, errs.ErrUnavailable):
		h.respondError(w, http.StatusServiceUnavailable, "upstream unavailable", err)
	default:
		h.respondError(w, http.StatusInternalServerError, "internal server error", err)
	}
}
