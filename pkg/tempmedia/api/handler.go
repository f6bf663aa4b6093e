package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/medox/temp-media/pkg/tempmedia"
)

// maxValidateIDs bounds a single validate request.
const maxValidateIDs = 50

// maxUploadMemory caps the in-memory portion of multipart parsing; larger
// file parts spill to disk.
const maxUploadMemory = 32 << 20

// Handler handles HTTP requests for temp media
type Handler struct {
	lifecycle tempmedia.Service
	transfers tempmedia.TransferService

	throttleLimit   int
	validateSession bool
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithThrottle limits the number of in-flight upload requests
func WithThrottle(limit int) HandlerOption {
	return func(h *Handler) {
		h.throttleLimit = limit
	}
}

// WithSessionValidation makes the validate endpoint enforce session ownership
// when the request carries a session id.
func WithSessionValidation(enabled bool) HandlerOption {
	return func(h *Handler) {
		h.validateSession = enabled
	}
}

// NewHandler creates a new temp media handler
func NewHandler(lifecycle tempmedia.Service, transfers tempmedia.TransferService, opts ...HandlerOption) *Handler {
	h := &Handler{
		lifecycle: lifecycle,
		transfers: transfers,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the routes for temp media
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	if h.throttleLimit > 0 {
		r.Use(middleware.Throttle(h.throttleLimit))
	}

	r.Post("/", h.Upload)
	r.Post("/validate", h.Validate)
	r.Get("/stats", h.Stats)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)

	return r
}

// TempMediaResponse is the public view of a temp media record
type TempMediaResponse struct {
	ID           string    `json:"id"`
	URL          string    `json:"url,omitempty"`
	ThumbURL     string    `json:"thumb_url,omitempty"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	ExpiresAt    time.Time `json:"expires_at"`
	IsTemporary  bool      `json:"is_temporary"`
	SessionID    string    `json:"session_id,omitempty"`
}

// ValidateRequest is the request body for validating temp media ids. The
// session id is optional; when present and session validation is enabled,
// every id must belong to that session.
type ValidateRequest struct {
	TempMediaIDs []string `json:"temp_media_ids"`
	SessionID    string   `json:"session_id,omitempty"`
}

// ValidateResponse reports the ids that are still active
type ValidateResponse struct {
	ValidIDs []string `json:"valid_ids"`
	Count    int      `json:"count"`
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, envelope{Success: false, Error: message})
}

// Upload accepts a multipart upload and stores it as temp media
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		slog.Error("Invalid multipart form", "err", err)
		respondError(w, r, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Missing 'file' field")
		return
	}
	defer file.Close()

	req := tempmedia.UploadTempMediaRequest{
		File:         file,
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		SizeBytes:    header.Size,
		SessionID:    r.FormValue("session_id"),
		UserID:       r.FormValue("user_id"),
	}

	if raw := r.FormValue("ttl_hours"); raw != "" {
		ttl, err := strconv.Atoi(raw)
		if err != nil || ttl <= 0 {
			respondError(w, r, http.StatusBadRequest, "Invalid ttl_hours")
			return
		}
		req.TTLHours = ttl
	}

	upload, err := h.lifecycle.UploadTempMedia(r.Context(), req)
	if err != nil {
		if errors.Is(err, tempmedia.ErrInvalidFile) {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Failed to upload temp media", "err", err)
		respondError(w, r, http.StatusInternalServerError, "Upload failed")
		return
	}

	slog.Info("Temp media uploaded", "temp_media_id", upload.ID.String())
	respondData(w, r, http.StatusCreated, TempMediaResponse{
		ID:           upload.ID.String(),
		URL:          upload.URL,
		OriginalName: upload.OriginalName,
		MimeType:     upload.MimeType,
		SizeBytes:    upload.SizeBytes,
		ExpiresAt:    upload.ExpiresAt,
		IsTemporary:  true,
		SessionID:    upload.SessionID,
	})
}

// Get retrieves an active temp media record by ID
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid temp media ID")
		return
	}

	media, err := h.lifecycle.GetTempMedia(r.Context(), id)
	if err != nil {
		if errors.Is(err, tempmedia.ErrTempMediaNotFound) {
			respondError(w, r, http.StatusNotFound, "Temp media not found or expired")
			return
		}
		slog.Error("Failed to get temp media", "temp_media_id", idStr, "err", err)
		respondError(w, r, http.StatusInternalServerError, "Lookup failed")
		return
	}

	resp := TempMediaResponse{
		ID:           media.ID.String(),
		ThumbURL:     h.lifecycle.ThumbnailURL(r.Context(), media),
		IsTemporary:  true,
		OriginalName: media.OriginalName,
		MimeType:     media.MimeType,
		SizeBytes:    media.SizeBytes,
		ExpiresAt:    media.ExpiresAt,
		SessionID:    media.SessionID,
	}

	if url, err := h.lifecycle.DownloadURL(r.Context(), media); err == nil {
		resp.URL = url
	}

	respondData(w, r, http.StatusOK, resp)
}

// Delete removes a temp media record and its stored file
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid temp media ID")
		return
	}

	deleted, err := h.lifecycle.DeleteTempMedia(r.Context(), id)
	if err != nil {
		slog.Error("Failed to delete temp media", "temp_media_id", idStr, "err", err)
		respondError(w, r, http.StatusInternalServerError, "Delete failed")
		return
	}
	if !deleted {
		respondError(w, r, http.StatusNotFound, "Temp media not found")
		return
	}

	slog.Info("Temp media deleted", "temp_media_id", idStr)
	respondData(w, r, http.StatusOK, map[string]string{"id": idStr})
}

// Validate checks which of the submitted ids are still active
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.TempMediaIDs) == 0 {
		respondError(w, r, http.StatusBadRequest, "temp_media_ids is required")
		return
	}
	if len(req.TempMediaIDs) > maxValidateIDs {
		respondError(w, r, http.StatusBadRequest, "Too many IDs requested")
		return
	}

	ids := make([]uuid.UUID, 0, len(req.TempMediaIDs))
	for _, idStr := range req.TempMediaIDs {
		id, err := uuid.Parse(idStr)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "Invalid temp media ID: "+idStr)
			return
		}
		ids = append(ids, id)
	}

	valid, err := h.lifecycle.ValidateTempMediaIDs(r.Context(), ids)
	if err != nil {
		var invalid *tempmedia.InvalidIDsError
		if errors.As(err, &invalid) {
			respondError(w, r, http.StatusBadRequest, invalid.Error())
			return
		}
		slog.Error("Failed to validate temp media ids", "err", err)
		respondError(w, r, http.StatusInternalServerError, "Validation failed")
		return
	}

	if h.validateSession && req.SessionID != "" {
		owned, err := h.transfers.ValidateOwnership(r.Context(), ids, req.SessionID, "")
		if err != nil {
			slog.Error("Failed to validate temp media ownership", "err", err)
			respondError(w, r, http.StatusInternalServerError, "Validation failed")
			return
		}
		if !owned {
			respondError(w, r, http.StatusForbidden, "Temp media does not belong to this session")
			return
		}
	}

	validIDs := make([]string, 0, len(valid))
	for _, media := range valid {
		validIDs = append(validIDs, media.ID.String())
	}

	respondData(w, r, http.StatusOK, ValidateResponse{
		ValidIDs: validIDs,
		Count:    len(validIDs),
	})
}

// Stats reports lifecycle counts across all temp media
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.transfers == nil {
		respondError(w, r, http.StatusNotFound, "Stats not available")
		return
	}

	stats, err := h.transfers.GetTransferStats(r.Context())
	if err != nil {
		slog.Error("Failed to get transfer stats", "err", err)
		respondError(w, r, http.StatusInternalServerError, "Stats failed")
		return
	}

	respondData(w, r, http.StatusOK, stats)
}
