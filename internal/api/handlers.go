// Package api implements the HTTP handlers of the vehicle lookup service.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cardex/internal/blob"
	"cardex/internal/decode"
	"cardex/internal/registry"
	"cardex/internal/storage"
)

type Handler struct {
	Resolver  *registry.Resolver
	Submitter *registry.Submitter
	Store     storage.Repository
	Blobs     blob.Client
	Logger    *slog.Logger
}

// NewHandler wires the resolver and submitter workflows into an HTTP handler
// set.
func NewHandler(resolver *registry.Resolver, submitter *registry.Submitter) *Handler {
	return &Handler{Resolver: resolver, Submitter: submitter}
}

type searchRequest struct {
	Query string `json:"query"`
}

// Search resolves a plate or VIN via POST /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid search request: %w", err))
		return
	}
	resolution, err := h.Resolver.Resolve(r.Context(), req.Query)
	if err != nil {
		h.writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolution)
}

type submitResponse struct {
	Success        bool   `json:"success"`
	ID             string `json:"id"`
	PhotosUploaded int    `json:"photosUploaded"`
}

// Submit accepts a multipart vehicle submission via POST /api/submit.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	contentType := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		writeError(w, http.StatusBadRequest, fmt.Errorf("multipart form data required"))
		return
	}
	fields, attachments, err := readSubmission(r)
	if err != nil {
		h.writeWorkflowError(w, r, err)
		return
	}
	result, err := h.Submitter.Submit(r.Context(), fields, attachments)
	if err != nil {
		h.writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Success:        true,
		ID:             result.ID,
		PhotosUploaded: result.PhotosUploaded,
	})
}

// Health reports liveness plus per-component reachability. The endpoint
// always answers 200; component state is informational.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	components := make([]componentStatus, 0, 3)
	if h.Store != nil {
		components = append(components, storeStatus(r, h.Store))
	}
	if h.Blobs != nil {
		status := "ok"
		if !h.Blobs.Enabled() {
			status = "disabled"
		}
		components = append(components, componentStatus{Component: "attachment_store", Status: status})
	}
	decoderStatus := "ok"
	if h.Resolver == nil || h.Resolver.Decoder == nil {
		decoderStatus = "disabled"
	}
	components = append(components, componentStatus{Component: "decode_service", Status: decoderStatus})

	overall := "ok"
	for _, component := range components {
		if component.Status != "ok" && component.Status != "disabled" {
			overall = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     overall,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"components": components,
	})
}

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func storeStatus(r *http.Request, store storage.Repository) componentStatus {
	status := componentStatus{Component: "datastore", Status: "ok"}
	if err := store.Ping(r.Context()); err != nil {
		status.Status = "degraded"
		status.Error = err.Error()
	}
	return status
}

// writeWorkflowError maps the registry error taxonomy onto HTTP statuses and
// structured JSON bodies.
func (h *Handler) writeWorkflowError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *registry.ValidationError
	var notFoundErr *registry.NotFoundError
	switch {
	case errors.Is(err, registry.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": validationErr.Message,
			"field": validationErr.Field,
		})
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no vehicle data found",
			"query": notFoundErr.Query,
		})
	case errors.Is(err, decode.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("external decode service unavailable"))
	default:
		h.logger().Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("internal error"))
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
