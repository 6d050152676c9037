// Package handler is the thin HTTP layer over the ticket service. It
// delegates to the service without embedding business logic so transport
// concerns stay isolated.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatepass/internal/ticket/dispatch"
	"gatepass/internal/ticket/models"
	"gatepass/pkg/platform/sentinel"
)

// Service defines the ticket operations the HTTP layer consumes.
type Service interface {
	IssueAndDispatch(ctx context.Context, guests []models.Guest, event models.Event, opts dispatch.Options, onProgress dispatch.ProgressFunc) (*models.BatchReport, error)
	GetTicketByCode(ctx context.Context, code string) (*models.TicketRecord, error)
	MarkTicketAsDownloaded(ctx context.Context, code string) error
	PurgeExpired(ctx context.Context) (models.PurgeResult, error)
}

// Handler wires ticket endpoints to the ticket service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a ticket handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts ticket endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/tickets/dispatch", h.HandleDispatch)
	r.Get("/tickets/{code}", h.HandleGetTicket)
	r.Post("/tickets/{code}/download", h.HandleMarkDownloaded)
	r.Post("/tickets/purge", h.HandlePurge)
}

// DispatchRequest is the bulk dispatch request body.
type DispatchRequest struct {
	Guests []models.Guest `json:"guests"`
	Event  models.Event   `json:"event"`
}

// HandleDispatch handles POST /tickets/dispatch. The request runs to
// completion; per-item failures come back inside the report.
func (h *Handler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Event.ID == "" {
		writeError(w, http.StatusBadRequest, "event id is required")
		return
	}

	report, err := h.service.IssueAndDispatch(ctx, req.Guests, req.Event, dispatch.Options{}, nil)
	if err != nil {
		h.logger.ErrorContext(ctx, "bulk dispatch failed",
			"event_id", req.Event.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleGetTicket handles GET /tickets/{code}. Unknown and expired codes
// are both a plain 404.
func (h *Handler) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := chi.URLParam(r, "code")

	record, err := h.service.GetTicketByCode(ctx, code)
	if err != nil {
		h.logger.ErrorContext(ctx, "ticket lookup failed", "code", code, "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// HandleMarkDownloaded handles POST /tickets/{code}/download.
func (h *Handler) HandleMarkDownloaded(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := chi.URLParam(r, "code")

	if err := h.service.MarkTicketAsDownloaded(ctx, code); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ticket not found")
			return
		}
		h.logger.ErrorContext(ctx, "mark downloaded failed", "code", code, "error", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePurge handles POST /tickets/purge for operator-triggered sweeps.
func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.service.PurgeExpired(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "purge failed", "error", err)
		writeError(w, http.StatusInternalServerError, "purge failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
