/**
 * @description
 * HTTP handlers for the pledge-service. Handlers decode requests, resolve the
 * authenticated owner, call the pledge service and map its errors to status codes.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameters.
 * - internal/app, internal/domain: service operations and models.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/d9rick/GeoPledge/internal/app"
	"github.com/d9rick/GeoPledge/internal/domain"
)

// PledgeService is the set of use cases the handlers expose.
type PledgeService interface {
	CreatePledge(ctx context.Context, ownerID uuid.UUID, in app.CreatePledgeInput, now time.Time) (domain.PledgeView, error)
	ListPledges(ctx context.Context, ownerID uuid.UUID, now time.Time) ([]domain.PledgeView, error)
	GetPledge(ctx context.Context, ownerID, pledgeID uuid.UUID, now time.Time) (domain.PledgeView, error)
	UpdatePledge(ctx context.Context, ownerID, pledgeID uuid.UUID, in app.UpdatePledgeInput, now time.Time) (domain.PledgeView, error)
	ListChecks(ctx context.Context, ownerID, pledgeID uuid.UUID, limit int) ([]domain.PledgeCheck, error)
	RecordFix(ctx context.Context, ownerID uuid.UUID, fix domain.LocationFix, now time.Time) (app.RecordFixResult, error)
}

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	service PledgeService
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a handler set backed by service.
func NewHandler(service PledgeService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger, now: time.Now}
}

type fixRequest struct {
	Lat *float64   `json:"lat"`
	Lon *float64   `json:"lon"`
	At  *time.Time `json:"at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleListPledges(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	views, err := h.service.ListPledges(r.Context(), ownerID, h.now())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleCreatePledge(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var in app.CreatePledgeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.service.CreatePledge(r.Context(), ownerID, in, h.now())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleGetPledge(w http.ResponseWriter, r *http.Request) {
	ownerID, pledgeID, ok := h.pledgeScope(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetPledge(r.Context(), ownerID, pledgeID, h.now())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleUpdatePledge(w http.ResponseWriter, r *http.Request) {
	ownerID, pledgeID, ok := h.pledgeScope(w, r)
	if !ok {
		return
	}

	var in app.UpdatePledgeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.service.UpdatePledge(r.Context(), ownerID, pledgeID, in, h.now())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleListChecks(w http.ResponseWriter, r *http.Request) {
	ownerID, pledgeID, ok := h.pledgeScope(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	checks, err := h.service.ListChecks(r.Context(), ownerID, pledgeID, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checks)
}

// handleRecordFix evaluates a location fix. The fix timestamp, when present, is the
// evaluation instant; otherwise the server clock is used.
func (h *Handler) handleRecordFix(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req fixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	now := h.now()
	if req.At != nil && !req.At.IsZero() {
		now = *req.At
	}
	fix := domain.LocationFix{Latitude: *req.Lat, Longitude: *req.Lon, ObservedAt: now}

	result, err := h.service.RecordFix(r.Context(), ownerID, fix, now)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) pledgeScope(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	ownerID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	pledgeID, err := uuid.Parse(chi.URLParam(r, "pledgeID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pledge id")
		return uuid.Nil, uuid.Nil, false
	}
	return ownerID, pledgeID, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *app.ValidationError
	var rateLimitErr *app.RateLimitError
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, app.ErrPledgeNotFound):
		writeError(w, http.StatusNotFound, "pledge not found")
	case errors.As(err, &rateLimitErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateLimitErr.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, rateLimitErr.Error())
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
