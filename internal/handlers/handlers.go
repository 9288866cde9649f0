package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"kindplate/internal/apperr"
)

// Config carries the deployment-tunable lifecycle defaults. The values are
// applied once, when the registry fills in missing fields; business logic
// never reaches for them directly.
type Config struct {
	DefaultExpiryMinutes  int
	DefaultNotifyRadiusKm float64
	FinalizeBuffer        time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultExpiryMinutes:  180,
		DefaultNotifyRadiusKm: 5,
		FinalizeBuffer:        2 * time.Hour,
	}
}

// ListingNotifier is the fire-and-forget proximity fan-out. A nil notifier
// disables notifications entirely.
type ListingNotifier interface {
	NotifyUsersWithinRadiusForEvent(ctx context.Context, eventID, listingID int, radiusKm float64) error
}

// Handler wraps storage and collaborators for the HTTP layer.
type Handler struct {
	Store    StorageInterface
	Notifier ListingNotifier
	Config   Config
}

func NewHandler(store StorageInterface, notifier ListingNotifier, cfg Config) *Handler {
	return &Handler{Store: store, Notifier: notifier, Config: cfg}
}

// PingHandler answers "ok" for liveness checks.
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type errorResponse struct {
	Message string `json:"message"`
}

// writeError maps the apperr taxonomy onto status codes. Every failure body
// is a {message} object; storage details stay in the log.
func writeError(w http.ResponseWriter, err error) {
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
		ce *apperr.ConflictError
		se *apperr.StorageError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: ve.Msg})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: nf.Error()})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, errorResponse{Message: ce.Msg})
	case errors.As(err, &se):
		log.Error().Err(se.Err).Str("op", se.Op).Msg("storage failure")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal storage error"})
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type PaginationParams struct {
	Limit  int
	Offset int
}

// parsePaginationParams parses limit and offset from the query, with defaults
// and caps.
func parsePaginationParams(r *http.Request) PaginationParams {
	params := PaginationParams{Limit: 20, Offset: 0}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			params.Limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			params.Offset = o
		}
	}
	return params
}
