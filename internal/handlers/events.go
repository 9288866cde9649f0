package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"kindplate/internal/apperr"
	"kindplate/internal/lifecycle"
	"kindplate/models"
)

// CreateEventHandler handles POST /api/events.
func (h *Handler) CreateEventHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperr.Validation("failed to read request body"))
		return
	}
	defer r.Body.Close()

	var event models.Event
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, apperr.Validation("invalid JSON format"))
		return
	}

	if err := validateEventRequest(&event); err != nil {
		writeError(w, err)
		return
	}

	// Total is always derived, whatever the client sent.
	event.Total = event.Veg + event.NonVeg

	if event.Status == "" {
		event.Status = models.EventUpcoming
	}
	if event.DefaultExpiryMinutes <= 0 {
		event.DefaultExpiryMinutes = h.Config.DefaultExpiryMinutes
	}
	if event.NotifyRadiusKm <= 0 {
		event.NotifyRadiusKm = h.Config.DefaultNotifyRadiusKm
	}

	if err := h.Store.CreateEvent(r.Context(), &event); err != nil {
		writeError(w, apperr.Storage("create event", err))
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

func validateEventRequest(e *models.Event) error {
	if e.Name == "" || len(e.Name) > 100 {
		return apperr.Validation("name is required and max length 100")
	}
	if e.Date == "" {
		return apperr.Validation("date is required")
	}
	if e.StartTime == "" || e.EndTime == "" {
		return apperr.Validation("startTime and endTime are required")
	}
	if e.Venue == "" {
		return apperr.Validation("venue is required")
	}
	if e.OrganizerID <= 0 || e.OrganizerName == "" {
		return apperr.Validation("organizerId and organizerName are required")
	}
	if e.Status != "" && e.Status != models.EventUpcoming {
		return apperr.Validation("status must be 'upcoming' on creation")
	}
	if e.NotifyRadiusKm < 0 {
		return apperr.Validation("notifyRadiusKm must not be negative")
	}
	return nil
}

// GetEventsHandler handles GET /api/events with optional status filters.
func (h *Handler) GetEventsHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	statuses := r.URL.Query()["status"]
	allowed := map[string]bool{
		models.EventUpcoming:  true,
		models.EventOngoing:   true,
		models.EventCompleted: true,
		models.EventCancelled: true,
	}
	var filtered []string
	for _, v := range statuses {
		if allowed[v] {
			filtered = append(filtered, v)
		}
	}

	events, err := h.Store.GetEvents(r.Context(), filtered, params.Limit, params.Offset)
	if err != nil {
		writeError(w, apperr.Storage("get events", err))
		return
	}

	writeJSON(w, http.StatusOK, events)
}

type eventWithListings struct {
	Event    *models.Event           `json:"event"`
	Listings []models.SurplusListing `json:"listings"`
}

// GetEventHandler handles GET /api/events/{eventId}: the event plus its
// listings, newest first.
func (h *Handler) GetEventHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r, "eventId")
	if err != nil {
		writeError(w, err)
		return
	}

	event, err := h.loadEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	listings, err := h.Store.GetListingsForEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, apperr.Storage("get listings for event", err))
		return
	}

	writeJSON(w, http.StatusOK, eventWithListings{Event: event, Listings: listings})
}

// UpdateEventHandler handles PUT /api/events/{eventId}. A body carrying
// {"action": "finalize"} routes to the finalization engine; anything else is
// a partial update of the mutable event fields.
func (h *Handler) UpdateEventHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r, "eventId")
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperr.Validation("cannot read body"))
		return
	}
	defer r.Body.Close()

	var input struct {
		Action          *string `json:"action"`
		Force           bool    `json:"force"`
		ExpireUnclaimed *bool   `json:"expireUnclaimed"`
		MarkCompleted   *bool   `json:"markCompleted"`

		Name                 *string  `json:"name"`
		Description          *string  `json:"description"`
		Venue                *string  `json:"venue"`
		VenueAddress         *string  `json:"venueAddress"`
		FoodVendor           *string  `json:"foodVendor"`
		ExpectedAttendees    *int     `json:"expectedAttendees"`
		DefaultExpiryMinutes *int     `json:"defaultSurplusExpiryMinutes"`
		NotifyRadiusKm       *float64 `json:"notifyRadiusKm"`
		AutoNotifyNGOs       *bool    `json:"autoNotifyNgos"`
		ImageURL             *string  `json:"imageUrl"`
	}
	if err := json.Unmarshal(body, &input); err != nil {
		writeError(w, apperr.Validation("invalid JSON"))
		return
	}

	if input.Action != nil {
		if *input.Action != "finalize" {
			writeError(w, apperr.Validation("unknown action %q", *input.Action))
			return
		}
		opts := finalizeOptions{ExpireUnclaimed: true, MarkCompleted: true, Force: input.Force}
		if input.ExpireUnclaimed != nil {
			opts.ExpireUnclaimed = *input.ExpireUnclaimed
		}
		if input.MarkCompleted != nil {
			opts.MarkCompleted = *input.MarkCompleted
		}
		result, err := h.finalizeEventByID(r.Context(), eventID, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	event, err := h.loadEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	if input.Name != nil {
		if *input.Name == "" || len(*input.Name) > 100 {
			writeError(w, apperr.Validation("invalid name length"))
			return
		}
		event.Name = *input.Name
	}
	if input.Description != nil {
		event.Description = *input.Description
	}
	if input.Venue != nil {
		event.Venue = *input.Venue
	}
	if input.VenueAddress != nil {
		event.VenueAddress = *input.VenueAddress
	}
	if input.FoodVendor != nil {
		event.FoodVendor = *input.FoodVendor
	}
	if input.ExpectedAttendees != nil {
		event.ExpectedAttendees = *input.ExpectedAttendees
	}
	if input.DefaultExpiryMinutes != nil {
		if *input.DefaultExpiryMinutes <= 0 {
			writeError(w, apperr.Validation("defaultSurplusExpiryMinutes must be positive"))
			return
		}
		event.DefaultExpiryMinutes = *input.DefaultExpiryMinutes
	}
	if input.NotifyRadiusKm != nil {
		if *input.NotifyRadiusKm < 0 {
			writeError(w, apperr.Validation("notifyRadiusKm must not be negative"))
			return
		}
		event.NotifyRadiusKm = *input.NotifyRadiusKm
	}
	if input.AutoNotifyNGOs != nil {
		event.AutoNotifyNGOs = *input.AutoNotifyNGOs
	}
	if input.ImageURL != nil {
		event.ImageURL = *input.ImageURL
	}

	if err := h.Store.UpdateEvent(r.Context(), event); err != nil {
		writeError(w, apperr.Storage("update event", err))
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// ChangeEventStatusHandler handles PUT /api/events/{eventId}/status?status=.
func (h *Handler) ChangeEventStatusHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r, "eventId")
	if err != nil {
		writeError(w, err)
		return
	}

	newStatus := r.URL.Query().Get("status")
	switch newStatus {
	case models.EventUpcoming, models.EventOngoing, models.EventCompleted, models.EventCancelled:
	default:
		writeError(w, apperr.Validation("invalid status value"))
		return
	}

	event, err := h.loadEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	if !lifecycle.CanTransitionEvent(event.Status, newStatus) {
		writeError(w, apperr.Conflict("cannot transition event from %s to %s", event.Status, newStatus))
		return
	}

	if err := h.Store.UpdateEventStatus(r.Context(), eventID, newStatus); err != nil {
		writeError(w, apperr.Storage("update event status", err))
		return
	}
	event.Status = newStatus

	writeJSON(w, http.StatusOK, event)
}

// UpdateEventLocationHandler handles POST /api/events/{eventId}/location,
// used for coordinate backfill on events registered without one.
func (h *Handler) UpdateEventLocationHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r, "eventId")
	if err != nil {
		writeError(w, err)
		return
	}

	var input struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, apperr.Validation("invalid JSON"))
		return
	}
	defer r.Body.Close()

	if input.Latitude == nil || input.Longitude == nil ||
		!isFiniteCoord(*input.Latitude, 90) || !isFiniteCoord(*input.Longitude, 180) {
		writeError(w, apperr.Validation("latitude and longitude are required finite numbers"))
		return
	}

	found, err := h.Store.UpdateEventLocation(r.Context(), eventID, *input.Latitude, *input.Longitude)
	if err != nil {
		writeError(w, apperr.Storage("update event location", err))
		return
	}
	if !found {
		writeError(w, apperr.NotFound("event", eventID))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"eventId":   eventID,
		"latitude":  *input.Latitude,
		"longitude": *input.Longitude,
	})
}

func isFiniteCoord(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}

// GetEventSummaryHandler handles GET /api/events/{eventId}/summary. Safe to
// call at any time, before or after finalization.
func (h *Handler) GetEventSummaryHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r, "eventId")
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.loadEvent(r.Context(), eventID); err != nil {
		writeError(w, err)
		return
	}

	listings, err := h.Store.GetListingsForEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, apperr.Storage("get listings for event", err))
		return
	}

	writeJSON(w, http.StatusOK, lifecycle.Summarize(eventID, listings))
}

// UpsertPredictionHandler handles PUT /api/events/{eventId}/prediction. The
// forecasting service writes its artifact through here; one row per event.
func (h *Handler) UpsertPredictionHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r, "eventId")
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.loadEvent(r.Context(), eventID); err != nil {
		writeError(w, err)
		return
	}

	var prediction models.DemandPrediction
	if err := json.NewDecoder(r.Body).Decode(&prediction); err != nil {
		writeError(w, apperr.Validation("invalid JSON"))
		return
	}
	defer r.Body.Close()

	if prediction.PredictedMeals < 0 {
		writeError(w, apperr.Validation("predictedMeals must not be negative"))
		return
	}
	if prediction.Confidence < 0 || prediction.Confidence > 1 {
		writeError(w, apperr.Validation("confidence must be between 0 and 1"))
		return
	}
	prediction.EventID = eventID

	if err := h.Store.UpsertDemandPrediction(r.Context(), &prediction); err != nil {
		writeError(w, apperr.Storage("upsert demand prediction", err))
		return
	}

	writeJSON(w, http.StatusOK, prediction)
}

// GetPredictionHandler handles GET /api/events/{eventId}/prediction.
func (h *Handler) GetPredictionHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r, "eventId")
	if err != nil {
		writeError(w, err)
		return
	}

	prediction, err := h.Store.GetDemandPrediction(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, apperr.NotFound("prediction for event", eventID))
			return
		}
		writeError(w, apperr.Storage("get demand prediction", err))
		return
	}

	writeJSON(w, http.StatusOK, prediction)
}

// loadEvent fetches an event and maps missing rows to the 404 taxonomy.
func (h *Handler) loadEvent(ctx context.Context, id int) (*models.Event, error) {
	event, err := h.Store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("event", id)
		}
		return nil, apperr.Storage("get event", err)
	}
	return event, nil
}

func parseIDParam(r *http.Request, name string) (int, error) {
	idStr := chi.URLParam(r, name)
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}
