package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"kindplate/internal/apperr"
	"kindplate/internal/lifecycle"
	"kindplate/models"
)

type finalizeOptions struct {
	ExpireUnclaimed bool
	MarkCompleted   bool
	Force           bool
}

type finalizeResult struct {
	Status          string              `json:"status"` // finalized | already_completed
	ExpiredListings int                 `json:"expiredListings"`
	Summary         models.EventSummary `json:"summary"`
}

// finalizeEventByID closes out an event: expire every still-available listing,
// then mark the event completed. The two writes are sequential, not
// transactional; a failure between them leaves expired listings behind a
// non-completed event, and a retry converges because both steps are no-ops on
// rows already in their target state. Re-finalizing a completed event reports
// already_completed instead of erroring.
func (h *Handler) finalizeEventByID(ctx context.Context, eventID int, opts finalizeOptions) (*finalizeResult, error) {
	event, err := h.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if event.Status == models.EventCompleted {
		summary, err := h.summarize(ctx, eventID)
		if err != nil {
			return nil, err
		}
		return &finalizeResult{Status: "already_completed", Summary: summary}, nil
	}

	if !opts.Force && event.Status != models.EventOngoing {
		return nil, apperr.Conflict("event %d is %s; only ongoing events can be finalized without force", eventID, event.Status)
	}

	result := &finalizeResult{Status: "finalized"}

	if opts.ExpireUnclaimed {
		n, err := h.Store.ExpireAvailableListingsForEvent(ctx, eventID)
		if err != nil {
			return nil, apperr.Storage("expire unclaimed listings", err)
		}
		result.ExpiredListings = n
	}

	if opts.MarkCompleted {
		if err := h.Store.UpdateEventStatus(ctx, eventID, models.EventCompleted); err != nil {
			return nil, apperr.Storage("mark event completed", err)
		}
	}

	summary, err := h.summarize(ctx, eventID)
	if err != nil {
		return nil, err
	}
	result.Summary = summary

	log.Info().
		Int("event_id", eventID).
		Int("expired_listings", result.ExpiredListings).
		Bool("forced", opts.Force).
		Msg("event finalized")

	return result, nil
}

func (h *Handler) summarize(ctx context.Context, eventID int) (models.EventSummary, error) {
	listings, err := h.Store.GetListingsForEvent(ctx, eventID)
	if err != nil {
		return models.EventSummary{}, apperr.Storage("get listings for event", err)
	}
	return lifecycle.Summarize(eventID, listings), nil
}

type sweepResult struct {
	EventID         int    `json:"eventId"`
	Status          string `json:"status"` // finalized | already_completed | failed
	ExpiredListings int    `json:"expiredListings"`
	Error           string `json:"error,omitempty"`
}

// FinalizeDueHandler handles POST /api/events/finalize-due. With an eventId
// in the body it finalizes that single event (forced or due); without one it
// sweeps every ongoing event past end time plus the configured buffer. One
// failing event never aborts the sweep.
func (h *Handler) FinalizeDueHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		EventID int  `json:"eventId"`
		Force   bool `json:"force"`
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperr.Validation("cannot read body"))
		return
	}
	defer r.Body.Close()
	if len(body) > 0 {
		if err := json.Unmarshal(body, &input); err != nil {
			writeError(w, apperr.Validation("invalid JSON"))
			return
		}
	}

	opts := finalizeOptions{ExpireUnclaimed: true, MarkCompleted: true, Force: input.Force}
	now := time.Now()

	if input.EventID > 0 {
		if !input.Force {
			event, err := h.loadEvent(r.Context(), input.EventID)
			if err != nil {
				writeError(w, err)
				return
			}
			if event.Status != models.EventCompleted && !lifecycle.IsDueForFinalization(event, now, h.Config.FinalizeBuffer) {
				writeError(w, apperr.Conflict("event %d is not yet due for finalization", input.EventID))
				return
			}
		}
		result, err := h.finalizeEventByID(r.Context(), input.EventID, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	ongoing, err := h.Store.GetEventsByStatus(r.Context(), models.EventOngoing)
	if err != nil {
		writeError(w, apperr.Storage("get ongoing events", err))
		return
	}

	results := []sweepResult{}
	for i := range ongoing {
		event := &ongoing[i]
		if !lifecycle.IsDueForFinalization(event, now, h.Config.FinalizeBuffer) {
			continue
		}
		res, err := h.finalizeEventByID(r.Context(), event.ID, opts)
		if err != nil {
			log.Error().Err(err).Int("event_id", event.ID).Msg("sweep finalization failed")
			results = append(results, sweepResult{EventID: event.ID, Status: "failed", Error: err.Error()})
			continue
		}
		results = append(results, sweepResult{
			EventID:         event.ID,
			Status:          res.Status,
			ExpiredListings: res.ExpiredListings,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"checked":   len(ongoing),
		"finalized": len(results),
		"results":   results,
	})
}

// FinalizeDueCheckHandler handles GET /api/events/finalize-due?eventId=.
// Pure report, no side effects.
func (h *Handler) FinalizeDueCheckHandler(w http.ResponseWriter, r *http.Request) {
	eventIDStr := r.URL.Query().Get("eventId")
	eventID, err := strconv.Atoi(eventIDStr)
	if err != nil || eventID <= 0 {
		writeError(w, apperr.Validation("invalid eventId"))
		return
	}

	event, err := h.loadEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"eventId": eventID,
		"status":  event.Status,
		"due":     lifecycle.IsDueForFinalization(event, time.Now(), h.Config.FinalizeBuffer),
	}
	if end, err := lifecycle.EventEndTime(event); err == nil {
		resp["deadline"] = end.Add(h.Config.FinalizeBuffer)
	}

	writeJSON(w, http.StatusOK, resp)
}
