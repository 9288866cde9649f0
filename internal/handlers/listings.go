package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"kindplate/internal/apperr"
	"kindplate/internal/lifecycle"
	"kindplate/models"
)

// CreateListingForEventHandler handles POST /api/events/{eventId}/listings.
// The listing is persisted first; the proximity notification is kicked off
// afterwards on its own goroutine and never blocks or fails the response.
func (h *Handler) CreateListingForEventHandler(w http.ResponseWriter, r *http.Request) {
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
	if lifecycle.IsEventClosed(event) {
		writeError(w, apperr.Conflict("cannot post surplus to a %s event", event.Status))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperr.Validation("failed to read request body"))
		return
	}
	defer r.Body.Close()

	var listing models.SurplusListing
	if err := json.Unmarshal(body, &listing); err != nil {
		writeError(w, apperr.Validation("invalid JSON format"))
		return
	}

	if err := validateListingRequest(&listing); err != nil {
		writeError(w, err)
		return
	}

	listing.EventID = &eventID
	listing.Status = models.ListingAvailable

	prefill := r.URL.Query().Get("prefillExpiry") != "false"
	if listing.ExpiryDate.IsZero() {
		if !prefill {
			writeError(w, apperr.Validation("expiryDate is required when prefill is disabled"))
			return
		}
		listing.ExpiryDate = lifecycle.PrefillExpiry(event, time.Now())
	}

	if err := h.Store.CreateListing(r.Context(), &listing); err != nil {
		writeError(w, apperr.Storage("create listing", err))
		return
	}

	// Fire-and-forget: the response does not wait for any notification, and
	// a fan-out failure never reaches the caller.
	if h.Notifier != nil && event.AutoNotifyNGOs {
		listingID := listing.ID
		radius := event.NotifyRadiusKm
		go func() {
			if err := h.Notifier.NotifyUsersWithinRadiusForEvent(context.Background(), eventID, listingID, radius); err != nil {
				log.Error().Err(err).
					Int("event_id", eventID).
					Int("listing_id", listingID).
					Msg("proximity notification failed")
			}
		}()
	}

	writeJSON(w, http.StatusCreated, listing)
}

func validateListingRequest(l *models.SurplusListing) error {
	if l.FoodName == "" || len(l.FoodName) > 100 {
		return apperr.Validation("foodName is required and max length 100")
	}
	if l.Quantity == "" {
		return apperr.Validation("quantity is required")
	}
	if l.PickupLocation == "" {
		return apperr.Validation("pickupLocation is required")
	}
	if l.SafetyRating != nil && (*l.SafetyRating < 1 || *l.SafetyRating > 5) {
		return apperr.Validation("safetyRating must be between 1 and 5")
	}
	if l.Status != "" && l.Status != models.ListingAvailable {
		return apperr.Validation("status must be 'available' on creation")
	}
	return nil
}

// MarkPickedUpHandler handles PUT /api/listings/{listingId}/pickup.
func (h *Handler) MarkPickedUpHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionListing(w, r, models.ListingPickedUp)
}

// MarkExpiredHandler handles PUT /api/listings/{listingId}/expire.
func (h *Handler) MarkExpiredHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionListing(w, r, models.ListingExpired)
}

// MarkDonatedHandler handles PUT /api/listings/{listingId}/donate.
func (h *Handler) MarkDonatedHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionListing(w, r, models.ListingDonated)
}

// transitionListing applies a guarded status change. Transitions out of a
// terminal status are rejected with a conflict, never silently ignored.
func (h *Handler) transitionListing(w http.ResponseWriter, r *http.Request, to string) {
	listingID, err := parseIDParam(r, "listingId")
	if err != nil {
		writeError(w, err)
		return
	}

	listing, err := h.loadListing(r.Context(), listingID)
	if err != nil {
		writeError(w, err)
		return
	}

	if !lifecycle.CanTransitionListing(listing.Status, to) {
		writeError(w, apperr.Conflict("cannot mark %s listing as %s", listing.Status, to))
		return
	}

	if err := h.Store.UpdateListingStatus(r.Context(), listingID, to); err != nil {
		writeError(w, apperr.Storage("update listing status", err))
		return
	}
	listing.Status = to

	writeJSON(w, http.StatusOK, listing)
}

// GetAvailableListingsHandler handles GET /api/listings/available. The
// availability predicate is evaluated against the current time on every
// call; a lapsed listing never shows up even if its stored status is stale.
func (h *Handler) GetAvailableListingsHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	listings, err := h.Store.GetAvailableListings(r.Context(), time.Now(), params.Limit, params.Offset)
	if err != nil {
		writeError(w, apperr.Storage("get available listings", err))
		return
	}

	writeJSON(w, http.StatusOK, listings)
}

func (h *Handler) loadListing(ctx context.Context, id int) (*models.SurplusListing, error) {
	listing, err := h.Store.GetListing(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("listing", id)
		}
		return nil, apperr.Storage("get listing", err)
	}
	return listing, nil
}
