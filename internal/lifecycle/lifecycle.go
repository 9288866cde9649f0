// Package lifecycle holds the pure domain rules for events and surplus
// listings: status transitions, expiry prefill, availability, due-check and
// summary aggregation. Nothing here touches the database or the clock.
package lifecycle

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"kindplate/models"
)

// CanTransitionEvent reports whether an event may move from one status to
// another. Transitions only go forward; cancelled is reachable from any
// non-terminal state.
func CanTransitionEvent(from, to string) bool {
	switch from {
	case models.EventUpcoming:
		return to == models.EventOngoing || to == models.EventCancelled
	case models.EventOngoing:
		return to == models.EventCompleted || to == models.EventCancelled
	default:
		// completed and cancelled are terminal
		return false
	}
}

// IsEventClosed reports whether surplus may no longer be posted against the event.
func IsEventClosed(e *models.Event) bool {
	return e.Status == models.EventCompleted || e.Status == models.EventCancelled
}

// PrefillExpiry computes the default expiry for a listing posted now:
// now plus the event's default_surplus_expiry_minutes.
func PrefillExpiry(e *models.Event, now time.Time) time.Time {
	return now.Add(time.Duration(e.DefaultExpiryMinutes) * time.Minute)
}

// CanTransitionListing guards pickup/expiry/donation. Only available listings
// may be picked up or expired; only picked-up listings may be marked donated.
func CanTransitionListing(from, to string) bool {
	switch to {
	case models.ListingPickedUp, models.ListingExpired:
		return from == models.ListingAvailable
	case models.ListingDonated:
		return from == models.ListingPickedUp
	default:
		return false
	}
}

// IsEffectivelyAvailable is the derived availability predicate: the stored
// status alone is never trusted for display or pickup eligibility, because a
// listing whose expiry has lapsed may still carry status=available until a
// finalization sweep flips it.
func IsEffectivelyAvailable(l *models.SurplusListing, now time.Time) bool {
	return l.Status == models.ListingAvailable && l.ExpiryDate.After(now)
}

// EventEndTime parses the event's date and end_time ("2006-01-02" + "15:04")
// into a single instant in UTC.
func EventEndTime(e *models.Event) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04", e.Date+" "+e.EndTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("event %d has unparseable end datetime: %w", e.ID, err)
	}
	return t, nil
}

// IsDueForFinalization reports whether an ongoing event is past its end time
// plus the buffer. Events with unparseable schedules are never due.
func IsDueForFinalization(e *models.Event, now time.Time, buffer time.Duration) bool {
	if e.Status != models.EventOngoing {
		return false
	}
	end, err := EventEndTime(e)
	if err != nil {
		return false
	}
	return !now.Before(end.Add(buffer))
}

// Summarize aggregates listing counts for an event. Read-only; callable at
// any point in the event lifecycle.
func Summarize(eventID int, listings []models.SurplusListing) models.EventSummary {
	sum := models.EventSummary{EventID: eventID, TotalListings: len(listings)}
	for i := range listings {
		switch listings[i].Status {
		case models.ListingAvailable:
			sum.Available++
		case models.ListingPickedUp:
			sum.PickedUp++
		case models.ListingExpired:
			sum.Expired++
		case models.ListingDonated:
			sum.Donated++
		}
	}
	sum.EstimatedMealsServed = EstimateMealsServed(listings)
	return sum
}

// EstimateMealsServed estimates meals from picked-up and donated listings.
// Quantity is free text; a leading integer ("20 plates" -> 20) counts as that
// many meals, anything else counts as one meal per listing.
func EstimateMealsServed(listings []models.SurplusListing) int {
	total := 0
	for i := range listings {
		if listings[i].Status != models.ListingPickedUp && listings[i].Status != models.ListingDonated {
			continue
		}
		total += mealUnits(listings[i].Quantity)
	}
	return total
}

func mealUnits(quantity string) int {
	fields := strings.Fields(quantity)
	if len(fields) > 0 {
		if n, err := strconv.Atoi(fields[0]); err == nil && n > 0 {
			return n
		}
	}
	return 1
}
