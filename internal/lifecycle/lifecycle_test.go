package lifecycle_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kindplate/internal/lifecycle"
	"kindplate/models"
)

func TestCanTransitionEvent(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{models.EventUpcoming, models.EventOngoing, true},
		{models.EventUpcoming, models.EventCancelled, true},
		{models.EventUpcoming, models.EventCompleted, false},
		{models.EventOngoing, models.EventCompleted, true},
		{models.EventOngoing, models.EventCancelled, true},
		{models.EventOngoing, models.EventUpcoming, false},
		{models.EventCompleted, models.EventOngoing, false},
		{models.EventCompleted, models.EventCancelled, false},
		{models.EventCancelled, models.EventOngoing, false},
	}
	for _, c := range cases {
		require.Equal(t, c.ok, lifecycle.CanTransitionEvent(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestCanTransitionListing(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{models.ListingAvailable, models.ListingPickedUp, true},
		{models.ListingAvailable, models.ListingExpired, true},
		{models.ListingPickedUp, models.ListingDonated, true},
		{models.ListingPickedUp, models.ListingAvailable, false},
		{models.ListingExpired, models.ListingPickedUp, false},
		{models.ListingExpired, models.ListingAvailable, false},
		{models.ListingDonated, models.ListingPickedUp, false},
		{models.ListingAvailable, models.ListingDonated, false},
	}
	for _, c := range cases {
		require.Equal(t, c.ok, lifecycle.CanTransitionListing(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestPrefillExpiry(t *testing.T) {
	event := &models.Event{DefaultExpiryMinutes: 120}
	now := time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC)

	require.Equal(t, now.Add(2*time.Hour), lifecycle.PrefillExpiry(event, now))
}

func TestIsEffectivelyAvailable(t *testing.T) {
	now := time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC)

	fresh := &models.SurplusListing{Status: models.ListingAvailable, ExpiryDate: now.Add(time.Minute)}
	require.True(t, lifecycle.IsEffectivelyAvailable(fresh, now))

	// Stored status still says available, but the expiry has lapsed.
	lapsed := &models.SurplusListing{Status: models.ListingAvailable, ExpiryDate: now.Add(-time.Minute)}
	require.False(t, lifecycle.IsEffectivelyAvailable(lapsed, now))

	pickedUp := &models.SurplusListing{Status: models.ListingPickedUp, ExpiryDate: now.Add(time.Hour)}
	require.False(t, lifecycle.IsEffectivelyAvailable(pickedUp, now))
}

func TestEventEndTime(t *testing.T) {
	event := &models.Event{Date: "2026-09-01", EndTime: "21:30"}
	end, err := lifecycle.EventEndTime(event)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 9, 1, 21, 30, 0, 0, time.UTC), end)

	_, err = lifecycle.EventEndTime(&models.Event{Date: "tomorrow", EndTime: "late"})
	require.Error(t, err)
}

func TestIsDueForFinalization(t *testing.T) {
	buffer := 2 * time.Hour
	event := &models.Event{Status: models.EventOngoing, Date: "2026-09-01", EndTime: "21:00"}
	end := time.Date(2026, 9, 1, 21, 0, 0, 0, time.UTC)

	require.False(t, lifecycle.IsDueForFinalization(event, end.Add(time.Hour), buffer))
	require.True(t, lifecycle.IsDueForFinalization(event, end.Add(2*time.Hour), buffer))
	require.True(t, lifecycle.IsDueForFinalization(event, end.Add(3*time.Hour), buffer))

	upcoming := &models.Event{Status: models.EventUpcoming, Date: "2026-09-01", EndTime: "21:00"}
	require.False(t, lifecycle.IsDueForFinalization(upcoming, end.Add(10*time.Hour), buffer))

	broken := &models.Event{Status: models.EventOngoing, Date: "someday", EndTime: "21:00"}
	require.False(t, lifecycle.IsDueForFinalization(broken, end.Add(10*time.Hour), buffer))
}

func TestSummarize(t *testing.T) {
	listings := []models.SurplusListing{
		{Status: models.ListingAvailable, Quantity: "10 plates"},
		{Status: models.ListingPickedUp, Quantity: "20 plates"},
		{Status: models.ListingPickedUp, Quantity: "some trays"},
		{Status: models.ListingExpired, Quantity: "5 kg"},
		{Status: models.ListingDonated, Quantity: "3 boxes"},
	}

	sum := lifecycle.Summarize(7, listings)
	require.Equal(t, 7, sum.EventID)
	require.Equal(t, 5, sum.TotalListings)
	require.Equal(t, 1, sum.Available)
	require.Equal(t, 2, sum.PickedUp)
	require.Equal(t, 1, sum.Expired)
	require.Equal(t, 1, sum.Donated)
	// 20 (parsed) + 1 (unparseable fallback) + 3 (donated, parsed)
	require.Equal(t, 24, sum.EstimatedMealsServed)
}

func TestEstimateMealsServedIgnoresUnclaimed(t *testing.T) {
	listings := []models.SurplusListing{
		{Status: models.ListingAvailable, Quantity: "100 plates"},
		{Status: models.ListingExpired, Quantity: "50 plates"},
	}
	require.Equal(t, 0, lifecycle.EstimateMealsServed(listings))
}
