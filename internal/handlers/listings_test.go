package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kindplate/internal/handlers"
	"kindplate/internal/handlers/testutils"
	"kindplate/models"
)

type notifyCall struct {
	EventID   int
	ListingID int
	RadiusKm  float64
}

type mockNotifier struct {
	calls chan notifyCall
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{calls: make(chan notifyCall, 8)}
}

func (m *mockNotifier) NotifyUsersWithinRadiusForEvent(ctx context.Context, eventID, listingID int, radiusKm float64) error {
	m.calls <- notifyCall{EventID: eventID, ListingID: listingID, RadiusKm: radiusKm}
	return nil
}

func postListing(t *testing.T, handler *handlers.Handler, eventID string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/events/"+eventID+"/listings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = testutils.WithChiURLParams(req, map[string]string{"eventId": eventID})
	w := httptest.NewRecorder()
	handler.CreateListingForEventHandler(w, req)
	return w
}

func TestCreateListingPrefillsExpiry(t *testing.T) {
	store := NewMockStorage()
	seedEvent(t, store, models.EventOngoing, 120)
	handler := newTestHandler(store)

	before := time.Now()
	w := postListing(t, handler, "1", `{"foodName": "Veg Biryani", "quantity": "20 plates", "pickupLocation": "Canteen A"}`)

	res := w.Result()
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var listing models.SurplusListing
	require.NoError(t, json.NewDecoder(res.Body).Decode(&listing))
	require.Equal(t, models.ListingAvailable, listing.Status)
	require.WithinDuration(t, before.Add(120*time.Minute), listing.ExpiryDate, 5*time.Second)
}

func TestCreateListingKeepsExplicitExpiry(t *testing.T) {
	store := NewMockStorage()
	seedEvent(t, store, models.EventOngoing, 120)
	handler := newTestHandler(store)

	explicit := time.Now().Add(45 * time.Minute).UTC().Truncate(time.Second)
	w := postListing(t, handler, "1",
		`{"foodName": "Samosas", "quantity": "3 trays", "pickupLocation": "Canteen B", "expiryDate": "`+explicit.Format(time.RFC3339)+`"}`)

	res := w.Result()
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var listing models.SurplusListing
	require.NoError(t, json.NewDecoder(res.Body).Decode(&listing))
	require.True(t, listing.ExpiryDate.Equal(explicit))
}

func TestCreateListingRejectsClosedEvent(t *testing.T) {
	for _, status := range []string{models.EventCompleted, models.EventCancelled} {
		store := NewMockStorage()
		seedEvent(t, store, status, 120)
		handler := newTestHandler(store)

		w := postListing(t, handler, "1", `{"foodName": "Rice", "quantity": "5 kg", "pickupLocation": "Canteen A"}`)

		res := w.Result()
		res.Body.Close()
		require.Equal(t, http.StatusConflict, res.StatusCode, "status %s must reject new surplus", status)
		require.Empty(t, store.listings, "no listing may be created against a %s event", status)
	}
}

func TestCreateListingRejectsMissingFields(t *testing.T) {
	store := NewMockStorage()
	seedEvent(t, store, models.EventOngoing, 120)
	handler := newTestHandler(store)

	w := postListing(t, handler, "1", `{"foodName": "Rice", "quantity": "5 kg"}`)

	res := w.Result()
	res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Empty(t, store.listings)
}

func TestCreateListingTriggersNotification(t *testing.T) {
	store := NewMockStorage()
	event := seedEvent(t, store, models.EventOngoing, 120)
	notifier := newMockNotifier()
	handler := handlers.NewHandler(store, notifier, handlers.DefaultConfig())

	w := postListing(t, handler, "1", `{"foodName": "Veg Biryani", "quantity": "20 plates", "pickupLocation": "Canteen A"}`)
	require.Equal(t, http.StatusCreated, w.Result().StatusCode)

	select {
	case call := <-notifier.calls:
		require.Equal(t, event.ID, call.EventID)
		require.Equal(t, event.NotifyRadiusKm, call.RadiusKm)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notification fan-out to be triggered")
	}
}

func TestCreateListingSkipsNotificationWhenDisabled(t *testing.T) {
	store := NewMockStorage()
	event := seedEvent(t, store, models.EventOngoing, 120)
	store.events[event.ID].AutoNotifyNGOs = false
	notifier := newMockNotifier()
	handler := handlers.NewHandler(store, notifier, handlers.DefaultConfig())

	w := postListing(t, handler, "1", `{"foodName": "Veg Biryani", "quantity": "20 plates", "pickupLocation": "Canteen A"}`)
	require.Equal(t, http.StatusCreated, w.Result().StatusCode)

	select {
	case <-notifier.calls:
		t.Fatal("auto_notify_ngos=false must suppress the fan-out")
	case <-time.After(100 * time.Millisecond):
	}
}

func transitionListing(t *testing.T, handler *handlers.Handler, listingID, action string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/api/listings/"+listingID+"/"+action, nil)
	req = testutils.WithChiURLParams(req, map[string]string{"listingId": listingID})
	w := httptest.NewRecorder()
	switch action {
	case "pickup":
		handler.MarkPickedUpHandler(w, req)
	case "expire":
		handler.MarkExpiredHandler(w, req)
	case "donate":
		handler.MarkDonatedHandler(w, req)
	}
	return w
}

func TestListingTransitions(t *testing.T) {
	store := NewMockStorage()
	seedEvent(t, store, models.EventOngoing, 120)
	handler := newTestHandler(store)

	w := postListing(t, handler, "1", `{"foodName": "Veg Biryani", "quantity": "20 plates", "pickupLocation": "Canteen A"}`)
	require.Equal(t, http.StatusCreated, w.Result().StatusCode)

	// available -> picked_up
	w = transitionListing(t, handler, "1", "pickup")
	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Equal(t, models.ListingPickedUp, store.listings[1].Status)

	// picked_up -> expired is rejected; terminal statuses never go back
	w = transitionListing(t, handler, "1", "expire")
	require.Equal(t, http.StatusConflict, w.Result().StatusCode)
	require.Equal(t, models.ListingPickedUp, store.listings[1].Status)

	// picked_up -> donated
	w = transitionListing(t, handler, "1", "donate")
	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Equal(t, models.ListingDonated, store.listings[1].Status)
}

func TestMarkPickedUpNotFound(t *testing.T) {
	handler := newTestHandler(NewMockStorage())

	w := transitionListing(t, handler, "42", "pickup")
	require.Equal(t, http.StatusNotFound, w.Result().StatusCode)
}

func TestGetAvailableListingsHidesLapsedExpiry(t *testing.T) {
	store := NewMockStorage()
	event := seedEvent(t, store, models.EventOngoing, 120)
	handler := newTestHandler(store)

	fresh := &models.SurplusListing{
		EventID: &event.ID, FoodName: "Fresh Rolls", Quantity: "10",
		PickupLocation: "Canteen A", Status: models.ListingAvailable,
		ExpiryDate: time.Now().Add(time.Hour),
	}
	lapsed := &models.SurplusListing{
		EventID: &event.ID, FoodName: "Old Rolls", Quantity: "10",
		PickupLocation: "Canteen A", Status: models.ListingAvailable,
		ExpiryDate: time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.CreateListing(context.Background(), fresh))
	require.NoError(t, store.CreateListing(context.Background(), lapsed))

	req := httptest.NewRequest(http.MethodGet, "/api/listings/available", nil)
	w := httptest.NewRecorder()
	handler.GetAvailableListingsHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var listings []models.SurplusListing
	require.NoError(t, json.NewDecoder(res.Body).Decode(&listings))
	require.Len(t, listings, 1)
	require.Equal(t, "Fresh Rolls", listings[0].FoodName,
		"a listing past expiry must never appear available even with stored status=available")
}
