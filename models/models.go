package models

import (
	"time"

	"github.com/lib/pq"
)

// Event statuses. Transitions go forward only:
// upcoming -> ongoing -> completed; cancelled is reachable from any non-terminal state.
const (
	EventUpcoming  = "upcoming"
	EventOngoing   = "ongoing"
	EventCompleted = "completed"
	EventCancelled = "cancelled"
)

// Listing statuses. A listing leaves "available" exactly once.
const (
	ListingAvailable = "available"
	ListingPickedUp  = "picked_up"
	ListingExpired   = "expired"
	ListingDonated   = "donated"
)

type ExpectedMeals struct {
	Veg    int `db:"expected_meals_veg" json:"veg"`
	NonVeg int `db:"expected_meals_non_veg" json:"nonVeg"`
	Total  int `db:"expected_meals_total" json:"total"`
}

type Event struct {
	ID                   int      `db:"id" json:"id"`
	Name                 string   `db:"name" json:"name" validate:"required,max=100"`
	Description          string   `db:"description" json:"description"`
	Date                 string   `db:"date" json:"date" validate:"required"`
	StartTime            string   `db:"start_time" json:"startTime" validate:"required"`
	EndTime              string   `db:"end_time" json:"endTime" validate:"required"`
	Venue                string   `db:"venue" json:"venue" validate:"required"`
	VenueAddress         string   `db:"venue_address" json:"venueAddress"`
	Latitude             *float64 `db:"latitude" json:"latitude,omitempty"`
	Longitude            *float64 `db:"longitude" json:"longitude,omitempty"`
	OrganizerID          int      `db:"organizer_id" json:"organizerId" validate:"required"`
	OrganizerName        string   `db:"organizer_name" json:"organizerName" validate:"required"`
	OrganizerContact     string   `db:"organizer_contact" json:"organizerContact"`
	ExpectedMeals        `json:"expectedMeals"`
	ExpectedAttendees    int           `db:"expected_attendees" json:"expectedAttendees"`
	FoodVendor           string        `db:"food_vendor" json:"foodVendor"`
	Status               string        `db:"status" json:"status" validate:"oneof=upcoming ongoing completed cancelled"`
	DefaultExpiryMinutes int           `db:"default_surplus_expiry_minutes" json:"defaultSurplusExpiryMinutes"`
	NotifyRadiusKm       float64       `db:"notify_radius_km" json:"notifyRadiusKm"`
	AutoNotifyNGOs       bool          `db:"auto_notify_ngos" json:"autoNotifyNgos"`
	NGOAutoReserveMin    int           `db:"ngo_auto_reserve_minutes" json:"ngoAutoReserveMinutes"`
	TrustedNGOIDs        pq.Int64Array `db:"trusted_ngo_ids" json:"trustedNgoIds"`
	ImageURL             string        `db:"image_url" json:"imageUrl,omitempty"`
	CreatedAt            time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time     `db:"updated_at" json:"-"`
}

type SurplusListing struct {
	ID             int       `db:"id" json:"id"`
	EventID        *int      `db:"event_id" json:"eventId,omitempty"`
	FoodName       string    `db:"food_name" json:"foodName" validate:"required,max=100"`
	Quantity       string    `db:"quantity" json:"quantity" validate:"required"`
	PickupLocation string    `db:"pickup_location" json:"pickupLocation" validate:"required"`
	Latitude       *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude      *float64  `db:"longitude" json:"longitude,omitempty"`
	ImageURL       string    `db:"image_url" json:"imageUrl,omitempty"`
	ExpiryDate     time.Time `db:"expiry_date" json:"expiryDate"`
	Status         string    `db:"status" json:"status" validate:"oneof=available picked_up expired donated"`

	// Optional food-safety metadata supplied by the canteen.
	Temperature       *string    `db:"temperature" json:"temperature,omitempty"`
	Allergens         *string    `db:"allergens" json:"allergens,omitempty"`
	PreparationMethod *string    `db:"preparation_method" json:"preparationMethod,omitempty"`
	SafetyRating      *int       `db:"safety_rating" json:"safetyRating,omitempty" validate:"omitempty,min=1,max=5"`
	StorageConditions *string    `db:"storage_conditions" json:"storageConditions,omitempty"`
	LastInspection    *time.Time `db:"last_inspection" json:"lastInspection,omitempty"`

	CreatedBy int       `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}

// RecipientProfile is the NGO/volunteer side of a redistribution. The core
// only reads these rows; profile management lives in the auth service.
type RecipientProfile struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	Verified  bool      `db:"verified" json:"verified"`
	Latitude  *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude *float64  `db:"longitude" json:"longitude,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// DemandPrediction is the forecasting artifact attached to an event.
// One row per event; writes are upserts keyed by event_id.
type DemandPrediction struct {
	EventID        int       `db:"event_id" json:"eventId"`
	PredictedMeals int       `db:"predicted_meals" json:"predictedMeals"`
	Confidence     float64   `db:"confidence" json:"confidence"`
	Model          string    `db:"model" json:"model"`
	Notes          string    `db:"notes" json:"notes,omitempty"`
	GeneratedAt    time.Time `db:"generated_at" json:"generatedAt"`
}

// EventSummary is the read-only projection computed over an event's listings.
type EventSummary struct {
	EventID              int `json:"eventId"`
	TotalListings        int `json:"totalListings"`
	Available            int `json:"available"`
	PickedUp             int `json:"pickedUp"`
	Expired              int `json:"expired"`
	Donated              int `json:"donated"`
	EstimatedMealsServed int `json:"estimatedMealsServed"`
}
