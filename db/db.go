package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"kindplate/models"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// Event

func (s *Storage) CreateEvent(ctx context.Context, e *models.Event) error {
	query := `
        INSERT INTO events
            (name, description, date, start_time, end_time, venue, venue_address,
             latitude, longitude, organizer_id, organizer_name, organizer_contact,
             expected_meals_veg, expected_meals_non_veg, expected_meals_total,
             expected_attendees, food_vendor, status, default_surplus_expiry_minutes,
             notify_radius_km, auto_notify_ngos, ngo_auto_reserve_minutes,
             trusted_ngo_ids, image_url)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
             $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
        RETURNING id, created_at, updated_at`
	return s.db.QueryRowContext(ctx, query,
		e.Name, e.Description, e.Date, e.StartTime, e.EndTime, e.Venue, e.VenueAddress,
		e.Latitude, e.Longitude, e.OrganizerID, e.OrganizerName, e.OrganizerContact,
		e.Veg, e.NonVeg, e.Total,
		e.ExpectedAttendees, e.FoodVendor, e.Status, e.DefaultExpiryMinutes,
		e.NotifyRadiusKm, e.AutoNotifyNGOs, e.NGOAutoReserveMin,
		e.TrustedNGOIDs, e.ImageURL).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

func (s *Storage) GetEvent(ctx context.Context, id int) (*models.Event, error) {
	e := &models.Event{}
	query := `SELECT * FROM events WHERE id=$1`
	err := s.db.GetContext(ctx, e, query, id)
	return e, err
}

func (s *Storage) UpdateEvent(ctx context.Context, e *models.Event) error {
	query := `
        UPDATE events
        SET name=$1, description=$2, date=$3, start_time=$4, end_time=$5,
            venue=$6, venue_address=$7, food_vendor=$8,
            expected_meals_veg=$9, expected_meals_non_veg=$10, expected_meals_total=$11,
            expected_attendees=$12, default_surplus_expiry_minutes=$13,
            notify_radius_km=$14, auto_notify_ngos=$15, ngo_auto_reserve_minutes=$16,
            trusted_ngo_ids=$17, image_url=$18, updated_at=NOW()
        WHERE id=$19`
	_, err := s.db.ExecContext(ctx, query,
		e.Name, e.Description, e.Date, e.StartTime, e.EndTime,
		e.Venue, e.VenueAddress, e.FoodVendor,
		e.Veg, e.NonVeg, e.Total,
		e.ExpectedAttendees, e.DefaultExpiryMinutes,
		e.NotifyRadiusKm, e.AutoNotifyNGOs, e.NGOAutoReserveMin,
		e.TrustedNGOIDs, e.ImageURL, e.ID)
	return err
}

func (s *Storage) UpdateEventStatus(ctx context.Context, id int, status string) error {
	query := `UPDATE events SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := s.db.ExecContext(ctx, query, status, id)
	return err
}

func (s *Storage) UpdateEventLocation(ctx context.Context, id int, lat, lon float64) (bool, error) {
	query := `UPDATE events SET latitude=$1, longitude=$2, updated_at=NOW() WHERE id=$3`
	res, err := s.db.ExecContext(ctx, query, lat, lon, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Storage) GetEvents(ctx context.Context, statuses []string, limit, offset int) ([]models.Event, error) {
	baseQuery := "SELECT * FROM events"
	var args []interface{}
	filter := ""

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i := range statuses {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		filter = fmt.Sprintf(" WHERE status IN (%s)", strings.Join(placeholders, ", "))
		for _, v := range statuses {
			args = append(args, v)
		}
	}

	query := baseQuery + filter + " ORDER BY date ASC, id ASC"
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	events := []models.Event{}
	err := s.db.SelectContext(ctx, &events, query, args...)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Storage) GetEventsByStatus(ctx context.Context, status string) ([]models.Event, error) {
	events := []models.Event{}
	query := `SELECT * FROM events WHERE status=$1 ORDER BY id ASC`
	err := s.db.SelectContext(ctx, &events, query, status)
	return events, err
}

// SurplusListing

func (s *Storage) CreateListing(ctx context.Context, l *models.SurplusListing) error {
	query := `
        INSERT INTO surplus_listings
            (event_id, food_name, quantity, pickup_location, latitude, longitude,
             image_url, expiry_date, status, temperature, allergens, preparation_method,
             safety_rating, storage_conditions, last_inspection, created_by)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        RETURNING id, created_at, updated_at`
	return s.db.QueryRowContext(ctx, query,
		l.EventID, l.FoodName, l.Quantity, l.PickupLocation, l.Latitude, l.Longitude,
		l.ImageURL, l.ExpiryDate, l.Status, l.Temperature, l.Allergens, l.PreparationMethod,
		l.SafetyRating, l.StorageConditions, l.LastInspection, l.CreatedBy).
		Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
}

func (s *Storage) GetListing(ctx context.Context, id int) (*models.SurplusListing, error) {
	l := &models.SurplusListing{}
	query := `SELECT * FROM surplus_listings WHERE id=$1`
	err := s.db.GetContext(ctx, l, query, id)
	return l, err
}

func (s *Storage) GetListingsForEvent(ctx context.Context, eventID int) ([]models.SurplusListing, error) {
	listings := []models.SurplusListing{}
	query := `
        SELECT * FROM surplus_listings
        WHERE event_id = $1
        ORDER BY created_at DESC, id DESC`
	err := s.db.SelectContext(ctx, &listings, query, eventID)
	return listings, err
}

func (s *Storage) UpdateListingStatus(ctx context.Context, id int, status string) error {
	query := `UPDATE surplus_listings SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := s.db.ExecContext(ctx, query, status, id)
	return err
}

// ExpireAvailableListingsForEvent flips every still-available listing of the
// event to expired and reports how many rows changed. Safe to re-run.
func (s *Storage) ExpireAvailableListingsForEvent(ctx context.Context, eventID int) (int, error) {
	query := `
        UPDATE surplus_listings
        SET status=$1, updated_at=NOW()
        WHERE event_id = $2 AND status = $3`
	res, err := s.db.ExecContext(ctx, query, models.ListingExpired, eventID, models.ListingAvailable)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// GetAvailableListings returns listings that are effectively available right
// now: stored status must be available AND the expiry must still be in the
// future. The expiry check runs against the given instant on every read so a
// lapsed listing never leaks into pickup views, even before a sweep flips its
// stored status.
func (s *Storage) GetAvailableListings(ctx context.Context, now time.Time, limit, offset int) ([]models.SurplusListing, error) {
	listings := []models.SurplusListing{}
	query := `
        SELECT * FROM surplus_listings
        WHERE status = $1 AND expiry_date > $2
        ORDER BY expiry_date ASC
        LIMIT $3 OFFSET $4`
	err := s.db.SelectContext(ctx, &listings, query, models.ListingAvailable, now, limit, offset)
	return listings, err
}

// RecipientProfile

func (s *Storage) CreateRecipient(ctx context.Context, p *models.RecipientProfile) error {
	query := `
        INSERT INTO recipient_profiles (name, email, role, verified, latitude, longitude)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query,
		p.Name, p.Email, p.Role, p.Verified, p.Latitude, p.Longitude).
		Scan(&p.ID, &p.CreatedAt)
}

// GetVerifiedRecipientsWithinRadius runs a Haversine distance filter over the
// recipient coordinates. Rows without coordinates never match.
func (s *Storage) GetVerifiedRecipientsWithinRadius(ctx context.Context, lat, lon, radiusKm float64) ([]models.RecipientProfile, error) {
	recipients := []models.RecipientProfile{}
	query := `
        SELECT * FROM recipient_profiles
        WHERE verified = TRUE
          AND latitude IS NOT NULL AND longitude IS NOT NULL
          AND 6371 * 2 * asin(sqrt(
                pow(sin(radians(latitude - $1) / 2), 2) +
                cos(radians($1)) * cos(radians(latitude)) *
                pow(sin(radians(longitude - $2) / 2), 2)
          )) <= $3
        ORDER BY id ASC`
	err := s.db.SelectContext(ctx, &recipients, query, lat, lon, radiusKm)
	return recipients, err
}

// DemandPrediction

func (s *Storage) UpsertDemandPrediction(ctx context.Context, p *models.DemandPrediction) error {
	query := `
        INSERT INTO demand_predictions (event_id, predicted_meals, confidence, model, notes, generated_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        ON CONFLICT (event_id) DO UPDATE
        SET predicted_meals = EXCLUDED.predicted_meals,
            confidence = EXCLUDED.confidence,
            model = EXCLUDED.model,
            notes = EXCLUDED.notes,
            generated_at = NOW()
        RETURNING generated_at`
	return s.db.QueryRowContext(ctx, query,
		p.EventID, p.PredictedMeals, p.Confidence, p.Model, p.Notes).
		Scan(&p.GeneratedAt)
}

func (s *Storage) GetDemandPrediction(ctx context.Context, eventID int) (*models.DemandPrediction, error) {
	p := &models.DemandPrediction{}
	query := `SELECT * FROM demand_predictions WHERE event_id=$1`
	err := s.db.GetContext(ctx, p, query, eventID)
	return p, err
}
