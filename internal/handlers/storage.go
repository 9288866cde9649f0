package handlers

import (
	"context"
	"time"

	"kindplate/models"
)

type StorageInterface interface {
	CreateEvent(ctx context.Context, e *models.Event) error
	GetEvent(ctx context.Context, id int) (*models.Event, error)
	UpdateEvent(ctx context.Context, e *models.Event) error
	UpdateEventStatus(ctx context.Context, id int, status string) error
	UpdateEventLocation(ctx context.Context, id int, lat, lon float64) (bool, error)
	GetEvents(ctx context.Context, statuses []string, limit, offset int) ([]models.Event, error)
	GetEventsByStatus(ctx context.Context, status string) ([]models.Event, error)

	CreateListing(ctx context.Context, l *models.SurplusListing) error
	GetListing(ctx context.Context, id int) (*models.SurplusListing, error)
	GetListingsForEvent(ctx context.Context, eventID int) ([]models.SurplusListing, error)
	UpdateListingStatus(ctx context.Context, id int, status string) error
	ExpireAvailableListingsForEvent(ctx context.Context, eventID int) (int, error)
	GetAvailableListings(ctx context.Context, now time.Time, limit, offset int) ([]models.SurplusListing, error)

	UpsertDemandPrediction(ctx context.Context, p *models.DemandPrediction) error
	GetDemandPrediction(ctx context.Context, eventID int) (*models.DemandPrediction, error)
}
