package main

import (
	"net"
	"net/http"
	"net/smtp"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kindplate/db"
	"kindplate/db/migrations"
	"kindplate/internal/handlers"
	"kindplate/internal/notify"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	connString := os.Getenv("POSTGRES_CONN")
	if connString == "" {
		log.Fatal().Msg("POSTGRES_CONN env variable is not set")
	}

	dbConn, err := sqlx.Connect("postgres", connString)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot connect to DB")
	}
	defer dbConn.Close()

	migrations.Run()

	store := db.NewStorage(dbConn)
	cfg := loadConfig()

	var notifier handlers.ListingNotifier
	if smtpAddr := os.Getenv("SMTP_ADDR"); smtpAddr != "" {
		mailer := &notify.SMTPMailer{
			Addr: smtpAddr,
			From: envOr("SMTP_FROM", "no-reply@kindplate.local"),
		}
		if user := os.Getenv("SMTP_USER"); user != "" {
			host, _, _ := net.SplitHostPort(smtpAddr)
			mailer.Auth = smtp.PlainAuth("", user, os.Getenv("SMTP_PASSWORD"), host)
		}
		notifier = notify.NewNotifier(store, mailer, 10*time.Second)
	} else {
		log.Warn().Msg("SMTP_ADDR not configured - proximity notifications are disabled")
	}

	h := handlers.NewHandler(store, notifier, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)
		// events
		r.Get("/events", h.GetEventsHandler)
		r.Post("/events", h.CreateEventHandler)
		r.Post("/events/finalize-due", h.FinalizeDueHandler)
		r.Get("/events/finalize-due", h.FinalizeDueCheckHandler)
		r.Get("/events/{eventId}", h.GetEventHandler)
		r.Put("/events/{eventId}", h.UpdateEventHandler)
		r.Put("/events/{eventId}/status", h.ChangeEventStatusHandler)
		r.Post("/events/{eventId}/location", h.UpdateEventLocationHandler)
		r.Get("/events/{eventId}/summary", h.GetEventSummaryHandler)
		r.Put("/events/{eventId}/prediction", h.UpsertPredictionHandler)
		r.Get("/events/{eventId}/prediction", h.GetPredictionHandler)
		// surplus listings
		r.Post("/events/{eventId}/listings", h.CreateListingForEventHandler)
		r.Get("/listings/available", h.GetAvailableListingsHandler)
		r.Put("/listings/{listingId}/pickup", h.MarkPickedUpHandler)
		r.Put("/listings/{listingId}/expire", h.MarkExpiredHandler)
		r.Put("/listings/{listingId}/donate", h.MarkDonatedHandler)
	})

	serverAddr := envOr("SERVER_ADDRESS", "0.0.0.0:8080")

	log.Info().Str("addr", serverAddr).Msg("Starting server")
	log.Fatal().Err(http.ListenAndServe(serverAddr, r)).Msg("server stopped")
}

func loadConfig() handlers.Config {
	cfg := handlers.DefaultConfig()
	if v, err := strconv.Atoi(os.Getenv("DEFAULT_SURPLUS_EXPIRY_MINUTES")); err == nil && v > 0 {
		cfg.DefaultExpiryMinutes = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("DEFAULT_NOTIFY_RADIUS_KM"), 64); err == nil && v >= 0 {
		cfg.DefaultNotifyRadiusKm = v
	}
	if v, err := strconv.Atoi(os.Getenv("FINALIZE_BUFFER_HOURS")); err == nil && v >= 0 {
		cfg.FinalizeBuffer = time.Duration(v) * time.Hour
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
