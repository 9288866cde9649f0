// Package notify fans out best-effort email alerts to verified recipients
// near a new surplus listing. Sends run concurrently with a per-send timeout;
// failures are logged and swallowed, never returned to the posting path.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"kindplate/models"
)

// Message is the payload handed to the mail collaborator.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer is the outbound mail seam. Production uses SMTPMailer; tests inject
// a recording fake.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Store is the slice of storage the notifier needs.
type Store interface {
	GetEvent(ctx context.Context, id int) (*models.Event, error)
	GetListing(ctx context.Context, id int) (*models.SurplusListing, error)
	GetVerifiedRecipientsWithinRadius(ctx context.Context, lat, lon, radiusKm float64) ([]models.RecipientProfile, error)
}

type Notifier struct {
	store       Store
	mailer      Mailer
	sendTimeout time.Duration
}

func NewNotifier(store Store, mailer Mailer, sendTimeout time.Duration) *Notifier {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &Notifier{store: store, mailer: mailer, sendTimeout: sendTimeout}
}

// NotifyUsersWithinRadiusForEvent alerts verified recipients within radiusKm
// of the event's coordinates about the given listing. An event without
// coordinates is logged and skipped; there is nothing to search around.
// The error return only covers lookup failures; individual send failures are
// logged and swallowed.
func (n *Notifier) NotifyUsersWithinRadiusForEvent(ctx context.Context, eventID, listingID int, radiusKm float64) error {
	event, err := n.store.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event %d: %w", eventID, err)
	}
	if event.Latitude == nil || event.Longitude == nil {
		log.Info().Int("event_id", eventID).Msg("event has no coordinates, skipping proximity notification")
		return nil
	}

	listing, err := n.store.GetListing(ctx, listingID)
	if err != nil {
		return fmt.Errorf("load listing %d: %w", listingID, err)
	}

	return n.fanOut(ctx, *event.Latitude, *event.Longitude, radiusKm, event.Venue, listing)
}

// NotifyUsersWithinRadiusForFoodListing is the variant for listings that
// carry their own coordinates (standalone or orphaned listings).
func (n *Notifier) NotifyUsersWithinRadiusForFoodListing(ctx context.Context, listingID int, radiusKm float64) error {
	listing, err := n.store.GetListing(ctx, listingID)
	if err != nil {
		return fmt.Errorf("load listing %d: %w", listingID, err)
	}
	if listing.Latitude == nil || listing.Longitude == nil {
		log.Info().Int("listing_id", listingID).Msg("listing has no coordinates, skipping proximity notification")
		return nil
	}

	return n.fanOut(ctx, *listing.Latitude, *listing.Longitude, radiusKm, listing.PickupLocation, listing)
}

func (n *Notifier) fanOut(ctx context.Context, lat, lon, radiusKm float64, place string, listing *models.SurplusListing) error {
	recipients, err := n.store.GetVerifiedRecipientsWithinRadius(ctx, lat, lon, radiusKm)
	if err != nil {
		return fmt.Errorf("radius query: %w", err)
	}
	if len(recipients) == 0 {
		log.Info().
			Int("listing_id", listing.ID).
			Float64("radius_km", radiusKm).
			Msg("no verified recipients within radius")
		return nil
	}

	var wg sync.WaitGroup
	for _, rcpt := range recipients {
		wg.Add(1)
		go func(rcpt models.RecipientProfile) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.sendTimeout)
			defer cancel()

			msg := composeListingAlert(rcpt, listing, place)
			if err := n.mailer.Send(sendCtx, msg); err != nil {
				log.Error().Err(err).
					Int("listing_id", listing.ID).
					Str("to", rcpt.Email).
					Msg("failed to send surplus notification")
			}
		}(rcpt)
	}
	wg.Wait()

	log.Info().
		Int("listing_id", listing.ID).
		Int("recipients", len(recipients)).
		Msg("surplus notification fan-out finished")
	return nil
}

func composeListingAlert(rcpt models.RecipientProfile, l *models.SurplusListing, place string) Message {
	subject := fmt.Sprintf("Surplus food available: %s", l.FoodName)
	expiry := l.ExpiryDate.Format("Mon, 02 Jan 2006 15:04 MST")

	text := fmt.Sprintf(
		"Hello %s,\n\n%s (%s) is available for pickup at %s near %s.\nPlease collect before %s.\n\nKindPlate",
		rcpt.Name, l.FoodName, l.Quantity, l.PickupLocation, place, expiry)

	html := fmt.Sprintf(
		"<p>Hello %s,</p><p><b>%s</b> (%s) is available for pickup at %s near %s.</p><p>Please collect before <b>%s</b>.</p><p>KindPlate</p>",
		rcpt.Name, l.FoodName, l.Quantity, l.PickupLocation, place, expiry)

	return Message{To: rcpt.Email, Subject: subject, Text: text, HTML: html}
}

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	Addr string // host:port
	From string
	Auth smtp.Auth
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Text)

	// smtp.SendMail has no context hook; run it in a goroutine so the
	// per-send timeout still bounds the wait.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(m.Addr, m.Auth, m.From, []string{msg.To}, []byte(b.String()))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
