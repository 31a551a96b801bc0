package integration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meetsync/meetsync/internal/model"
	"github.com/meetsync/meetsync/internal/storage"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleCalendar connects host accounts to Google Calendar via OAuth and
// pushes booked meetings as calendar events with a Meet conference link.
type GoogleCalendar struct {
	config *oauth2.Config
	repo   *Repository
	logger *slog.Logger
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (c GoogleConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func NewGoogleCalendar(cfg GoogleConfig, repo *Repository, logger *slog.Logger) *GoogleCalendar {
	return &GoogleCalendar{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendar.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		},
		repo:   repo,
		logger: logger,
	}
}

// AuthURL returns the consent URL. state must bind the callback to the
// initiating user (the handler uses a signed token).
func (g *GoogleCalendar) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades the callback code for tokens and stores them for the user.
func (g *GoogleCalendar) Exchange(ctx context.Context, userID, code string) error {
	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("google code exchange: %w", err)
	}
	return g.repo.Upsert(ctx, userID, ProviderGoogle, tok.AccessToken, tok.RefreshToken, tok.Expiry)
}

// Connected reports whether the host has a Google Calendar connection.
func (g *GoogleCalendar) Connected(ctx context.Context, userID string) (bool, error) {
	_, err := g.repo.Get(ctx, userID, ProviderGoogle)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ScheduleMeeting inserts the meeting on the host's primary calendar and
// returns the generated Meet link. Callers treat failures as best-effort:
// a booking must never fail because Google is down.
func (g *GoogleCalendar) ScheduleMeeting(ctx context.Context, hostID string, m model.Meeting, eventName string) (string, error) {
	stored, err := g.repo.Get(ctx, hostID, ProviderGoogle)
	if err != nil {
		return "", err
	}

	tok := &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		Expiry:       stored.Expiry,
	}
	source := g.config.TokenSource(ctx, tok)

	svc, err := calendar.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return "", fmt.Errorf("calendar service: %w", err)
	}

	event := &calendar.Event{
		Summary:     fmt.Sprintf("%s with %s", eventName, m.InviteeName),
		Description: "Scheduled via Meetsync",
		Start:       &calendar.EventDateTime{DateTime: m.StartTime.UTC().Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: m.EndTime.UTC().Format(time.RFC3339)},
		Attendees: []*calendar.EventAttendee{
			{Email: m.InviteeEmail},
		},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: m.ID,
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{
					Type: "hangoutsMeet",
				},
			},
		},
	}

	created, err := svc.Events.Insert("primary", event).
		ConferenceDataVersion(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("calendar insert: %w", err)
	}

	// Refresh may have rotated the access token; persist the latest.
	if fresh, err := source.Token(); err == nil && fresh.AccessToken != stored.AccessToken {
		refresh := fresh.RefreshToken
		if refresh == "" {
			refresh = stored.RefreshToken
		}
		if err := g.repo.Upsert(ctx, hostID, ProviderGoogle, fresh.AccessToken, refresh, fresh.Expiry); err != nil {
			g.logger.Warn("failed to persist refreshed google token", "err", err)
		}
	}

	return created.HangoutLink, nil
}
