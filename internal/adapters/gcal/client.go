package gcal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mikey/inbox-assistant/internal/core"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	primaryCalendar = "primary"
	dateLayout      = "2006-01-02"
	defaultDuration = time.Hour
)

// Client is an implementation of core.CalendarClient over Google Calendar
type Client struct {
	oauth   *oauth2.Config
	logger  *zap.Logger
	options []option.ClientOption
}

// NewClient creates a Google Calendar client. Extra client options are applied
// after the per-user OAuth client.
func NewClient(oauth *oauth2.Config, logger *zap.Logger, opts ...option.ClientOption) *Client {
	return &Client{
		oauth:   oauth,
		logger:  logger,
		options: opts,
	}
}

// Insert creates the event on the user's calendar and returns its id
func (c *Client) Insert(ctx context.Context, auth core.AuthContext, event *core.StoredEvent) (string, error) {
	srv, err := c.service(ctx, auth)
	if err != nil {
		return "", err
	}

	created, err := srv.Events.Insert(calendarID(auth), toCalendarEvent(event, auth)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to insert calendar event: %w", err)
	}
	if created.Id == "" {
		return "", fmt.Errorf("calendar returned an event without an id")
	}

	c.logger.Debug("Inserted calendar event",
		zap.String("user_id", auth.UserID),
		zap.String("event_id", event.ID),
		zap.String("external_id", created.Id))

	return created.Id, nil
}

// List returns the events on the user's calendar within the window
func (c *Client) List(ctx context.Context, auth core.AuthContext, window core.TimeWindow) ([]core.ExistingEvent, error) {
	srv, err := c.service(ctx, auth)
	if err != nil {
		return nil, err
	}

	loc := auth.Location()
	var existing []core.ExistingEvent
	err = srv.Events.List(calendarID(auth)).
		TimeMin(window.Start.Format(time.RFC3339)).
		TimeMax(window.End.Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(false).
		Pages(ctx, func(page *calendar.Events) error {
			for _, item := range page.Items {
				start, ok := eventStart(item.Start, loc)
				if !ok {
					continue
				}
				existing = append(existing, core.ExistingEvent{
					ID:    item.Id,
					Title: item.Summary,
					Start: start,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar events: %w", err)
	}

	return existing, nil
}

func (c *Client) service(ctx context.Context, auth core.AuthContext) (*calendar.Service, error) {
	opts := append([]option.ClientOption{
		option.WithHTTPClient(c.oauth.Client(ctx, toOAuth2Token(auth.Token))),
	}, c.options...)

	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return srv, nil
}

func calendarID(auth core.AuthContext) string {
	if auth.CalendarID == "" {
		return primaryCalendar
	}
	return auth.CalendarID
}

// toCalendarEvent maps a stored event. A start at local midnight with no end
// becomes an all-day event.
func toCalendarEvent(event *core.StoredEvent, auth core.AuthContext) *calendar.Event {
	loc := auth.Location()
	start := event.Start.In(loc)

	out := &calendar.Event{
		Summary:     event.Title,
		Description: describe(event),
		Location:    event.Location,
	}

	if event.End == nil && isMidnight(start) {
		out.Start = &calendar.EventDateTime{Date: start.Format(dateLayout)}
		out.End = &calendar.EventDateTime{Date: start.AddDate(0, 0, 1).Format(dateLayout)}
		return out
	}

	end := start.Add(defaultDuration)
	if event.End != nil {
		end = event.End.In(loc)
	}
	out.Start = &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: loc.String()}
	out.End = &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: loc.String()}
	return out
}

func describe(event *core.StoredEvent) string {
	var parts []string
	if event.ChildName != "" {
		parts = append(parts, "For: "+event.ChildName)
	}
	if event.Description != "" {
		parts = append(parts, event.Description)
	}
	return strings.Join(parts, "\n\n")
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func eventStart(dt *calendar.EventDateTime, loc *time.Location) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		return t, err == nil
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation(dateLayout, dt.Date, loc)
		return t, err == nil
	}
	return time.Time{}, false
}

func toOAuth2Token(t core.OAuthToken) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}
