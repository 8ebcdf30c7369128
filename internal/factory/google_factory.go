package factory

import (
	"github.com/mikey/inbox-assistant/internal/adapters/gcal"
	"github.com/mikey/inbox-assistant/internal/adapters/gmail"
	"github.com/mikey/inbox-assistant/internal/config"
	"github.com/mikey/inbox-assistant/internal/senderfilter"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	gmailapi "google.golang.org/api/gmail/v1"
)

// GoogleFactory creates the Gmail and Calendar adapters
type GoogleFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewGoogleFactory creates a new Google factory
func NewGoogleFactory(cfg *config.Config, logger *zap.Logger) *GoogleFactory {
	return &GoogleFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// OAuthConfig returns the client used to refresh stored user tokens
func (f *GoogleFactory) OAuthConfig() *oauth2.Config {
	googleCfg := f.cfg.GetGoogle()
	return &oauth2.Config{
		ClientID:     googleCfg.ClientID,
		ClientSecret: googleCfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmailapi.GmailReadonlyScope, calendar.CalendarEventsScope},
	}
}

// CreateFetcher creates the Gmail fetcher
func (f *GoogleFactory) CreateFetcher(filter *senderfilter.Filter) *gmail.Fetcher {
	return gmail.NewFetcher(f.OAuthConfig(), filter, f.logger.With(zap.String("adapter", "gmail")))
}

// CreateCalendarClient creates the Google Calendar client
func (f *GoogleFactory) CreateCalendarClient() *gcal.Client {
	return gcal.NewClient(f.OAuthConfig(), f.logger.With(zap.String("adapter", "gcal")))
}
