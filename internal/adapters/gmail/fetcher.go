package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/mikey/inbox-assistant/internal/senderfilter"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	user         = "me"
	baseQuery    = "in:inbox -in:draft"
	listPageSize = 100
)

// Fetcher is an implementation of core.EmailFetcher over the Gmail API
type Fetcher struct {
	oauth   *oauth2.Config
	filter  *senderfilter.Filter
	logger  *zap.Logger
	options []option.ClientOption
}

// NewFetcher creates a Gmail fetcher. Extra client options are applied after
// the per-user OAuth client.
func NewFetcher(oauth *oauth2.Config, filter *senderfilter.Filter, logger *zap.Logger, opts ...option.ClientOption) *Fetcher {
	return &Fetcher{
		oauth:   oauth,
		filter:  filter,
		logger:  logger,
		options: opts,
	}
}

// FetchEmails returns up to maxResults inbox messages received within the date range,
// newest first. Messages from ignored senders are dropped.
func (f *Fetcher) FetchEmails(ctx context.Context, auth core.AuthContext, dateRange core.DateRange, maxResults int) ([]core.Email, error) {
	srv, err := f.service(ctx, auth)
	if err != nil {
		return nil, err
	}

	ids, err := f.listMessageIDs(ctx, srv, buildQuery(dateRange), maxResults)
	if err != nil {
		return nil, err
	}

	emails := make([]core.Email, 0, len(ids))
	for _, id := range ids {
		msg, err := srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get Gmail message %s: %w", id, err)
		}
		email := parseMessage(msg)
		if f.filter.IsIgnored(email.From) {
			continue
		}
		emails = append(emails, email)
	}

	f.logger.Debug("Fetched Gmail messages",
		zap.String("user_id", auth.UserID),
		zap.Int("listed", len(ids)),
		zap.Int("kept", len(emails)))

	return emails, nil
}

func (f *Fetcher) service(ctx context.Context, auth core.AuthContext) (*gmail.Service, error) {
	opts := append([]option.ClientOption{
		option.WithHTTPClient(f.oauth.Client(ctx, toOAuth2Token(auth.Token))),
	}, f.options...)

	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return srv, nil
}

func (f *Fetcher) listMessageIDs(ctx context.Context, srv *gmail.Service, query string, maxResults int) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		pageSize := listPageSize
		if maxResults > 0 && maxResults-len(ids) < pageSize {
			pageSize = maxResults - len(ids)
		}
		call := srv.Users.Messages.List(user).Q(query).MaxResults(int64(pageSize)).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list Gmail messages: %w", err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" || (maxResults > 0 && len(ids) >= maxResults) {
			break
		}
		pageToken = resp.NextPageToken
	}
	if maxResults > 0 && len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

func buildQuery(r core.DateRange) string {
	parts := []string{baseQuery}
	if !r.From.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%d", r.From.Unix()))
	}
	if !r.To.IsZero() {
		parts = append(parts, fmt.Sprintf("before:%d", r.To.Unix()))
	}
	return strings.Join(parts, " ")
}

func parseMessage(msg *gmail.Message) core.Email {
	email := core.Email{
		ID:   msg.Id,
		Date: time.UnixMilli(msg.InternalDate),
	}
	if msg.Payload == nil {
		email.Body = msg.Snippet
		return email
	}

	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject":
			email.Subject = header.Value
		case "from":
			email.From = header.Value
		case "date":
			if parsed, err := mail.ParseDate(header.Value); err == nil {
				email.Date = parsed
			}
		}
	}

	email.Body = findBody(msg.Payload, "text/plain")
	if email.Body == "" {
		email.Body = findBody(msg.Payload, "text/html")
	}
	if email.Body == "" {
		email.Body = msg.Snippet
	}
	email.Attachments = collectAttachments(msg.Payload, nil)

	return email
}

func findBody(part *gmail.MessagePart, mimeType string) string {
	if part.Filename == "" && strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		if data, err := decodeBody(part.Body.Data); err == nil {
			return string(data)
		}
	}
	for _, child := range part.Parts {
		if body := findBody(child, mimeType); body != "" {
			return body
		}
	}
	return ""
}

func collectAttachments(part *gmail.MessagePart, out []core.Attachment) []core.Attachment {
	if part.Filename != "" {
		out = append(out, core.Attachment{Filename: part.Filename, MimeType: part.MimeType})
	}
	for _, child := range part.Parts {
		out = collectAttachments(child, out)
	}
	return out
}

// decodeBody accepts padded and unpadded base64url
func decodeBody(data string) ([]byte, error) {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

func toOAuth2Token(t core.OAuthToken) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}
