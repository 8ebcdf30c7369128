package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/mikey/inbox-assistant/internal/core"
	"go.uber.org/zap"
)

const (
	dialTimeout    = 10 * time.Second
	sessionTimeout = 30 * time.Second
)

// SMTPNotifier reports events that exhausted their delivery retries by mail
type SMTPNotifier struct {
	address  string
	username string
	password string
	from     string
	to       []string
	logger   *zap.Logger
}

// NewSMTPNotifier creates a notifier that relays through the SMTP server at address
func NewSMTPNotifier(address, username, password, from string, to []string, logger *zap.Logger) (*SMTPNotifier, error) {
	if address == "" {
		return nil, fmt.Errorf("smtp address is required")
	}
	if from == "" || len(to) == 0 {
		return nil, fmt.Errorf("notification sender and recipients are required")
	}
	return &SMTPNotifier{
		address:  address,
		username: username,
		password: password,
		from:     from,
		to:       to,
		logger:   logger,
	}, nil
}

// NotifyExhausted sends one message listing the events
func (n *SMTPNotifier) NotifyExhausted(ctx context.Context, userID string, events []*core.StoredEvent) error {
	if len(events) == 0 {
		return nil
	}

	msg := n.compose(userID, events)
	if err := n.send(ctx, msg); err != nil {
		return err
	}

	n.logger.Info("Sent retry exhaustion notice",
		zap.String("user_id", userID),
		zap.Int("events", len(events)),
		zap.Strings("recipients", n.to))
	return nil
}

func (n *SMTPNotifier) send(ctx context.Context, msg []byte) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", n.address)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(sessionTimeout)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if ok, _ := c.Extension("STARTTLS"); ok {
		host, _, _ := net.SplitHostPort(n.address)
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if n.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", n.username, n.password)); err != nil {
			return fmt.Errorf("AUTH failed: %w", err)
		}
	}

	if err := c.Mail(n.from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range n.to {
		if err := c.Rcpt(recipient, nil); err != nil {
			n.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		n.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

func (n *SMTPNotifier) compose(userID string, events []*core.StoredEvent) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.to, ", "))
	fmt.Fprintf(&b, "Subject: %d calendar event(s) could not be delivered\r\n", len(events))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "The following events for user %s reached the retry limit:\r\n\r\n", userID)
	for _, e := range events {
		fmt.Fprintf(&b, "- %s (%s), %d attempts, last error: %s\r\n",
			e.Title, e.Start.Format(time.RFC3339), e.RetryCount, e.SyncError)
	}
	return b.Bytes()
}
