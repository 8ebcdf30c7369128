package notify

import (
	"context"

	"github.com/mikey/inbox-assistant/internal/core"
	"go.uber.org/zap"
)

// NopNotifier only logs exhausted events
type NopNotifier struct {
	logger *zap.Logger
}

// NewNopNotifier creates a notifier that logs instead of sending
func NewNopNotifier(logger *zap.Logger) *NopNotifier {
	return &NopNotifier{logger: logger}
}

// NotifyExhausted logs the events
func (n *NopNotifier) NotifyExhausted(ctx context.Context, userID string, events []*core.StoredEvent) error {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	n.logger.Warn("Events exhausted delivery retries",
		zap.String("user_id", userID),
		zap.Strings("event_ids", ids))
	return nil
}
