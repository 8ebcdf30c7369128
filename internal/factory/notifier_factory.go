package factory

import (
	"github.com/mikey/inbox-assistant/internal/adapters/notify"
	"github.com/mikey/inbox-assistant/internal/config"
	"github.com/mikey/inbox-assistant/internal/core"
	"go.uber.org/zap"
)

// NotifierFactory creates the retry exhaustion notifier
type NotifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewNotifierFactory creates a new notifier factory
func NewNotifierFactory(cfg *config.Config, logger *zap.Logger) *NotifierFactory {
	return &NotifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateNotifier returns an SMTP notifier when enabled and a logging one otherwise
func (f *NotifierFactory) CreateNotifier() (core.FailureNotifier, error) {
	notifyCfg := f.cfg.GetNotify()
	if !notifyCfg.Enabled {
		return notify.NewNopNotifier(f.logger), nil
	}
	notifier, err := notify.NewSMTPNotifier(
		notifyCfg.SMTPAddress,
		notifyCfg.Username,
		notifyCfg.Password,
		notifyCfg.From,
		notifyCfg.To,
		f.logger,
	)
	if err != nil {
		return nil, err
	}
	return notifier, nil
}
