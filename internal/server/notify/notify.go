// Package notify delivers account notifications.
package notify

import (
	"context"
	"errors"

	"github.com/alprslanymeria/oauthserver/internal/logging"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
)

// LogNotifier writes every notification to the log instead of sending it.
// It is the delivery used when no mail or SMS gateway is configured, so the
// log carries verification codes and must be treated as secret.
type LogNotifier struct {
	log logging.Logger
}

func NewLogNotifier(log logging.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("module", "notifier")}
}

func (n *LogNotifier) Send(ctx context.Context, msg models.Notification) error {
	if msg.Recipient == "" {
		return errors.New("notification has no recipient")
	}
	switch msg.Channel {
	case models.ChannelEmail, models.ChannelPhone:
	default:
		return errors.New("unknown notification channel " + msg.Channel)
	}

	n.log.Info(ctx, "notification",
		"channel", msg.Channel,
		"recipient", msg.Recipient,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
