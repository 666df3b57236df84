// Package notify delivers interested-lead alerts to external channels. Each
// notifier is independent; one failing channel never blocks the others.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ShriramNarkhede/Email-OneBox/pkg/email"
)

// Notifier delivers one alert for a message.
type Notifier interface {
	Notify(ctx context.Context, msg *email.Message) error
}

// Multi fans an alert out to every configured channel. Channel failures are
// logged and swallowed so a Slack outage cannot take the webhook down with it.
type Multi struct {
	log       zerolog.Logger
	notifiers []Notifier
}

// NewMulti builds a fan-out notifier over the given channels.
func NewMulti(log zerolog.Logger, notifiers ...Notifier) *Multi {
	return &Multi{
		log:       log.With().Str("component", "notify").Logger(),
		notifiers: notifiers,
	}
}

// Notify delivers to every channel. Per-channel failures are logged with the
// message id and do not propagate; the pipeline treats notification as
// best-effort.
func (m *Multi) Notify(ctx context.Context, msg *email.Message) {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, msg); err != nil {
			m.log.Warn().
				Err(err).
				Str("message_id", msg.ID).
				Msg("Notification channel failed")
		}
	}
}
