// Package reply suggests responses for indexed messages. The suggestion is
// template-driven: the message text picks a branch and the similarity store
// supplies product context to anchor it.
package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ShriramNarkhede/Email-OneBox/pkg/config"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/email"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/index"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/vector"
)

// ContextStore yields stored product context ranked by similarity to a query.
type ContextStore interface {
	Nearest(ctx context.Context, text string, k int) ([]vector.Hit, error)
}

// Suggestion is a composed reply for one indexed message.
type Suggestion struct {
	MessageID string `json:"messageId"`
	Reply     string `json:"reply"`
	Context   string `json:"context"`
}

// Resolver builds reply suggestions from the index and the context store.
type Resolver struct {
	log   zerolog.Logger
	index index.MailIndex
	store ContextStore
	cfg   config.ReplyConfig
}

// NewResolver creates a resolver.
func NewResolver(log zerolog.Logger, idx index.MailIndex, store ContextStore, cfg config.ReplyConfig) *Resolver {
	return &Resolver{
		log:   log.With().Str("component", "reply").Logger(),
		index: idx,
		store: store,
		cfg:   cfg,
	}
}

// SuggestReply composes a reply for the message with the given id. Unknown
// ids surface index.ErrNotFound; every indexed message gets a suggestion.
func (r *Resolver) SuggestReply(ctx context.Context, id string) (*Suggestion, error) {
	msg, err := r.index.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolving message %s: %w", id, err)
	}

	contextText := r.lookupContext(ctx, msg)
	reply := r.compose(msg, contextText)

	r.log.Debug().Str("id", id).Msg("Composed reply suggestion")
	return &Suggestion{
		MessageID: id,
		Reply:     reply,
		Context:   contextText,
	}, nil
}

// lookupContext fetches the closest stored context for the message text,
// falling back to the configured product info when the store is empty or
// failing.
func (r *Resolver) lookupContext(ctx context.Context, msg *email.Message) string {
	query := strings.TrimSpace(msg.Subject + " " + msg.Body)
	hits, err := r.store.Nearest(ctx, query, 1)
	if err != nil {
		r.log.Warn().Err(err).Str("id", msg.ID).Msg("Context lookup failed, using configured product info")
		return r.cfg.ProductInfo
	}
	if len(hits) == 0 || hits[0].Text == "" {
		return r.cfg.ProductInfo
	}
	return hits[0].Text
}

func (r *Resolver) compose(msg *email.Message, contextText string) string {
	text := strings.ToLower(msg.Subject + " " + msg.Body)

	var b strings.Builder
	b.WriteString("Hi,\n\nThank you for reaching out")
	if msg.Subject != "" {
		fmt.Fprintf(&b, " regarding \"%s\"", msg.Subject)
	}
	b.WriteString(".\n\n")

	switch {
	case strings.Contains(text, "interview") || strings.Contains(text, "shortlisted"):
		b.WriteString("I'm glad to hear about the next step. I'm available for a technical interview at your convenience.")
	case strings.Contains(text, "meeting") || strings.Contains(text, "call") || strings.Contains(text, "schedule"):
		b.WriteString("I'd be happy to set up a meeting to walk through the details.")
	case strings.Contains(text, "interested"):
		b.WriteString("Great to hear you're interested! Happy to share more and answer any questions.")
	default:
		b.WriteString("Thanks for your message. I'd be glad to discuss this further.")
	}

	if contextText != "" {
		fmt.Fprintf(&b, "\n\nFor context: %s", contextText)
	}
	if r.cfg.MeetingLink != "" {
		fmt.Fprintf(&b, "\n\nYou can book a slot that works for you here: %s", r.cfg.MeetingLink)
	}
	b.WriteString("\n\nBest regards")
	return b.String()
}
