package email

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ShriramNarkhede/Email-OneBox/pkg/logging"
)

// Classifier assigns a category to a message. Implementations should not
// fail, but the pipeline treats any error as CategoryUncategorized anyway.
type Classifier interface {
	Classify(msg *Message) (Category, error)
}

// Indexer is the slice of the search index the pipeline writes through.
// Writes are keyed by message id with overwrite semantics.
type Indexer interface {
	UpsertOne(ctx context.Context, msg *Message) error
	UpsertMany(ctx context.Context, msgs []*Message) error
}

// Notifier delivers a best-effort notification. It must never return an
// error; failures are its own to log.
type Notifier interface {
	Notify(ctx context.Context, msg *Message)
}

// Pipeline turns normalized messages into indexed, classified, notified
// records. The batch path amortizes the index write during backfill; the
// live path is single-message for latency. Both are safe for concurrent use
// by multiple account sessions.
type Pipeline struct {
	log        zerolog.Logger
	classifier Classifier
	index      Indexer
	notifier   Notifier

	notifyWG sync.WaitGroup
}

// NewPipeline creates a processing pipeline.
func NewPipeline(log zerolog.Logger, classifier Classifier, index Indexer, notifier Notifier) *Pipeline {
	return &Pipeline{
		log:        log.With().Str("component", "pipeline").Logger(),
		classifier: classifier,
		index:      index,
		notifier:   notifier,
	}
}

// ProcessBatch classifies every message, bulk-upserts them into the index,
// then fires notifications for Interested messages. A classification failure
// downgrades that one message to Uncategorized; only an index write failure
// is returned, because a dropped index write is silent data loss.
func (p *Pipeline) ProcessBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	for _, msg := range msgs {
		msg.Category = p.classify(msg)
	}

	if err := p.index.UpsertMany(ctx, msgs); err != nil {
		return fmt.Errorf("bulk index of %d messages failed: %w", len(msgs), err)
	}

	interested := 0
	for _, msg := range msgs {
		if msg.Category == CategoryInterested {
			interested++
			p.fireNotification(msg)
		}
	}

	p.log.Info().
		Int("count", len(msgs)).
		Int("interested", interested).
		Msg("Processed message batch")
	return nil
}

// ProcessOne classifies, indexes, and conditionally notifies a single live
// message. Re-running it for the same message id leaves exactly one record
// in the index, with the last run's classification stored. The notification
// is fire-and-forget; the message counts as processed once the index write
// lands.
func (p *Pipeline) ProcessOne(ctx context.Context, msg *Message) error {
	msg.Category = p.classify(msg)

	if err := p.index.UpsertOne(ctx, msg); err != nil {
		return fmt.Errorf("index write for message %s failed: %w", msg.ID, err)
	}

	p.log.Info().
		Str("id", msg.ID).
		Str("account", logging.MaskEmail(msg.Account)).
		Str("subject", logging.BoundAndClean(msg.Subject, 128)).
		Str("category", string(msg.Category)).
		Msg("Processed message")

	if msg.Category == CategoryInterested {
		p.fireNotification(msg)
	}
	return nil
}

// Wait blocks until all in-flight notification attempts complete. Used at
// shutdown; new notifications fired concurrently with Wait are not waited on.
func (p *Pipeline) Wait() {
	p.notifyWG.Wait()
}

func (p *Pipeline) classify(msg *Message) Category {
	category, err := p.classifier.Classify(msg)
	if err != nil {
		p.log.Warn().
			Err(err).
			Str("id", msg.ID).
			Msg("Classification failed, falling back to Uncategorized")
		return CategoryUncategorized
	}
	if category == "" {
		return CategoryUncategorized
	}
	return category
}

// fireNotification runs the notifier in the background. Notification
// failures are invisible here: the Notifier contract swallows and logs them,
// independently per message.
func (p *Pipeline) fireNotification(msg *Message) {
	p.notifyWG.Add(1)
	go func() {
		defer p.notifyWG.Done()
		p.notifier.Notify(context.Background(), msg)
	}()
}
