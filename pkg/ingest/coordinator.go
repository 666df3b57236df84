// Package ingest runs one mailbox session per configured account and feeds
// everything they produce through the processing pipeline. Accounts are
// isolated: one failing login or dead server never stalls the others.
package ingest

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ShriramNarkhede/Email-OneBox/pkg/config"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/email"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/imap"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/logging"
)

// Session is one account's mailbox connection.
type Session interface {
	Connect(ctx context.Context) error
	FetchSince(ctx context.Context, days int) ([]*email.RawMessage, error)
	Watch(ctx context.Context, out chan<- *email.RawMessage) error
	Close() error
	Status() imap.Status
}

// SessionFactory builds a session for one account. Swappable for tests.
type SessionFactory func(account config.Account, log zerolog.Logger) Session

// Pipeline is the processing stage messages are handed to.
type Pipeline interface {
	ProcessBatch(ctx context.Context, msgs []*email.Message) error
	ProcessOne(ctx context.Context, msg *email.Message) error
	Wait()
}

// inbound tags a raw message with the account it arrived on.
type inbound struct {
	account string
	raw     *email.RawMessage
}

// Coordinator owns the per-account sessions and the single consumer that
// drains their live messages into the pipeline.
type Coordinator struct {
	log      zerolog.Logger
	accounts []config.Account
	syncDays int
	factory  SessionFactory
	pipeline Pipeline

	mu       sync.RWMutex
	sessions map[string]Session

	in        chan inbound
	watchWG   sync.WaitGroup
	consumeWG sync.WaitGroup
}

// NewCoordinator builds a coordinator for the configured accounts.
func NewCoordinator(log zerolog.Logger, accounts []config.Account, syncDays int, factory SessionFactory, pipeline Pipeline) *Coordinator {
	return &Coordinator{
		log:      log.With().Str("component", "ingest").Logger(),
		accounts: accounts,
		syncDays: syncDays,
		factory:  factory,
		pipeline: pipeline,
		sessions: make(map[string]Session),
		in:       make(chan inbound, 64),
	}
}

// Start connects every account in parallel, backfills the sync window, and
// leaves a watch goroutine running per account. It returns once all backfills
// have settled; per-account failures are logged, not propagated.
func (c *Coordinator) Start(ctx context.Context) error {
	c.consumeWG.Add(1)
	go c.consume()

	g, gctx := errgroup.WithContext(ctx)
	for _, account := range c.accounts {
		account := account
		g.Go(func() error {
			c.startAccount(gctx, ctx, account)
			return nil
		})
	}
	g.Wait()

	c.log.Info().Int("accounts", len(c.accounts)).Msg("Startup sync completed for all accounts")
	return nil
}

// startAccount connects, backfills, and spawns the watch loop for one
// account. watchCtx outlives the startup group; it ends at shutdown.
func (c *Coordinator) startAccount(ctx, watchCtx context.Context, account config.Account) {
	log := c.log.With().Str("account", logging.MaskEmail(account.Address)).Logger()
	sess := c.factory(account, c.log)

	c.mu.Lock()
	c.sessions[account.Address] = sess
	c.mu.Unlock()

	if err := sess.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("Initial connect failed, leaving account to its reconnect loop")
	} else {
		raws, err := sess.FetchSince(ctx, c.syncDays)
		if err != nil {
			log.Error().Err(err).Msg("Backfill fetch failed")
		} else if len(raws) > 0 {
			msgs := make([]*email.Message, 0, len(raws))
			for _, raw := range raws {
				if raw == nil {
					continue
				}
				msgs = append(msgs, email.Normalize(raw, account.Address, "INBOX"))
			}
			if err := c.pipeline.ProcessBatch(ctx, msgs); err != nil {
				log.Error().Err(err).Int("count", len(msgs)).Msg("Backfill processing failed")
			} else {
				log.Info().Int("count", len(msgs)).Int("days", c.syncDays).Msg("Backfill completed")
			}
		} else {
			log.Info().Int("days", c.syncDays).Msg("Backfill found no messages")
		}
	}

	c.watchWG.Add(1)
	go func() {
		defer c.watchWG.Done()
		ch := make(chan *email.RawMessage, 16)

		var forwardWG sync.WaitGroup
		forwardWG.Add(1)
		go func() {
			defer forwardWG.Done()
			for raw := range ch {
				c.in <- inbound{account: account.Address, raw: raw}
			}
		}()

		if err := sess.Watch(watchCtx, ch); err != nil && watchCtx.Err() == nil {
			log.Error().Err(err).Msg("Watch loop terminated")
		}
		close(ch)
		forwardWG.Wait()
	}()
}

// consume is the single pipeline feeder. It uses a background context so
// messages already received still land in the index during shutdown.
func (c *Coordinator) consume() {
	defer c.consumeWG.Done()
	for in := range c.in {
		if in.raw == nil {
			continue
		}
		msg := email.Normalize(in.raw, in.account, "INBOX")
		if err := c.pipeline.ProcessOne(context.Background(), msg); err != nil {
			c.log.Error().
				Err(err).
				Str("id", msg.ID).
				Str("account", logging.MaskEmail(in.account)).
				Msg("Live message processing failed")
		}
	}
}

// Shutdown closes every session, drains in-flight messages, and waits for
// outstanding notifications. Call after cancelling the context given to
// Start.
func (c *Coordinator) Shutdown() {
	c.mu.RLock()
	for address, sess := range c.sessions {
		if err := sess.Close(); err != nil {
			c.log.Warn().Err(err).Str("account", logging.MaskEmail(address)).Msg("Session close failed")
		}
	}
	c.mu.RUnlock()

	c.watchWG.Wait()
	close(c.in)
	c.consumeWG.Wait()
	c.pipeline.Wait()
	c.log.Info().Msg("Ingestion stopped")
}

// Status reports a snapshot per account.
func (c *Coordinator) Status() map[string]imap.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]imap.Status, len(c.sessions))
	for address, sess := range c.sessions {
		out[address] = sess.Status()
	}
	return out
}
