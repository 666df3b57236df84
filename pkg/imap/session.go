// Package imap maintains one long-lived mailbox connection per account:
// historical backfill on startup, then real-time delivery via IDLE when the
// server advertises it, with a polling fallback when it does not. Sessions
// reconnect forever with capped exponential backoff; only rejected
// credentials stop them.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/ShriramNarkhede/Email-OneBox/pkg/config"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/email"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/logging"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/reliability"
)

// State is the connection lifecycle phase of a session.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnectedPush State = "connected_push"
	StateConnectedPoll State = "connected_poll"
	StateReconnecting  State = "reconnecting"
	StateStopped       State = "stopped"
)

// Status is a point-in-time snapshot of a session.
type Status struct {
	Account     string
	State       State
	ConnectedAt time.Time
	RetryDelay  time.Duration
	LastError   string
}

const (
	dialTimeout  = 60 * time.Second
	authTimeout  = 10 * time.Second
	idleInterval = 30 * time.Second
	pollInterval = 30 * time.Second
	inboxFolder  = "INBOX"
)

// Session owns the IMAP connection for one account. All methods are safe for
// concurrent use; Watch is expected to run on its own goroutine.
type Session struct {
	account config.Account
	log     zerolog.Logger

	retry   reliability.RetryConfig
	breaker *reliability.CircuitBreaker

	mu           sync.RWMutex
	client       *imapclient.Client
	state        State
	connectedAt  time.Time
	retryDelay   time.Duration
	lastError    string
	supportsIdle bool
	// Message-IDs already delivered this run; UNSEEN search results overlap
	// across cycles because delivery never sets \Seen.
	delivered map[string]struct{}
	// UIDs already fetched on the current connection, subtracted from search
	// results so standing unread mail is not re-downloaded every cycle.
	// Cleared on reconnect: UIDVALIDITY may change between connections.
	deliveredUID map[imap.UID]struct{}
}

// NewSession builds a disconnected session for the given account.
func NewSession(account config.Account, log zerolog.Logger) *Session {
	breaker, _ := reliability.NewCircuitBreaker(5, 2*time.Minute)
	return &Session{
		account: account,
		log: log.With().
			Str("component", "imap").
			Str("account", logging.MaskEmail(account.Address)).
			Logger(),
		retry:     reliability.ReconnectConfig(),
		breaker:   breaker,
		state:        StateDisconnected,
		delivered:    make(map[string]struct{}),
		deliveredUID: make(map[imap.UID]struct{}),
	}
}

// Connect dials, authenticates, and probes capabilities. Rejected credentials
// come back as *AuthError; everything else as *TransportError.
func (s *Session) Connect(ctx context.Context) error {
	s.setState(StateConnecting)

	addr := net.JoinHostPort(s.account.Host, fmt.Sprintf("%d", s.account.Port))
	s.log.Info().Str("address", addr).Bool("tls", s.account.TLS).Msg("Connecting to IMAP server")

	dialer := &net.Dialer{Timeout: dialTimeout}
	var conn net.Conn
	var err error
	if s.account.TLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: s.account.Host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		s.fail(err)
		return &TransportError{Op: "dial " + addr, Err: err}
	}

	client := imapclient.New(conn, &imapclient.Options{})

	if err := waitWithTimeout(authTimeout, func() error {
		return client.Login(s.account.Address, s.account.Password).Wait()
	}); err != nil {
		client.Close()
		s.fail(err)
		if reliability.IsAuthError(err) {
			return &AuthError{Account: s.account.Address, Err: err}
		}
		return &TransportError{Op: "login", Err: err}
	}

	caps, err := client.Capability().Wait()
	if err != nil {
		client.Close()
		s.fail(err)
		return &TransportError{Op: "capability", Err: err}
	}
	supportsIdle := caps.Has(imap.CapIdle)

	if _, err := client.Select(inboxFolder, nil).Wait(); err != nil {
		client.Close()
		s.fail(err)
		return &TransportError{Op: "select " + inboxFolder, Err: err}
	}

	s.mu.Lock()
	s.client = client
	s.supportsIdle = supportsIdle
	s.connectedAt = time.Now()
	s.retryDelay = 0
	s.lastError = ""
	s.deliveredUID = make(map[imap.UID]struct{})
	if supportsIdle {
		s.state = StateConnectedPush
	} else {
		s.state = StateConnectedPoll
	}
	s.mu.Unlock()

	mode := "poll"
	if supportsIdle {
		mode = "push"
	}
	s.log.Info().Str("mode", mode).Msg("Connected to IMAP server")
	s.breaker.Reset()
	return nil
}

// FetchSince returns every message in the inbox dated within the last `days`
// days. Fetched messages are remembered so the watch loop does not redeliver
// the unseen ones among them.
func (s *Session) FetchSince(ctx context.Context, days int) ([]*email.RawMessage, error) {
	client, err := s.activeClient()
	if err != nil {
		return nil, err
	}

	since := time.Now().AddDate(0, 0, -days)
	criteria := &imap.SearchCriteria{Since: since}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		s.dropConnection(err)
		return nil, &TransportError{Op: "backfill search", Err: err}
	}

	uids := searchData.AllUIDs()
	s.log.Info().Time("since", since).Int("count", len(uids)).Msg("Backfill search completed")
	if len(uids) == 0 {
		return nil, nil
	}

	msgs, err := s.fetchRaw(client, uids)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	for _, m := range msgs {
		s.deliveredUID[m.UID] = struct{}{}
		if m.Envelope != nil && m.Envelope.MessageID != "" {
			s.delivered[m.Envelope.MessageID] = struct{}{}
		}
	}
	s.mu.Unlock()
	return msgs, nil
}

// Watch delivers new messages to out until ctx is cancelled or credentials
// are rejected. Connection loss triggers unbounded reconnection with capped
// exponential backoff.
func (s *Session) Watch(ctx context.Context, out chan<- *email.RawMessage) error {
	for {
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			return ctx.Err()
		default:
		}

		client, err := s.activeClient()
		if err != nil {
			if err := s.reconnect(ctx); err != nil {
				return err
			}
			continue
		}

		if err := s.cycle(ctx, client, out); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.setState(StateStopped)
				return err
			}
			s.log.Warn().Err(err).Msg("Watch cycle failed, reconnecting")
			s.dropConnection(err)
		}
	}
}

// cycle runs one wait-then-check round: an IDLE window in push mode, a plain
// tick in poll mode, then an UNSEEN sweep either way.
func (s *Session) cycle(ctx context.Context, client *imapclient.Client, out chan<- *email.RawMessage) error {
	s.mu.RLock()
	push := s.supportsIdle
	s.mu.RUnlock()

	if push {
		idleCmd, err := client.Idle()
		if err != nil {
			return &TransportError{Op: "idle", Err: err}
		}
		select {
		case <-ctx.Done():
			idleCmd.Close()
			return ctx.Err()
		case <-time.After(idleInterval):
			if err := idleCmd.Close(); err != nil {
				return &TransportError{Op: "idle close", Err: err}
			}
		}
	} else {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	return s.checkUnseen(ctx, client, out)
}

// checkUnseen searches for unseen messages and delivers the ones not yet
// handed out this run. The search result is pruned against already-fetched
// UIDs before any fetch: the session never sets \Seen, so standing unread
// mail reappears in every UNSEEN result and must not be re-downloaded.
// Fetches peek; the unseen flag is the user's.
func (s *Session) checkUnseen(ctx context.Context, client *imapclient.Client, out chan<- *email.RawMessage) error {
	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return &TransportError{Op: "unseen search", Err: err}
	}

	uids := s.filterUndelivered(searchData.AllUIDs())
	if len(uids) == 0 {
		return nil
	}

	msgs, err := s.fetchRaw(client, uids)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		s.rememberUID(m.UID)
		if !s.markDelivered(m) {
			continue
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// filterUndelivered returns the UIDs not yet fetched on this connection.
func (s *Session) filterUndelivered(uids []imap.UID) []imap.UID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fresh := make([]imap.UID, 0, len(uids))
	for _, uid := range uids {
		if _, ok := s.deliveredUID[uid]; !ok {
			fresh = append(fresh, uid)
		}
	}
	return fresh
}

func (s *Session) rememberUID(uid imap.UID) {
	s.mu.Lock()
	s.deliveredUID[uid] = struct{}{}
	s.mu.Unlock()
}

// fetchRaw fetches envelope plus full body for the given UIDs without setting
// any flags.
func (s *Session) fetchRaw(client *imapclient.Client, uids []imap.UID) ([]*email.RawMessage, error) {
	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)

	msgs := make([]*email.RawMessage, 0, len(uids))
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to collect fetched message, skipping")
			continue
		}
		msgs = append(msgs, &email.RawMessage{
			UID:      buf.UID,
			Envelope: buf.Envelope,
			Body:     buf.FindBodySection(bodySection),
		})
	}
	if err := fetchCmd.Close(); err != nil {
		s.dropConnection(err)
		return nil, &TransportError{Op: "fetch", Err: err}
	}
	return msgs, nil
}

// markDelivered records the message as handed out and reports whether it was
// new. Messages without a Message-ID are always delivered; the pipeline
// dedupes by derived id anyway.
func (s *Session) markDelivered(m *email.RawMessage) bool {
	if m.Envelope == nil || m.Envelope.MessageID == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.delivered[m.Envelope.MessageID]; ok {
		return false
	}
	s.delivered[m.Envelope.MessageID] = struct{}{}
	return true
}

// reconnect retries Connect forever with backoff. Only a rejected password or
// a cancelled context breaks the loop.
func (s *Session) reconnect(ctx context.Context) error {
	s.setState(StateReconnecting)
	for attempt := 0; ; attempt++ {
		err := s.breaker.Execute(func() error { return s.Connect(ctx) })
		if err == nil {
			return nil
		}
		var authErr *AuthError
		if errors.As(err, &authErr) {
			s.setState(StateStopped)
			s.log.Error().Err(err).Msg("Credentials rejected, giving up on this account")
			return err
		}

		delay := s.retry.DelayFor(attempt)
		s.mu.Lock()
		s.state = StateReconnecting
		s.retryDelay = delay
		s.mu.Unlock()
		s.log.Warn().Err(err).Dur("retry_in", delay).Int("attempt", attempt+1).Msg("Reconnect failed, backing off")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			s.setState(StateStopped)
			return ctx.Err()
		}
	}
}

// Close logs out and releases the connection. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.state = StateStopped
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := waitWithTimeout(2*time.Second, func() error {
		return client.Logout().Wait()
	}); err != nil {
		s.log.Warn().Err(err).Msg("Logout failed, force closing connection")
	}
	return client.Close()
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Account:     s.account.Address,
		State:       s.state,
		ConnectedAt: s.connectedAt,
		RetryDelay:  s.retryDelay,
		LastError:   s.lastError,
	}
}

func (s *Session) activeClient() (*imapclient.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, &TransportError{Op: "session", Err: errors.New("not connected")}
	}
	return s.client, nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateDisconnected
	s.lastError = err.Error()
	s.mu.Unlock()
}

// dropConnection force-closes the current handle after a hard failure so the
// next cycle reconnects cleanly.
func (s *Session) dropConnection(err error) {
	s.mu.Lock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	s.state = StateDisconnected
	if err != nil {
		s.lastError = err.Error()
	}
	s.mu.Unlock()
}

// waitWithTimeout bounds a blocking call that has no context support.
func waitWithTimeout(d time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		return fmt.Errorf("timed out after %s", d)
	}
}
