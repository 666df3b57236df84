package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/rs/zerolog"

	"github.com/ShriramNarkhede/Email-OneBox/pkg/config"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/email"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/imap"
)

type fakeSession struct {
	connectErr error
	backfill   []*email.RawMessage
	live       []*email.RawMessage
	status     imap.Status

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{closed: make(chan struct{})}
}

func (f *fakeSession) Connect(context.Context) error { return f.connectErr }

func (f *fakeSession) FetchSince(context.Context, int) ([]*email.RawMessage, error) {
	return f.backfill, nil
}

func (f *fakeSession) Watch(ctx context.Context, out chan<- *email.RawMessage) error {
	for _, raw := range f.live {
		out <- raw
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.closed:
		return nil
	}
}

func (f *fakeSession) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSession) Status() imap.Status { return f.status }

type fakePipeline struct {
	mu      sync.Mutex
	batches [][]*email.Message
	singles []*email.Message
}

func (f *fakePipeline) ProcessBatch(_ context.Context, msgs []*email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, msgs)
	return nil
}

func (f *fakePipeline) ProcessOne(_ context.Context, msg *email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singles = append(f.singles, msg)
	return nil
}

func (f *fakePipeline) Wait() {}

func rawMsg(messageID, subject string) *email.RawMessage {
	return &email.RawMessage{
		UID:      1,
		Envelope: &goimap.Envelope{MessageID: messageID, Subject: subject},
		Body:     []byte("Subject: " + subject + "\r\n\r\nhello"),
	}
}

func accountsFor(sessions map[string]*fakeSession) []config.Account {
	accounts := make([]config.Account, 0, len(sessions))
	for address := range sessions {
		accounts = append(accounts, config.Account{
			Address: address, Host: "imap.test", Port: 993, TLS: true,
		})
	}
	return accounts
}

func runCoordinator(t *testing.T, sessions map[string]*fakeSession) *fakePipeline {
	t.Helper()
	pipeline := &fakePipeline{}
	factory := func(a config.Account, _ zerolog.Logger) Session {
		return sessions[a.Address]
	}
	coord := NewCoordinator(zerolog.Nop(), accountsFor(sessions), 30, factory, pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()
	coord.Shutdown()
	return pipeline
}

func TestBackfillPerAccount(t *testing.T) {
	a := newFakeSession()
	a.backfill = []*email.RawMessage{
		rawMsg("1@test", "one"),
		nil, // degraded fetch entry, must be skipped
		rawMsg("3@test", "three"),
		rawMsg("4@test", "four"),
	}
	b := newFakeSession()

	pipeline := runCoordinator(t, map[string]*fakeSession{
		"a@corp.io": a,
		"b@corp.io": b,
	})

	if len(pipeline.batches) != 1 {
		t.Fatalf("got %d batches, want 1 (empty backfills skip the pipeline)", len(pipeline.batches))
	}
	if len(pipeline.batches[0]) != 3 {
		t.Errorf("batch size = %d, want 3 with the nil entry skipped", len(pipeline.batches[0]))
	}
	for _, msg := range pipeline.batches[0] {
		if msg.Account != "a@corp.io" {
			t.Errorf("backfilled message attributed to %s", msg.Account)
		}
	}
}

func TestFailingAccountDoesNotBlockOthers(t *testing.T) {
	bad := newFakeSession()
	bad.connectErr = errors.New("authentication failed")
	good := newFakeSession()
	good.backfill = []*email.RawMessage{rawMsg("ok@test", "hello")}

	pipeline := runCoordinator(t, map[string]*fakeSession{
		"bad@corp.io":  bad,
		"good@corp.io": good,
	})

	if len(pipeline.batches) != 1 || len(pipeline.batches[0]) != 1 {
		t.Fatalf("healthy account not backfilled: %d batches", len(pipeline.batches))
	}
	if pipeline.batches[0][0].Account != "good@corp.io" {
		t.Errorf("batch attributed to %s", pipeline.batches[0][0].Account)
	}
}

func TestLiveMessagesReachPipeline(t *testing.T) {
	sess := newFakeSession()
	sess.live = []*email.RawMessage{
		rawMsg("live1@test", "first"),
		rawMsg("live2@test", "second"),
	}

	pipeline := runCoordinator(t, map[string]*fakeSession{"a@corp.io": sess})

	if len(pipeline.singles) != 2 {
		t.Fatalf("processed %d live messages, want 2", len(pipeline.singles))
	}
	for _, msg := range pipeline.singles {
		if msg.Account != "a@corp.io" {
			t.Errorf("live message attributed to %s", msg.Account)
		}
		if msg.ID == "" {
			t.Error("live message has no id")
		}
	}
}

func TestStatusSnapshotsAllAccounts(t *testing.T) {
	a := newFakeSession()
	a.status = imap.Status{Account: "a@corp.io", State: imap.StateConnectedPush}
	b := newFakeSession()
	b.status = imap.Status{Account: "b@corp.io", State: imap.StateReconnecting}
	sessions := map[string]*fakeSession{"a@corp.io": a, "b@corp.io": b}

	pipeline := &fakePipeline{}
	factory := func(acc config.Account, _ zerolog.Logger) Session { return sessions[acc.Address] }
	coord := NewCoordinator(zerolog.Nop(), accountsFor(sessions), 30, factory, pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	status := coord.Status()
	if len(status) != 2 {
		t.Fatalf("Status() has %d accounts, want 2", len(status))
	}
	if status["a@corp.io"].State != imap.StateConnectedPush {
		t.Errorf("a state = %s", status["a@corp.io"].State)
	}
	if status["b@corp.io"].State != imap.StateReconnecting {
		t.Errorf("b state = %s", status["b@corp.io"].State)
	}

	cancel()
	coord.Shutdown()
}
