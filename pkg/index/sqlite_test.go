package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ShriramNarkhede/Email-OneBox/pkg/email"
)

func newTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	if err := idx.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return idx
}

func testMessage(id string) *email.Message {
	return &email.Message{
		ID:        id,
		MessageID: id + "@example.com",
		Account:   "me@corp.io",
		Folder:    "INBOX",
		From:      "alice@example.com",
		To:        []string{"me@corp.io"},
		Subject:   "Proposal for " + id,
		Body:      "body of " + id,
		Date:      time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		Category:  email.CategoryUncategorized,
		Attachments: []email.Attachment{
			{Filename: "a.pdf", ContentType: "application/pdf", Size: 512},
		},
		Headers: map[string]string{"X-Test": "1"},
	}
}

func TestUpsertAndGetRoundTrip(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	want := testMessage("m1")
	if err := idx.UpsertOne(ctx, want); err != nil {
		t.Fatalf("UpsertOne() error = %v", err)
	}
	got, err := idx.GetByID(ctx, "m1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.GetByID(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpsertOverwrites(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	msg := testMessage("m1")
	if err := idx.UpsertOne(ctx, msg); err != nil {
		t.Fatalf("UpsertOne() error = %v", err)
	}
	msg.Category = email.CategoryInterested
	msg.Subject = "updated"
	if err := idx.UpsertOne(ctx, msg); err != nil {
		t.Fatalf("second UpsertOne() error = %v", err)
	}

	n, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Count() = %d after double upsert, want 1", n)
	}
	got, err := idx.GetByID(ctx, "m1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Category != email.CategoryInterested || got.Subject != "updated" {
		t.Errorf("overwrite not applied: %+v", got)
	}
}

func TestUpsertMany(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	msgs := []*email.Message{testMessage("a"), testMessage("b"), testMessage("c")}
	if err := idx.UpsertMany(ctx, msgs); err != nil {
		t.Fatalf("UpsertMany() error = %v", err)
	}
	n, _ := idx.Count(ctx)
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}

	// Re-running the same batch must not duplicate.
	if err := idx.UpsertMany(ctx, msgs); err != nil {
		t.Fatalf("repeat UpsertMany() error = %v", err)
	}
	n, _ = idx.Count(ctx)
	if n != 3 {
		t.Errorf("Count() after re-batch = %d, want 3", n)
	}
}

func TestSearchFilters(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	m1 := testMessage("m1")
	m1.Body = "we are very interested in your offer"
	m1.Category = email.CategoryInterested
	m2 := testMessage("m2")
	m2.Account = "other@corp.io"
	m2.Date = m1.Date.Add(time.Hour)
	if err := idx.UpsertMany(ctx, []*email.Message{m1, m2}); err != nil {
		t.Fatalf("UpsertMany() error = %v", err)
	}

	got, err := idx.Search(ctx, Filter{Query: "interested"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("text search = %v, want only m1", ids(got))
	}

	got, err = idx.Search(ctx, Filter{Account: "other@corp.io"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "m2" {
		t.Errorf("account filter = %v, want only m2", ids(got))
	}

	got, err = idx.Search(ctx, Filter{Category: email.CategoryInterested})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("category filter = %v, want only m1", ids(got))
	}

	got, err = idx.Search(ctx, Filter{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "m2" {
		t.Errorf("unfiltered search = %v, want newest first", ids(got))
	}
}

func TestAggregateBy(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	m1 := testMessage("m1")
	m1.Category = email.CategoryInterested
	m2 := testMessage("m2")
	m2.Category = email.CategoryInterested
	m3 := testMessage("m3")
	m3.Category = email.CategorySpam
	if err := idx.UpsertMany(ctx, []*email.Message{m1, m2, m3}); err != nil {
		t.Fatalf("UpsertMany() error = %v", err)
	}

	got, err := idx.AggregateBy(ctx, "category")
	if err != nil {
		t.Fatalf("AggregateBy() error = %v", err)
	}
	want := map[string]int64{"Interested": 2, "Spam": 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("category aggregation mismatch (-want +got):\n%s", diff)
	}

	if _, err := idx.AggregateBy(ctx, "body"); err == nil {
		t.Error("AggregateBy accepted a non-aggregatable field")
	}
}

func ids(msgs []*email.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
