// Package index defines the search-index collaborator consumed by the
// processing pipeline and read surfaces, plus a bundled SQLite-backed
// implementation. The pipeline only depends on the interface; swapping in a
// remote search engine is a wiring change.
package index

import (
	"context"
	"errors"

	"github.com/ShriramNarkhede/Email-OneBox/pkg/email"
)

// ErrNotFound is returned by GetByID for ids that were never indexed.
var ErrNotFound = errors.New("message not found")

// Filter narrows a search. Zero values mean "no constraint"; Query matches
// subject, body, and sender.
type Filter struct {
	Query    string
	Account  string
	Folder   string
	Category email.Category
	Offset   int
	Limit    int
}

// MailIndex is the full index surface. Writes are keyed by message id with
// last-write-wins overwrite semantics, which is what makes reprocessing
// idempotent. Implementations must tolerate concurrent writers.
type MailIndex interface {
	EnsureSchema(ctx context.Context) error
	UpsertOne(ctx context.Context, msg *email.Message) error
	UpsertMany(ctx context.Context, msgs []*email.Message) error
	GetByID(ctx context.Context, id string) (*email.Message, error)
	Search(ctx context.Context, f Filter) ([]*email.Message, error)
	Count(ctx context.Context) (int64, error)
	AggregateBy(ctx context.Context, field string) (map[string]int64, error)
}
