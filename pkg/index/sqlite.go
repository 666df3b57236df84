package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ShriramNarkhede/Email-OneBox/pkg/email"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	message_id  TEXT NOT NULL,
	account     TEXT NOT NULL,
	folder      TEXT NOT NULL,
	from_addr   TEXT NOT NULL,
	to_addrs    TEXT NOT NULL,
	subject     TEXT NOT NULL,
	body        TEXT NOT NULL,
	html_body   TEXT NOT NULL DEFAULT '',
	date        TEXT NOT NULL,
	category    TEXT NOT NULL,
	attachments TEXT NOT NULL,
	headers     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_account  ON messages(account);
CREATE INDEX IF NOT EXISTS idx_messages_category ON messages(category);
CREATE INDEX IF NOT EXISTS idx_messages_date     ON messages(date);
`

const upsertQuery = `
INSERT INTO messages (id, message_id, account, folder, from_addr, to_addrs,
	subject, body, html_body, date, category, attachments, headers)
VALUES (:id, :message_id, :account, :folder, :from_addr, :to_addrs,
	:subject, :body, :html_body, :date, :category, :attachments, :headers)
ON CONFLICT(id) DO UPDATE SET
	message_id  = excluded.message_id,
	account     = excluded.account,
	folder      = excluded.folder,
	from_addr   = excluded.from_addr,
	to_addrs    = excluded.to_addrs,
	subject     = excluded.subject,
	body        = excluded.body,
	html_body   = excluded.html_body,
	date        = excluded.date,
	category    = excluded.category,
	attachments = excluded.attachments,
	headers     = excluded.headers`

// aggregatable maps AggregateBy field names to columns. Anything else is
// rejected rather than interpolated.
var aggregatable = map[string]string{
	"category": "category",
	"account":  "account",
	"folder":   "folder",
}

// SQLiteIndex is the bundled MailIndex backed by a single SQLite database.
type SQLiteIndex struct {
	db *sqlx.DB
}

var _ MailIndex = (*SQLiteIndex)(nil)

// OpenSQLite opens (creating if needed) the index database at path. Use
// ":memory:" for an ephemeral index.
func OpenSQLite(path string) (*SQLiteIndex, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening index database %s: %w", path, err)
	}
	// Serialized writes: the pipeline upserts from several account
	// goroutines and SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	return &SQLiteIndex{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the messages table and its indexes when missing.
func (s *SQLiteIndex) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensuring index schema: %w", err)
	}
	return nil
}

// UpsertOne writes a single message, overwriting any previous record with
// the same id.
func (s *SQLiteIndex) UpsertOne(ctx context.Context, msg *email.Message) error {
	row, err := toRow(msg)
	if err != nil {
		return err
	}
	if _, err := s.db.NamedExecContext(ctx, upsertQuery, row); err != nil {
		return fmt.Errorf("upserting message %s: %w", msg.ID, err)
	}
	return nil
}

// UpsertMany writes a batch in one transaction.
func (s *SQLiteIndex) UpsertMany(ctx context.Context, msgs []*email.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting bulk upsert: %w", err)
	}
	defer tx.Rollback()

	for _, msg := range msgs {
		row, err := toRow(msg)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, upsertQuery, row); err != nil {
			return fmt.Errorf("upserting message %s in batch: %w", msg.ID, err)
		}
	}
	return tx.Commit()
}

// GetByID fetches one message, returning ErrNotFound when absent.
func (s *SQLiteIndex) GetByID(ctx context.Context, id string) (*email.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM messages WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", id, err)
	}
	return row.toMessage()
}

// Search returns messages matching the filter, newest first.
func (s *SQLiteIndex) Search(ctx context.Context, f Filter) ([]*email.Message, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 8)

	if f.Query != "" {
		like := "%" + f.Query + "%"
		where = append(where, "(subject LIKE ? OR body LIKE ? OR from_addr LIKE ?)")
		args = append(args, like, like, like)
	}
	if f.Account != "" {
		where = append(where, "account = ?")
		args = append(args, f.Account)
	}
	if f.Folder != "" {
		where = append(where, "folder = ?")
		args = append(args, f.Folder)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}

	query := "SELECT * FROM messages"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	msgs := make([]*email.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := row.toMessage()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Count returns the total number of indexed messages.
func (s *SQLiteIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM messages"); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}

// AggregateBy returns value counts for one of the aggregatable fields
// (category, account, folder).
func (s *SQLiteIndex) AggregateBy(ctx context.Context, field string) (map[string]int64, error) {
	column, ok := aggregatable[field]
	if !ok {
		return nil, fmt.Errorf("field %q is not aggregatable", field)
	}
	rows, err := s.db.QueryxContext(ctx,
		fmt.Sprintf("SELECT %s AS value, COUNT(*) AS n FROM messages GROUP BY %s", column, column))
	if err != nil {
		return nil, fmt.Errorf("aggregating by %s: %w", field, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var value string
		var n int64
		if err := rows.Scan(&value, &n); err != nil {
			return nil, fmt.Errorf("scanning aggregation row: %w", err)
		}
		out[value] = n
	}
	return out, rows.Err()
}

// messageRow is the flat database shape; list and map fields are JSON text.
type messageRow struct {
	ID          string `db:"id"`
	MessageID   string `db:"message_id"`
	Account     string `db:"account"`
	Folder      string `db:"folder"`
	FromAddr    string `db:"from_addr"`
	ToAddrs     string `db:"to_addrs"`
	Subject     string `db:"subject"`
	Body        string `db:"body"`
	HTMLBody    string `db:"html_body"`
	Date        string `db:"date"`
	Category    string `db:"category"`
	Attachments string `db:"attachments"`
	Headers     string `db:"headers"`
}

func toRow(msg *email.Message) (*messageRow, error) {
	toAddrs, err := json.Marshal(msg.To)
	if err != nil {
		return nil, fmt.Errorf("encoding recipients for %s: %w", msg.ID, err)
	}
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return nil, fmt.Errorf("encoding attachments for %s: %w", msg.ID, err)
	}
	headers, err := json.Marshal(msg.Headers)
	if err != nil {
		return nil, fmt.Errorf("encoding headers for %s: %w", msg.ID, err)
	}
	return &messageRow{
		ID:          msg.ID,
		MessageID:   msg.MessageID,
		Account:     msg.Account,
		Folder:      msg.Folder,
		FromAddr:    msg.From,
		ToAddrs:     string(toAddrs),
		Subject:     msg.Subject,
		Body:        msg.Body,
		HTMLBody:    msg.HTMLBody,
		// Fixed-width format so the lexicographic ORDER BY matches time order.
		Date:        msg.Date.UTC().Format(time.RFC3339),
		Category:    string(msg.Category),
		Attachments: string(attachments),
		Headers:     string(headers),
	}, nil
}

func (r *messageRow) toMessage() (*email.Message, error) {
	date, err := time.Parse(time.RFC3339, r.Date)
	if err != nil {
		return nil, fmt.Errorf("decoding date of %s: %w", r.ID, err)
	}
	msg := &email.Message{
		ID:        r.ID,
		MessageID: r.MessageID,
		Account:   r.Account,
		Folder:    r.Folder,
		From:      r.FromAddr,
		Subject:   r.Subject,
		Body:      r.Body,
		HTMLBody:  r.HTMLBody,
		Date:      date,
		Category:  email.Category(r.Category),
	}
	if err := json.Unmarshal([]byte(r.ToAddrs), &msg.To); err != nil {
		return nil, fmt.Errorf("decoding recipients of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Attachments), &msg.Attachments); err != nil {
		return nil, fmt.Errorf("decoding attachments of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Headers), &msg.Headers); err != nil {
		return nil, fmt.Errorf("decoding headers of %s: %w", r.ID, err)
	}
	return msg, nil
}
