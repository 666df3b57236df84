package email

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/google/uuid"
)

// Category is the classification label assigned to a message.
type Category string

const (
	CategoryInterested    Category = "Interested"
	CategoryMeetingBooked Category = "Meeting Booked"
	CategoryNotInterested Category = "Not Interested"
	CategorySpam          Category = "Spam"
	CategoryOutOfOffice   Category = "Out of Office"
	CategoryUncategorized Category = "Uncategorized"
)

// Attachment carries attachment metadata only; binary payloads are never
// retained by the pipeline.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Message is the canonical mail entity flowing through the pipeline. ID is
// assigned exactly once at normalization time; Category is the only field
// mutated afterwards.
type Message struct {
	ID          string            `json:"id" db:"id"`
	MessageID   string            `json:"messageId" db:"message_id"`
	Account     string            `json:"accountEmail" db:"account"`
	Folder      string            `json:"folder" db:"folder"`
	From        string            `json:"from" db:"from_addr"`
	To          []string          `json:"to"`
	Subject     string            `json:"subject" db:"subject"`
	Body        string            `json:"body" db:"body"`
	HTMLBody    string            `json:"htmlBody,omitempty" db:"html_body"`
	Date        time.Time         `json:"date" db:"date"`
	Category    Category          `json:"category" db:"category"`
	Attachments []Attachment      `json:"attachments"`
	Headers     map[string]string `json:"headers"`
}

// RawMessage is one fetched transport-level message before normalization.
// Envelope may be nil and Body may be empty on degraded fetches; the
// normalizer absorbs both.
type RawMessage struct {
	UID      imap.UID
	Envelope *imap.Envelope
	Body     []byte
}

// DeriveID produces the stable message identifier. Protocol Message-IDs are
// not unique across accounts, so the id is derived from the account plus the
// Message-ID; the same message re-fetched in a later backfill maps to the
// same id and re-indexing overwrites instead of duplicating. Messages with
// no Message-ID get a random id.
func DeriveID(account, messageID string) string {
	if messageID == "" {
		return uuid.NewString()
	}
	sum := sha256.Sum256([]byte(account + "\x00" + messageID))
	return hex.EncodeToString(sum[:16])
}
