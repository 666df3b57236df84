package email

import (
	"bytes"
	"io"
	"net/mail"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
)

// NoSubject is the subject assigned to messages that arrive without one.
const NoSubject = "(No Subject)"

// Normalize turns one transport-level message into the canonical Message.
// It never fails: every missing field maps to a documented default (absent
// subject becomes NoSubject, absent date the current time, absent body the
// empty string), and malformed MIME degrades to a plain-text body. This is
// the single place transport quirks are absorbed; downstream components rely
// on the uniform shape.
func Normalize(raw *RawMessage, account, folder string) *Message {
	m := &Message{
		Account:  account,
		Folder:   folder,
		Subject:  NoSubject,
		Category: CategoryUncategorized,
		Headers:  make(map[string]string),
	}

	if env := raw.Envelope; env != nil {
		if env.Subject != "" {
			m.Subject = env.Subject
		}
		if !env.Date.IsZero() {
			m.Date = env.Date
		}
		if env.MessageID != "" {
			m.MessageID = trimMessageID(env.MessageID)
		}
		if len(env.From) > 0 {
			m.From = env.From[0].Addr()
		}
		for _, a := range env.To {
			m.To = append(m.To, a.Addr())
		}
	}

	if len(raw.Body) > 0 {
		parseBody(raw.Body, m)
	}

	if m.Date.IsZero() {
		m.Date = time.Now()
	}
	m.ID = DeriveID(account, m.MessageID)
	return m
}

// parseBody walks the MIME structure of a full RFC 5322 message, filling the
// text/HTML bodies, attachment metadata, and the header bag. Fields already
// populated from the envelope are kept; header values only fill gaps, so a
// degraded fetch without an envelope still yields a usable message.
func parseBody(body []byte, m *Message) {
	mr, err := gomail.CreateReader(bytes.NewReader(body))
	if err != nil {
		// Not parseable as a structured message; keep the raw text.
		m.Body = string(body)
		return
	}
	defer mr.Close()

	fields := mr.Header.Fields()
	for fields.Next() {
		m.Headers[fields.Key()] = fields.Value()
	}

	if m.Subject == NoSubject {
		if subject, err := mr.Header.Subject(); err == nil && subject != "" {
			m.Subject = subject
		}
	}
	if m.MessageID == "" {
		if id, err := mr.Header.MessageID(); err == nil {
			m.MessageID = id
		}
	}
	if m.From == "" {
		if addr, err := mail.ParseAddress(mr.Header.Get("From")); err == nil {
			m.From = addr.Address
		}
	}
	if len(m.To) == 0 {
		if addrs, err := mail.ParseAddressList(mr.Header.Get("To")); err == nil {
			for _, a := range addrs {
				m.To = append(m.To, a.Address)
			}
		}
	}
	if m.Date.IsZero() {
		if date, err := mr.Header.Date(); err == nil && !date.IsZero() {
			m.Date = date
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// One bad part never aborts the message.
			break
		}

		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			contentType, _, _ := h.ContentType()
			data, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				if m.Body == "" {
					m.Body = string(data)
				}
			case strings.HasPrefix(contentType, "text/html"):
				if m.HTMLBody == "" {
					m.HTMLBody = string(data)
				}
			}
		case *gomail.AttachmentHeader:
			filename, _ := h.Filename()
			if filename == "" {
				filename = "unknown"
			}
			contentType, _, _ := h.ContentType()
			data, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			m.Attachments = append(m.Attachments, Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        int64(len(data)),
			})
		}
	}
}

func trimMessageID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}
