package email

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog/log"
)

// ParsedAttachment is a file part of a message
type ParsedAttachment struct {
	Filename string
	MimeType string
	Data     []byte
}

// ParsedEmail is the decoded form of a raw RFC 5322 message
type ParsedEmail struct {
	MessageID   string
	FromName    string
	FromAddress string
	To          []string
	Subject     string
	Date        time.Time
	Text        string
	HTML        string
	Attachments []ParsedAttachment
}

// DedupKey is the message's external id: the Message-ID without angle
// brackets, or a hash of sender, subject and minute when it is absent
func (p *ParsedEmail) DedupKey() string {
	if p.MessageID != "" {
		return p.MessageID
	}
	minute := p.Date.UTC().Truncate(time.Minute).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(strings.ToLower(p.FromAddress) + "|" + p.Subject + "|" + minute))
	return "hash:" + hex.EncodeToString(sum[:16])
}

// Body returns the plain text, converting the HTML part when there is none
func (p *ParsedEmail) Body() string {
	if text := strings.TrimSpace(p.Text); text != "" {
		return text
	}
	if p.HTML == "" {
		return ""
	}
	md, err := htmltomarkdown.ConvertString(p.HTML)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to convert HTML body")
		return strings.TrimSpace(p.HTML)
	}
	return strings.TrimSpace(md)
}

// Parse decodes a raw message. Encoded words in headers and filenames are
// decoded; a malformed date falls back to now.
func Parse(raw []byte, now time.Time) (*ParsedEmail, error) {
	r, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	defer r.Close()

	out := &ParsedEmail{}
	h := r.Header
	if id, err := h.MessageID(); err == nil {
		out.MessageID = strings.Trim(strings.TrimSpace(id), "<>")
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		out.FromName = from[0].Name
		out.FromAddress = strings.ToLower(from[0].Address)
	}
	if to, err := h.AddressList("To"); err == nil {
		for _, addr := range to {
			out.To = append(out.To, strings.ToLower(addr.Address))
		}
	}
	if subject, err := h.Subject(); err == nil {
		out.Subject = strings.TrimSpace(subject)
	} else {
		out.Subject = strings.TrimSpace(h.Get("Subject"))
	}
	if date, err := h.Date(); err == nil && !date.IsZero() {
		out.Date = date.UTC()
	} else {
		out.Date = now.UTC()
	}

	for {
		part, err := r.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return out, fmt.Errorf("failed to read part: %w", err)
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := ph.ContentType()
			name, _ := (&mail.AttachmentHeader{Header: ph.Header}).Filename()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				return out, fmt.Errorf("failed to read part body: %w", err)
			}
			switch {
			case name != "":
				out.Attachments = append(out.Attachments, ParsedAttachment{Filename: name, MimeType: contentType, Data: data})
			case contentType == "text/html":
				out.HTML += string(data)
			case contentType == "text/plain" || contentType == "":
				out.Text += string(data)
			}
		case *mail.AttachmentHeader:
			contentType, _, _ := ph.ContentType()
			name, _ := ph.Filename()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				return out, fmt.Errorf("failed to read attachment: %w", err)
			}
			out.Attachments = append(out.Attachments, ParsedAttachment{Filename: name, MimeType: contentType, Data: data})
		}
	}
	return out, nil
}
