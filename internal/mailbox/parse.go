package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	htmlcharset "golang.org/x/net/html/charset"

	"github.com/kursadbilgin/order-relay/internal/maildecode"
)

func init() {
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

// AttachmentInfo is attachment metadata surfaced at parse time. Bodies are
// not materialized; downloads re-fetch by UID later.
type AttachmentInfo struct {
	Filename    string
	ContentType string
	SizeBytes   int64
}

// InboundMail is one parsed, decoded mailbox message.
type InboundMail struct {
	UID            uint32
	MessageID      string
	FromAddress    string
	FromName       string
	Subject        string
	TextBody       string
	HTMLBody       string
	ReceivedAt     time.Time
	Attachments    []AttachmentInfo
	DecodeDegraded bool
}

// ParseMessage decodes a raw message source into an InboundMail. Header and
// body decoding run through the layered fallback chain, so a mis-encoded
// message degrades instead of failing ingestion.
func ParseMessage(uid uint32, raw []byte, internalDate time.Time) (*InboundMail, error) {
	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message uid %d: %w", uid, err)
	}
	defer reader.Close()

	header := reader.Header
	msg := &InboundMail{UID: uid, ReceivedAt: internalDate}

	if id, err := header.MessageID(); err == nil && id != "" {
		msg.MessageID = "<" + id + ">"
	} else {
		msg.MessageID = strings.TrimSpace(header.Get("Message-Id"))
	}

	subject := maildecode.Header(header.Get("Subject"))
	msg.Subject = subject.Text
	msg.DecodeDegraded = subject.Degraded

	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		msg.FromAddress = strings.ToLower(strings.TrimSpace(from[0].Address))
		name := maildecode.Header(from[0].Name)
		msg.FromName = name.Text
		msg.DecodeDegraded = msg.DecodeDegraded || name.Degraded
	}

	if msg.ReceivedAt.IsZero() {
		if date, err := header.Date(); err == nil {
			msg.ReceivedAt = date
		}
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A broken part must not lose the rest of the message.
			break
		}

		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			contentType, params, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			decoded := maildecode.Body(body, params["charset"])
			msg.DecodeDegraded = msg.DecodeDegraded || decoded.Degraded

			switch {
			case strings.HasPrefix(contentType, "text/plain") && msg.TextBody == "":
				msg.TextBody = decoded.Text
			case strings.HasPrefix(contentType, "text/html") && msg.HTMLBody == "":
				msg.HTMLBody = decoded.Text
			}
		case *gomail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			size, _ := io.Copy(io.Discard, part.Body)
			msg.Attachments = append(msg.Attachments, AttachmentInfo{
				Filename:    maildecode.Header(filename).Text,
				ContentType: contentType,
				SizeBytes:   size,
			})
		}
	}

	return msg, nil
}
