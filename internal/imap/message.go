package imap

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// messageFromParts assembles a Message from the fetched envelope and the
// raw RFC 5322 bytes. Envelope fields win over parsed headers.
func messageFromParts(uid UID, env *imap.Envelope, raw []byte) *Message {
	msg := parseRaw(raw)
	msg.UID = uid

	if env == nil {
		return msg
	}

	if env.Subject != "" {
		msg.Subject = env.Subject
	}
	if !env.Date.IsZero() {
		msg.Date = env.Date
	}
	if id := trimID(env.MessageID); id != "" {
		msg.MessageID = id
	}
	if len(env.From) > 0 {
		from := make([]Address, 0, len(env.From))
		for _, addr := range env.From {
			from = append(from, Address{Name: addr.Name, Addr: addr.Addr()})
		}
		msg.From = from
	}

	return msg
}

// parseRaw extracts headers and the first plain-text and HTML bodies.
// Bodies that go-message cannot parse are kept verbatim as text.
func parseRaw(raw []byte) *Message {
	msg := &Message{}
	if len(raw) == 0 {
		return msg
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		msg.TextBody = rawBody(raw)
		return msg
	}

	h := mr.Header
	msg.Subject, _ = h.Subject()
	msg.Date, _ = h.Date()
	msg.MessageID, _ = h.MessageID()
	if list, err := h.AddressList("From"); err == nil {
		for _, a := range list {
			msg.From = append(msg.From, Address{Name: a.Name, Addr: a.Address})
		}
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if msg.TextBody == "" && msg.HTMLBody == "" {
				msg.TextBody = rawBody(raw)
			}
			break
		}

		inline, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := inline.ContentType()
		body, _ := io.ReadAll(p.Body)

		switch {
		case ct == "text/html" && msg.HTMLBody == "":
			msg.HTMLBody = string(body)
		case (ct == "text/plain" || ct == "") && msg.TextBody == "":
			msg.TextBody = string(body)
		}
	}

	mr.Close()
	return msg
}

func rawBody(raw []byte) string {
	s := string(raw)
	for _, sep := range []string{"\r\n\r\n", "\n\n"} {
		if i := strings.Index(s, sep); i >= 0 {
			return s[i+len(sep):]
		}
	}
	return s
}

func trimID(id string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(id), "<"), ">")
}
