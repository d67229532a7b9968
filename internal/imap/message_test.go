package imap

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
)

func TestParseRaw(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantText string
		wantHTML string
		wantFrom string
	}{
		{
			name: "plain text",
			raw: "From: Alice <alice@example.com>\r\n" +
				"Subject: Hi\r\n" +
				"Content-Type: text/plain; charset=utf-8\r\n" +
				"\r\n" +
				"What is Go?\r\n",
			wantText: "What is Go?",
			wantFrom: "alice@example.com",
		},
		{
			name: "multipart alternative",
			raw: "From: bob@example.com\r\n" +
				"Subject: Both\r\n" +
				"MIME-Version: 1.0\r\n" +
				"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
				"\r\n" +
				"--XYZ\r\n" +
				"Content-Type: text/plain; charset=utf-8\r\n" +
				"\r\n" +
				"plain part\r\n" +
				"--XYZ\r\n" +
				"Content-Type: text/html; charset=utf-8\r\n" +
				"\r\n" +
				"<p>html part</p>\r\n" +
				"--XYZ--\r\n",
			wantText: "plain part",
			wantHTML: "<p>html part</p>",
			wantFrom: "bob@example.com",
		},
		{
			name: "html only",
			raw: "From: carol@example.com\r\n" +
				"Content-Type: text/html; charset=utf-8\r\n" +
				"\r\n" +
				"<b>bold question</b>\r\n",
			wantHTML: "<b>bold question</b>",
			wantFrom: "carol@example.com",
		},
		{
			name: "quoted printable",
			raw: "From: dave@example.com\r\n" +
				"Content-Type: text/plain; charset=utf-8\r\n" +
				"Content-Transfer-Encoding: quoted-printable\r\n" +
				"\r\n" +
				"caf=C3=A9\r\n",
			wantText: "café",
			wantFrom: "dave@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := parseRaw([]byte(tt.raw))

			if got := strings.TrimSpace(msg.TextBody); got != tt.wantText {
				t.Errorf("TextBody = %q, want %q", got, tt.wantText)
			}
			if got := strings.TrimSpace(msg.HTMLBody); got != tt.wantHTML {
				t.Errorf("HTMLBody = %q, want %q", got, tt.wantHTML)
			}
			sender, _ := msg.Sender()
			if sender.Addr != tt.wantFrom {
				t.Errorf("Sender = %q, want %q", sender.Addr, tt.wantFrom)
			}
		})
	}
}

func TestParseRawEmpty(t *testing.T) {
	msg := parseRaw(nil)
	if msg.TextBody != "" || msg.HTMLBody != "" || len(msg.From) != 0 {
		t.Errorf("parseRaw(nil) = %+v, want zero message", msg)
	}
}

func TestMessageFromPartsEnvelopeWins(t *testing.T) {
	raw := "From: header@example.com\r\nSubject: header subject\r\n\r\nbody\r\n"
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	env := &imap.Envelope{
		Subject:   "envelope subject",
		Date:      date,
		MessageID: "<env@example.com>",
		From: []imap.Address{
			{Name: "Erin", Mailbox: "erin", Host: "example.com"},
		},
	}

	msg := messageFromParts(7, env, []byte(raw))

	if msg.UID != 7 {
		t.Errorf("UID = %d, want 7", msg.UID)
	}
	if msg.Subject != "envelope subject" {
		t.Errorf("Subject = %q, want %q", msg.Subject, "envelope subject")
	}
	if msg.MessageID != "env@example.com" {
		t.Errorf("MessageID = %q, want %q", msg.MessageID, "env@example.com")
	}
	if !msg.Date.Equal(date) {
		t.Errorf("Date = %v, want %v", msg.Date, date)
	}
	if len(msg.From) != 1 || msg.From[0].String() != "Erin <erin@example.com>" {
		t.Errorf("From = %v, want [Erin <erin@example.com>]", msg.From)
	}
	if strings.TrimSpace(msg.TextBody) != "body" {
		t.Errorf("TextBody = %q, want %q", msg.TextBody, "body")
	}
}

func TestSenderSkipsBlankAddresses(t *testing.T) {
	tests := []struct {
		name string
		from []Address
		want string
		ok   bool
	}{
		{"none", nil, "", false},
		{"blank only", []Address{{Name: "Nobody", Addr: "  "}}, "", false},
		{"first blank", []Address{{Addr: ""}, {Addr: "b@example.com"}}, "b@example.com", true},
		{"first wins", []Address{{Addr: "a@example.com"}, {Addr: "b@example.com"}}, "a@example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &Message{From: tt.from}
			got, ok := msg.Sender()
			if ok != tt.ok || got.Addr != tt.want {
				t.Errorf("Sender() = %q, %v; want %q, %v", got.Addr, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRawBody(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Subject: x\r\n\r\nbody", "body"},
		{"Subject: x\n\nbody", "body"},
		{"no headers at all", "no headers at all"},
	}

	for _, tt := range tests {
		if got := rawBody([]byte(tt.raw)); got != tt.want {
			t.Errorf("rawBody(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
