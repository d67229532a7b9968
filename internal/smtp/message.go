package smtp

import (
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Reply is one outbound answer. InReplyTo and MessageID carry no angle
// brackets.
type Reply struct {
	From      string
	To        string
	ToName    string
	Subject   string
	Body      string
	InReplyTo string
	MessageID string
	Date      time.Time
}

// Subject builds the reply subject. The prefix is added even when the
// original already starts with "Re:".
func Subject(original string) string {
	return "Re: " + original
}

// NewReply answers originalSubject from the mailbox identity from.
func NewReply(from, to, originalSubject, body, inReplyTo string) *Reply {
	return &Reply{
		From:      from,
		To:        to,
		Subject:   Subject(originalSubject),
		Body:      body,
		InReplyTo: inReplyTo,
		MessageID: newMessageID(from),
		Date:      time.Now(),
	}
}

func newMessageID(from string) string {
	domain := "askmail.local"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return uuid.NewString() + "@" + domain
}

// writeMessage renders r as a single-part text/plain message.
func writeMessage(w io.Writer, r *Reply) error {
	var h mail.Header

	date := r.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Address: r.From}})
	h.SetAddressList("To", []*mail.Address{{Name: r.ToName, Address: r.To}})
	h.SetSubject(r.Subject)

	id := r.MessageID
	if id == "" {
		id = newMessageID(r.From)
	}
	h.SetMessageID(id)

	if r.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{r.InReplyTo})
		h.SetMsgIDList("References", []string{r.InReplyTo})
	}

	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	body, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(body, r.Body); err != nil {
		body.Close()
		return err
	}
	return body.Close()
}
