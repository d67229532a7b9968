package imap

import (
	"strings"
	"time"
)

// UID identifies an unread message within the session that listed it.
type UID uint32

type Address struct {
	Name string `json:"name,omitempty"`
	Addr string `json:"addr"`
}

func (a Address) String() string {
	if a.Name != "" {
		return a.Name + " <" + a.Addr + ">"
	}
	return a.Addr
}

// Message is a fetched inbound message. MessageID carries no angle brackets.
type Message struct {
	UID       UID       `json:"uid"`
	MessageID string    `json:"message_id,omitempty"`
	From      []Address `json:"from"`
	Subject   string    `json:"subject"`
	Date      time.Time `json:"date"`
	TextBody  string    `json:"text_body,omitempty"`
	HTMLBody  string    `json:"html_body,omitempty"`
}

// Sender returns the first From address that is not blank.
func (m *Message) Sender() (Address, bool) {
	for _, a := range m.From {
		if strings.TrimSpace(a.Addr) != "" {
			return a, true
		}
	}
	return Address{}, false
}
