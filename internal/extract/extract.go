// Package extract turns a fetched message into the question sent to the
// completion endpoint, or explains why the message cannot be answered.
package extract

import (
	"errors"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/bscott/askmail/internal/imap"
	"golang.org/x/net/html"
)

type SkipReason string

const (
	NoSender  SkipReason = "no sender"
	EmptyBody SkipReason = "empty body"
)

// SkipError marks a message that is not actionable. It is not a failure:
// the message is left untouched.
type SkipError struct {
	UID    imap.UID
	Reason SkipReason
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("message %d skipped: %s", e.UID, e.Reason)
}

func IsSkip(err error) bool {
	var skip *SkipError
	return errors.As(err, &skip)
}

type Question struct {
	Sender     string
	SenderName string
	Subject    string
	Text       string
	MessageID  string
}

// Extract picks the reply address and the question text. Plain text wins
// over HTML; HTML is converted to Markdown first.
func Extract(msg *imap.Message) (Question, error) {
	sender, ok := msg.Sender()
	if !ok {
		return Question{}, &SkipError{UID: msg.UID, Reason: NoSender}
	}

	text := msg.TextBody
	if strings.TrimSpace(text) == "" {
		text = htmlText(msg.HTMLBody)
	}
	if strings.TrimSpace(text) == "" {
		return Question{}, &SkipError{UID: msg.UID, Reason: EmptyBody}
	}

	return Question{
		Sender:     strings.TrimSpace(sender.Addr),
		SenderName: sender.Name,
		Subject:    msg.Subject,
		Text:       text,
		MessageID:  msg.MessageID,
	}, nil
}

func htmlText(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	md, err := htmltomarkdown.ConvertString(body)
	if err == nil {
		return strings.TrimSpace(md)
	}
	return stripTags(body)
}

// stripTags keeps only the text nodes of an HTML document.
func stripTags(body string) string {
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(body))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed document; either way keep what was read.
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) == "script" || string(name) == "style" {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); (string(name) == "script" || string(name) == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}
