package smtp

import (
	"errors"
	"fmt"
	"net/textproto"

	"github.com/emersion/go-smtp"
)

type Stage string

const (
	StageDial Stage = "dial"
	StageAuth Stage = "auth"
	StageMail Stage = "mail"
	StageRcpt Stage = "rcpt"
	StageData Stage = "data"
	StageQuit Stage = "quit"
)

// SendError wraps any failure while delivering a reply with the step of
// the SMTP conversation it happened in.
type SendError struct {
	Stage Stage
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("SMTP %s failed: %v", e.Stage, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsPermanent reports whether the server answered with a 5xx reply.
func (e *SendError) IsPermanent() bool {
	return replyCode(e.Err)/100 == 5
}

// Delivered reports whether the server accepted the message before the
// failure, which is only the case once DATA has completed.
func (e *SendError) Delivered() bool {
	return e.Stage == StageQuit
}

func replyCode(err error) int {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr.Code
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code
	}
	return 0
}

func IsSendError(err error) bool {
	var sendErr *SendError
	return errors.As(err, &sendErr)
}
