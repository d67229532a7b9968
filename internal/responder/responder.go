// Package responder drives one pass over the mailbox: every unread
// message is answered, or left alone when it cannot be.
package responder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bscott/askmail/internal/config"
	"github.com/bscott/askmail/internal/extract"
	"github.com/bscott/askmail/internal/imap"
	"github.com/bscott/askmail/internal/ledger"
	"github.com/bscott/askmail/internal/logging"
	"github.com/bscott/askmail/internal/smtp"
)

// Mailbox is an open IMAP session.
type Mailbox interface {
	ListUnread(ctx context.Context) ([]imap.UID, error)
	Fetch(ctx context.Context, uid imap.UID) (*imap.Message, error)
	MarkSeen(ctx context.Context, uid imap.UID) error
	MarkDeadLetter(ctx context.Context, uid imap.UID) error
	Close() error
}

type Opener func(ctx context.Context) (Mailbox, error)

type Completer interface {
	Complete(ctx context.Context, question string) (string, bool)
}

type Sender interface {
	Send(ctx context.Context, reply *smtp.Reply) error
}

// IMAPOpener opens real IMAP sessions.
func IMAPOpener(cfg config.IMAPConfig, logger logging.Logger) Opener {
	return func(ctx context.Context) (Mailbox, error) {
		s, err := imap.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

type Report struct {
	RunID        string        `json:"run_id"`
	Found        int           `json:"found"`
	Replied      int           `json:"replied"`
	Fallback     int           `json:"fallback"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	DeadLettered int           `json:"dead_lettered"`
	Started      time.Time     `json:"started"`
	Duration     time.Duration `json:"duration"`
}

type Responder struct {
	Open      Opener
	Completer Completer
	Sender    Sender
	Ledger    ledger.Ledger
	Logger    logging.Logger

	// From is the mailbox identity replies are sent as.
	From     string
	Fallback string
	RunID    string

	// MaxSendAttempts > 0 dead-letters a message after that many failed
	// sends. Zero retries forever.
	MaxSendAttempts int

	// OnState, when set, observes every state transition.
	OnState func(State)
}

func (r *Responder) enter(s State) {
	if r.OnState != nil {
		r.OnState(s)
	}
	r.Logger.Debugf("state: %s", s)
}

// Run processes every unread message once. It returns an error only when
// the mailbox could not be opened or listed, or ctx ended the run early.
func (r *Responder) Run(ctx context.Context) (*Report, error) {
	if r.Logger == nil {
		r.Logger = logging.Discard()
	}
	if r.Ledger == nil {
		r.Ledger = ledger.Nop{}
	}
	if r.Fallback == "" {
		r.Fallback = config.DefaultFallback
	}

	report := &Report{RunID: r.RunID, Started: time.Now()}
	defer func() { report.Duration = time.Since(report.Started) }()

	r.enter(Connecting)
	mb, err := r.Open(ctx)
	if err != nil {
		r.Logger.Errorf("failed to open mailbox: %v", err)
		r.enter(Idle)
		return report, err
	}
	defer func() {
		r.enter(Disconnecting)
		if err := mb.Close(); err != nil {
			r.Logger.Warnf("closing mailbox: %v", err)
		}
		r.enter(Idle)
	}()

	r.enter(Listing)
	uids, err := mb.ListUnread(ctx)
	if err != nil {
		r.Logger.Errorf("failed to list unread messages: %v", err)
		return report, fmt.Errorf("listing unread messages: %w", err)
	}
	report.Found = len(uids)
	r.Logger.Infof("found %d unread message(s)", len(uids))

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			r.Logger.Warnf("run interrupted with %d message(s) left", report.Found-r.handled(report))
			return report, err
		}
		r.handle(ctx, mb, uid, report)
	}
	if err := ctx.Err(); err != nil {
		r.Logger.Warnf("run interrupted with %d message(s) left", report.Found-r.handled(report))
		return report, err
	}

	r.Logger.Infof("run done: %d replied (%d fallback), %d skipped, %d failed, %d dead-lettered",
		report.Replied, report.Fallback, report.Skipped, report.Failed, report.DeadLettered)
	return report, nil
}

func (r *Responder) handled(report *Report) int {
	return report.Replied + report.Skipped + report.Failed
}

func (r *Responder) handle(ctx context.Context, mb Mailbox, uid imap.UID, report *Report) {
	r.enter(Fetching)
	msg, err := mb.Fetch(ctx, uid)
	if err != nil {
		r.Logger.Warnf("skipping message %d: %v", uid, err)
		report.Failed++
		return
	}

	r.enter(Extracting)
	q, err := extract.Extract(msg)
	if err != nil {
		r.Logger.Warnf("skipping message %d (subject %q): %v", uid, msg.Subject, err)
		report.Skipped++
		return
	}

	r.enter(Completing)
	answer, ok := r.Completer.Complete(ctx, q.Text)
	if !ok {
		r.Logger.Warnf("no answer for %s (subject %q), sending fallback", q.Sender, q.Subject)
		answer = r.Fallback
	}

	r.enter(Replying)
	reply := smtp.NewReply(r.From, q.Sender, q.Subject, answer, q.MessageID)
	reply.ToName = q.SenderName
	key := ledgerKey(q.MessageID, uid)

	// Flags are still updated when ctx ends right after a successful send;
	// otherwise the next run would answer the same message again.
	flagCtx := context.WithoutCancel(ctx)

	if err := r.Sender.Send(ctx, reply); err != nil {
		var sendErr *smtp.SendError
		if ctx.Err() != nil && (!errors.As(err, &sendErr) || !sendErr.Delivered()) {
			// Shutdown, not a failed send: leave it unread and uncounted.
			r.Logger.Warnf("reply to %s (subject %q) interrupted: %v", q.Sender, q.Subject, err)
			return
		}
		if !errors.As(err, &sendErr) || !sendErr.Delivered() {
			r.Logger.Errorf("failed to reply to %s (subject %q): %v", q.Sender, q.Subject, err)
			report.Failed++
			r.recordFailure(flagCtx, mb, uid, key, err, report)
			return
		}
		r.Logger.Warnf("reply to %s accepted but session ended badly: %v", q.Sender, err)
	}

	report.Replied++
	if !ok {
		report.Fallback++
	}
	r.Logger.Infof("replied to %s (subject %q)", q.Sender, q.Subject)

	if err := r.Ledger.Clear(flagCtx, key); err != nil {
		r.Logger.Warnf("clearing send failures for %s: %v", key, err)
	}

	r.enter(MarkingSeen)
	if err := mb.MarkSeen(flagCtx, uid); err != nil {
		r.Logger.Errorf("failed to mark message %d seen: %v", uid, err)
	}
}

func (r *Responder) recordFailure(ctx context.Context, mb Mailbox, uid imap.UID, key string, sendErr error, report *Report) {
	attempts, err := r.Ledger.RecordFailure(ctx, key, sendErr.Error())
	if err != nil {
		r.Logger.Warnf("recording send failure for %s: %v", key, err)
		return
	}
	if r.MaxSendAttempts <= 0 || attempts < r.MaxSendAttempts {
		return
	}

	if err := mb.MarkDeadLetter(ctx, uid); err != nil {
		r.Logger.Errorf("failed to dead-letter message %d: %v", uid, err)
		return
	}
	report.DeadLettered++
	r.Logger.Warnf("message %d dead-lettered after %d failed send(s)", uid, attempts)
}

// ledgerKey prefers the Message-ID, which survives mailbox renumbering.
func ledgerKey(messageID string, uid imap.UID) string {
	if messageID != "" {
		return messageID
	}
	return fmt.Sprintf("uid:%d", uid)
}
