// Package imap is the mailbox side of askmail: it lists unread messages,
// fetches them without touching their flags, and marks them handled.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net"
	"time"

	"github.com/bscott/askmail/internal/config"
	"github.com/bscott/askmail/internal/logging"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
)

// ConnectTimeout bounds the TCP and TLS handshake with the IMAP server.
const ConnectTimeout = 10 * time.Second

var dialTLS = func(ctx context.Context, addr string, tlsConfig *tls.Config) (net.Conn, error) {
	d := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: ConnectTimeout},
		Config:    tlsConfig,
	}
	return d.DialContext(ctx, "tcp", addr)
}

// Session is one authenticated IMAP connection. It is not safe for
// concurrent use.
type Session struct {
	client   *imapclient.Client
	mailbox  string
	selected bool
	logger   logging.Logger
}

// Open dials the server with implicit TLS and logs in.
func Open(ctx context.Context, cfg config.IMAPConfig, logger logging.Logger) (*Session, error) {
	addr := cfg.Addr()

	conn, err := dialTLS(ctx, addr, &tls.Config{ServerName: cfg.Host})
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}

	client := imapclient.New(conn, &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	})

	if err := client.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		client.Close()
		return nil, &AuthError{Username: cfg.Username, Err: err}
	}

	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = config.DefaultMailbox
	}

	logger.Debugf("IMAP session open on %s as %s", addr, cfg.Username)
	return &Session{
		client:  client,
		mailbox: mailbox,
		logger:  logger,
	}, nil
}

func (s *Session) selectMailbox() error {
	if s.selected {
		return nil
	}
	// Read-write: EXAMINE would reject the later STORE.
	if _, err := s.client.Select(s.mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("failed to select mailbox %s: %w", s.mailbox, err)
	}
	s.selected = true
	return nil
}

// ListUnread returns the UIDs of every message without \Seen, in the
// order the server reports them.
func (s *Session) ListUnread(ctx context.Context) ([]UID, error) {
	if s == nil || s.client == nil {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.selectMailbox(); err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to search unread messages: %w", err)
	}

	all := data.AllUIDs()
	uids := make([]UID, 0, len(all))
	for _, uid := range all {
		uids = append(uids, UID(uid))
	}
	return uids, nil
}

// Fetch retrieves envelope and full body with BODY.PEEK so \Seen is left
// alone until MarkSeen.
func (s *Session) Fetch(ctx context.Context, uid UID) (*Message, error) {
	if s == nil || s.client == nil {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.selectMailbox(); err != nil {
		return nil, &FetchError{UID: uid, Err: err}
	}

	fetchOptions := &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{{Peek: true}},
	}

	fetchCmd := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), fetchOptions)

	msg := fetchCmd.Next()
	if msg == nil {
		if err := fetchCmd.Close(); err != nil {
			return nil, &FetchError{UID: uid, Err: err}
		}
		return nil, &FetchError{UID: uid, Err: ErrMessageNotFound}
	}

	var (
		env *imap.Envelope
		raw []byte
	)
	for {
		item := msg.Next()
		if item == nil {
			break
		}

		switch data := item.(type) {
		case imapclient.FetchItemDataEnvelope:
			env = data.Envelope
		case imapclient.FetchItemDataBodySection:
			body, err := io.ReadAll(data.Literal)
			if err != nil {
				s.logger.Warnf("reading body of message %d: %v", uid, err)
			}
			raw = body
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, &FetchError{UID: uid, Err: err}
	}
	if env == nil && raw == nil {
		return nil, &FetchError{UID: uid, Err: ErrMessageNotFound}
	}

	return messageFromParts(uid, env, raw), nil
}

// MarkSeen adds \Seen. Adding a flag that is already set is a no-op.
func (s *Session) MarkSeen(ctx context.Context, uid UID) error {
	return s.addFlags(ctx, uid, imap.FlagSeen)
}

// MarkDeadLetter adds \Seen and \Flagged so the message stops being
// retried but stays visible to a human.
func (s *Session) MarkDeadLetter(ctx context.Context, uid UID) error {
	return s.addFlags(ctx, uid, imap.FlagSeen, imap.FlagFlagged)
}

func (s *Session) addFlags(ctx context.Context, uid UID, flags ...imap.Flag) error {
	if s == nil || s.client == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.selectMailbox(); err != nil {
		return err
	}

	storeFlags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  flags,
	}
	if err := s.client.Store(imap.UIDSetNum(imap.UID(uid)), storeFlags, nil).Close(); err != nil {
		return fmt.Errorf("failed to set flags on message %d: %w", uid, err)
	}
	return nil
}

// Close logs out and releases the connection. It is safe to call on a
// nil or already closed session.
func (s *Session) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Debugf("IMAP logout: %v", err)
	}
	err := s.client.Close()
	s.client = nil
	return err
}
