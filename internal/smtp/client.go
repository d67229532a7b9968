// Package smtp delivers replies over an implicit-TLS submission
// connection, one connection per reply.
package smtp

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bscott/askmail/internal/config"
	"github.com/bscott/askmail/internal/logging"
	"github.com/emersion/go-sasl"
)

type Client struct {
	config config.SMTPConfig
	logger logging.Logger
}

func NewClient(cfg config.SMTPConfig, logger logging.Logger) *Client {
	return &Client{
		config: cfg,
		logger: logger,
	}
}

// Send delivers one reply. Every failure is a *SendError; the connection
// is closed on all paths.
func (c *Client) Send(ctx context.Context, reply *Reply) error {
	if err := ctx.Err(); err != nil {
		return &SendError{Stage: StageDial, Err: err}
	}

	var msg bytes.Buffer
	if err := writeMessage(&msg, reply); err != nil {
		return &SendError{Stage: StageData, Err: fmt.Errorf("failed to build message: %w", err)}
	}

	client, err := dialClient(ctx, c.config.Addr(), c.config.Host)
	if err != nil {
		return &SendError{Stage: StageDial, Err: err}
	}
	defer client.Close()

	auth := sasl.NewPlainClient("", c.config.Username, c.config.Password)
	if err := client.Auth(auth); err != nil {
		return &SendError{Stage: StageAuth, Err: err}
	}

	if err := client.Mail(reply.From, nil); err != nil {
		return &SendError{Stage: StageMail, Err: err}
	}

	if err := client.Rcpt(reply.To); err != nil {
		return &SendError{Stage: StageRcpt, Err: fmt.Errorf("recipient %s: %w", reply.To, err)}
	}

	data, err := client.Data()
	if err != nil {
		return &SendError{Stage: StageData, Err: err}
	}
	if _, err := data.Write(msg.Bytes()); err != nil {
		data.Close()
		return &SendError{Stage: StageData, Err: err}
	}
	if err := data.Close(); err != nil {
		return &SendError{Stage: StageData, Err: err}
	}

	if err := client.Quit(); err != nil {
		return &SendError{Stage: StageQuit, Err: err}
	}

	c.logger.Debugf("reply %s sent to %s via %s", reply.MessageID, reply.To, c.config.Addr())
	return nil
}

// Verify dials and authenticates without sending anything.
func (c *Client) Verify(ctx context.Context) error {
	client, err := dialClient(ctx, c.config.Addr(), c.config.Host)
	if err != nil {
		return &SendError{Stage: StageDial, Err: err}
	}
	defer client.Close()

	auth := sasl.NewPlainClient("", c.config.Username, c.config.Password)
	if err := client.Auth(auth); err != nil {
		return &SendError{Stage: StageAuth, Err: err}
	}

	if err := client.Quit(); err != nil {
		return &SendError{Stage: StageQuit, Err: err}
	}
	return nil
}
