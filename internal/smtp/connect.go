package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-smtp"
)

// ConnectTimeout is the maximum time allowed for establishing SMTP connections.
const ConnectTimeout = 10 * time.Second

// SessionTimeout bounds a whole SMTP conversation once connected.
const SessionTimeout = 2 * time.Minute

var dialTLS = func(ctx context.Context, addr string, tlsConfig *tls.Config) (net.Conn, error) {
	d := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: ConnectTimeout},
		Config:    tlsConfig,
	}
	return d.DialContext(ctx, "tcp", addr)
}

// dialClient connects with implicit TLS and reads the server greeting.
func dialClient(ctx context.Context, addr, host string) (*smtp.Client, error) {
	conn, err := dialTLS(ctx, addr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	deadline := time.Now().Add(SessionTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	return client, nil
}
