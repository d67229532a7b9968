package imap

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected    = errors.New("not connected")
	ErrMessageNotFound = errors.New("message not found")
)

// ConnectionError reports a failure to reach the IMAP server.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to IMAP server %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError reports rejected credentials.
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("IMAP login failed for %s: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

type FetchError struct {
	UID UID
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch message %d: %v", e.UID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
