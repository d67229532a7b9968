// Package completion asks a chat-completion endpoint to answer one
// question. Every failure collapses to "no answer"; callers never see an
// error.
package completion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bscott/askmail/internal/config"
	"github.com/bscott/askmail/internal/logging"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 4 << 20

var errBlankAnswer = errors.New("blank answer")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

// StatusError is a non-2xx response from the endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion endpoint returned %d: %s", e.Code, e.Body)
}

type Client struct {
	endpoint string
	key      string
	timeout  time.Duration
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   logging.Logger
}

// New builds a client. A positive BreakerThreshold wraps calls in a
// circuit breaker that opens after that many consecutive failures.
func New(cfg config.CompletionConfig, logger logging.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	c := &Client{
		endpoint: cfg.Endpoint,
		key:      cfg.Key,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}

	if cfg.BreakerThreshold > 0 {
		threshold := cfg.BreakerThreshold
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "completion",
			MaxRequests: 1,
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// A cancelled caller says nothing about the endpoint's health.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
		})
	}

	return c
}

// WithLogger returns a copy that logs to l and shares the breaker state.
func (c *Client) WithLogger(l logging.Logger) *Client {
	cp := *c
	cp.logger = l
	return &cp
}

// Complete returns the trimmed answer, or ("", false) when none could be
// obtained for any reason.
func (c *Client) Complete(ctx context.Context, question string) (string, bool) {
	var (
		answer string
		err    error
	)

	if c.breaker == nil {
		answer, err = c.call(ctx, question)
	} else {
		before := c.breaker.State()
		var res interface{}
		res, err = c.breaker.Execute(func() (interface{}, error) {
			return c.call(ctx, question)
		})
		if err == nil {
			answer = res.(string)
		}
		// Logged here rather than in OnStateChange so the per-run logger
		// from WithLogger tags the transition.
		if after := c.breaker.State(); after != before {
			c.logger.Warnf("circuit breaker %s: %s -> %s", c.breaker.Name(), before, after)
		}
	}

	if err == nil {
		return answer, true
	}

	var statusErr *StatusError
	switch {
	case errors.Is(err, context.Canceled):
		c.logger.Warnf("completion interrupted: %v", err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.logger.Warnf("completion skipped: %v", err)
	case errors.As(err, &statusErr):
		c.logger.Warnf("completion failed with status %d", statusErr.Code)
		c.logger.Debugf("completion error body: %s", statusErr.Body)
	case errors.Is(err, errBlankAnswer):
		c.logger.Warnf("completion returned a blank answer")
	case isParseError(err):
		c.logger.Warnf("completion response unusable: %v", err)
	default:
		c.logger.Errorf("completion request failed: %v", err)
	}
	return "", false
}

func (c *Client) call(ctx context.Context, question string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(chatRequest{
		Messages: []chatMessage{{Role: "user", Content: question}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return "", &StatusError{Code: resp.StatusCode, Body: snippet}
	}

	answer, err := ParseResponse(body)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", errBlankAnswer
	}
	return answer, nil
}

func isParseError(err error) bool {
	for _, target := range []error{ErrMalformedJSON, ErrMissingChoices, ErrMissingMessage, ErrMissingContent, ErrWrongType} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
