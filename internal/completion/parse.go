package completion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

var (
	ErrMalformedJSON  = errors.New("malformed JSON")
	ErrMissingChoices = errors.New("missing choices")
	ErrMissingMessage = errors.New("missing message")
	ErrMissingContent = errors.New("missing content")
	ErrWrongType      = errors.New("wrong type")
)

// ParseResponse pulls choices[0].message.content out of a chat completion
// body and trims it. Each way the shape can be wrong has its own error.
func ParseResponse(body []byte) (string, error) {
	if !json.Valid(body) {
		return "", ErrMalformedJSON
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return "", fmt.Errorf("%w: response is not an object", ErrWrongType)
	}

	rawChoices, ok := present(root, "choices")
	if !ok {
		return "", ErrMissingChoices
	}
	var choices []json.RawMessage
	if err := json.Unmarshal(rawChoices, &choices); err != nil {
		return "", fmt.Errorf("%w: choices is not an array", ErrWrongType)
	}
	if len(choices) == 0 {
		return "", ErrMissingChoices
	}

	var choice map[string]json.RawMessage
	if err := json.Unmarshal(choices[0], &choice); err != nil {
		return "", fmt.Errorf("%w: choices[0] is not an object", ErrWrongType)
	}

	rawMessage, ok := present(choice, "message")
	if !ok {
		return "", ErrMissingMessage
	}
	var message map[string]json.RawMessage
	if err := json.Unmarshal(rawMessage, &message); err != nil {
		return "", fmt.Errorf("%w: message is not an object", ErrWrongType)
	}

	rawContent, ok := present(message, "content")
	if !ok {
		return "", ErrMissingContent
	}
	var content string
	if err := json.Unmarshal(rawContent, &content); err != nil {
		return "", fmt.Errorf("%w: content is not a string", ErrWrongType)
	}

	return strings.TrimSpace(content), nil
}

// present treats an explicit null the same as an absent key.
func present(obj map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := obj[key]
	if !ok || strings.TrimSpace(string(raw)) == "null" {
		return nil, false
	}
	return raw, true
}
