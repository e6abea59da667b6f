package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn sent to a completion endpoint. Reasoning is the opaque
// trace a model returned with an earlier assistant turn; it is replayed as-is.
type Message struct {
	Role      string
	Content   string
	Reasoning json.RawMessage
}

type Completion struct {
	Content   string
	Reasoning json.RawMessage
}

type Provider interface {
	Chat(ctx context.Context, messages []Message) (*Completion, error)
}

// ErrUpstream matches every failure of the external completion endpoint.
var ErrUpstream = errors.New("upstream completion failure")

// ErrNotConfigured marks a provider that cannot reach its endpoint at all.
var ErrNotConfigured = errors.New("provider not configured")

type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstream, e.Err}
	}
	return []error{ErrUpstream}
}

func configError(provider, msg string) error {
	return &UpstreamError{Provider: provider, Message: msg, Err: ErrNotConfigured}
}

func transportError(provider string, err error) error {
	return &UpstreamError{Provider: provider, Message: err.Error(), Err: err}
}

// statusError reads up to 4KB of a non-2xx body and prefers the JSON
// error.message field when the upstream sent one.
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))

	var decoded struct {
		Error json.RawMessage `json:"error"`
	}
	msg := ""
	if json.Unmarshal(body, &decoded) == nil && len(decoded.Error) > 0 {
		var obj struct {
			Message string `json:"message"`
		}
		var s string
		switch {
		case json.Unmarshal(decoded.Error, &obj) == nil && obj.Message != "":
			msg = obj.Message
		case json.Unmarshal(decoded.Error, &s) == nil:
			msg = s
		}
	}
	if strings.TrimSpace(msg) == "" {
		msg = fmt.Sprintf("status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return &UpstreamError{Provider: provider, StatusCode: resp.StatusCode, Message: strings.TrimSpace(msg)}
}
