package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenRouterChat_ReplaysReasoningAndReturnsTrace(t *testing.T) {
	var got openRouterChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there","reasoning_details":[{"type":"reasoning.text","text":"think"}]}}]}`))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "key", "", "", "", time.Second)
	out, err := p.Chat(context.Background(), []Message{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1", Reasoning: json.RawMessage(`[{"type":"reasoning.text","text":"prev"}]`)},
		{Role: RoleUser, Content: "q2"},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if out.Content != "hi there" {
		t.Fatalf("unexpected content %q", out.Content)
	}
	if len(out.Reasoning) == 0 {
		t.Fatalf("expected reasoning trace")
	}

	if got.Model != DefaultOpenRouterModel || !got.Reasoning.Enabled {
		t.Fatalf("unexpected request: model=%q reasoning=%v", got.Model, got.Reasoning.Enabled)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	if len(got.Messages[1].ReasoningDetails) == 0 {
		t.Fatalf("expected assistant reasoning to be replayed")
	}
	if len(got.Messages[0].ReasoningDetails) != 0 {
		t.Fatalf("user turn must not carry reasoning")
	}
}

func TestOpenRouterChat_NonSuccessStatus(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"upstream message", http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`, "rate limited"},
		{"no body", http.StatusBadGateway, ``, "status 502 Bad Gateway"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p := NewOpenRouterProvider(srv.URL, "key", "m", "", "", time.Second)
			_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
			if !errors.Is(err, ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
			var ue *UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("expected *UpstreamError, got %T", err)
			}
			if ue.StatusCode != tc.status || ue.Message != tc.wantMsg {
				t.Fatalf("unexpected error: status=%d msg=%q", ue.StatusCode, ue.Message)
			}
		})
	}
}

func TestOpenRouterChat_TimeoutIsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "key", "m", "", "", 20*time.Millisecond)
	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestOpenRouterChat_MissingKeyIsUpstreamFailure(t *testing.T) {
	p := NewOpenRouterProvider("http://127.0.0.1:1", "  ", "", "", "", time.Second)
	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected upstream failure, got %v", err)
	}
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err.Error() != "openrouter: api key is required" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestOllamaChat_ThinkingBecomesReasoning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream || !req.Think {
			t.Errorf("unexpected flags stream=%v think=%v", req.Stream, req.Think)
		}
		if len(req.Messages) == 2 && req.Messages[1].Thinking != "earlier" {
			t.Errorf("expected replayed thinking, got %q", req.Messages[1].Thinking)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"answer","thinking":"because"}}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3", time.Second)
	out, err := p.Chat(context.Background(), []Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "a", Reasoning: json.RawMessage(`"earlier"`)},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if out.Content != "answer" || string(out.Reasoning) != `"because"` {
		t.Fatalf("unexpected completion: %+v", out)
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Get(context.Background(), "nope", "m"); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
