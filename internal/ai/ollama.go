package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type OllamaProvider struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

func NewOllamaProvider(baseURL, model string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaProvider{
		BaseURL: baseURL,
		Model:   model,
		Client:  &http.Client{Timeout: timeout},
	}
}

type ollamaChatReq struct {
	Model    string      `json:"model"`
	Messages []ollamaMsg `json:"messages"`
	Stream   bool        `json:"stream"`
	Think    bool        `json:"think,omitempty"`
}

type ollamaMsg struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

type ollamaChatResp struct {
	Message ollamaMsg `json:"message"`
	Error   string    `json:"error,omitempty"`
}

// Ollama returns its trace as a plain string; it is stored as a JSON string.
func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (*Completion, error) {
	if p.Client == nil {
		return nil, configError("ollama", "http client is nil")
	}

	reqBody := ollamaChatReq{
		Model:    p.Model,
		Stream:   false,
		Think:    true,
		Messages: make([]ollamaMsg, 0, len(messages)),
	}
	for _, m := range messages {
		om := ollamaMsg{Role: m.Role, Content: m.Content}
		if m.Role == RoleAssistant && len(m.Reasoning) > 0 {
			var s string
			if json.Unmarshal(m.Reasoning, &s) == nil {
				om.Thinking = s
			}
		}
		reqBody.Messages = append(reqBody.Messages, om)
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/chat", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, transportError("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError("ollama", resp)
	}

	var decoded ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, transportError("ollama", fmt.Errorf("decode response: %w", err))
	}
	if decoded.Error != "" {
		return nil, &UpstreamError{Provider: "ollama", StatusCode: resp.StatusCode, Message: decoded.Error}
	}

	out := &Completion{Content: decoded.Message.Content}
	if decoded.Message.Thinking != "" {
		out.Reasoning, _ = json.Marshal(decoded.Message.Thinking)
	}
	return out, nil
}
