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

const (
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel   = "moonshotai/kimi-k2-thinking"
)

type OpenRouterProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	SiteURL string
	AppName string
	Client  *http.Client
}

type openRouterMsg struct {
	Role             string          `json:"role"`
	Content          string          `json:"content"`
	ReasoningDetails json.RawMessage `json:"reasoning_details,omitempty"`
}

type openRouterReasoning struct {
	Enabled bool `json:"enabled"`
}

type openRouterChatReq struct {
	Model     string              `json:"model"`
	Messages  []openRouterMsg     `json:"messages"`
	Reasoning openRouterReasoning `json:"reasoning"`
}

type openRouterChatResp struct {
	Choices []struct {
		Message openRouterMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string, timeout time.Duration) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = DefaultOpenRouterBaseURL
	}
	if model == "" {
		model = DefaultOpenRouterModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenRouterProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		SiteURL: siteURL,
		AppName: appName,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []Message) (*Completion, error) {
	if p.Client == nil {
		return nil, configError("openrouter", "http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, configError("openrouter", "api key is required")
	}

	reqBody := openRouterChatReq{
		Model:     p.Model,
		Reasoning: openRouterReasoning{Enabled: true},
		Messages:  make([]openRouterMsg, 0, len(messages)),
	}
	for _, m := range messages {
		om := openRouterMsg{Role: m.Role, Content: m.Content}
		if m.Role == RoleAssistant && len(m.Reasoning) > 0 {
			om.ReasoningDetails = m.Reasoning
		}
		reqBody.Messages = append(reqBody.Messages, om)
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	if p.SiteURL != "" {
		req.Header.Set("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		req.Header.Set("X-Title", p.AppName)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, transportError("openrouter", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError("openrouter", resp)
	}

	var decoded openRouterChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, transportError("openrouter", fmt.Errorf("decode response: %w", err))
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return nil, &UpstreamError{Provider: "openrouter", StatusCode: resp.StatusCode, Message: decoded.Error.Message}
	}
	if len(decoded.Choices) == 0 {
		return nil, &UpstreamError{Provider: "openrouter", StatusCode: resp.StatusCode, Message: "empty response"}
	}

	msg := decoded.Choices[0].Message
	out := &Completion{Content: msg.Content}
	if len(msg.ReasoningDetails) > 0 && string(msg.ReasoningDetails) != "null" {
		out.Reasoning = msg.ReasoningDetails
	}
	return out, nil
}
