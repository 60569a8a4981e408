package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicAPIVersion = "2023-06-01"
)

// RemoteProvider implements Provider against the Anthropic Messages API —
// the gateway's "remote" backend, used for audit calls, code generation,
// and anything routed above the local-model complexity ceiling.
type RemoteProvider struct {
	apiKey       string
	baseURL      string
	defaultModel string
	highCapModel string
	client       *http.Client
	retryConfig  RetryConfig
}

type RemoteOption func(*RemoteProvider)

func WithRemoteBaseURL(baseURL string) RemoteOption {
	return func(p *RemoteProvider) {
		if baseURL != "" {
			p.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithRemoteHighCapModel(model string) RemoteOption {
	return func(p *RemoteProvider) {
		if model != "" {
			p.highCapModel = model
		}
	}
}

func NewRemoteProvider(apiKey, defaultModel string, opts ...RemoteOption) *RemoteProvider {
	p := &RemoteProvider{
		apiKey:       apiKey,
		baseURL:      "https://api.anthropic.com/v1",
		defaultModel: defaultModel,
		highCapModel: defaultModel,
		client:       &http.Client{Timeout: 120 * time.Second},
		retryConfig:  DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *RemoteProvider) Name() string         { return "anthropic" }
func (p *RemoteProvider) DefaultModel() string { return p.defaultModel }
func (p *RemoteProvider) HighCapModel() string { return p.highCapModel }

func (p *RemoteProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	body := p.buildRequestBody(model, req)

	return RetryDo(ctx, p.retryConfig, func() (*ChatResponse, error) {
		respBody, err := p.doRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()

		var resp anthropicResponse
		if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
			return nil, fmt.Errorf("anthropic: decode response: %w", err)
		}

		out := p.parseResponse(&resp)
		// A 200 OK with no text and no thinking is not a usable answer —
		// retry it rather than hand the pipeline an empty verdict/plan.
		if out.Content == "" && out.Thinking == "" {
			return nil, ErrEmptyResponse
		}
		return out, nil
	})
}

func (p *RemoteProvider) buildRequestBody(model string, req ChatRequest) map[string]interface{} {
	messages := make([]map[string]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			continue
		}
		messages = append(messages, map[string]string{"role": m.Role, "content": m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	body := map[string]interface{}{
		"model":      model,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if req.EnableThinking {
		body["thinking"] = map[string]interface{}{
			"type":          "enabled",
			"budget_tokens": 10000,
		}
	}
	return body
}

func (p *RemoteProvider) doRequest(ctx context.Context, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       fmt.Sprintf("anthropic: %s", string(respBody)),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp.Body, nil
}

func (p *RemoteProvider) parseResponse(resp *anthropicResponse) *ChatResponse {
	result := &ChatResponse{FinishReason: resp.StopReason}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			result.Content += block.Text
		case "thinking":
			result.Thinking += block.Thinking
		}
	}
	result.Usage = Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}
	if result.Thinking != "" {
		// Anthropic doesn't break out a separate thinking token count;
		// approximate from character count for display purposes.
		result.Usage.ThinkingTokens = len(result.Thinking) / 4
	}
	return result
}

type anthropicResponse struct {
	StopReason string                 `json:"stop_reason"`
	Content    []anthropicContentBlock `json:"content"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Thinking string `json:"thinking"`
}
