package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stake-plus/agora/src/ai/core"
	"github.com/stake-plus/agora/src/webclient"
)

const (
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	defaultModel      = "claude-sonnet-4-5"
	defaultMaxTokens  = 2048
)

func init() {
	core.RegisterProvider("anthropic", newClient, "claude")
}

type client struct {
	apiKey     string
	httpClient *http.Client
	defaults   core.Options
}

func newClient(cfg core.FactoryConfig) (core.Client, error) {
	if cfg.ClaudeKey == "" {
		return nil, fmt.Errorf("anthropic: API key not configured")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxCompletionTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &client{
		apiKey:     cfg.ClaudeKey,
		httpClient: webclient.NewDefault(120 * time.Second),
		defaults: core.Options{
			Model:               model,
			Temperature:         cfg.Temperature,
			MaxCompletionTokens: maxTokens,
			SystemPrompt:        cfg.SystemPrompt,
		},
	}, nil
}

func (c *client) Respond(ctx context.Context, input string, opts core.Options) (string, error) {
	merged := core.Merge(c.defaults, opts)

	body := map[string]interface{}{
		"model":       merged.Model,
		"system":      merged.SystemPrompt,
		"max_tokens":  merged.MaxCompletionTokens,
		"temperature": merged.Temperature,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]string{
					{"type": "text", "text": input},
				},
			},
		},
	}

	respBody, err := c.post(ctx, body)
	if err != nil {
		return "", err
	}

	text := extractText(respBody.Content)
	if text == "" {
		return "", fmt.Errorf("anthropic: empty response")
	}
	return text, nil
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *client) post(ctx context.Context, payload map[string]interface{}) (*anthropicResponse, error) {
	bodyBytes, _ := json.Marshal(payload)
	_, body, err := webclient.DoWithRetry(ctx, 3, 2*time.Second, func() (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicEndpoint, bytes.NewBuffer(bodyBytes))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, nil, err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, b, fmt.Errorf("status %d", resp.StatusCode)
		}
		return resp.StatusCode, b, nil
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func extractText(content []struct {
	Type string `json:"type"`
	Text string `json:"text"`
}) string {
	for _, block := range content {
		if block.Type == "text" && block.Text != "" {
			return block.Text
		}
	}
	return ""
}
