package openai

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
	chatEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultModel = "gpt-4o"
)

func init() {
	core.RegisterProvider("openai", newClient, "gpt4o")
}

type client struct {
	apiKey     string
	httpClient *http.Client
	defaults   core.Options
}

func newClient(cfg core.FactoryConfig) (core.Client, error) {
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("openai: API key not configured")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &client{
		apiKey:     cfg.OpenAIKey,
		httpClient: webclient.NewDefault(240 * time.Second),
		defaults: core.Options{
			Model:               model,
			Temperature:         cfg.Temperature,
			MaxCompletionTokens: cfg.MaxCompletionTokens,
			SystemPrompt:        cfg.SystemPrompt,
		},
	}, nil
}

func (c *client) Respond(ctx context.Context, input string, opts core.Options) (string, error) {
	merged := core.Merge(c.defaults, opts)

	messages := []map[string]string{}
	if merged.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": merged.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": input})

	reqBody := map[string]interface{}{
		"model":       merged.Model,
		"messages":    messages,
		"temperature": merged.Temperature,
	}
	if merged.MaxCompletionTokens > 0 {
		reqBody["max_completion_tokens"] = merged.MaxCompletionTokens
	}
	bodyBytes, _ := json.Marshal(reqBody)

	_, body, err := webclient.DoWithRetry(ctx, 3, 2*time.Second, func() (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatEndpoint, bytes.NewBuffer(bodyBytes))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
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
		return "", fmt.Errorf("openai API error: %w", err)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}
	return result.Choices[0].Message.Content, nil
}
