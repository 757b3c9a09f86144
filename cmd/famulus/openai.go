package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/viper"
	"github.com/zoobzio/zyn"

	"github.com/zoobzio/famulus"
)

// openAIProvider calls any OpenAI-compatible chat-completions endpoint.
type openAIProvider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []zyn.Message `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *openAIProvider) Name() string {
	return p.name
}

func (p *openAIProvider) Call(ctx context.Context, messages []zyn.Message, temperature float32) (*zyn.ProviderResponse, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider %s request failed: %w", p.name, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("provider %s read failed: %w", p.name, err)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return nil, fmt.Errorf("provider %s returned invalid JSON (status %d): %w", p.name, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(raw)
		if completion.Error != nil {
			msg = completion.Error.Message
		}
		return nil, fmt.Errorf("provider %s returned status %d: %s", p.name, resp.StatusCode, msg)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("provider %s returned no choices", p.name)
	}

	return &zyn.ProviderResponse{
		Content: completion.Choices[0].Message.Content,
		Usage: zyn.TokenUsage{
			Prompt:     completion.Usage.PromptTokens,
			Completion: completion.Usage.CompletionTokens,
			Total:      completion.Usage.TotalTokens,
		},
	}, nil
}

// registerProviders builds one provider per entry under the providers key:
//
//	providers:
//	  openai:
//	    base_url: https://api.openai.com/v1
//	    api_key_env: OPENAI_API_KEY
//	    model: gpt-4o-mini
func registerProviders(registry *famulus.Registry, settings *viper.Viper) error {
	entries := settings.GetStringMap("providers")
	if len(entries) == 0 {
		return fmt.Errorf("no providers configured")
	}

	for name := range entries {
		sub := settings.Sub("providers." + name)
		if sub == nil {
			continue
		}
		baseURL := sub.GetString("base_url")
		if baseURL == "" {
			return fmt.Errorf("provider %s: base_url is required", name)
		}

		apiKey := sub.GetString("api_key")
		if env := sub.GetString("api_key_env"); env != "" {
			apiKey = os.Getenv(env)
		}

		registry.Register(name, &openAIProvider{
			name:    name,
			baseURL: baseURL,
			apiKey:  apiKey,
			model:   sub.GetString("model"),
			client:  &http.Client{Timeout: 60 * time.Second},
		})
	}
	return nil
}
