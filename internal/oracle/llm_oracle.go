package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrEmptyCompletion = errors.New("llm returned no content")

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type LLMConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
}

// LLMOracle answers through an OpenAI-compatible chat completions endpoint.
// Each call sends only the system prompt and the current input.
type LLMOracle struct {
	cfg        LLMConfig
	httpClient *http.Client
}

func NewLLMOracle(cfg LLMConfig, httpClient *http.Client) *LLMOracle {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &LLMOracle{
		cfg:        cfg,
		httpClient: httpClient,
	}
}

func (o *LLMOracle) Reply(ctx context.Context, input string) (string, error) {
	messages := make([]ChatMessage, 0, 2)
	if prompt := strings.TrimSpace(o.cfg.SystemPrompt); prompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: prompt})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: input})

	reqBody := map[string]interface{}{
		"model":    o.cfg.Model,
		"messages": messages,
		"stream":   false,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal llm request failed: %w", err)
	}

	url := strings.TrimRight(o.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("build llm request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse llm json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
