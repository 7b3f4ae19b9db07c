package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"notary/internal/logger"
)

// OpenAIChatClient speaks the OpenAI-compatible chat completions protocol
// (/v1/chat/completions), which covers OpenAI, DeepSeek and Qwen endpoints.
type OpenAIChatClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// Retries for 429/5xx; zero means the default of 2.
	MaxRetries int
}

func (c *OpenAIChatClient) CallWithMessages(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	url := normalizeBaseURL(c.BaseURL) + "/chat/completions"

	messages := []map[string]string{}
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userPrompt})
	body, _ := json.Marshal(map[string]any{"model": c.Model, "messages": messages, "temperature": 0.2})

	httpc := &http.Client{Timeout: timeout}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}

		resp, err := httpc.Do(req)
		if err != nil {
			return "", err
		}
		if resp.StatusCode/100 == 2 {
			var r struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			derr := json.NewDecoder(resp.Body).Decode(&r)
			resp.Body.Close()
			if derr != nil {
				return "", derr
			}
			if len(r.Choices) == 0 {
				return "", fmt.Errorf("empty choices")
			}
			return r.Choices[0].Message.Content, nil
		}

		var eresp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		resp.Body.Close()
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
		if !retryable(resp.StatusCode) || attempt == maxRetries {
			break
		}
		wait := retryWait(resp.Header.Get("Retry-After"), attempt)
		logger.Debugf("model %s retrying in %s after %v", c.Model, wait, lastErr)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

func normalizeBaseURL(base string) string {
	url := strings.TrimSpace(base)
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimRight(url, "/")
	// Tolerate configs that already carry the full completions path.
	return strings.TrimSuffix(url, "/chat/completions")
}

func retryable(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func retryWait(retryAfter string, attempt int) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	wait := 800 * time.Millisecond << attempt
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}

// ChatModelProvider adapts a chat client to ModelProvider.
type ChatModelProvider struct {
	id      string
	enabled bool
	system  string
	client  *OpenAIChatClient
}

func NewChatModelProvider(id string, enabled bool, systemPrompt string, client *OpenAIChatClient) *ChatModelProvider {
	return &ChatModelProvider{id: id, enabled: enabled, system: systemPrompt, client: client}
}

func (p *ChatModelProvider) ID() string    { return p.id }
func (p *ChatModelProvider) Enabled() bool { return p.enabled }

func (p *ChatModelProvider) Call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = p.system
	}
	return p.client.CallWithMessages(ctx, systemPrompt, userPrompt)
}
