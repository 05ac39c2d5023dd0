package intelligence

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

	"golang.org/x/time/rate"
)

// Defaults for the OpenAI-compatible endpoint.
const (
	DefaultBaseURL        = "https://api.openai.com"
	DefaultChatModel      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultTimeout        = 60 * time.Second
)

// ClientConfig configures an OpenAI-compatible chat and embeddings client.
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Timeout        time.Duration

	// RequestsPerSecond caps outbound calls. Zero disables the limiter.
	RequestsPerSecond float64

	Breaker BreakerConfig
}

// Client talks to /v1/chat/completions and /v1/embeddings. Every call waits
// on the rate limiter and runs through the circuit breaker.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	chatCB     *CircuitBreaker
	embedCB    *CircuitBreaker
}

// NewClient fills defaults and returns a Client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		chatCB:     NewCircuitBreaker("intelligence-chat", cfg.Breaker),
		embedCB:    NewCircuitBreaker("intelligence-embeddings", cfg.Breaker),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// ChatModel returns the configured chat model.
func (c *Client) ChatModel() string { return c.cfg.ChatModel }

// EmbeddingModel returns the configured embedding model.
func (c *Client) EmbeddingModel() string { return c.cfg.EmbeddingModel }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// ChatJSON sends a system and user message and asks for a JSON object reply.
func (c *Client) ChatJSON(ctx context.Context, system, user string) (string, error) {
	result, err := c.chatCB.Execute(ctx, func() (interface{}, error) {
		var resp chatResponse
		err := c.post(ctx, "/v1/chat/completions", chatRequest{
			Model: c.cfg.ChatModel,
			Messages: []chatMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			Temperature:    0.3,
			ResponseFormat: &responseFormat{Type: "json_object"},
		}, &resp)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("chat completion returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Embedding returns the embedding of text.
func (c *Client) Embedding(ctx context.Context, text string) ([]float32, error) {
	result, err := c.embedCB.Execute(ctx, func() (interface{}, error) {
		var resp embeddingResponse
		if err := c.post(ctx, "/v1/embeddings", embeddingRequest{Model: c.cfg.EmbeddingModel, Input: text}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return nil, errors.New("embeddings endpoint returned no vector")
		}
		raw := resp.Data[0].Embedding
		vec := make([]float32, len(raw))
		for i, v := range raw {
			vec[i] = float32(v)
		}
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Breakers returns the chat and embedding breaker states.
func (c *Client) Breakers() map[string]string {
	return map[string]string{
		"chat":       c.chatCB.State(),
		"embeddings": c.embedCB.State(),
	}
}
