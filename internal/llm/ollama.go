package llm

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

// Client produces free text for a prompt.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Config struct {
	URL         string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.URL) == "" {
		c.URL = "http://localhost:11434/api/generate"
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = "deepseek-coder:6.7b-instruct"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 200
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

// OllamaClient talks to an Ollama-style /api/generate endpoint. OpenAI-style
// completion bodies ("choices[0].text") are accepted too.
type OllamaClient struct {
	cfg    Config
	client *http.Client
}

func NewOllamaClient(cfg Config) *OllamaClient {
	cfg.normalize()
	return &OllamaClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *OllamaClient) Model() string { return c.cfg.Model }

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Choices  []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: c.cfg.Temperature,
			NumPredict:  c.cfg.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("model returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) > 0 && strings.TrimSpace(out.Choices[0].Text) != "" {
		return strings.TrimSpace(out.Choices[0].Text), nil
	}
	return strings.TrimSpace(out.Response), nil
}
