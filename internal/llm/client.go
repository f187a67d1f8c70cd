// Package llm is the enrichment collaborator: an OpenAI-compatible chat
// completions client that asks for a JSON object per row.
package llm

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

	"github.com/roach88/jobtrail/internal/enrich"
)

// DefaultEndpoint is the OpenAI chat completions URL.
const DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

// Config configures a Client.
type Config struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Client implements enrich.Enricher backed by a chat completions API.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ enrich.Enricher = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg Config) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Enrich asks the model for the enrichment fields of one row.
func (c *Client) Enrich(ctx context.Context, in enrich.Input) (map[string]any, error) {
	if c.apiKey == "" || c.model == "" {
		return nil, errors.New("llm client misconfigured: api key and model are required")
	}

	system, user := BuildPrompt(in)
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("llm error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("llm returned no choices")
	}
	return ParseResult(out.Choices[0].Message.Content)
}

// ParseResult decodes the model's answer into a field map. A surrounding
// markdown code fence is tolerated. Numbers are kept as json.Number.
func ParseResult(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	if rest, ok := strings.CutPrefix(content, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		content = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), "```"))
	}

	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("llm answer is not a JSON object: %w", err)
	}
	if fields == nil {
		return nil, errors.New("llm answer is not a JSON object: null")
	}
	return fields, nil
}
