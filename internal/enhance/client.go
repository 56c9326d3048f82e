package enhance

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

// Client talks to any OpenAI-compatible chat completions endpoint and asks it
// to map CSV headers onto catalogue fields. Works with OpenAI, Groq, Ollama,
// vLLM, and anything else that implements the same API shape.
type Client struct {
	apiKey        string
	model         string
	baseURL       string
	client        *http.Client
	timeout       time.Duration
	maxSampleRows int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout caps the wall-clock time of a single suggestion call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxSampleRows limits how many sample rows are included in the prompt.
func WithMaxSampleRows(n int) Option {
	return func(c *Client) { c.maxSampleRows = n }
}

// NewClient creates a suggestion client. baseURL is the API base
// (e.g. "https://api.openai.com/v1"); the /chat/completions path is
// appended automatically.
func NewClient(apiKey, model, baseURL string, opts ...Option) *Client {
	c := &Client{
		apiKey:        apiKey,
		model:         model,
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{},
		timeout:       3 * time.Second,
		maxSampleRows: 5,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// wire shape the model is asked to produce
type suggestionPayload struct {
	Mappings []struct {
		SourceHeader string  `json:"source_header"`
		TargetField  string  `json:"target_field"`
		Confidence   float64 `json:"confidence"`
		Rationale    string  `json:"rationale"`
	} `json:"mappings"`
}

const systemPrompt = `You map CSV column headers onto a fixed set of target fields.
Respond with JSON only: {"mappings":[{"source_header":...,"target_field":...,"confidence":0..1,"rationale":...}]}.
target_field must be one of the allowed fields, or "" when no field fits.
Base confidence on both the header text and the sample values.`

// SuggestMappings sends one chat completion request covering all headers in
// the request and parses the JSON mapping list out of the reply.
func (c *Client) SuggestMappings(ctx context.Context, req Request) ([]Suggestion, error) {
	if len(req.Headers) == 0 {
		return nil, nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: c.buildPrompt(req)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("mapping service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("mapping service returned no choices")
	}

	return parseSuggestions(chatResp.Choices[0].Message.Content)
}

// buildPrompt renders the headers, their sample values, and the allowed field
// list into the user message.
func (c *Client) buildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("Allowed target fields:\n")
	for _, f := range req.Catalog.Fields {
		fmt.Fprintf(&b, "- %s: %s", f.Name, f.Label)
		if len(f.EnumValues) > 0 {
			fmt.Fprintf(&b, " (values: %s)", strings.Join(f.EnumValues, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nHeaders to map:\n")
	for _, h := range req.Headers {
		fmt.Fprintf(&b, "- %q", h.Cleaned)
		if len(h.Samples) > 0 {
			n := len(h.Samples)
			if c.maxSampleRows > 0 && n > c.maxSampleRows {
				n = c.maxSampleRows
			}
			fmt.Fprintf(&b, " samples: %s", strings.Join(h.Samples[:n], " | "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// parseSuggestions decodes the model's JSON reply, tolerating a markdown
// code fence around the object.
func parseSuggestions(content string) ([]Suggestion, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}

	var payload suggestionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("parse suggestions: %w", err)
	}

	out := make([]Suggestion, 0, len(payload.Mappings))
	for _, m := range payload.Mappings {
		out = append(out, Suggestion{
			SourceHeader: m.SourceHeader,
			TargetField:  m.TargetField,
			Confidence:   m.Confidence,
			Rationale:    m.Rationale,
		})
	}
	return out, nil
}

var _ Suggester = (*Client)(nil)
