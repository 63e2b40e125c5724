// Package openai streams schema-constrained completions from any
// OpenAI-compatible chat API. Besides OpenAI itself this covers Mistral,
// Groq, Fireworks, Together and xAI, which differ only in base URL and
// credential.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fragmentworks/fragment-gateway/internal/domain"
	"github.com/fragmentworks/fragment-gateway/internal/provider"
)

type Client struct {
	providerID string
	apiKey     string
	baseURL    string
	httpc      *http.Client
}

func New(providerID, apiKey, baseURL string, httpc *http.Client) *Client {
	return &Client{
		providerID: providerID,
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpc:      httpc,
	}
}

func (c *Client) ProviderID() string {
	return c.providerID
}

// APIKey reports the credential the client was bound to.
func (c *Client) APIKey() string { return c.apiKey }

// BaseURL reports the endpoint the client was bound to.
func (c *Client) BaseURL() string { return c.baseURL }

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Stream         bool            `json:"stream"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *Client) Stream(ctx context.Context, req provider.Request) (<-chan string, <-chan error) {
	deltas := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		body, err := json.Marshal(toChatRequest(req))
		if err != nil {
			errs <- fmt.Errorf("marshal request: %w", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			errs <- fmt.Errorf("create request: %w", err)
			return
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpc.Do(httpReq)
		if err != nil {
			errs <- fmt.Errorf("do request: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			errs <- &domain.ProviderError{
				Provider:   c.providerID,
				StatusCode: resp.StatusCode,
				Message:    string(bodyBytes),
			}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case deltas <- chunk.Choices[0].Delta.Content:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("scan stream: %w", err)
		}
	}()

	return deltas, errs
}

func toChatRequest(req provider.Request) chatRequest {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: domain.RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: toContent(m.Content)})
	}

	return chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Stream:      true,
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		MaxTokens:   req.Params.MaxTokens,
		ResponseFormat: &responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchema{Name: "fragment", Schema: req.Schema},
		},
	}
}

// toContent keeps plain text as a bare string and uses the part array form
// only when non-textual parts are present.
func toContent(content domain.MessageContent) any {
	textOnly := true
	for _, p := range content {
		if p.Type != domain.PartTypeText {
			textOnly = false
			break
		}
	}
	if textOnly {
		return content.Text()
	}

	parts := make([]contentPart, 0, len(content))
	for _, p := range content {
		switch p.Type {
		case domain.PartTypeText:
			parts = append(parts, contentPart{Type: "text", Text: p.Text})
		case domain.PartTypeImage:
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: p.Image}})
		}
	}
	return parts
}
