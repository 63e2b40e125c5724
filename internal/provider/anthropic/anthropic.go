// Package anthropic streams schema-constrained output from the Anthropic
// Messages API. The fragment schema is presented as a forced tool so the
// model emits the JSON document through input_json_delta events.
package anthropic

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

const apiVersion = "2023-06-01"

type Client struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
}

func New(apiKey, baseURL string, httpc *http.Client) *Client {
	return &Client{apiKey: apiKey, baseURL: baseURL, httpc: httpc}
}

func (c *Client) ProviderID() string {
	return "anthropic"
}

type messagesRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	System      string       `json:"system,omitempty"`
	MaxTokens   int          `json:"max_tokens"`
	Stream      bool         `json:"stream"`
	Temperature *float64     `json:"temperature,omitempty"`
	TopP        *float64     `json:"top_p,omitempty"`
	Tools       []tool       `json:"tools"`
	ToolChoice  toolChoice   `json:"tool_choice"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentBlock struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Source *source `json:"source,omitempty"`
}

type source struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type        string `json:"type"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta,omitempty"`
}

func (c *Client) Stream(ctx context.Context, req provider.Request) (<-chan string, <-chan error) {
	deltas := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		body, err := json.Marshal(toMessagesRequest(req))
		if err != nil {
			errs <- fmt.Errorf("marshal request: %w", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
		if err != nil {
			errs <- fmt.Errorf("create request: %w", err)
			return
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", apiVersion)
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
				Provider:   "anthropic",
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

			var event streamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				continue
			}

			switch event.Type {
			case "content_block_delta":
				if event.Delta == nil || event.Delta.PartialJSON == "" {
					continue
				}
				select {
				case deltas <- event.Delta.PartialJSON:
				case <-ctx.Done():
					return
				}
			case "message_stop":
				return
			}
		}

		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("scan stream: %w", err)
		}
	}()

	return deltas, errs
}

func toMessagesRequest(req provider.Request) messagesRequest {
	messages := make([]apiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, apiMessage{Role: m.Role, Content: toContent(m.Content)})
	}

	maxTokens := 8192
	if req.Params.MaxTokens != nil {
		maxTokens = *req.Params.MaxTokens
	}

	return messagesRequest{
		Model:       req.Model,
		Messages:    messages,
		System:      req.System,
		MaxTokens:   maxTokens,
		Stream:      true,
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		Tools: []tool{{
			Name:        "fragment",
			Description: "Produce one generated code fragment with its metadata.",
			InputSchema: req.Schema,
		}},
		ToolChoice: toolChoice{Type: "tool", Name: "fragment"},
	}
}

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

	blocks := make([]contentBlock, 0, len(content))
	for _, p := range content {
		switch p.Type {
		case domain.PartTypeText:
			blocks = append(blocks, contentBlock{Type: "text", Text: p.Text})
		case domain.PartTypeImage:
			blocks = append(blocks, contentBlock{Type: "image", Source: &source{Type: "url", URL: p.Image}})
		}
	}
	return blocks
}
