// Package bedrock streams schema-constrained output from Anthropic models
// hosted on AWS Bedrock. Credentials come from the ambient AWS credential
// chain, so the factory treats bedrock as a keyless provider.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/fragmentworks/fragment-gateway/internal/domain"
	"github.com/fragmentworks/fragment-gateway/internal/provider"
)

type Client struct {
	client *bedrockruntime.Client
}

func New(ctx context.Context, region string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Client{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

func NewWithConfig(cfg aws.Config) *Client {
	return &Client{client: bedrockruntime.NewFromConfig(cfg)}
}

func (c *Client) ProviderID() string {
	return "bedrock"
}

type invokeRequest struct {
	AnthropicVersion string       `json:"anthropic_version"`
	Messages         []apiMessage `json:"messages"`
	System           string       `json:"system,omitempty"`
	MaxTokens        int          `json:"max_tokens"`
	Temperature      *float64     `json:"temperature,omitempty"`
	TopP             *float64     `json:"top_p,omitempty"`
	Tools            []tool       `json:"tools"`
	ToolChoice       toolChoice   `json:"tool_choice"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
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

		body, err := json.Marshal(toInvokeRequest(req))
		if err != nil {
			errs <- fmt.Errorf("marshal request: %w", err)
			return
		}

		out, err := c.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(req.Model),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			errs <- classify(err)
			return
		}

		stream := out.GetStream()
		defer stream.Close()

		for event := range stream.Events() {
			chunk, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}

			var ev streamEvent
			if err := json.Unmarshal(chunk.Value.Bytes, &ev); err != nil {
				continue
			}
			if ev.Type != "content_block_delta" || ev.Delta == nil || ev.Delta.PartialJSON == "" {
				continue
			}

			select {
			case deltas <- ev.Delta.PartialJSON:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			errs <- classify(err)
		}
	}()

	return deltas, errs
}

// classify lifts the HTTP status out of an SDK error so the orchestrator's
// provider-error mapping applies to bedrock like any HTTP backend.
func classify(err error) error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return &domain.ProviderError{
			Provider:   "bedrock",
			StatusCode: respErr.HTTPStatusCode(),
			Message:    respErr.Error(),
		}
	}
	return fmt.Errorf("bedrock: %w", err)
}

func toInvokeRequest(req provider.Request) invokeRequest {
	messages := make([]apiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, apiMessage{Role: m.Role, Content: m.Content.Text()})
	}

	maxTokens := 8192
	if req.Params.MaxTokens != nil {
		maxTokens = *req.Params.MaxTokens
	}

	return invokeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		Messages:         messages,
		System:           req.System,
		MaxTokens:        maxTokens,
		Temperature:      req.Params.Temperature,
		TopP:             req.Params.TopP,
		Tools: []tool{{
			Name:        "fragment",
			Description: "Produce one generated code fragment with its metadata.",
			InputSchema: req.Schema,
		}},
		ToolChoice: toolChoice{Type: "tool", Name: "fragment"},
	}
}
