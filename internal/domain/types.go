package domain

import (
	"encoding/json"
	"fmt"
)

// Message is a single entry in a conversation. Content is either a bare
// string or an array of typed parts on the wire; both decode into parts.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

type MessageContent []Part

type Part struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"

	PartTypeText  = "text"
	PartTypeImage = "image"
)

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = MessageContent{{Type: PartTypeText, Text: s}}
		return nil
	}

	var parts []Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message content: %w", err)
	}
	*c = parts
	return nil
}

// Text concatenates the textual parts of the content.
func (c MessageContent) Text() string {
	var out string
	for _, p := range c {
		if p.Type == PartTypeText {
			out += p.Text
		}
	}
	return out
}

// ModelDescriptor identifies a model in the static registry.
// Immutable; looked up by ID.
type ModelDescriptor struct {
	ID         string `json:"id"`
	ProviderID string `json:"providerId"`
	Name       string `json:"name,omitempty"`
}

// ModelConfig carries per-request generation parameters. Supplied by the
// caller, never persisted.
type ModelConfig struct {
	Model       string   `json:"model,omitempty"`
	APIKey      string   `json:"apiKey,omitempty"`
	BaseURL     string   `json:"baseURL,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
}

// GenerationRequest is the body of POST /api/generate.
type GenerationRequest struct {
	Messages []Message       `json:"messages"`
	UserID   string          `json:"userID,omitempty"`
	TeamID   string          `json:"teamID,omitempty"`
	Template string          `json:"template"`
	Model    ModelDescriptor `json:"model"`
	Config   ModelConfig     `json:"config"`
}

// GenerationParams are the tunables forwarded to a provider client.
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

func (c ModelConfig) Params() GenerationParams {
	return GenerationParams{
		Temperature: c.Temperature,
		TopP:        c.TopP,
		MaxTokens:   c.MaxTokens,
	}
}
