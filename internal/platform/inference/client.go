// Package inference wraps the external large-language-model API that turns a
// clinical consultation message into guidance text.
package inference

import (
	"context"
	"errors"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse is returned when the model produced no usable text.
var ErrEmptyResponse = errors.New("inference returned an empty response")

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Client generates guidance text for a consultation message. Any transport,
// quota or authentication problem surfaces as a plain error.
type Client interface {
	Generate(ctx context.Context, systemPrompt, message string) (string, error)
	// Model identifies the model recorded alongside each audit row.
	Model() string
}

// Config configures an OpenAIClient.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIClient calls an OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(cfg Config) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(oc), model: model}
}

func (c *OpenAIClient) Model() string { return c.model }

// Generate sends the system prompt and the message as a two-turn chat and
// returns the assistant's reply.
func (c *OpenAIClient) Generate(ctx context.Context, systemPrompt, message string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// StaticClient answers every message with fixed text. It stands in for the
// real API in development when no key is configured.
type StaticClient struct {
	Reply string
	Name  string
}

func (s *StaticClient) Model() string {
	if s.Name == "" {
		return "static-dev"
	}
	return s.Name
}

func (s *StaticClient) Generate(_ context.Context, _, message string) (string, error) {
	if s.Reply != "" {
		return s.Reply, nil
	}
	return "Development mode: no inference API key is configured. Received consultation of " +
		strconv.Itoa(len(message)) + " characters.", nil
}
