// Package caption obtains a short textual description of an image from an
// OpenAI-compatible vision model. The pipeline only ever needs the first
// caption; everything else the model says is discarded.
package caption

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultModel    = "gpt-4o-mini"
	describeTimeout = 90 * time.Second

	prompt = "Describe this image in one short sentence suitable as a post caption. " +
		"Reply with the caption only, no preamble."
)

// Describer produces a caption for an image reachable at the given URL.
type Describer interface {
	Describe(ctx context.Context, imageURL string) (string, error)
}

// OpenAIDescriber is a Describer backed by a chat-completion vision model.
type OpenAIDescriber struct {
	client *openai.Client
	model  string
}

// Config holds the describer's connection settings.
type Config struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible endpoints
	Model   string // optional, defaults to gpt-4o-mini
}

// NewOpenAIDescriber builds a describer from config.
func NewOpenAIDescriber(config Config) (*OpenAIDescriber, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("caption: API key required")
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	model := config.Model
	if model == "" {
		model = defaultModel
	}
	return &OpenAIDescriber{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// Describe sends the image URL to the vision model and returns the first
// caption it produces.
func (d *OpenAIDescriber) Describe(ctx context.Context, imageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, describeTimeout)
	defer cancel()

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageURL,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("caption: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("caption: model returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("caption: model returned an empty caption")
	}
	return text, nil
}
