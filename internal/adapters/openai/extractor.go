package openai

import (
	"context"
	"fmt"

	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/mikey/inbox-assistant/internal/extraction"
	"github.com/mikey/inbox-assistant/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Extractor is an implementation of core.Extractor using OpenAI chat completions
type Extractor struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewExtractor creates a new OpenAI extractor
func NewExtractor(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *Extractor {
	return &Extractor{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Extract sends the whole batch in one completion and parses the JSON reply
func (e *Extractor) Extract(ctx context.Context, emails []core.Email, opts core.ExtractOptions) (*core.Extraction, error) {
	prompt := extraction.BuildPrompt(emails, opts, e.textProcessor, e.maxBodySize)

	req := openai.ChatCompletionRequest{
		Model: e.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extraction.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
		TopP:        e.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	result, err := extraction.ParseResponse(resp.Choices[0].Message.Content, emails, opts)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("OpenAI extraction complete",
		zap.String("model", e.modelName),
		zap.String("completion_id", resp.ID),
		zap.Int("emails", len(emails)),
		zap.Int("events", len(result.Events)),
		zap.Int("todos", len(result.Todos)))

	return result, nil
}
