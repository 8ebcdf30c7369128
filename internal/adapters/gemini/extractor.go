package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/mikey/inbox-assistant/internal/extraction"
	"github.com/mikey/inbox-assistant/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Extractor is an implementation of core.Extractor using Google Gemini
type Extractor struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewExtractor creates a new Gemini extractor
func NewExtractor(
	ctx context.Context,
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*Extractor, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = genai.NewUserContent(genai.Text(extraction.SystemPrompt))

	return &Extractor{
		client:        client,
		model:         model,
		modelName:     modelName,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// Close closes the Gemini client
func (e *Extractor) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Extract sends the whole batch in one request and parses the JSON reply
func (e *Extractor) Extract(ctx context.Context, emails []core.Email, opts core.ExtractOptions) (*core.Extraction, error) {
	prompt := extraction.BuildPrompt(emails, opts, e.textProcessor, e.maxBodySize)

	resp, err := e.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	result, err := extraction.ParseResponse(text, emails, opts)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Gemini extraction complete",
		zap.String("model", e.modelName),
		zap.Int("emails", len(emails)),
		zap.Int("events", len(result.Events)),
		zap.Int("todos", len(result.Todos)))

	return result, nil
}

// responseText joins the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String(), nil
}
