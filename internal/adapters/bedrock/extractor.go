package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/mikey/inbox-assistant/internal/extraction"
	"github.com/mikey/inbox-assistant/internal/utils"
	"go.uber.org/zap"
)

const anthropicVersion = "bedrock-2023-05-31"

// InvokeModelAPI is the part of the Bedrock runtime client the extractor uses
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Extractor is an implementation of core.Extractor using Amazon Bedrock
type Extractor struct {
	client        InvokeModelAPI
	modelID       string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewExtractor creates a new Bedrock extractor
func NewExtractor(
	client InvokeModelAPI,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *Extractor {
	return &Extractor{
		client:        client,
		modelID:       modelID,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Extract sends the whole batch in one invocation and parses the JSON reply
func (e *Extractor) Extract(ctx context.Context, emails []core.Email, opts core.ExtractOptions) (*core.Extraction, error) {
	prompt := extraction.BuildPrompt(emails, opts, e.textProcessor, e.maxBodySize)

	payload, err := e.requestBody(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	text, err := e.responseText(resp.Body)
	if err != nil {
		return nil, err
	}

	result, err := extraction.ParseResponse(text, emails, opts)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Bedrock extraction complete",
		zap.String("model", e.modelID),
		zap.Int("emails", len(emails)),
		zap.Int("events", len(result.Events)),
		zap.Int("todos", len(result.Todos)))

	return result, nil
}

func (e *Extractor) requestBody(prompt string) ([]byte, error) {
	switch {
	case e.isAnthropicModel():
		return json.Marshal(map[string]interface{}{
			"anthropic_version": anthropicVersion,
			"max_tokens":        e.maxTokens,
			"system":            extraction.SystemPrompt,
			"temperature":       e.temperature,
			"top_p":             e.topP,
			"messages": []map[string]interface{}{
				{
					"role": "user",
					"content": []map[string]string{
						{"type": "text", "text": prompt},
					},
				},
			},
		})
	case e.isAmazonTitanModel():
		return json.Marshal(map[string]interface{}{
			"inputText": extraction.SystemPrompt + "\n\n" + prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": e.maxTokens,
				"temperature":   e.temperature,
				"topP":          e.topP,
			},
		})
	default:
		return json.Marshal(map[string]interface{}{
			"prompt":      extraction.SystemPrompt + "\n\n" + prompt,
			"max_tokens":  e.maxTokens,
			"temperature": e.temperature,
			"top_p":       e.topP,
		})
	}
}

func (e *Extractor) responseText(body []byte) (string, error) {
	switch {
	case e.isAnthropicModel():
		var claudeResp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		var text strings.Builder
		for _, block := range claudeResp.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		if text.Len() == 0 {
			return "", fmt.Errorf("empty response from Claude model")
		}
		return text.String(), nil
	case e.isAmazonTitanModel():
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	default:
		var genericResp struct {
			Output     string `json:"output"`
			Text       string `json:"text"`
			Generation string `json:"generation"`
		}
		if err := json.Unmarshal(body, &genericResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
		}
		switch {
		case genericResp.Output != "":
			return genericResp.Output, nil
		case genericResp.Text != "":
			return genericResp.Text, nil
		case genericResp.Generation != "":
			return genericResp.Generation, nil
		}
		return string(body), nil
	}
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func (e *Extractor) isAnthropicModel() bool {
	return strings.Contains(e.modelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (e *Extractor) isAmazonTitanModel() bool {
	return strings.HasPrefix(e.modelID, "amazon.titan")
}
