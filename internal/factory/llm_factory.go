package factory

import (
	"context"
	"fmt"

	"github.com/mikey/inbox-assistant/internal/config"
	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/mikey/inbox-assistant/internal/utils"
	"go.uber.org/zap"
)

// LLMFactory creates the configured extractors
type LLMFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *LLMFactory {
	return &LLMFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateExtractor creates the extractor for a single provider
func (f *LLMFactory) CreateExtractor(ctx context.Context, provider string) (core.Extractor, error) {
	var (
		extractor core.Extractor
		err       error
	)
	switch provider {
	case "openai":
		extractor, err = NewOpenAIFactory(f.cfg, f.logger, f.textProcessor).CreateExtractor()
	case "gemini":
		extractor, err = NewGeminiFactory(f.cfg, f.logger, f.textProcessor).CreateExtractor(ctx)
	case "bedrock":
		extractor, err = NewBedrockFactory(f.cfg, f.logger, f.textProcessor).CreateExtractor(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownProvider, provider)
	}
	if err != nil {
		return nil, err
	}
	return extractor, nil
}

// CreateExtractors creates every enabled provider. The default provider must be
// among them.
func (f *LLMFactory) CreateExtractors(ctx context.Context) (*core.ExtractorSet, error) {
	llmCfg := f.cfg.GetLLM()

	extractors := make(map[string]core.Extractor, len(llmCfg.EnabledProviders))
	for _, provider := range llmCfg.EnabledProviders {
		if _, ok := extractors[provider]; ok {
			continue
		}
		extractor, err := f.CreateExtractor(ctx, provider)
		if err != nil {
			core.NewExtractorSet(llmCfg.Provider, extractors).Close()
			return nil, fmt.Errorf("failed to create %s extractor: %w", provider, err)
		}
		extractors[provider] = extractor
	}

	if _, ok := extractors[llmCfg.Provider]; !ok {
		return nil, fmt.Errorf("default provider %q is not enabled", llmCfg.Provider)
	}

	f.logger.Info("Initialized extractors",
		zap.String("default", llmCfg.Provider),
		zap.Strings("enabled", llmCfg.EnabledProviders))

	return core.NewExtractorSet(llmCfg.Provider, extractors), nil
}
