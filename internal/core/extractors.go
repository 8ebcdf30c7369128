package core

import (
	"errors"
	"fmt"
	"io"
	"sort"
)

// ExtractorSet holds the configured extractors keyed by AI provider name
type ExtractorSet struct {
	extractors      map[string]Extractor
	defaultProvider string
}

// NewExtractorSet creates a set whose empty-provider lookups resolve to defaultProvider
func NewExtractorSet(defaultProvider string, extractors map[string]Extractor) *ExtractorSet {
	if extractors == nil {
		extractors = make(map[string]Extractor)
	}
	return &ExtractorSet{
		extractors:      extractors,
		defaultProvider: defaultProvider,
	}
}

// Get returns the extractor for a provider, or the default one when provider is empty
func (s *ExtractorSet) Get(provider string) (Extractor, error) {
	if provider == "" {
		provider = s.defaultProvider
	}
	extractor, ok := s.extractors[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return extractor, nil
}

// Providers lists the registered provider names
func (s *ExtractorSet) Providers() []string {
	names := make([]string, 0, len(s.extractors))
	for name := range s.extractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases extractors that hold client connections
func (s *ExtractorSet) Close() error {
	var errs []error
	for _, name := range s.Providers() {
		if closer, ok := s.extractors[name].(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close %s extractor: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
