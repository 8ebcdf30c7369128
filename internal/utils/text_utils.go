package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"go.uber.org/zap"
)

const truncationMarker = "\n[... email truncated ...]"

var (
	htmlBlockPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlBreakPattern = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/li|/tr|/h[1-6])\s*/?>`)
	htmlTagPattern   = regexp.MustCompile(`<[^>]+>`)
	htmlDocPattern   = regexp.MustCompile(`(?i)<\s*(html|body)[\s>]`)
	blankRunPattern  = regexp.MustCompile(`\n{3,}`)
	spaceRunPattern  = regexp.MustCompile(`[ \t\f\v]+`)
)

var htmlEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
)

// TextProcessor prepares email bodies for extraction prompts
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText safely truncates text to the specified maximum size
// and ensures the result is valid UTF-8
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated + truncationMarker
}

// SanitizeUTF8 drops invalid UTF-8 bytes
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	sanitized := strings.ToValidUTF8(text, "")

	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(sanitized)))

	return sanitized
}

// StripHTML reduces an HTML body to readable plain text
func (tp *TextProcessor) StripHTML(body string) string {
	if !strings.Contains(body, "<") {
		return body
	}
	text := htmlBlockPattern.ReplaceAllString(body, "")
	text = htmlBreakPattern.ReplaceAllString(text, "\n")
	text = htmlTagPattern.ReplaceAllString(text, "")
	return htmlEntities.Replace(text)
}

// FlattenHTML renders full HTML documents as markdown so headings, lists and
// links survive into the prompt. Fragments and conversion failures go through
// StripHTML.
func (tp *TextProcessor) FlattenHTML(body string) string {
	if !htmlDocPattern.MatchString(body) {
		return tp.StripHTML(body)
	}
	md, err := htmltomarkdown.ConvertString(body)
	if err != nil {
		tp.logger.Debug("HTML conversion failed, stripping tags", zap.Error(err))
		return tp.StripHTML(body)
	}
	return md
}

// CollapseWhitespace squeezes runs of spaces and blank lines
func (tp *TextProcessor) CollapseWhitespace(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRunPattern.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(blankRunPattern.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// ProcessText sanitizes, flattens and truncates a body in one operation
func (tp *TextProcessor) ProcessText(text string, maxSize int) string {
	text = tp.SanitizeUTF8(text)
	text = tp.CollapseWhitespace(tp.FlattenHTML(text))
	return tp.TruncateText(text, maxSize)
}
