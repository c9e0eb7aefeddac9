package generator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"flashbot/internal/config"
	"flashbot/internal/models"
)

// GenerationConfig carries the sampling options passed to the model.
type GenerationConfig struct {
	MaxTokens         int
	Temperature       float64
	TopK              int
	TopP              float64
	RepetitionPenalty float64
	NoRepeatNgramSize int
	SpecialTokens     []string
}

// Generator turns a prompt into candidate reply text. Implementations
// may be slow (network and inference latency) and must honor ctx.
type Generator interface {
	Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error)
}

// NewGenerator builds the provider the configuration asks for.
func NewGenerator(cfg *config.Config, logger *zap.Logger) (Generator, error) {
	switch cfg.Generator.Provider {
	case "openai":
		return NewOpenAIGenerator(OpenAIConfig{
			APIKey:  cfg.Secrets.OpenAIAPIKey,
			BaseURL: cfg.Generator.BaseURL,
			Model:   cfg.Generator.Model,
		}, logger), nil
	case "gemini":
		return NewGeminiGenerator(GeminiConfig{
			APIKey: cfg.Secrets.GeminiAPIKey,
			Model:  cfg.Generator.Model,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown generator provider: %q", cfg.Generator.Provider)
	}
}

// ConfigFromSettings maps the configuration's generator section to a
// GenerationConfig.
func ConfigFromSettings(cfg *config.Config) GenerationConfig {
	return GenerationConfig{
		MaxTokens:         cfg.Generator.MaxTokens,
		Temperature:       cfg.Generator.Temperature,
		TopK:              cfg.Generator.TopK,
		TopP:              cfg.Generator.TopP,
		RepetitionPenalty: cfg.Generator.RepetitionPenalty,
		NoRepeatNgramSize: cfg.Generator.NoRepeatNgramSize,
		SpecialTokens:     cfg.Generator.SpecialTokens,
	}
}

// BuildPrompt formats a forum post into the context string the model
// was trained on, wrapping each part in its reserved token.
func BuildPrompt(post models.ForumPost) string {
	quotedUser := strings.Join(post.QuotedAuthors, ", ")
	quotedText := strings.Join(post.QuotedTexts, "\n")
	return fmt.Sprintf("[USER] %s\n[QUOTED_USER] %s\n[QUOTE_START] %s [QUOTE_END]\n[POST_START] %s [POST_END]",
		post.Author, quotedUser, quotedText, post.Text)
}

// StripSpecialTokens removes the reserved vocabulary from generated
// output before it is shown to anyone.
func StripSpecialTokens(text string, specialTokens []string) string {
	for _, tok := range specialTokens {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			text = strings.ReplaceAll(text, tok, "")
		}
	}
	return strings.TrimSpace(text)
}
