package generator

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// OpenAIGenerator talks to any OpenAI-compatible completion endpoint,
// including self-hosted inference servers, via a configurable base URL.
type OpenAIGenerator struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

var _ Generator = (*OpenAIGenerator)(nil)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string // empty means api.openai.com
	Model   string
}

func NewOpenAIGenerator(cfg OpenAIConfig, logger *zap.Logger) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	logger.Info("OpenAI-compatible generator initialized",
		zap.String("model", cfg.Model), zap.String("base_url", cfg.BaseURL))
	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(cfg.MaxTokens))
	}
	if cfg.Temperature > 0 {
		params.Temperature = openai.Float(cfg.Temperature)
	}
	if cfg.TopP > 0 {
		params.TopP = openai.Float(cfg.TopP)
	}
	if cfg.RepetitionPenalty > 0 {
		// The chat API expresses repetition pressure as a frequency
		// penalty in [-2, 2] around zero, not a multiplier around one.
		params.FrequencyPenalty = openai.Float(cfg.RepetitionPenalty - 1)
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	text := resp.Choices[0].Message.Content
	g.logger.Debug("generated candidate", zap.Int("length", len(text)))
	return StripSpecialTokens(text, cfg.SpecialTokens), nil
}
