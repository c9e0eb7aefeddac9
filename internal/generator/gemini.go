package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GeminiGenerator generates replies with the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

var _ Generator = (*GeminiGenerator)(nil)

type GeminiConfig struct {
	APIKey string
	Model  string
}

func NewGeminiGenerator(cfg GeminiConfig, logger *zap.Logger) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	logger.Info("Gemini generator initialized", zap.String("model", cfg.Model))
	return &GeminiGenerator{client: client, model: cfg.Model, logger: logger}, nil
}

func (g *GeminiGenerator) Close() error { return g.client.Close() }

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error) {
	model := g.client.GenerativeModel(g.model)
	gc := genai.GenerationConfig{}
	if cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = genai.Ptr(int32(cfg.MaxTokens))
	}
	if cfg.Temperature > 0 {
		gc.Temperature = genai.Ptr(float32(cfg.Temperature))
	}
	if cfg.TopK > 0 {
		gc.TopK = genai.Ptr(int32(cfg.TopK))
	}
	if cfg.TopP > 0 {
		gc.TopP = genai.Ptr(float32(cfg.TopP))
	}
	model.GenerationConfig = gc

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	text := sb.String()
	g.logger.Debug("generated candidate", zap.Int("length", len(text)))
	return StripSpecialTokens(text, cfg.SpecialTokens), nil
}
