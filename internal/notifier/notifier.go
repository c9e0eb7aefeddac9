package notifier

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"flashbot/internal/config"
)

// Notifier is the human approval channel. Push dispatches a preview of
// a candidate reply under a request ID; the human's approve/reject
// answers are observed later by polling Decisions. There is no push
// callback: polling is the only way a decision arrives.
type Notifier interface {
	Push(ctx context.Context, requestID, preview string) error
	// Decisions returns the request IDs approved and rejected since the
	// last call. Consumed decisions are not returned again.
	Decisions(ctx context.Context) (approved, rejected []string, err error)
	// Delete withdraws a previously pushed request, e.g. when it expires.
	Delete(ctx context.Context, requestID string) error
}

// NewNotifier builds the channel the configuration asks for.
func NewNotifier(cfg *config.Config, logger *zap.Logger) (Notifier, error) {
	switch cfg.Notifier.Provider {
	case "pushbullet":
		return NewPushbulletNotifier(cfg.Secrets.PushbulletToken, logger)
	case "telegram":
		return NewTelegramNotifier(cfg.Secrets.TelegramBotToken, cfg.Notifier.TelegramChatID, logger)
	default:
		return nil, fmt.Errorf("unknown notifier provider: %q", cfg.Notifier.Provider)
	}
}
