package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramNotifier sends candidate previews to a chat with inline
// Approve/Reject buttons. Button presses are collected by a background
// listener and handed out on the next Decisions poll.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger

	mu       sync.Mutex
	approved map[string]struct{}
	rejected map[string]struct{}
	messages map[string]int // request ID -> message ID, for Delete
}

var _ Notifier = (*TelegramNotifier)(nil)

func NewTelegramNotifier(token string, chatID int64, logger *zap.Logger) (*TelegramNotifier, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram bot token and chat id are required")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}
	n := &TelegramNotifier{
		api:      api,
		chatID:   chatID,
		logger:   logger,
		approved: make(map[string]struct{}),
		rejected: make(map[string]struct{}),
		messages: make(map[string]int),
	}
	logger.Info("Telegram notifier authorized", zap.String("username", api.Self.UserName))
	go n.listen()
	return n, nil
}

func (n *TelegramNotifier) listen() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := n.api.GetUpdatesChan(u)

	for update := range updates {
		if update.CallbackQuery == nil {
			continue
		}
		n.handleCallbackQuery(update.CallbackQuery)
	}
}

func (n *TelegramNotifier) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	// Parse callback data: "approve:<request_id>" or "reject:<request_id>"
	parts := strings.SplitN(query.Data, ":", 2)
	if len(parts) != 2 {
		n.logger.Error("failed to parse callback data", zap.String("data", query.Data))
		return
	}
	action, requestID := parts[0], parts[1]

	n.mu.Lock()
	switch action {
	case "approve":
		n.approved[requestID] = struct{}{}
	case "reject":
		n.rejected[requestID] = struct{}{}
	default:
		n.mu.Unlock()
		n.logger.Error("unknown callback action", zap.String("action", action))
		return
	}
	msgID := n.messages[requestID]
	n.mu.Unlock()

	callback := tgbotapi.NewCallback(query.ID, "Recorded: "+action)
	if _, err := n.api.Request(callback); err != nil {
		n.logger.Error("failed to answer callback query", zap.Error(err))
	}
	if msgID != 0 {
		edit := tgbotapi.NewEditMessageReplyMarkup(n.chatID, msgID,
			tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
		if _, err := n.api.Send(edit); err != nil {
			n.logger.Debug("failed to clear inline keyboard", zap.Error(err))
		}
	}
	n.logger.Info("approval decision received",
		zap.String("request_id", requestID), zap.String("action", action))
}

func (n *TelegramNotifier) Push(ctx context.Context, requestID, preview string) error {
	msg := tgbotapi.NewMessage(n.chatID, fmt.Sprintf("Action ID: %s\n\n%s", requestID, preview))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", "approve:"+requestID),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", "reject:"+requestID),
		),
	)
	sent, err := n.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send approval message: %w", err)
	}
	n.mu.Lock()
	n.messages[requestID] = sent.MessageID
	n.mu.Unlock()
	return nil
}

func (n *TelegramNotifier) Decisions(_ context.Context) ([]string, []string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	approved := make([]string, 0, len(n.approved))
	for id := range n.approved {
		approved = append(approved, id)
	}
	rejected := make([]string, 0, len(n.rejected))
	for id := range n.rejected {
		rejected = append(rejected, id)
	}
	n.approved = make(map[string]struct{})
	n.rejected = make(map[string]struct{})
	return approved, rejected, nil
}

func (n *TelegramNotifier) Delete(_ context.Context, requestID string) error {
	n.mu.Lock()
	msgID, ok := n.messages[requestID]
	delete(n.messages, requestID)
	n.mu.Unlock()
	if !ok {
		return nil
	}
	del := tgbotapi.NewDeleteMessage(n.chatID, msgID)
	if _, err := n.api.Request(del); err != nil {
		return fmt.Errorf("failed to delete approval message: %w", err)
	}
	return nil
}
