package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eval-hub/student-evaluation-hub/internal/infrastructure/external/telegram"
	"github.com/eval-hub/student-evaluation-hub/pkg/retry"
)

// TelegramNotifier implements command.Notifier by posting batch outcome
// messages to a Telegram chat. When no chat is configured the notifier is
// disabled and every call is a logged no-op, so the batch can run in
// environments without a notification channel.
type TelegramNotifier struct {
	client      *telegram.Client
	chatID      int64
	sendTimeout time.Duration
	retrier     *retry.Retrier
	logger      *slog.Logger
}

// TelegramNotifierConfig holds notifier configuration.
type TelegramNotifierConfig struct {
	// ChatID is the destination chat. Zero disables the notifier.
	ChatID int64

	// SendTimeout bounds a single delivery attempt including retries.
	SendTimeout time.Duration

	Logger *slog.Logger
}

// DefaultTelegramNotifierConfig returns sensible defaults.
func DefaultTelegramNotifierConfig() TelegramNotifierConfig {
	return TelegramNotifierConfig{
		SendTimeout: 30 * time.Second,
	}
}

// NewTelegramNotifier creates a new TelegramNotifier.
func NewTelegramNotifier(client *telegram.Client, cfg TelegramNotifierConfig) *TelegramNotifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	return &TelegramNotifier{
		client:      client,
		chatID:      cfg.ChatID,
		sendTimeout: cfg.SendTimeout,
		retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(time.Second),
		),
		logger: logger,
	}
}

// Enabled reports whether the notifier has a destination chat.
func (n *TelegramNotifier) Enabled() bool {
	return n.client != nil && n.chatID != 0
}

// NotifySuccess reports a completed batch with the processed identifiers.
func (n *TelegramNotifier) NotifySuccess(ctx context.Context, period string, processedIDs []string) error {
	text := fmt.Sprintf(
		"✅ Student evaluation batch completed\nPeriod: %s\nStudents processed: %d",
		period, len(processedIDs),
	)
	if len(processedIDs) > 0 {
		text += "\nIDs: " + strings.Join(processedIDs, ", ")
	}
	return n.send(ctx, text)
}

// NotifyFailure reports an aborted batch.
func (n *TelegramNotifier) NotifyFailure(ctx context.Context, period, startingID string, cause error) error {
	text := fmt.Sprintf(
		"❌ Student evaluation batch failed\nPeriod: %s\nStarting ID: %s\nError: %v",
		period, startingID, cause,
	)
	return n.send(ctx, text)
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	if !n.Enabled() {
		n.logger.Debug("notifier disabled, skipping message")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.sendTimeout)
	defer cancel()

	err := n.retrier.Do(ctx, func(ctx context.Context) error {
		_, err := n.client.SendMessage(ctx, telegram.SendMessageParams{
			ChatID: n.chatID,
			Text:   text,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram notification failed: %w", err)
	}

	return nil
}
