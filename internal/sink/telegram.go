package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"nudged/internal/engine"
	logx "nudged/pkg/logx"
)

// Telegram sends finalized requests as plain messages to a single chat.
// Intended for operators who want their reminders in Telegram directly.
type Telegram struct {
	bot    *tele.Bot
	chatID int64
	log    logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("sink.telegram.token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("sink.telegram.chat_id is required")
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: nil, // send-only; we never poll for updates
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}

	return &Telegram{
		bot:    bot,
		chatID: cfg.ChatID,
		log:    log.With(logx.String("comp", "sink.telegram")),
	}, nil
}

func (s *Telegram) Deliver(ctx context.Context, f engine.Finalized) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	text := formatMessage(f)
	_, err := s.bot.Send(&tele.Chat{ID: s.chatID}, text, &tele.SendOptions{
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	s.log.Debug("delivered", logx.String("id", f.Request.ID))
	return nil
}

func formatMessage(f engine.Finalized) string {
	var b strings.Builder
	b.WriteString(f.Request.Title)
	if f.Request.Body != "" {
		b.WriteString("\n")
		b.WriteString(f.Request.Body)
	}
	if !f.FireAt.IsZero() {
		b.WriteString("\n")
		b.WriteString(f.FireAt.Format(time.RFC1123))
	}
	return b.String()
}
