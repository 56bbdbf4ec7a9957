package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	"tidings/internal/retry"
	logx "tidings/pkg/logx"
)

// TelegramConfig configures the Telegram channel sink.
type TelegramConfig struct {
	Token      string
	ChatID     int64
	RatePerSec int
}

// Telegram publishes messages to a single Telegram chat via the Bot API.
// Long texts are split; an image goes out with the first chunk as caption
// when it fits, or as a separate leading photo otherwise.
type Telegram struct {
	bot     *tele.Bot
	chat    *tele.Chat
	limiter *rate.Limiter
	log     logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: 60 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{
		bot:     b,
		chat:    &tele.Chat{ID: cfg.ChatID},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}, nil
}

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}
	chunks := SplitMessage(msg.Text, maxMessageRunes)

	if len(msg.Image) > 0 {
		photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(msg.Image))}
		if len(chunks) == 1 && len([]rune(chunks[0])) <= captionRunes {
			photo.Caption = chunks[0]
			return t.send(ctx, photo, opts)
		}
		// Caption won't fit: lead with the bare photo, follow with text.
		if err := t.send(ctx, photo, opts); err != nil {
			return err
		}
	}

	for i, chunk := range chunks {
		if err := t.send(ctx, chunk, opts); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func (t *Telegram) send(ctx context.Context, what any, opts *tele.SendOptions) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := t.bot.Send(t.chat, what, opts)
	if err != nil {
		return classifySendError(err)
	}
	return nil
}

// classifySendError reshapes telebot errors for the retry executor: flood
// waits become retry-after hints, gateway errors stay retryable, everything
// else Telegram rejects deliberately is permanent.
func classifySendError(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return retry.WithRetryAfter(err, time.Duration(flood.RetryAfter)*time.Second)
	}
	var terr *tele.Error
	if errors.As(err, &terr) {
		switch terr.Code {
		case http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return &retry.StatusError{Status: terr.Code, Err: err}
		}
		return retry.Permanent(err)
	}
	// Transport-level failures (timeouts, resets) pass through; the default
	// classifier already treats net errors as retryable.
	return err
}
