package notify

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"alarmd/internal/alarm"
	"alarmd/pkg/logx"
)

// TelegramConfig configures the Telegram delivery channel.
type TelegramConfig struct {
	Token      string
	ChatID     int64
	RatePerSec int
}

// TelegramSink sends each fired alarm as a message to a single chat. Sends
// are rate limited so a burst of simultaneous alarms cannot trip Telegram's
// flood control; messages over the limit are dropped with a warning (the log
// sink still carries them).
type TelegramSink struct {
	send    func(text string) error
	limiter *rate.Limiter
	log     logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	// Send-only: no poller, the sink never consumes updates.
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	chat := tele.ChatID(cfg.ChatID)
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 1
	}
	return &TelegramSink{
		send: func(text string) error {
			_, err := bot.Send(chat, text)
			return err
		},
		limiter: rate.NewLimiter(rate.Limit(perSec), perSec*5),
		log:     log,
	}, nil
}

func (s *TelegramSink) OnFire(ev alarm.Event) {
	if !s.limiter.Allow() {
		s.log.Warn("telegram notification dropped (rate limit)",
			logx.Int64("id", ev.ID))
		return
	}
	start := time.Now()
	if err := s.send(Message(ev)); err != nil {
		s.log.Warn("telegram notification failed",
			logx.Int64("id", ev.ID), logx.Err(err))
		return
	}
	s.log.Debug("telegram notification sent",
		logx.Int64("id", ev.ID), logx.Duration("took", time.Since(start)))
}
