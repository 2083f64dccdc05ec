package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Channel adapts telebot to the dispatch message channel. One instance is
// shared between outbound dispatch and the inbound bot handlers.
type Channel struct {
	bot *tele.Bot
	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) (*Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Channel{bot: b, log: log.With().Str("component", "telegram").Logger()}, nil
}

// Bot exposes the underlying telebot instance for handler registration.
func (c *Channel) Bot() *tele.Bot { return c.bot }

// Send delivers one text message to one chat. Failures come back classified
// (see classify.go); the raw telebot error stays wrapped inside.
func (c *Channel) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	return classify(err)
}
