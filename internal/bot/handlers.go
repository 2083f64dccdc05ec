package bot

import (
	"context"
	"time"

	tele "gopkg.in/telebot.v4"
)

const handlerTimeout = 5 * time.Second

func (s *Service) register() {
	s.bot.Handle("/start", s.onStart)
	s.bot.Handle("/subscribe", s.onSubscribe)
	s.bot.Handle("/unsubscribe", s.onUnsubscribe)
}

// onStart registers the sender as a recipient. A returning user gets revived:
// profile refreshed, banned flag cleared.
func (s *Service) onStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := s.store.RegisterRecipient(ctx, sender.ID, sender.Username, sender.FirstName, sender.LastName); err != nil {
		s.log.Error().Int64("chat_id", sender.ID).Err(err).Msg("registration failed")
		return c.Send("Something went wrong, please try again later.")
	}
	s.log.Info().Int64("chat_id", sender.ID).Msg("recipient registered")
	return c.Send("Welcome! Use /subscribe to receive new volunteering tasks.")
}

func (s *Service) onSubscribe(c tele.Context) error {
	return s.setMailing(c, true, "You are subscribed to the task mailing.")
}

func (s *Service) onUnsubscribe(c tele.Context) error {
	return s.setMailing(c, false, "You are unsubscribed from the task mailing.")
}

func (s *Service) setMailing(c tele.Context, subscribed bool, reply string) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := s.store.SetMailingByChat(ctx, sender.ID, subscribed); err != nil {
		s.log.Warn().Int64("chat_id", sender.ID).Bool("subscribed", subscribed).Err(err).
			Msg("mailing toggle failed")
		return c.Send("Please /start the bot first.")
	}
	return c.Send(reply)
}
