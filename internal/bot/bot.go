package bot

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
)

// UserStore is what the inbound handlers need from storage.
type UserStore interface {
	RegisterRecipient(ctx context.Context, telegramID int64, username, firstName, lastName string) error
	SetMailingByChat(ctx context.Context, telegramID int64, subscribed bool) error
}

// Client is the telebot surface the service drives.
type Client interface {
	Handle(endpoint any, h tele.HandlerFunc, m ...tele.MiddlewareFunc)
	Start()
	Stop()
}

// Service runs the user-facing bot: registration and the mailing toggle.
// Outbound dispatch goes through the shared channel, not through here.
type Service struct {
	bot   Client
	store UserStore
	log   zerolog.Logger

	runMu   sync.Mutex
	running bool
	runWG   sync.WaitGroup
}

func New(bot Client, store UserStore, log zerolog.Logger) *Service {
	s := &Service{bot: bot, store: store, log: log.With().Str("component", "bot").Logger()}
	s.register()
	return s
}

// Start begins long polling; it returns immediately and stops when ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.running = true

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		go func() {
			<-ctx.Done()
			s.bot.Stop()
		}()
		s.log.Info().Msg("polling started")
		s.bot.Start()
		s.log.Info().Msg("polling stopped")
	}()
}

// Stop waits for the poll loop to exit.
func (s *Service) Stop() {
	s.runWG.Wait()
	s.runMu.Lock()
	s.running = false
	s.runMu.Unlock()
}
