package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"charitybot/internal/catalog"
	"charitybot/internal/dispatch"
)

type Config struct {
	Listen string
}

// Dispatcher is the outbound side the API drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Report, error)
}

// Pinger reports store liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP surface: catalog ingestion, notifications, health.
// Authentication is the deployment's concern; the listener address is the
// only exposure control here.
type Server struct {
	cfg        Config
	app        *fiber.App
	categories *catalog.Reconciler[catalog.Category]
	tasks      *catalog.Reconciler[catalog.Task]
	dispatcher Dispatcher
	store      Pinger
	log        zerolog.Logger
	startedAt  time.Time
}

func NewServer(
	cfg Config,
	categories *catalog.Reconciler[catalog.Category],
	tasks *catalog.Reconciler[catalog.Task],
	dispatcher Dispatcher,
	store Pinger,
	log zerolog.Logger,
) *Server {
	s := &Server{
		cfg:        cfg,
		categories: categories,
		tasks:      tasks,
		dispatcher: dispatcher,
		store:      store,
		log:        log.With().Str("component", "api").Logger(),
	}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Post("/categories", s.handleCategories)
	api.Post("/tasks", s.handleTasks)
	api.Post("/messages", s.handleBroadcast)
	api.Post("/messages/group", s.handleGroup)
	api.Post("/messages/:recipient_id", s.handleSingle)
}

// Start begins serving and returns immediately; listen failures are reported
// through the returned channel.
func (s *Server) Start() <-chan error {
	s.startedAt = time.Now()
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.cfg.Listen).Msg("api listening")
		if err := s.app.Listen(s.cfg.Listen); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
