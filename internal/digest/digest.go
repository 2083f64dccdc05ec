package digest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"charitybot/internal/catalog"
	"charitybot/internal/dispatch"
)

// TaskSource yields tasks that became active after a cutoff.
type TaskSource interface {
	ActiveTasksSince(ctx context.Context, cutoff time.Time) ([]catalog.Task, error)
}

// Dispatcher fans the digest out to subscribed recipients.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Report, error)
}

type Config struct {
	Schedule string
}

// Service mails freshly reconciled tasks to subscribed users on a cron
// schedule. It rides the same dispatch core as the API, so digest sends are
// rate-limited and classified like any other batch.
type Service struct {
	cfg        Config
	tasks      TaskSource
	dispatcher Dispatcher
	log        zerolog.Logger

	cron *cron.Cron

	mu      sync.Mutex
	lastRun time.Time
	runCtx  context.Context
	runStop context.CancelFunc
}

func New(cfg Config, tasks TaskSource, dispatcher Dispatcher, log zerolog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		tasks:      tasks,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "digest").Logger(),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	s.runCtx, s.runStop = context.WithCancel(ctx)
	s.lastRun = time.Now()

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Schedule, s.run); err != nil {
		s.runStop()
		return fmt.Errorf("digest schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.cron = c
	s.log.Info().Str("schedule", s.cfg.Schedule).Msg("digest scheduled")
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	stop := s.runStop
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
	if stop != nil {
		stop()
	}
}

func (s *Service) run() {
	s.mu.Lock()
	since := s.lastRun
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	tasks, err := s.tasks.ActiveTasksSince(ctx, since)
	if err != nil {
		s.log.Error().Err(err).Msg("digest task query failed")
		return
	}
	if len(tasks) == 0 {
		s.log.Debug().Msg("no fresh tasks; digest skipped")
		return
	}

	rep, err := s.dispatcher.Dispatch(ctx, dispatch.Request{
		Mode: dispatch.ModeSubscribed,
		Text: render(tasks),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("digest dispatch failed")
		return
	}

	// Only advance the cutoff after a completed run so a failed or partial
	// batch re-includes its tasks next time.
	if !rep.Partial {
		s.mu.Lock()
		s.lastRun = time.Now()
		s.mu.Unlock()
	}
	s.log.Info().
		Int("tasks", len(tasks)).
		Int("successful", rep.Successful).
		Int("unsuccessful", rep.Unsuccessful).
		Msg("digest sent")
}

func render(tasks []catalog.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New volunteering tasks (%d):\n", len(tasks))
	for i, t := range tasks {
		if i == 10 {
			fmt.Fprintf(&b, "…and %d more.\n", len(tasks)-i)
			break
		}
		fmt.Fprintf(&b, "• %s", t.Title)
		if t.NameOrganization != "" {
			fmt.Fprintf(&b, " — %s", t.NameOrganization)
		}
		if t.Deadline != nil {
			fmt.Fprintf(&b, " (until %s)", t.Deadline.Format("02.01.2006"))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
