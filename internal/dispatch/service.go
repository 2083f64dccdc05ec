package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service fans one request out to its resolved targets and waits for every
// submitted send to finish before returning the aggregate. Delivery is
// best-effort within the invocation: no queue, no cross-batch state.
type Service struct {
	resolver *Resolver
	sender   *Sender
	log      zerolog.Logger
}

func New(store RecipientStore, channel Channel, ratePerSec, burst int, log zerolog.Logger) *Service {
	return &Service{
		resolver: NewResolver(store, log),
		sender:   NewSender(channel, store, ratePerSec, burst, log),
		log:      log.With().Str("component", "dispatch").Logger(),
	}
}

// Sender exposes the shared sender for live rate reconfiguration.
func (s *Service) Sender() *Sender { return s.sender }

// Dispatch resolves the request and sends to every target, admission-limited
// by the shared rate limiter. Per-target failures never abort the batch; the
// report accounts for every target the resolver yielded.
//
// Cancelling ctx stops admitting new sends; sends already submitted run to
// completion and are still counted. The report is then marked Partial.
func (s *Service) Dispatch(ctx context.Context, req Request) (*Report, error) {
	batchID := uuid.NewString()
	start := time.Now()

	targets, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	// In-flight sends must not be aborted mid-flight by batch cancellation.
	sendCtx := context.WithoutCancel(ctx)

	outcomes := make(chan Outcome)
	go func() {
		var wg sync.WaitGroup
		defer func() {
			wg.Wait()
			close(outcomes)
		}()
		for t := range targets {
			if ctx.Err() != nil {
				return
			}
			if t.Err != nil {
				outcomes <- Outcome{RecipientID: t.RecipientID, Kind: t.Kind, Detail: t.Err.Error()}
				continue
			}
			// The limiter is the only admission gate: one permit per send,
			// acquired before the send goroutine is spawned.
			if err := s.sender.Acquire(ctx); err != nil {
				return
			}
			wg.Add(1)
			go func(t Target) {
				defer wg.Done()
				outcomes <- s.sender.Send(sendCtx, t)
			}(t)
		}
	}()

	rep := Collect(outcomes)
	rep.BatchID = batchID
	if ctx.Err() != nil {
		rep.Partial = true
	}

	ev := s.log.Info()
	if rep.Unsuccessful > 0 {
		ev = s.log.Warn()
	}
	ev.Str("batch", batchID).
		Int("successful", rep.Successful).
		Int("unsuccessful", rep.Unsuccessful).
		Bool("partial", rep.Partial).
		Dur("took", time.Since(start)).
		Msg("dispatch finished")
	return rep, nil
}
