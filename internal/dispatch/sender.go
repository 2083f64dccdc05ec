package dispatch

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender pushes one message through the channel and classifies the result.
// The limiter is shared by every concurrent send in the process and is the
// sole admission-control mechanism: there is no separate worker-pool cap.
//
// The sender never retries. A caller that wants retry semantics re-submits
// the dispatch; this is a deliberate latency/simplicity trade-off.
type Sender struct {
	channel Channel
	store   RecipientStore
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewSender(channel Channel, store RecipientStore, ratePerSec, burst int, log zerolog.Logger) *Sender {
	if ratePerSec <= 0 {
		ratePerSec = 25
	}
	if burst <= 0 {
		burst = ratePerSec
	}
	return &Sender{
		channel: channel,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		log:     log.With().Str("component", "sender").Logger(),
	}
}

// SetRate applies a new throughput cap. Safe under concurrent sends; applied
// live on config reload.
func (s *Sender) SetRate(ratePerSec, burst int) {
	if ratePerSec <= 0 {
		ratePerSec = 25
	}
	if burst <= 0 {
		burst = ratePerSec
	}
	s.limiter.SetLimit(rate.Limit(ratePerSec))
	s.limiter.SetBurst(burst)
	s.log.Info().Int("rate_per_sec", ratePerSec).Int("burst", burst).Msg("send rate updated")
}

// Acquire blocks until a limiter permit is available or ctx is cancelled.
func (s *Sender) Acquire(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

// Send attempts one delivery and returns the classified outcome. Permanent
// failures (invalid address, blocked) flip the recipient's banned flag; the
// flip is a single-row commit independent of the rest of the batch.
func (s *Sender) Send(ctx context.Context, t Target) Outcome {
	err := s.channel.Send(ctx, t.Recipient.ChatID, t.Text)
	if err == nil {
		s.log.Debug().Int64("recipient", t.RecipientID).Msg("message delivered")
		return Outcome{RecipientID: t.RecipientID, Succeeded: true}
	}

	out := Outcome{RecipientID: t.RecipientID, Detail: err.Error()}
	switch {
	case errors.Is(err, ErrInvalidRecipient):
		out.Kind = KindInvalidRecipient
		s.ban(ctx, t.RecipientID)
	case errors.Is(err, ErrBlocked):
		out.Kind = KindBlocked
		s.ban(ctx, t.RecipientID)
	default:
		out.Kind = KindTransient
	}
	s.log.Warn().
		Int64("recipient", t.RecipientID).
		Str("kind", string(out.Kind)).
		Err(err).
		Msg("send failed")
	return out
}

func (s *Sender) ban(ctx context.Context, recipientID int64) {
	if err := s.store.MarkBanned(ctx, recipientID); err != nil {
		s.log.Error().Int64("recipient", recipientID).Err(err).Msg("banned flag update failed")
	}
}
