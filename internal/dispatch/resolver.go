package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Target is one resolved unit of work. A non-nil Err becomes an immediate
// failed outcome downstream instead of aborting the batch; Kind carries its
// classification (not_found for a missing id, transient for a store failure).
type Target struct {
	RecipientID int64
	Recipient   Recipient
	Text        string
	Err         error
	Kind        ErrorKind
}

// Resolver turns a Request into a stream of targets. Every Resolve call
// re-queries current state; nothing is cached between dispatches.
//
// Banned recipients are NOT filtered out before the attempt: the flag is only
// consulted by operators, and flips after a failed send. Whether resolution
// should skip them instead is an open product decision; keep parity with the
// current behavior until that is settled.
type Resolver struct {
	store RecipientStore
	log   zerolog.Logger
}

func NewResolver(store RecipientStore, log zerolog.Logger) *Resolver {
	return &Resolver{store: store, log: log.With().Str("component", "resolver").Logger()}
}

// Resolve validates the request and starts streaming targets. The returned
// channel is closed when the sequence ends or ctx is cancelled. Explicit ids
// are looked up one by one as the consumer drains the channel.
func (r *Resolver) Resolve(ctx context.Context, req Request) (<-chan Target, error) {
	if len(req.Targets) > 0 {
		out := make(chan Target)
		go func() {
			defer close(out)
			for _, m := range req.Targets {
				t := r.resolveOne(ctx, m)
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	}

	if !req.Mode.Valid() {
		return nil, fmt.Errorf("dispatch: unknown mode %q", req.Mode)
	}
	recipients, err := r.store.Recipients(ctx, req.Mode)
	if err != nil {
		return nil, fmt.Errorf("resolve %s recipients: %w", req.Mode, err)
	}
	r.log.Debug().Str("mode", string(req.Mode)).Int("count", len(recipients)).Msg("group resolved")

	out := make(chan Target)
	go func() {
		defer close(out)
		for _, rec := range recipients {
			select {
			case out <- Target{RecipientID: rec.ID, Recipient: rec, Text: req.Text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, m Message) Target {
	rec, err := r.store.RecipientByID(ctx, m.RecipientID)
	if err != nil {
		kind := KindNotFound
		if !errors.Is(err, ErrNotFound) {
			// A store failure is not a missing recipient; keep it retryable.
			kind = KindTransient
			err = fmt.Errorf("resolve recipient %d: %w", m.RecipientID, err)
		}
		return Target{RecipientID: m.RecipientID, Text: m.Text, Err: err, Kind: kind}
	}
	return Target{RecipientID: rec.ID, Recipient: rec, Text: m.Text}
}
