package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Tx is one open reconciliation transaction. Either Commit or Rollback must be
// called exactly once; Rollback after Commit is a no-op.
type Tx[T Item] interface {
	// ArchiveActive flags every non-archived item of the entity type.
	ArchiveActive(ctx context.Context) error
	// Upsert inserts the item or updates an existing row (archived or not),
	// clearing its archived flag either way.
	Upsert(ctx context.Context, item T) error
	Commit() error
	Rollback() error
}

// Repository is the durable store for one catalog entity type.
type Repository[T Item] interface {
	Begin(ctx context.Context) (Tx[T], error)
}

// Reconciler applies full snapshots of one entity type with archive-then-upsert
// semantics. One instance owns its entity type: snapshots of the same type are
// never interleaved, while different entity types (separate instances)
// reconcile independently.
type Reconciler[T Item] struct {
	entity EntityType
	repo   Repository[T]
	log    zerolog.Logger

	// mu serializes snapshots of this entity type. TryLock instead of Lock:
	// a losing concurrent snapshot fails fast with ErrConflict rather than
	// queueing behind a writer it would immediately overwrite.
	mu sync.Mutex
}

func NewReconciler[T Item](entity EntityType, repo Repository[T], log zerolog.Logger) *Reconciler[T] {
	return &Reconciler[T]{
		entity: entity,
		repo:   repo,
		log:    log.With().Str("component", "reconciler").Str("entity", string(entity)).Logger(),
	}
}

// Reconcile replaces the active set of the entity type with the snapshot,
// inside a single transaction: archive everything, then upsert each snapshot
// item with archived=false. An empty snapshot archives the whole entity type.
// Items never present in any snapshot are inserted; items missing from this
// one stay archived; re-included ids are revived. The operation is
// all-or-nothing and idempotent.
func (r *Reconciler[T]) Reconcile(ctx context.Context, snapshot []T) error {
	if err := validateSnapshot(r.entity, snapshot); err != nil {
		return err
	}

	if !r.mu.TryLock() {
		return ErrConflict
	}
	defer r.mu.Unlock()

	start := time.Now()
	tx, err := r.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s reconcile: %w", r.entity, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.ArchiveActive(ctx); err != nil {
		return fmt.Errorf("archive %s: %w", r.entity, err)
	}
	for _, item := range snapshot {
		if err := tx.Upsert(ctx, item); err != nil {
			return fmt.Errorf("upsert %s %d: %w", r.entity, item.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s reconcile: %w", r.entity, err)
	}

	r.log.Info().
		Int("items", len(snapshot)).
		Dur("took", time.Since(start)).
		Msg("snapshot reconciled")
	return nil
}

// validateSnapshot fails fast, before any store mutation.
func validateSnapshot[T Item](entity EntityType, snapshot []T) error {
	seen := make(map[int64]struct{}, len(snapshot))
	for _, item := range snapshot {
		if err := item.Validate(); err != nil {
			return err
		}
		id := item.Key()
		if _, dup := seen[id]; dup {
			return &ValidationError{Entity: entity, ID: id, Reason: "duplicate id in snapshot"}
		}
		seen[id] = struct{}{}
	}
	return nil
}
