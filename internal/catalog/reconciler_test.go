package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charitybot/internal/logging"
)

// memRepo is an in-memory Repository with snapshot-isolation-light semantics:
// a tx mutates a copy and Commit swaps it in.
type memRepo struct {
	mu    sync.Mutex
	rows  map[int64]Category
	begin chan struct{} // when non-nil, Begin blocks until the channel is closed

	enterOnce sync.Once
	entered   chan struct{} // when non-nil, closed as soon as Begin is reached
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[int64]Category{}}
}

func (r *memRepo) Begin(ctx context.Context) (Tx[Category], error) {
	if r.entered != nil {
		r.enterOnce.Do(func() { close(r.entered) })
	}
	if r.begin != nil {
		select {
		case <-r.begin:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	cp := make(map[int64]Category, len(r.rows))
	for k, v := range r.rows {
		cp[k] = v
	}
	r.mu.Unlock()
	return &memTx{repo: r, rows: cp}, nil
}

type memTx struct {
	repo *memRepo
	rows map[int64]Category
	done bool
}

func (t *memTx) ArchiveActive(ctx context.Context) error {
	for id, c := range t.rows {
		c.Archived = true
		t.rows[id] = c
	}
	return nil
}

func (t *memTx) Upsert(ctx context.Context, c Category) error {
	c.Archived = false
	t.rows[c.ID] = c
	return nil
}

func (t *memTx) Commit() error {
	t.repo.mu.Lock()
	t.repo.rows = t.rows
	t.repo.mu.Unlock()
	t.done = true
	return nil
}

func (t *memTx) Rollback() error { return nil }

func (r *memRepo) active() map[int64]Category {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[int64]Category{}
	for id, c := range r.rows {
		if !c.Archived {
			out[id] = c
		}
	}
	return out
}

func TestReconcileArchiveThenUpsert(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	rec := NewReconciler(EntityCategory, repo, logging.Nop())
	ctx := context.Background()

	require.NoError(t, rec.Reconcile(ctx, []Category{
		{ID: 1, Name: "A"},
		{ID: 2, Name: "B"},
	}))
	require.NoError(t, rec.Reconcile(ctx, []Category{
		{ID: 1, Name: "A2"},
	}))

	active := repo.active()
	require.Len(t, active, 1)
	assert.Equal(t, "A2", active[1].Name)

	repo.mu.Lock()
	archived := repo.rows[2]
	repo.mu.Unlock()
	assert.True(t, archived.Archived, "category 2 should be archived, not deleted")
}

func TestReconcileIdempotent(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	rec := NewReconciler(EntityCategory, repo, logging.Nop())
	ctx := context.Background()
	snapshot := []Category{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}, {ID: 3, Name: "C"}}

	require.NoError(t, rec.Reconcile(ctx, snapshot))
	first := repo.active()
	require.NoError(t, rec.Reconcile(ctx, snapshot))
	assert.Equal(t, first, repo.active())
}

func TestReconcileEmptySnapshotArchivesAll(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	rec := NewReconciler(EntityCategory, repo, logging.Nop())
	ctx := context.Background()

	require.NoError(t, rec.Reconcile(ctx, []Category{{ID: 1, Name: "A"}}))
	require.NoError(t, rec.Reconcile(ctx, nil))
	assert.Empty(t, repo.active())
}

func TestReconcileRevivesArchived(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	rec := NewReconciler(EntityCategory, repo, logging.Nop())
	ctx := context.Background()

	require.NoError(t, rec.Reconcile(ctx, []Category{{ID: 7, Name: "old"}}))
	require.NoError(t, rec.Reconcile(ctx, nil))
	require.NoError(t, rec.Reconcile(ctx, []Category{{ID: 7, Name: "revived"}}))

	active := repo.active()
	require.Len(t, active, 1)
	assert.Equal(t, "revived", active[7].Name)
}

func TestReconcileValidationFailsFast(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	rec := NewReconciler(EntityCategory, repo, logging.Nop())
	ctx := context.Background()
	require.NoError(t, rec.Reconcile(ctx, []Category{{ID: 1, Name: "keep"}}))

	tests := []struct {
		name     string
		snapshot []Category
	}{
		{name: "duplicate id", snapshot: []Category{{ID: 2, Name: "x"}, {ID: 2, Name: "y"}}},
		{name: "missing name", snapshot: []Category{{ID: 2, Name: "  "}}},
		{name: "zero id", snapshot: []Category{{ID: 0, Name: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rec.Reconcile(ctx, tt.snapshot)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)

			// no partial effect: prior state untouched
			active := repo.active()
			require.Len(t, active, 1)
			assert.Equal(t, "keep", active[1].Name)
		})
	}
}

func TestReconcileConcurrentSameTypeConflicts(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	repo.begin = make(chan struct{})
	repo.entered = make(chan struct{})
	rec := NewReconciler(EntityCategory, repo, logging.Nop())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- rec.Reconcile(ctx, []Category{{ID: 1, Name: "first"}})
	}()

	// Wait until the first writer holds the entity-type lock (it is parked
	// inside Begin), then the losing writer must fail fast.
	<-repo.entered
	require.ErrorIs(t, rec.Reconcile(ctx, []Category{{ID: 1, Name: "second"}}), ErrConflict)

	close(repo.begin)
	require.NoError(t, <-done)

	active := repo.active()
	require.Len(t, active, 1)
	assert.Equal(t, "first", active[1].Name)
}

func TestReconcilersForDifferentTypesAreIndependent(t *testing.T) {
	t.Parallel()
	catRepo := newMemRepo()
	catRepo.begin = make(chan struct{})
	cats := NewReconciler(EntityCategory, catRepo, logging.Nop())

	blocked := make(chan error, 1)
	go func() {
		blocked <- cats.Reconcile(context.Background(), []Category{{ID: 1, Name: "slow"}})
	}()

	// A task reconcile proceeds while the category one is mid-transaction.
	taskRepo := newTaskMemRepo()
	tasksRec := NewReconciler(EntityTask, taskRepo, logging.Nop())
	require.NoError(t, tasksRec.Reconcile(context.Background(), []Task{{ID: 5, Title: "t"}}))

	close(catRepo.begin)
	require.NoError(t, <-blocked)
}

func TestReconcileConflictErrorMessage(t *testing.T) {
	t.Parallel()
	assert.False(t, errors.Is(ErrConflict, context.Canceled))
	assert.Contains(t, ErrConflict.Error(), "concurrent")
}

// taskMemRepo mirrors memRepo for the Task entity type.
type taskMemRepo struct {
	mu   sync.Mutex
	rows map[int64]Task
}

func newTaskMemRepo() *taskMemRepo { return &taskMemRepo{rows: map[int64]Task{}} }

func (r *taskMemRepo) Begin(ctx context.Context) (Tx[Task], error) {
	r.mu.Lock()
	cp := make(map[int64]Task, len(r.rows))
	for k, v := range r.rows {
		cp[k] = v
	}
	r.mu.Unlock()
	return &taskMemTx{repo: r, rows: cp}, nil
}

type taskMemTx struct {
	repo *taskMemRepo
	rows map[int64]Task
}

func (t *taskMemTx) ArchiveActive(ctx context.Context) error {
	for id, task := range t.rows {
		task.Archived = true
		t.rows[id] = task
	}
	return nil
}

func (t *taskMemTx) Upsert(ctx context.Context, task Task) error {
	task.Archived = false
	t.rows[task.ID] = task
	return nil
}

func (t *taskMemTx) Commit() error {
	t.repo.mu.Lock()
	t.repo.rows = t.rows
	t.repo.mu.Unlock()
	return nil
}

func (t *taskMemTx) Rollback() error { return nil }
