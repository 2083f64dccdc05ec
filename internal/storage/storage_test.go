package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charitybot/internal/catalog"
	"charitybot/internal/dispatch"
	"charitybot/internal/logging"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: time.Second,
	}, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{}, logging.Nop())
	require.Error(t, err)
}

func TestCategoryReconcileRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	rec := catalog.NewReconciler(catalog.EntityCategory, st.Categories(), logging.Nop())

	require.NoError(t, rec.Reconcile(ctx, []catalog.Category{
		{ID: 1, Name: "A"},
		{ID: 2, Name: "B"},
	}))
	require.NoError(t, rec.Reconcile(ctx, []catalog.Category{
		{ID: 1, Name: "A2"},
	}))

	active, err := st.ActiveCategories(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(1), active[0].ID)
	assert.Equal(t, "A2", active[0].Name)

	// archived, not deleted
	archived, err := st.CategoryByID(ctx, 2)
	require.NoError(t, err)
	assert.True(t, archived.Archived)
	assert.Equal(t, "B", archived.Name)
}

func TestCategoryParentRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	rec := catalog.NewReconciler(catalog.EntityCategory, st.Categories(), logging.Nop())

	parent := int64(1)
	require.NoError(t, rec.Reconcile(ctx, []catalog.Category{
		{ID: 1, Name: "root"},
		{ID: 2, Name: "child", ParentID: &parent},
	}))

	active, err := st.ActiveCategories(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.NotNil(t, active[1].ParentID)
	assert.Equal(t, int64(1), *active[1].ParentID)
	assert.Nil(t, active[0].ParentID)
}

func TestTaskReconcileRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	rec := catalog.NewReconciler(catalog.EntityTask, st.Tasks(), logging.Nop())

	deadline := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	category := int64(3)
	require.NoError(t, rec.Reconcile(ctx, []catalog.Task{{
		ID:               10,
		Title:            "Help center website",
		NameOrganization: "Good Fund",
		CategoryID:       &category,
		Deadline:         &deadline,
		Bonus:            5,
		Location:         "Remote",
		Link:             "https://example.com/10",
		Description:      "Build a landing page",
	}}))

	tasks, err := st.ActiveTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	got := tasks[0]
	assert.Equal(t, "Help center website", got.Title)
	assert.Equal(t, "Good Fund", got.NameOrganization)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, int64(3), *got.CategoryID)
	require.NotNil(t, got.Deadline)
	assert.True(t, got.Deadline.Equal(deadline))
	assert.Equal(t, 5, got.Bonus)

	// empty snapshot archives everything
	require.NoError(t, rec.Reconcile(ctx, nil))
	tasks, err = st.ActiveTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestTaskReviveKeepsSingleRow(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	rec := catalog.NewReconciler(catalog.EntityTask, st.Tasks(), logging.Nop())

	require.NoError(t, rec.Reconcile(ctx, []catalog.Task{{ID: 1, Title: "v1"}}))
	require.NoError(t, rec.Reconcile(ctx, nil))
	require.NoError(t, rec.Reconcile(ctx, []catalog.Task{{ID: 1, Title: "v2"}}))

	tasks, err := st.ActiveTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "v2", tasks[0].Title)
}

func TestCorruptDeadlineSurfacesError(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.db.ExecContext(ctx,
		`INSERT INTO tasks(id, title, deadline, bonus, is_archived, created_at, updated_at)
		 VALUES(1, 'broken', 'not-a-date', 0, 0, ?, ?)`,
		nowStamp(), nowStamp())
	require.NoError(t, err)

	_, err = st.ActiveTasks(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadline")
}

func TestActiveTasksSince(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	rec := catalog.NewReconciler(catalog.EntityTask, st.Tasks(), logging.Nop())

	require.NoError(t, rec.Reconcile(ctx, []catalog.Task{{ID: 1, Title: "old"}}))

	fresh, err := st.ActiveTasksSince(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, fresh, 1)

	fresh, err = st.ActiveTasksSince(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestRegisterAndResolveRecipients(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.RegisterRecipient(ctx, 111, "alice", "Alice", ""))
	require.NoError(t, st.RegisterRecipient(ctx, 222, "bob", "Bob", ""))
	require.NoError(t, st.RegisterRecipient(ctx, 333, "carol", "Carol", ""))
	require.NoError(t, st.SetMailingByChat(ctx, 111, true))
	require.NoError(t, st.SetMailingByChat(ctx, 222, true))

	subscribed, err := st.Recipients(ctx, dispatch.ModeSubscribed)
	require.NoError(t, err)
	assert.Len(t, subscribed, 2)

	unsubscribed, err := st.Recipients(ctx, dispatch.ModeUnsubscribed)
	require.NoError(t, err)
	require.Len(t, unsubscribed, 1)
	assert.Equal(t, int64(333), unsubscribed[0].ChatID)

	all, err := st.Recipients(ctx, dispatch.ModeAll)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = st.Recipients(ctx, "nope")
	require.Error(t, err)
}

func TestRecipientByIDNotFound(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	_, err := st.RecipientByID(context.Background(), 42)
	require.ErrorIs(t, err, dispatch.ErrNotFound)
}

func TestMarkBannedAndRestartClears(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.RegisterRecipient(ctx, 111, "alice", "Alice", ""))
	all, err := st.Recipients(ctx, dispatch.ModeAll)
	require.NoError(t, err)
	require.Len(t, all, 1)
	id := all[0].ID

	require.NoError(t, st.MarkBanned(ctx, id))
	got, err := st.RecipientByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Banned)

	// /start revives the user and keeps the same row
	require.NoError(t, st.RegisterRecipient(ctx, 111, "alice", "Alice", "Smith"))
	got, err = st.RecipientByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Banned)
}

func TestSetMailingUnknownChat(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	err := st.SetMailingByChat(context.Background(), 999, true)
	require.ErrorIs(t, err, dispatch.ErrNotFound)
}
