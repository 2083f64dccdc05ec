package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"charitybot/internal/catalog"
)

// Categories returns the reconciliation repository for the category table.
func (s *Store) Categories() catalog.Repository[catalog.Category] {
	return categoryRepo{db: s.db}
}

// Tasks returns the reconciliation repository for the task table.
func (s *Store) Tasks() catalog.Repository[catalog.Task] {
	return taskRepo{db: s.db}
}

type categoryRepo struct{ db *sql.DB }

func (r categoryRepo) Begin(ctx context.Context) (catalog.Tx[catalog.Category], error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &categoryTx{tx: tx}, nil
}

type categoryTx struct{ tx *sql.Tx }

func (t *categoryTx) ArchiveActive(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE categories SET is_archived = 1, updated_at = ? WHERE is_archived = 0`,
		nowStamp(),
	)
	return err
}

func (t *categoryTx) Upsert(ctx context.Context, c catalog.Category) error {
	now := nowStamp()
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO categories(id, name, parent_id, is_archived, created_at, updated_at)
		 VALUES(?,?,?,0,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   parent_id = excluded.parent_id,
		   is_archived = 0,
		   updated_at = excluded.updated_at`,
		c.ID, c.Name, nullInt64(c.ParentID), now, now,
	)
	return err
}

func (t *categoryTx) Commit() error   { return t.tx.Commit() }
func (t *categoryTx) Rollback() error { return ignoreTxDone(t.tx.Rollback()) }

type taskRepo struct{ db *sql.DB }

func (r taskRepo) Begin(ctx context.Context) (catalog.Tx[catalog.Task], error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &taskTx{tx: tx}, nil
}

type taskTx struct{ tx *sql.Tx }

func (t *taskTx) ArchiveActive(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE tasks SET is_archived = 1, updated_at = ? WHERE is_archived = 0`,
		nowStamp(),
	)
	return err
}

func (t *taskTx) Upsert(ctx context.Context, item catalog.Task) error {
	now := nowStamp()
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO tasks(id, title, name_organization, category_id, deadline, bonus,
		                   location, link, description, is_archived, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,0,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   name_organization = excluded.name_organization,
		   category_id = excluded.category_id,
		   deadline = excluded.deadline,
		   bonus = excluded.bonus,
		   location = excluded.location,
		   link = excluded.link,
		   description = excluded.description,
		   is_archived = 0,
		   updated_at = excluded.updated_at`,
		item.ID, item.Title, nullStr(item.NameOrganization), nullInt64(item.CategoryID),
		nullTime(item.Deadline), item.Bonus, nullStr(item.Location), nullStr(item.Link),
		nullStr(item.Description), now, now,
	)
	return err
}

func (t *taskTx) Commit() error   { return t.tx.Commit() }
func (t *taskTx) Rollback() error { return ignoreTxDone(t.tx.Rollback()) }

// ignoreTxDone lets the reconciler's deferred rollback run after a commit.
func ignoreTxDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// ActiveCategories returns the non-archived category set, id-ascending.
func (s *Store) ActiveCategories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, parent_id, is_archived FROM categories WHERE is_archived = 0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Category
	for rows.Next() {
		var c catalog.Category
		var parent sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Name, &parent, &c.Archived); err != nil {
			return nil, err
		}
		if parent.Valid {
			v := parent.Int64
			c.ParentID = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CategoryByID fetches one category row, archived or not.
func (s *Store) CategoryByID(ctx context.Context, id int64) (catalog.Category, error) {
	var c catalog.Category
	var parent sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, parent_id, is_archived FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &parent, &c.Archived)
	if err != nil {
		return catalog.Category{}, err
	}
	if parent.Valid {
		v := parent.Int64
		c.ParentID = &v
	}
	return c, nil
}

// ActiveTasksSince returns non-archived tasks first seen or revived after the
// cutoff; the digest job uses it to mail fresh tasks.
func (s *Store) ActiveTasksSince(ctx context.Context, cutoff time.Time) ([]catalog.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, name_organization, category_id, deadline, bonus,
		        location, link, description, is_archived
		 FROM tasks
		 WHERE is_archived = 0 AND updated_at >= ?
		 ORDER BY id`,
		cutoff.UTC().Format(stampLayout),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ActiveTasks returns the whole active task set, id-ascending.
func (s *Store) ActiveTasks(ctx context.Context) ([]catalog.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, name_organization, category_id, deadline, bonus,
		        location, link, description, is_archived
		 FROM tasks WHERE is_archived = 0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]catalog.Task, error) {
	var out []catalog.Task
	for rows.Next() {
		var (
			t        catalog.Task
			org      sql.NullString
			category sql.NullInt64
			deadline sql.NullString
			location sql.NullString
			link     sql.NullString
			descr    sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Title, &org, &category, &deadline, &t.Bonus,
			&location, &link, &descr, &t.Archived); err != nil {
			return nil, err
		}
		t.NameOrganization = org.String
		t.Location = location.String
		t.Link = link.String
		t.Description = descr.String
		if category.Valid {
			v := category.Int64
			t.CategoryID = &v
		}
		if deadline.Valid {
			d, err := time.Parse(time.RFC3339, deadline.String)
			if err != nil {
				return nil, fmt.Errorf("task %d: stored deadline %q: %w", t.ID, deadline.String, err)
			}
			t.Deadline = &d
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
