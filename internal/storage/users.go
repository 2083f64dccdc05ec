package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"charitybot/internal/dispatch"
)

// Recipients returns the recipient group for a broadcast mode. Each call
// re-queries current state.
func (s *Store) Recipients(ctx context.Context, mode dispatch.Mode) ([]dispatch.Recipient, error) {
	q := `SELECT id, telegram_id, has_mailing, banned FROM users`
	switch mode {
	case dispatch.ModeAll:
	case dispatch.ModeSubscribed:
		q += ` WHERE has_mailing = 1`
	case dispatch.ModeUnsubscribed:
		q += ` WHERE has_mailing = 0`
	default:
		return nil, fmt.Errorf("unknown recipient mode %q", mode)
	}

	rows, err := s.db.QueryContext(ctx, q+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dispatch.Recipient
	for rows.Next() {
		var r dispatch.Recipient
		if err := rows.Scan(&r.ID, &r.ChatID, &r.Subscribed, &r.Banned); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecipientByID fetches one recipient by store id; dispatch.ErrNotFound when absent.
func (s *Store) RecipientByID(ctx context.Context, id int64) (dispatch.Recipient, error) {
	var r dispatch.Recipient
	err := s.db.QueryRowContext(ctx,
		`SELECT id, telegram_id, has_mailing, banned FROM users WHERE id = ?`, id).
		Scan(&r.ID, &r.ChatID, &r.Subscribed, &r.Banned)
	if errors.Is(err, sql.ErrNoRows) {
		return dispatch.Recipient{}, dispatch.ErrNotFound
	}
	if err != nil {
		return dispatch.Recipient{}, err
	}
	return r, nil
}

// MarkBanned flags a recipient the channel confirmed unreachable. The flag is
// only ever set here; restarting the bot via /start is what clears it.
func (s *Store) MarkBanned(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET banned = 1, updated_at = ? WHERE id = ?`, nowStamp(), id)
	return err
}

// RegisterRecipient upserts a user by telegram chat id. A returning user gets
// profile fields refreshed and the banned flag reset (a /start proves the bot
// is reachable again).
func (s *Store) RegisterRecipient(ctx context.Context, telegramID int64, username, firstName, lastName string) error {
	now := nowStamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(telegram_id, username, first_name, last_name, has_mailing, banned, created_at, updated_at)
		 VALUES(?,?,?,?,0,0,?,?)
		 ON CONFLICT(telegram_id) DO UPDATE SET
		   username = excluded.username,
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   banned = 0,
		   updated_at = excluded.updated_at`,
		telegramID, nullStr(username), nullStr(firstName), nullStr(lastName), now, now,
	)
	return err
}

// SetMailingByChat flips the mailing subscription for a user by telegram chat id.
func (s *Store) SetMailingByChat(ctx context.Context, telegramID int64, subscribed bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET has_mailing = ?, updated_at = ? WHERE telegram_id = ?`,
		subscribed, nowStamp(), telegramID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return dispatch.ErrNotFound
	}
	return nil
}
