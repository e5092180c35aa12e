package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iamwavecut/shiftbot/internal/db"
)

const pollColumns = `id, group_id, poll_date, telegram_poll_id, message_id, status, closes_at, closed_at, report_message_id, created_at`

// ReservePoll stores a new active poll with its slots, or returns the active
// poll already present for the same group and date. The boolean reports
// whether a new row was created.
func (c *Client) ReservePoll(ctx context.Context, poll *db.DailyPoll) (*db.DailyPoll, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var (
		result  *db.DailyPoll
		created bool
	)
	err := c.inTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := c.getPoll(ctx, tx, `group_id = ? AND poll_date = ? AND status = ?`, poll.GroupID, poll.PollDate, db.PollStatusActive)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			return nil
		}

		query := c.q(`
			INSERT INTO daily_polls (group_id, poll_date, telegram_poll_id, message_id, status, closes_at, report_message_id, created_at)
			VALUES (?, ?, '', 0, ?, ?, 0, ?)
			RETURNING id
		`)
		var id int64
		if err := tx.QueryRowxContext(ctx, query,
			poll.GroupID, poll.PollDate, db.PollStatusActive, poll.ClosesAt.UTC(), poll.CreatedAt.UTC(),
		).Scan(&id); err != nil {
			return fmt.Errorf("failed to insert poll: %w", err)
		}

		slotQuery := c.q(`
			INSERT INTO poll_slots (poll_id, position, start_time, end_time, capacity, occupied)
			VALUES (?, ?, ?, ?, ?, 0)
		`)
		for i, slot := range poll.Slots {
			if _, err := tx.ExecContext(ctx, slotQuery, id, i, slot.StartTime, slot.EndTime, slot.Capacity); err != nil {
				return fmt.Errorf("failed to insert poll slot: %w", err)
			}
		}

		result, err = c.getPoll(ctx, tx, `id = ?`, id)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (c *Client) AttachTelegramPoll(ctx context.Context, pollID int64, telegramPollID string, messageID int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := c.q(`UPDATE daily_polls SET telegram_poll_id = ?, message_id = ? WHERE id = ?`)
	if _, err := c.db.ExecContext(ctx, query, telegramPollID, messageID, pollID); err != nil {
		return fmt.Errorf("failed to attach telegram poll: %w", err)
	}
	return nil
}

func (c *Client) DeletePoll(ctx context.Context, id int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, query := range []string{
			`DELETE FROM user_votes WHERE poll_id = ?`,
			`DELETE FROM poll_slots WHERE poll_id = ?`,
			`DELETE FROM daily_polls WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, c.q(query), id); err != nil {
				return fmt.Errorf("failed to delete poll: %w", err)
			}
		}
		return nil
	})
}

func (c *Client) GetPoll(ctx context.Context, id int64) (*db.DailyPoll, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.getPoll(ctx, c.db, `id = ?`, id)
}

func (c *Client) GetPollByTelegramID(ctx context.Context, telegramPollID string) (*db.DailyPoll, error) {
	if telegramPollID == "" {
		return nil, nil
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.getPoll(ctx, c.db, `telegram_poll_id = ? ORDER BY id DESC LIMIT 1`, telegramPollID)
}

func (c *Client) GetActivePollForGroup(ctx context.Context, groupID int64) (*db.DailyPoll, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.getPoll(ctx, c.db, `group_id = ? AND status = ? ORDER BY poll_date DESC, id DESC LIMIT 1`, groupID, db.PollStatusActive)
}

func (c *Client) ListActivePolls(ctx context.Context) ([]*db.DailyPoll, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var polls []*db.DailyPoll
	query := c.q(`SELECT ` + pollColumns + ` FROM daily_polls WHERE status = ? ORDER BY id`)
	if err := sqlx.SelectContext(ctx, c.db, &polls, query, db.PollStatusActive); err != nil {
		return nil, fmt.Errorf("failed to list active polls: %w", err)
	}
	for _, poll := range polls {
		slots, err := c.pollSlots(ctx, c.db, poll.ID)
		if err != nil {
			return nil, err
		}
		poll.Slots = slots
	}
	return polls, nil
}

// ListUnreportedPolls returns closed polls whose results message was never
// posted.
func (c *Client) ListUnreportedPolls(ctx context.Context) ([]*db.DailyPoll, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var polls []*db.DailyPoll
	query := c.q(`SELECT ` + pollColumns + ` FROM daily_polls WHERE status = ? AND report_message_id = 0 ORDER BY id`)
	if err := sqlx.SelectContext(ctx, c.db, &polls, query, db.PollStatusClosed); err != nil {
		return nil, fmt.Errorf("failed to list unreported polls: %w", err)
	}
	for _, poll := range polls {
		slots, err := c.pollSlots(ctx, c.db, poll.ID)
		if err != nil {
			return nil, err
		}
		poll.Slots = slots
	}
	return polls, nil
}

// ClosePoll marks an active poll closed. It reports false when the poll was
// not active anymore.
func (c *Client) ClosePoll(ctx context.Context, id int64, at time.Time) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := c.q(`UPDATE daily_polls SET status = ?, closed_at = ? WHERE id = ? AND status = ?`)
	res, err := c.db.ExecContext(ctx, query, db.PollStatusClosed, at.UTC(), id, db.PollStatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to close poll: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read closed poll rows: %w", err)
	}
	return n > 0, nil
}

func (c *Client) SetPollReportMessage(ctx context.Context, id int64, messageID int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := c.q(`UPDATE daily_polls SET report_message_id = ? WHERE id = ?`)
	if _, err := c.db.ExecContext(ctx, query, messageID, id); err != nil {
		return fmt.Errorf("failed to set poll report message: %w", err)
	}
	return nil
}

func (c *Client) getPoll(ctx context.Context, q queryer, where string, args ...any) (*db.DailyPoll, error) {
	poll := &db.DailyPoll{}
	query := c.q(`SELECT ` + pollColumns + ` FROM daily_polls WHERE ` + where)
	if err := sqlx.GetContext(ctx, q, poll, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get poll: %w", err)
	}

	slots, err := c.pollSlots(ctx, q, poll.ID)
	if err != nil {
		return nil, err
	}
	poll.Slots = slots
	return poll, nil
}

func (c *Client) pollSlots(ctx context.Context, q queryer, pollID int64) ([]db.PollSlot, error) {
	var slots []db.PollSlot
	query := c.q(`
		SELECT id, poll_id, position, start_time, end_time, capacity, occupied
		FROM poll_slots
		WHERE poll_id = ?
		ORDER BY position
	`)
	if err := sqlx.SelectContext(ctx, q, &slots, query, pollID); err != nil {
		return nil, fmt.Errorf("failed to get poll slots: %w", err)
	}
	return slots, nil
}
