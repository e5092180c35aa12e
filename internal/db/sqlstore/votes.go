package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iamwavecut/shiftbot/internal/db"
)

const voteColumns = `id, poll_id, user_id, slot_id, day_off, voted_at, updated_at`

// ApplyVote moves a user's vote to a new state in a single transaction. Slot
// occupancy is changed with a conditional increment, so a full slot yields
// db.ErrSlotFull and leaves the previous vote untouched. A retraction returns
// (nil, nil).
func (c *Client) ApplyVote(ctx context.Context, change db.VoteChange) (*db.UserVote, error) {
	if !change.Retract && !change.DayOff && change.SlotID == 0 {
		return nil, errors.New("vote change has no target")
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	var result *db.UserVote
	err := c.inTx(ctx, func(tx *sqlx.Tx) error {
		var status db.PollStatus
		err := tx.QueryRowxContext(ctx, c.q(`SELECT status FROM daily_polls WHERE id = ?`), change.PollID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("poll %d does not exist", change.PollID)
			}
			return fmt.Errorf("failed to get poll status: %w", err)
		}
		if status != db.PollStatusActive {
			return db.ErrPollClosed
		}

		existing, err := c.getVote(ctx, tx, change.PollID, change.UserID)
		if err != nil {
			return err
		}

		if change.Retract {
			if existing == nil {
				return nil
			}
			if err := c.releaseSlot(ctx, tx, existing.SlotID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, c.q(`DELETE FROM user_votes WHERE id = ?`), existing.ID); err != nil {
				return fmt.Errorf("failed to delete vote: %w", err)
			}
			return nil
		}

		var slotID sql.NullInt64
		if !change.DayOff {
			slotID = sql.NullInt64{Int64: change.SlotID, Valid: true}
		}

		sameSlot := existing != nil && existing.SlotID == slotID
		if !sameSlot {
			if slotID.Valid {
				res, err := tx.ExecContext(ctx, c.q(`
					UPDATE poll_slots SET occupied = occupied + 1
					WHERE id = ? AND poll_id = ? AND occupied < capacity
				`), slotID.Int64, change.PollID)
				if err != nil {
					return fmt.Errorf("failed to occupy slot: %w", err)
				}
				n, err := res.RowsAffected()
				if err != nil {
					return fmt.Errorf("failed to read occupied slot rows: %w", err)
				}
				if n == 0 {
					return db.ErrSlotFull
				}
			}
			if existing != nil {
				if err := c.releaseSlot(ctx, tx, existing.SlotID); err != nil {
					return err
				}
			}
		}

		at := change.At.UTC()
		_, err = tx.ExecContext(ctx, c.q(`
			INSERT INTO user_votes (poll_id, user_id, slot_id, day_off, voted_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (poll_id, user_id) DO UPDATE SET
				slot_id = excluded.slot_id,
				day_off = excluded.day_off,
				updated_at = excluded.updated_at
		`), change.PollID, change.UserID, slotID, change.DayOff, at, at)
		if err != nil {
			return fmt.Errorf("failed to upsert vote: %w", err)
		}

		result, err = c.getVote(ctx, tx, change.PollID, change.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) GetVote(ctx context.Context, pollID, userID int64) (*db.UserVote, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.getVote(ctx, c.db, pollID, userID)
}

func (c *Client) ListVotes(ctx context.Context, pollID int64) ([]*db.VoteRecord, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	query := c.q(`
		SELECT v.user_id,
			COALESCE(u.username, '') AS username,
			COALESCE(u.first_name, '') AS first_name,
			COALESCE(u.last_name, '') AS last_name,
			v.slot_id, v.day_off, v.voted_at
		FROM user_votes v
		LEFT JOIN users u ON u.id = v.user_id
		WHERE v.poll_id = ?
		ORDER BY v.voted_at, v.id
	`)
	var votes []*db.VoteRecord
	if err := sqlx.SelectContext(ctx, c.db, &votes, query, pollID); err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	return votes, nil
}

func (c *Client) getVote(ctx context.Context, q queryer, pollID, userID int64) (*db.UserVote, error) {
	vote := &db.UserVote{}
	query := c.q(`SELECT ` + voteColumns + ` FROM user_votes WHERE poll_id = ? AND user_id = ?`)
	if err := sqlx.GetContext(ctx, q, vote, query, pollID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}
	return vote, nil
}

func (c *Client) releaseSlot(ctx context.Context, tx *sqlx.Tx, slotID sql.NullInt64) error {
	if !slotID.Valid {
		return nil
	}
	_, err := tx.ExecContext(ctx, c.q(`UPDATE poll_slots SET occupied = occupied - 1 WHERE id = ? AND occupied > 0`), slotID.Int64)
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	return nil
}
