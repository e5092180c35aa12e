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

const userColumns = `id, username, first_name, last_name, verified, verified_at, created_at, updated_at`

// UpsertUser stores profile fields. The verification flag is only written on insert.
func (c *Client) UpsertUser(ctx context.Context, user *db.User) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	query := c.q(`
		INSERT INTO users (id, username, first_name, last_name, verified, verified_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			updated_at = excluded.updated_at
	`)
	_, err := c.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.FirstName,
		user.LastName,
		user.Verified,
		user.VerifiedAt,
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (c *Client) GetUser(ctx context.Context, id int64) (*db.User, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	user := &db.User{}
	query := c.q(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	if err := sqlx.GetContext(ctx, c.db, user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// SetUserVerified creates a bare user row when the user was never seen.
func (c *Client) SetUserVerified(ctx context.Context, id int64, verified bool, at time.Time) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	at = at.UTC()
	verifiedAt := sql.NullTime{}
	if verified {
		verifiedAt = sql.NullTime{Time: at, Valid: true}
	}
	query := c.q(`
		INSERT INTO users (id, verified, verified_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			verified = excluded.verified,
			verified_at = excluded.verified_at,
			updated_at = excluded.updated_at
	`)
	if _, err := c.db.ExecContext(ctx, query, id, verified, verifiedAt, at, at); err != nil {
		return fmt.Errorf("failed to set user verification: %w", err)
	}
	return nil
}

func (c *Client) AddGroupMember(ctx context.Context, groupID, userID int64, seenAt time.Time) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := c.q(`
		INSERT INTO group_members (group_id, user_id, seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT (group_id, user_id) DO UPDATE SET seen_at = excluded.seen_at
	`)
	if _, err := c.db.ExecContext(ctx, query, groupID, userID, seenAt.UTC()); err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

func (c *Client) RemoveGroupMember(ctx context.Context, groupID, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := c.q(`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`)
	if _, err := c.db.ExecContext(ctx, query, groupID, userID); err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return nil
}

func (c *Client) ListGroupMembers(ctx context.Context, groupID int64) ([]*db.User, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	query := c.q(`
		SELECT u.id, u.username, u.first_name, u.last_name, u.verified, u.verified_at, u.created_at, u.updated_at
		FROM group_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.group_id = ?
		ORDER BY u.id
	`)
	var users []*db.User
	if err := sqlx.SelectContext(ctx, c.db, &users, query, groupID); err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	return users, nil
}
