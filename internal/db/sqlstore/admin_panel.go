package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iamwavecut/shiftbot/internal/db"
)

const sessionColumns = `id, user_id, page, state_json, message_id, created_at, updated_at`

func (c *Client) CreateAdminPanelSession(ctx context.Context, session *db.AdminPanelSession) (*db.AdminPanelSession, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := c.q(`
		INSERT INTO admin_panel_sessions (user_id, page, state_json, message_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			page = excluded.page,
			state_json = excluded.state_json,
			message_id = excluded.message_id,
			updated_at = excluded.updated_at
		RETURNING id
	`)
	err := c.db.QueryRowxContext(ctx, query,
		session.UserID,
		session.Page,
		session.StateJSON,
		session.MessageID,
		session.CreatedAt.UTC(),
		session.UpdatedAt.UTC(),
	).Scan(&session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin panel session: %w", err)
	}
	return session, nil
}

func (c *Client) GetAdminPanelSession(ctx context.Context, id int64) (*db.AdminPanelSession, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.getAdminPanelSession(ctx, `id = ?`, id)
}

func (c *Client) GetAdminPanelSessionByUser(ctx context.Context, userID int64) (*db.AdminPanelSession, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.getAdminPanelSession(ctx, `user_id = ?`, userID)
}

func (c *Client) UpdateAdminPanelSession(ctx context.Context, session *db.AdminPanelSession) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := c.q(`
		UPDATE admin_panel_sessions
		SET page = ?, state_json = ?, message_id = ?, updated_at = ?
		WHERE id = ?
	`)
	_, err := c.db.ExecContext(ctx, query,
		session.Page,
		session.StateJSON,
		session.MessageID,
		session.UpdatedAt.UTC(),
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update admin panel session: %w", err)
	}
	return nil
}

func (c *Client) DeleteAdminPanelSession(ctx context.Context, id int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.db.ExecContext(ctx, c.q(`DELETE FROM admin_panel_commands WHERE session_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete admin panel commands: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, c.q(`DELETE FROM admin_panel_sessions WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete admin panel session: %w", err)
	}
	return nil
}

func (c *Client) ListAdminPanelSessions(ctx context.Context) ([]*db.AdminPanelSession, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	rows, err := c.db.QueryxContext(ctx, `SELECT `+sessionColumns+` FROM admin_panel_sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin panel sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*db.AdminPanelSession
	for rows.Next() {
		session := &db.AdminPanelSession{}
		if err := rows.StructScan(session); err != nil {
			return nil, fmt.Errorf("failed to scan admin panel session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate admin panel sessions: %w", err)
	}
	return sessions, nil
}

func (c *Client) CreateAdminPanelCommand(ctx context.Context, cmd *db.AdminPanelCommand) (*db.AdminPanelCommand, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := c.q(`
		INSERT INTO admin_panel_commands (session_id, payload, created_at)
		VALUES (?, ?, ?)
		RETURNING id
	`)
	if err := c.db.QueryRowxContext(ctx, query, cmd.SessionID, cmd.Payload, cmd.CreatedAt.UTC()).Scan(&cmd.ID); err != nil {
		return nil, fmt.Errorf("failed to create admin panel command: %w", err)
	}
	return cmd, nil
}

func (c *Client) GetAdminPanelCommand(ctx context.Context, id int64) (*db.AdminPanelCommand, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	cmd := &db.AdminPanelCommand{}
	query := c.q(`SELECT id, session_id, payload, created_at FROM admin_panel_commands WHERE id = ?`)
	if err := c.db.QueryRowxContext(ctx, query, id).StructScan(cmd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get admin panel command: %w", err)
	}
	return cmd, nil
}

func (c *Client) DeleteAdminPanelCommandsBySession(ctx context.Context, sessionID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.db.ExecContext(ctx, c.q(`DELETE FROM admin_panel_commands WHERE session_id = ?`), sessionID); err != nil {
		return fmt.Errorf("failed to delete admin panel commands: %w", err)
	}
	return nil
}

func (c *Client) getAdminPanelSession(ctx context.Context, where string, args ...any) (*db.AdminPanelSession, error) {
	session := &db.AdminPanelSession{}
	query := c.q(`SELECT ` + sessionColumns + ` FROM admin_panel_sessions WHERE ` + where)
	if err := c.db.QueryRowxContext(ctx, query, args...).StructScan(session); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get admin panel session: %w", err)
	}
	return session, nil
}
