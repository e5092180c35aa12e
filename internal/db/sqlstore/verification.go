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

const verificationColumns = `id, token, user_id, status, decided_by, created_at, decided_at`

func (c *Client) CreateVerificationRequest(ctx context.Context, req *db.VerificationRequest) (*db.VerificationRequest, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if req.Status == "" {
		req.Status = db.VerificationPending
	}
	query := c.q(`
		INSERT INTO verification_requests (token, user_id, status, decided_by, created_at)
		VALUES (?, ?, ?, 0, ?)
		RETURNING id
	`)
	if err := c.db.QueryRowxContext(ctx, query, req.Token, req.UserID, req.Status, req.CreatedAt.UTC()).Scan(&req.ID); err != nil {
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}
	return req, nil
}

func (c *Client) GetVerificationRequestByToken(ctx context.Context, token string) (*db.VerificationRequest, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.getVerificationRequest(ctx, `token = ?`, token)
}

func (c *Client) GetPendingVerificationRequest(ctx context.Context, userID int64) (*db.VerificationRequest, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.getVerificationRequest(ctx, `user_id = ? AND status = ? ORDER BY id DESC LIMIT 1`, userID, db.VerificationPending)
}

func (c *Client) ListPendingVerificationRequests(ctx context.Context) ([]*db.VerificationRequest, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var requests []*db.VerificationRequest
	query := c.q(`SELECT ` + verificationColumns + ` FROM verification_requests WHERE status = ? ORDER BY id`)
	if err := sqlx.SelectContext(ctx, c.db, &requests, query, db.VerificationPending); err != nil {
		return nil, fmt.Errorf("failed to list pending verification requests: %w", err)
	}
	return requests, nil
}

// DecideVerificationRequest reports false when the request was already decided.
func (c *Client) DecideVerificationRequest(ctx context.Context, id int64, status db.VerificationStatus, decidedBy int64, at time.Time) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := c.q(`
		UPDATE verification_requests
		SET status = ?, decided_by = ?, decided_at = ?
		WHERE id = ? AND status = ?
	`)
	res, err := c.db.ExecContext(ctx, query, status, decidedBy, at.UTC(), id, db.VerificationPending)
	if err != nil {
		return false, fmt.Errorf("failed to decide verification request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read decided request rows: %w", err)
	}
	return n > 0, nil
}

func (c *Client) getVerificationRequest(ctx context.Context, where string, args ...any) (*db.VerificationRequest, error) {
	req := &db.VerificationRequest{}
	query := c.q(`SELECT ` + verificationColumns + ` FROM verification_requests WHERE ` + where)
	if err := sqlx.GetContext(ctx, c.db, req, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get verification request: %w", err)
	}
	return req, nil
}
