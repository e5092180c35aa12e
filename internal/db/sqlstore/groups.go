package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iamwavecut/shiftbot/internal/db"
)

const groupColumns = `id, chat_id, name, poll_topic_id, report_topic_id, active, night, close_time, created_at, updated_at`

func (c *Client) UpsertGroup(ctx context.Context, group *db.Group) (*db.Group, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := c.q(`
		INSERT INTO shift_groups (chat_id, name, poll_topic_id, report_topic_id, active, night, close_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET
			name = excluded.name,
			poll_topic_id = excluded.poll_topic_id,
			updated_at = excluded.updated_at
		RETURNING id
	`)
	var id int64
	err := c.db.QueryRowxContext(ctx, query,
		group.ChatID,
		group.Name,
		group.PollTopicID,
		group.ReportTopicID,
		group.Active,
		group.Night,
		group.CloseTime,
		group.CreatedAt.UTC(),
		group.UpdatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert group: %w", err)
	}
	return c.getGroup(ctx, c.db, `id = ?`, id)
}

func (c *Client) UpdateGroup(ctx context.Context, group *db.Group) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := c.q(`
		UPDATE shift_groups
		SET name = ?, poll_topic_id = ?, report_topic_id = ?, active = ?, night = ?, close_time = ?, updated_at = ?
		WHERE id = ?
	`)
	_, err := c.db.ExecContext(ctx, query,
		group.Name,
		group.PollTopicID,
		group.ReportTopicID,
		group.Active,
		group.Night,
		group.CloseTime,
		group.UpdatedAt.UTC(),
		group.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	return nil
}

func (c *Client) GetGroup(ctx context.Context, id int64) (*db.Group, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.getGroup(ctx, c.db, `id = ?`, id)
}

func (c *Client) GetGroupByChat(ctx context.Context, chatID int64) (*db.Group, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.getGroup(ctx, c.db, `chat_id = ?`, chatID)
}

func (c *Client) ListGroups(ctx context.Context) ([]*db.Group, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.listGroups(ctx, `SELECT `+groupColumns+` FROM shift_groups ORDER BY name, id`)
}

func (c *Client) ListActiveGroups(ctx context.Context) ([]*db.Group, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.listGroups(ctx, `SELECT `+groupColumns+` FROM shift_groups WHERE active = ? ORDER BY id`, true)
}

func (c *Client) DeleteGroup(ctx context.Context, id int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.db.ExecContext(ctx, c.q(`DELETE FROM shift_groups WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return nil
}

func (c *Client) AddGroupSlot(ctx context.Context, slot *db.SlotConfig) (*db.SlotConfig, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	err := c.inTx(ctx, func(tx *sqlx.Tx) error {
		var position int
		err := tx.QueryRowxContext(ctx,
			c.q(`SELECT COALESCE(MAX(position) + 1, 0) FROM group_slots WHERE group_id = ?`),
			slot.GroupID,
		).Scan(&position)
		if err != nil {
			return fmt.Errorf("failed to get next slot position: %w", err)
		}
		slot.Position = position

		query := c.q(`
			INSERT INTO group_slots (group_id, position, start_time, end_time, capacity)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id
		`)
		if err := tx.QueryRowxContext(ctx, query,
			slot.GroupID, slot.Position, slot.StartTime, slot.EndTime, slot.Capacity,
		).Scan(&slot.ID); err != nil {
			return fmt.Errorf("failed to insert group slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

func (c *Client) DeleteGroupSlot(ctx context.Context, groupID, slotID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, c.q(`DELETE FROM group_slots WHERE id = ? AND group_id = ?`), slotID, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group slot: %w", err)
	}
	return nil
}

func (c *Client) getGroup(ctx context.Context, q queryer, where string, args ...any) (*db.Group, error) {
	group := &db.Group{}
	query := c.q(`SELECT ` + groupColumns + ` FROM shift_groups WHERE ` + where)
	if err := sqlx.GetContext(ctx, q, group, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	slots, err := c.groupSlots(ctx, q, group.ID)
	if err != nil {
		return nil, err
	}
	group.Slots = slots
	return group, nil
}

func (c *Client) listGroups(ctx context.Context, query string, args ...any) ([]*db.Group, error) {
	var groups []*db.Group
	if err := sqlx.SelectContext(ctx, c.db, &groups, c.q(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	if len(groups) == 0 {
		return groups, nil
	}

	var slots []db.SlotConfig
	err := sqlx.SelectContext(ctx, c.db, &slots, `
		SELECT id, group_id, position, start_time, end_time, capacity
		FROM group_slots
		ORDER BY group_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list group slots: %w", err)
	}
	byGroup := make(map[int64][]db.SlotConfig, len(groups))
	for _, slot := range slots {
		byGroup[slot.GroupID] = append(byGroup[slot.GroupID], slot)
	}
	for _, group := range groups {
		group.Slots = byGroup[group.ID]
	}
	return groups, nil
}

func (c *Client) groupSlots(ctx context.Context, q queryer, groupID int64) ([]db.SlotConfig, error) {
	var slots []db.SlotConfig
	query := c.q(`
		SELECT id, group_id, position, start_time, end_time, capacity
		FROM group_slots
		WHERE group_id = ?
		ORDER BY position
	`)
	if err := sqlx.SelectContext(ctx, q, &slots, query, groupID); err != nil {
		return nil, fmt.Errorf("failed to get group slots: %w", err)
	}
	return slots, nil
}
