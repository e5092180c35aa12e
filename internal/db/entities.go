package db

import (
	"database/sql"
	"fmt"
	"time"
)

type PollStatus string

const (
	PollStatusActive PollStatus = "active"
	PollStatusClosed PollStatus = "closed"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

type (
	// Group is a Telegram chat that receives daily shift polls.
	Group struct {
		ID            int64     `db:"id"`
		ChatID        int64     `db:"chat_id"`
		Name          string    `db:"name"`
		PollTopicID   int       `db:"poll_topic_id"`
		ReportTopicID int       `db:"report_topic_id"`
		Active        bool      `db:"active"`
		Night         bool      `db:"night"`
		CloseTime     string    `db:"close_time"`
		CreatedAt     time.Time `db:"created_at"`
		UpdatedAt     time.Time `db:"updated_at"`

		Slots []SlotConfig `db:"-"`
	}

	// SlotConfig is a slot template of a group, copied into every new poll.
	SlotConfig struct {
		ID        int64  `db:"id"`
		GroupID   int64  `db:"group_id"`
		Position  int    `db:"position"`
		StartTime string `db:"start_time"`
		EndTime   string `db:"end_time"`
		Capacity  int    `db:"capacity"`
	}

	DailyPoll struct {
		ID              int64        `db:"id"`
		GroupID         int64        `db:"group_id"`
		PollDate        string       `db:"poll_date"`
		TelegramPollID  string       `db:"telegram_poll_id"`
		MessageID       int          `db:"message_id"`
		Status          PollStatus   `db:"status"`
		ClosesAt        time.Time    `db:"closes_at"`
		ClosedAt        sql.NullTime `db:"closed_at"`
		ReportMessageID int          `db:"report_message_id"`
		CreatedAt       time.Time    `db:"created_at"`

		Slots []PollSlot `db:"-"`
	}

	// PollSlot is a shift option of a poll. Position equals the Telegram option index.
	PollSlot struct {
		ID        int64  `db:"id"`
		PollID    int64  `db:"poll_id"`
		Position  int    `db:"position"`
		StartTime string `db:"start_time"`
		EndTime   string `db:"end_time"`
		Capacity  int    `db:"capacity"`
		Occupied  int    `db:"occupied"`
	}

	UserVote struct {
		ID        int64         `db:"id"`
		PollID    int64         `db:"poll_id"`
		UserID    int64         `db:"user_id"`
		SlotID    sql.NullInt64 `db:"slot_id"`
		DayOff    bool          `db:"day_off"`
		VotedAt   time.Time     `db:"voted_at"`
		UpdatedAt time.Time     `db:"updated_at"`
	}

	// VoteRecord is a vote joined with its voter.
	VoteRecord struct {
		UserID    int64         `db:"user_id"`
		Username  string        `db:"username"`
		FirstName string        `db:"first_name"`
		LastName  string        `db:"last_name"`
		SlotID    sql.NullInt64 `db:"slot_id"`
		DayOff    bool          `db:"day_off"`
		VotedAt   time.Time     `db:"voted_at"`
	}

	User struct {
		ID         int64        `db:"id"`
		Username   string       `db:"username"`
		FirstName  string       `db:"first_name"`
		LastName   string       `db:"last_name"`
		Verified   bool         `db:"verified"`
		VerifiedAt sql.NullTime `db:"verified_at"`
		CreatedAt  time.Time    `db:"created_at"`
		UpdatedAt  time.Time    `db:"updated_at"`
	}

	VerificationRequest struct {
		ID        int64              `db:"id"`
		Token     string             `db:"token"`
		UserID    int64              `db:"user_id"`
		Status    VerificationStatus `db:"status"`
		DecidedBy int64              `db:"decided_by"`
		CreatedAt time.Time          `db:"created_at"`
		DecidedAt sql.NullTime       `db:"decided_at"`
	}

	AdminPanelSession struct {
		ID        int64     `db:"id"`
		UserID    int64     `db:"user_id"`
		Page      string    `db:"page"`
		StateJSON string    `db:"state_json"`
		MessageID int       `db:"message_id"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	AdminPanelCommand struct {
		ID        int64     `db:"id"`
		SessionID int64     `db:"session_id"`
		Payload   string    `db:"payload"`
		CreatedAt time.Time `db:"created_at"`
	}
)

// Label renders the slot as "08:00-12:00".
func (s SlotConfig) Label() string {
	return fmt.Sprintf("%s-%s", s.StartTime, s.EndTime)
}

func (s PollSlot) Label() string {
	return fmt.Sprintf("%s-%s", s.StartTime, s.EndTime)
}

func (s PollSlot) Free() int {
	if s.Occupied >= s.Capacity {
		return 0
	}
	return s.Capacity - s.Occupied
}

// ReportTopic returns the forum thread for reports, falling back to the poll thread.
func (g *Group) ReportTopic() int {
	if g.ReportTopicID != 0 {
		return g.ReportTopicID
	}
	return g.PollTopicID
}

func (p *DailyPoll) IsActive() bool {
	return p.Status == PollStatusActive
}

// SlotByPosition returns the slot shown as the given Telegram option index.
func (p *DailyPoll) SlotByPosition(position int) (PollSlot, bool) {
	for _, slot := range p.Slots {
		if slot.Position == position {
			return slot, true
		}
	}
	return PollSlot{}, false
}

func (p *DailyPoll) SlotByID(id int64) (PollSlot, bool) {
	for _, slot := range p.Slots {
		if slot.ID == id {
			return slot, true
		}
	}
	return PollSlot{}, false
}

// DayOffPosition is the option index placed after the last slot.
func (p *DailyPoll) DayOffPosition() int {
	return len(p.Slots)
}
