package db

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSlotFull is returned by ApplyVote when the target slot has no free places.
	ErrSlotFull = errors.New("slot is full")
	// ErrPollClosed is returned by ApplyVote when the poll is no longer active.
	ErrPollClosed = errors.New("poll is closed")
)

// VoteChange describes the new state of a user's vote in a poll.
// SlotID == 0 with DayOff == false and Retract == false is invalid.
type VoteChange struct {
	PollID  int64
	UserID  int64
	SlotID  int64
	DayOff  bool
	Retract bool
	At      time.Time
}

// Client is the storage contract. Lookups of missing rows return (nil, nil).
type Client interface {
	Close() error

	UpsertGroup(ctx context.Context, group *Group) (*Group, error)
	UpdateGroup(ctx context.Context, group *Group) error
	GetGroup(ctx context.Context, id int64) (*Group, error)
	GetGroupByChat(ctx context.Context, chatID int64) (*Group, error)
	ListGroups(ctx context.Context) ([]*Group, error)
	ListActiveGroups(ctx context.Context) ([]*Group, error)
	DeleteGroup(ctx context.Context, id int64) error
	AddGroupSlot(ctx context.Context, slot *SlotConfig) (*SlotConfig, error)
	DeleteGroupSlot(ctx context.Context, groupID, slotID int64) error

	ReservePoll(ctx context.Context, poll *DailyPoll) (*DailyPoll, bool, error)
	AttachTelegramPoll(ctx context.Context, pollID int64, telegramPollID string, messageID int) error
	DeletePoll(ctx context.Context, id int64) error
	GetPoll(ctx context.Context, id int64) (*DailyPoll, error)
	GetPollByTelegramID(ctx context.Context, telegramPollID string) (*DailyPoll, error)
	GetActivePollForGroup(ctx context.Context, groupID int64) (*DailyPoll, error)
	ListActivePolls(ctx context.Context) ([]*DailyPoll, error)
	ListUnreportedPolls(ctx context.Context) ([]*DailyPoll, error)
	ClosePoll(ctx context.Context, id int64, at time.Time) (bool, error)
	SetPollReportMessage(ctx context.Context, id int64, messageID int) error

	ApplyVote(ctx context.Context, change VoteChange) (*UserVote, error)
	GetVote(ctx context.Context, pollID, userID int64) (*UserVote, error)
	ListVotes(ctx context.Context, pollID int64) ([]*VoteRecord, error)

	UpsertUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	SetUserVerified(ctx context.Context, id int64, verified bool, at time.Time) error
	AddGroupMember(ctx context.Context, groupID, userID int64, seenAt time.Time) error
	RemoveGroupMember(ctx context.Context, groupID, userID int64) error
	ListGroupMembers(ctx context.Context, groupID int64) ([]*User, error)

	CreateVerificationRequest(ctx context.Context, req *VerificationRequest) (*VerificationRequest, error)
	GetVerificationRequestByToken(ctx context.Context, token string) (*VerificationRequest, error)
	GetPendingVerificationRequest(ctx context.Context, userID int64) (*VerificationRequest, error)
	ListPendingVerificationRequests(ctx context.Context) ([]*VerificationRequest, error)
	DecideVerificationRequest(ctx context.Context, id int64, status VerificationStatus, decidedBy int64, at time.Time) (bool, error)

	CreateAdminPanelSession(ctx context.Context, session *AdminPanelSession) (*AdminPanelSession, error)
	GetAdminPanelSession(ctx context.Context, id int64) (*AdminPanelSession, error)
	GetAdminPanelSessionByUser(ctx context.Context, userID int64) (*AdminPanelSession, error)
	UpdateAdminPanelSession(ctx context.Context, session *AdminPanelSession) error
	DeleteAdminPanelSession(ctx context.Context, id int64) error
	ListAdminPanelSessions(ctx context.Context) ([]*AdminPanelSession, error)
	CreateAdminPanelCommand(ctx context.Context, cmd *AdminPanelCommand) (*AdminPanelCommand, error)
	GetAdminPanelCommand(ctx context.Context, id int64) (*AdminPanelCommand, error)
	DeleteAdminPanelCommandsBySession(ctx context.Context, sessionID int64) error
}
