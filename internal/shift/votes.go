package shift

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iamwavecut/shiftbot/internal/db"
	"github.com/iamwavecut/shiftbot/internal/observability"
)

// VoteInput is a poll answer as delivered by Telegram.
type VoteInput struct {
	TelegramPollID string
	UserID         int64
	Username       string
	FirstName      string
	LastName       string
	OptionIDs      []int
}

// VoteOutcome describes what a vote did. It is also returned together with
// ErrPollClosed, ErrNotVerified and ErrSlotFull so callers can notify the group.
type VoteOutcome struct {
	Group     *db.Group
	Poll      *db.DailyPoll
	Slot      *db.PollSlot
	DayOff    bool
	Retracted bool
}

// RecordVote applies a poll answer. The poll is looked up with a bounded
// retry because answers can arrive before the poll ids are stored.
func (s *PollService) RecordVote(ctx context.Context, in VoteInput) (*VoteOutcome, error) {
	ctx, span := tracer.Start(ctx, "RecordVote")
	defer span.End()

	now := s.now()
	if err := s.store.UpsertUser(ctx, &db.User{
		ID:        in.UserID,
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	poll, err := s.lookupPoll(ctx, in.TelegramPollID)
	if err != nil {
		if errors.Is(err, ErrPollNotFound) {
			observability.RecordVote(observability.VotePollUnknown)
		}
		return nil, err
	}

	out, err := s.prepareOutcome(ctx, poll, in.UserID, now)
	if err != nil {
		return nil, err
	}
	if !poll.IsActive() {
		observability.RecordVote(observability.VotePollClosed)
		return out, ErrPollClosed
	}

	if len(in.OptionIDs) > 0 {
		user, err := s.store.GetUser(ctx, in.UserID)
		if err != nil {
			return nil, fmt.Errorf("get user: %w", err)
		}
		if user == nil || !user.Verified {
			observability.RecordVote(observability.VoteUnverified)
			return out, ErrNotVerified
		}
	}

	if err := s.apply(ctx, out, in.UserID, in.OptionIDs, now); err != nil {
		span.RecordError(err)
		return out, err
	}
	return out, nil
}

// RestoreVote sets a user's vote on behalf of an admin, bypassing the
// verification gate. position is the zero-based option index.
func (s *PollService) RestoreVote(ctx context.Context, pollID, userID int64, position int) (*VoteOutcome, error) {
	poll, err := s.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("get poll: %w", err)
	}
	if poll == nil {
		return nil, ErrPollNotFound
	}
	now := s.now()
	out, err := s.prepareOutcome(ctx, poll, userID, now)
	if err != nil {
		return nil, err
	}
	if !poll.IsActive() {
		return out, ErrPollClosed
	}
	if err := s.apply(ctx, out, userID, []int{position}, now); err != nil {
		return out, err
	}
	s.logger.WithField("poll_id", poll.ID).WithField("user_id", userID).Info("vote restored")
	return out, nil
}

func (s *PollService) lookupPoll(ctx context.Context, telegramPollID string) (*db.DailyPoll, error) {
	for attempt := 1; ; attempt++ {
		poll, err := s.store.GetPollByTelegramID(ctx, telegramPollID)
		if err != nil {
			return nil, fmt.Errorf("get poll by telegram id: %w", err)
		}
		if poll != nil {
			return poll, nil
		}
		if attempt >= s.lookupAttempts {
			return nil, ErrPollNotFound
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.lookupDelay):
		}
	}
}

func (s *PollService) prepareOutcome(ctx context.Context, poll *db.DailyPoll, userID int64, now time.Time) (*VoteOutcome, error) {
	group, err := s.store.GetGroup(ctx, poll.GroupID)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if group != nil {
		if err := s.store.AddGroupMember(ctx, group.ID, userID, now); err != nil {
			s.logger.WithField("error", err.Error()).Warn("cant record group member")
		}
	}
	return &VoteOutcome{Group: group, Poll: poll}, nil
}

func (s *PollService) apply(ctx context.Context, out *VoteOutcome, userID int64, optionIDs []int, now time.Time) error {
	change := db.VoteChange{PollID: out.Poll.ID, UserID: userID, At: now}
	switch {
	case len(optionIDs) == 0:
		change.Retract = true
		out.Retracted = true
	case optionIDs[0] == out.Poll.DayOffPosition():
		change.DayOff = true
		out.DayOff = true
	default:
		slot, ok := out.Poll.SlotByPosition(optionIDs[0])
		if !ok {
			observability.RecordVote(observability.VoteFailed)
			return fmt.Errorf("%w: %d", ErrUnknownOption, optionIDs[0])
		}
		change.SlotID = slot.ID
		out.Slot = &slot
	}

	_, err := s.store.ApplyVote(ctx, change)
	switch {
	case err == nil:
	case errors.Is(err, ErrSlotFull):
		observability.RecordVote(observability.VoteSlotFull)
		return ErrSlotFull
	case errors.Is(err, ErrPollClosed):
		observability.RecordVote(observability.VotePollClosed)
		return ErrPollClosed
	default:
		observability.RecordVote(observability.VoteFailed)
		return fmt.Errorf("apply vote: %w", err)
	}

	if out.Retracted {
		observability.RecordVote(observability.VoteRetracted)
	} else {
		observability.RecordVote(observability.VoteAccepted)
	}
	return nil
}
