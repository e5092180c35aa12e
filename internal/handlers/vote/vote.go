package vote

import (
	"context"
	"errors"
	"fmt"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/shiftbot/internal/handlers/base"
	"github.com/iamwavecut/shiftbot/internal/i18n"
	"github.com/iamwavecut/shiftbot/internal/shift"
	"github.com/iamwavecut/shiftbot/internal/utils/text"
)

type Recorder interface {
	RecordVote(ctx context.Context, in shift.VoteInput) (*shift.VoteOutcome, error)
}

type Notifier interface {
	SendText(ctx context.Context, chatID int64, topicID int, text string) (int, error)
}

// Vote turns poll answers into stored votes and tells the group when a vote
// could not be counted.
type Vote struct {
	base.BaseHandler
	recorder Recorder
	notifier Notifier
}

func New(recorder Recorder, notifier Notifier, language string) *Vote {
	return &Vote{
		BaseHandler: base.NewBaseHandler(language, "vote"),
		recorder:    recorder,
		notifier:    notifier,
	}
}

func (v *Vote) Handle(ctx context.Context, u *api.Update, _ *api.Chat, user *api.User) (bool, error) {
	if u == nil || u.PollAnswer == nil {
		return true, nil
	}
	answer := u.PollAnswer
	if user == nil {
		user = answer.User
	}
	if user == nil {
		v.GetLogger().WithField("poll_id", answer.PollID).Debug("anonymous poll answer, ignoring")
		return false, nil
	}
	entry := v.GetLogger().WithFields(log.Fields{
		"poll_id": answer.PollID,
		"user_id": user.ID,
		"options": answer.OptionIDs,
	})

	out, err := v.recorder.RecordVote(ctx, shift.VoteInput{
		TelegramPollID: answer.PollID,
		UserID:         user.ID,
		Username:       user.UserName,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		OptionIDs:      answer.OptionIDs,
	})
	lang := v.GetLanguage()
	name := text.Mention(user.ID, user.UserName, user.FirstName, user.LastName)

	switch {
	case err == nil:
		entry.Debug("vote recorded")
		return false, nil
	case errors.Is(err, shift.ErrPollNotFound):
		entry.Debug("answer to an unknown poll")
		return false, nil
	case errors.Is(err, shift.ErrPollClosed):
		entry.Debug("answer to a closed poll")
		return false, nil
	case errors.Is(err, shift.ErrSlotFull):
		slot := ""
		if out != nil && out.Slot != nil {
			slot = out.Slot.Label()
		}
		v.notify(ctx, out, fmt.Sprintf(i18n.Get("%s, slot %s is already full. Your previous choice is kept.", lang), name, slot))
		return false, nil
	case errors.Is(err, shift.ErrNotVerified):
		v.notify(ctx, out, fmt.Sprintf(i18n.Get("%s, your vote is not counted until an administrator verifies you. Send /verify to the bot in a private chat.", lang), name))
		return false, nil
	case errors.Is(err, shift.ErrUnknownOption):
		entry.WithField("error", err.Error()).Warn("answer does not match the poll options")
		return false, nil
	default:
		return false, fmt.Errorf("record vote: %w", err)
	}
}

func (v *Vote) notify(ctx context.Context, out *shift.VoteOutcome, msg string) {
	if out == nil || out.Group == nil {
		return
	}
	if _, err := v.notifier.SendText(ctx, out.Group.ChatID, out.Group.PollTopicID, msg); err != nil {
		v.GetLogger().WithField("error", err.Error()).Warn("cant send vote notice")
	}
}
