package shift

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iamwavecut/tool"

	"github.com/iamwavecut/shiftbot/internal/i18n"
	"github.com/iamwavecut/shiftbot/internal/observability"
)

const reminderTemplate = `{{ .header }}
{{ .names }}`

// SendReminders mentions verified members who have not voted yet in every
// poll that is still open at now.
func (s *PollService) SendReminders(ctx context.Context, now time.Time) error {
	ctx, span := tracer.Start(ctx, "SendReminders")
	defer span.End()

	polls, err := s.store.ListActivePolls(ctx)
	if err != nil {
		return fmt.Errorf("list active polls: %w", err)
	}

	var errs []error
	for _, poll := range polls {
		if !poll.ClosesAt.After(now) {
			continue
		}
		group, err := s.store.GetGroup(ctx, poll.GroupID)
		if err != nil {
			errs = append(errs, fmt.Errorf("poll %d: get group: %w", poll.ID, err))
			continue
		}
		if group == nil || !group.Active {
			continue
		}

		votes, err := s.store.ListVotes(ctx, poll.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("poll %d: list votes: %w", poll.ID, err))
			continue
		}
		members, err := s.store.ListGroupMembers(ctx, group.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("poll %d: list members: %w", poll.ID, err))
			continue
		}
		voted := make(map[int64]struct{}, len(votes))
		for _, vote := range votes {
			voted[vote.UserID] = struct{}{}
		}
		missing := missingVoters(members, voted, true)
		if len(missing) == 0 {
			continue
		}

		msg := tool.ExecTemplate(reminderTemplate, map[string]any{
			"header": fmt.Sprintf(
				i18n.Get("Reminder: sign-up for %s closes at %s. Not voted yet:", s.language),
				pollDay(poll.PollDate, s.language),
				poll.ClosesAt.In(s.loc).Format(clockLayout),
			),
			"names": strings.Join(missing, ", "),
		})
		if _, err := s.messenger.SendText(ctx, group.ChatID, group.ReportTopic(), msg); err != nil {
			errs = append(errs, fmt.Errorf("poll %d: send reminder: %w", poll.ID, err))
			continue
		}
		observability.RecordReminder()
		s.logger.WithField("poll_id", poll.ID).WithField("missing", len(missing)).Info("reminder sent")
	}
	return errors.Join(errs...)
}
