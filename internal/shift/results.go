package shift

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iamwavecut/tool"

	"github.com/iamwavecut/shiftbot/internal/db"
	"github.com/iamwavecut/shiftbot/internal/i18n"
	"github.com/iamwavecut/shiftbot/internal/utils/text"
)

var weekdayNames = []string{
	"Sunday",
	"Monday",
	"Tuesday",
	"Wednesday",
	"Thursday",
	"Friday",
	"Saturday",
}

type SlotResult struct {
	Slot  db.PollSlot
	Names []string
}

// Report is the outcome of a poll: who took which slot, who is off and who
// did not answer.
type Report struct {
	Group   *db.Group
	Poll    *db.DailyPoll
	Slots   []SlotResult
	DayOff  []string
	NoVote  []string
	Free    int
	Members int
}

// Results builds the report from the current state of the poll.
func (s *PollService) Results(ctx context.Context, pollID int64) (*Report, error) {
	poll, err := s.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("get poll: %w", err)
	}
	if poll == nil {
		return nil, ErrPollNotFound
	}
	group, err := s.store.GetGroup(ctx, poll.GroupID)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	votes, err := s.store.ListVotes(ctx, poll.ID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	members, err := s.store.ListGroupMembers(ctx, poll.GroupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}

	report := &Report{Group: group, Poll: poll}
	bySlot := make(map[int64][]string, len(poll.Slots))
	voted := make(map[int64]struct{}, len(votes))
	for _, vote := range votes {
		voted[vote.UserID] = struct{}{}
		name := text.DisplayName(vote.UserID, vote.Username, vote.FirstName, vote.LastName)
		switch {
		case vote.DayOff:
			report.DayOff = append(report.DayOff, name)
		case vote.SlotID.Valid:
			bySlot[vote.SlotID.Int64] = append(bySlot[vote.SlotID.Int64], name)
		}
	}
	for _, slot := range poll.Slots {
		report.Slots = append(report.Slots, SlotResult{Slot: slot, Names: bySlot[slot.ID]})
		report.Free += slot.Free()
	}
	report.NoVote = missingVoters(members, voted, false)
	report.Members = len(members)
	return report, nil
}

// missingVoters lists verified members without a vote.
func missingVoters(members []*db.User, voted map[int64]struct{}, mention bool) []string {
	var names []string
	for _, member := range members {
		if !member.Verified {
			continue
		}
		if _, ok := voted[member.ID]; ok {
			continue
		}
		if mention {
			names = append(names, text.Mention(member.ID, member.Username, member.FirstName, member.LastName))
		} else {
			names = append(names, text.DisplayName(member.ID, member.Username, member.FirstName, member.LastName))
		}
	}
	return names
}

const resultsTemplate = `{{ .title }}
{{ range .slots }}
{{ .header }}
{{ range .names }}• {{ . }}
{{ else }}• {{ $.nobody }}
{{ end }}{{ end }}{{ if .dayOff }}
{{ .dayOffTitle }}: {{ .dayOff }}{{ end }}{{ if .noVote }}
{{ .noVoteTitle }}: {{ .noVote }}{{ end }}

{{ .free }}`

// FormatResults renders a report as a plain text message.
func FormatResults(r *Report, lang string) string {
	slots := make([]map[string]any, 0, len(r.Slots))
	for _, slot := range r.Slots {
		slots = append(slots, map[string]any{
			"header": fmt.Sprintf(i18n.Get("%s: %d of %d taken", lang), slot.Slot.Label(), slot.Slot.Occupied, slot.Slot.Capacity),
			"names":  slot.Names,
		})
	}

	free := i18n.Get("All places are taken", lang)
	if r.Free > 0 {
		free = fmt.Sprintf(i18n.Get("Free places left: %d", lang), r.Free)
	}

	return strings.TrimSpace(tool.ExecTemplate(resultsTemplate, map[string]any{
		"title":       fmt.Sprintf(i18n.Get("Results for %s", lang), pollDay(r.Poll.PollDate, lang)),
		"slots":       slots,
		"nobody":      i18n.Get("nobody", lang),
		"dayOffTitle": i18n.Get("Day off", lang),
		"dayOff":      strings.Join(r.DayOff, ", "),
		"noVoteTitle": i18n.Get("No vote", lang),
		"noVote":      strings.Join(r.NoVote, ", "),
		"free":        free,
	}))
}

// pollContent builds the poll question and its options; the last option is
// always "Day off".
func pollContent(poll *db.DailyPoll, lang string) (string, []string) {
	question := fmt.Sprintf(i18n.Get("Shifts for %s. Pick one slot", lang), pollDay(poll.PollDate, lang))
	options := make([]string, 0, len(poll.Slots)+1)
	for _, slot := range poll.Slots {
		options = append(options, fmt.Sprintf(i18n.Get("%s (%d places)", lang), slot.Label(), slot.Capacity))
	}
	options = append(options, i18n.Get("Day off", lang))
	return question, options
}

// pollDay renders "Monday, 19.10" for a YYYY-MM-DD date.
func pollDay(date, lang string) string {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return date
	}
	return i18n.Get(weekdayNames[day.Weekday()], lang) + ", " + day.Format("02.01")
}
