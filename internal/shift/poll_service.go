package shift

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/shiftbot/internal/db"
	"github.com/iamwavecut/shiftbot/internal/observability"
)

const (
	defaultConcurrency = 4
	// A reservation without Telegram ids older than this is a leftover of a
	// failed run and gets posted again.
	orphanReservationAge = time.Minute

	reportRetryDelay  = time.Minute
	reportRetryWindow = 24 * time.Hour
)

var tracer = otel.Tracer("github.com/iamwavecut/shiftbot/internal/shift")

type PostedPoll struct {
	PollID    string
	MessageID int
}

// Messenger is the part of the Telegram client the poll lifecycle needs.
type Messenger interface {
	SendPoll(ctx context.Context, chatID int64, topicID int, question string, options []string) (*PostedPoll, error)
	StopPoll(ctx context.Context, chatID int64, messageID int) error
	SendText(ctx context.Context, chatID int64, topicID int, text string) (int, error)
}

type Store interface {
	ListActiveGroups(ctx context.Context) ([]*db.Group, error)
	GetGroup(ctx context.Context, id int64) (*db.Group, error)

	ReservePoll(ctx context.Context, poll *db.DailyPoll) (*db.DailyPoll, bool, error)
	AttachTelegramPoll(ctx context.Context, pollID int64, telegramPollID string, messageID int) error
	DeletePoll(ctx context.Context, id int64) error
	GetPoll(ctx context.Context, id int64) (*db.DailyPoll, error)
	GetPollByTelegramID(ctx context.Context, telegramPollID string) (*db.DailyPoll, error)
	GetActivePollForGroup(ctx context.Context, groupID int64) (*db.DailyPoll, error)
	ListActivePolls(ctx context.Context) ([]*db.DailyPoll, error)
	ListUnreportedPolls(ctx context.Context) ([]*db.DailyPoll, error)
	ClosePoll(ctx context.Context, id int64, at time.Time) (bool, error)
	SetPollReportMessage(ctx context.Context, id int64, messageID int) error

	ApplyVote(ctx context.Context, change db.VoteChange) (*db.UserVote, error)
	ListVotes(ctx context.Context, pollID int64) ([]*db.VoteRecord, error)

	UpsertUser(ctx context.Context, user *db.User) error
	GetUser(ctx context.Context, id int64) (*db.User, error)
	AddGroupMember(ctx context.Context, groupID, userID int64, seenAt time.Time) error
	ListGroupMembers(ctx context.Context, groupID int64) ([]*db.User, error)
}

type Options struct {
	Location       *time.Location
	Language       string
	LookupAttempts int
	LookupDelay    time.Duration
	Concurrency    int
	Now            func() time.Time
}

// PollService owns the daily poll lifecycle: creation, votes, closing and reports.
type PollService struct {
	store     Store
	messenger Messenger

	loc            *time.Location
	language       string
	lookupAttempts int
	lookupDelay    time.Duration
	concurrency    int
	now            func() time.Time
	logger         *log.Entry
}

func NewPollService(store Store, messenger Messenger, opts Options) *PollService {
	s := &PollService{
		store:          store,
		messenger:      messenger,
		loc:            opts.Location,
		language:       opts.Language,
		lookupAttempts: opts.LookupAttempts,
		lookupDelay:    opts.LookupDelay,
		concurrency:    opts.Concurrency,
		now:            opts.Now,
		logger:         log.WithField("context", "polls"),
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.lookupAttempts < 1 {
		s.lookupAttempts = 1
	}
	if s.concurrency < 1 {
		s.concurrency = defaultConcurrency
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *PollService) Location() *time.Location {
	return s.loc
}

func (s *PollService) Language() string {
	return s.language
}

// CreateDailyPolls posts the poll of every active group with slots. Groups
// are processed concurrently and independently; failures are joined.
func (s *PollService) CreateDailyPolls(ctx context.Context, now time.Time) error {
	ctx, span := tracer.Start(ctx, "CreateDailyPolls")
	defer span.End()

	groups, err := s.store.ListActiveGroups(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("list active groups: %w", err)
	}
	span.SetAttributes(attribute.Int("groups", len(groups)))

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(s.concurrency)
	for _, group := range groups {
		if len(group.Slots) == 0 {
			s.logger.WithField("group_id", group.ID).Debug("skipping group without slots")
			continue
		}
		g.Go(func() error {
			if _, err := s.CreatePollForGroup(ctx, group, now); err != nil {
				s.logger.WithField("group_id", group.ID).WithField("error", err.Error()).Error("cant create poll")
				mu.Lock()
				errs = append(errs, fmt.Errorf("group %d: %w", group.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// CreatePollForGroup reserves the poll row, posts the Telegram poll and stores
// its ids. An active poll for the same date is returned unchanged.
func (s *PollService) CreatePollForGroup(ctx context.Context, group *db.Group, now time.Time) (*db.DailyPoll, error) {
	poll, _, err := s.createPoll(ctx, group, now)
	return poll, err
}

// createPoll reports whether a Telegram poll was posted by this call.
func (s *PollService) createPoll(ctx context.Context, group *db.Group, now time.Time) (*db.DailyPoll, bool, error) {
	ctx, span := tracer.Start(ctx, "CreatePollForGroup")
	defer span.End()
	span.SetAttributes(attribute.Int64("group_id", group.ID))

	if len(group.Slots) == 0 {
		return nil, false, ErrNoSlots
	}
	if len(group.Slots) > MaxSlots {
		return nil, false, ErrTooManySlots
	}
	closesAt, err := NextClose(group.CloseTime, now, s.loc)
	if err != nil {
		return nil, false, err
	}

	slots := make([]db.PollSlot, 0, len(group.Slots))
	for _, slot := range group.Slots {
		slots = append(slots, db.PollSlot{
			StartTime: slot.StartTime,
			EndTime:   slot.EndTime,
			Capacity:  slot.Capacity,
		})
	}
	poll, created, err := s.store.ReservePoll(ctx, &db.DailyPoll{
		GroupID:   group.ID,
		PollDate:  TargetDate(group.Night, now, s.loc),
		Status:    db.PollStatusActive,
		ClosesAt:  closesAt,
		CreatedAt: now,
		Slots:     slots,
	})
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("reserve poll: %w", err)
	}
	if !created && !s.isOrphan(poll, now) {
		return poll, false, nil
	}
	logger := s.logger.WithField("group_id", group.ID).WithField("poll_id", poll.ID)

	question, options := pollContent(poll, s.language)
	posted, err := s.messenger.SendPoll(ctx, group.ChatID, group.PollTopicID, question, options)
	if err != nil {
		s.dropReservation(ctx, poll.ID)
		span.RecordError(err)
		return nil, false, fmt.Errorf("send poll to chat %d: %w", group.ChatID, err)
	}
	if err := s.store.AttachTelegramPoll(ctx, poll.ID, posted.PollID, posted.MessageID); err != nil {
		// Votes on a poll without stored ids cannot be counted, so the
		// posted poll is stopped and the next run posts a fresh one.
		logger.WithFields(log.Fields{
			"telegram_poll_id": posted.PollID,
			"message_id":       posted.MessageID,
			"error":            err.Error(),
		}).Error("cant store telegram poll ids, stopping the posted poll")
		if stopErr := s.messenger.StopPoll(ctx, group.ChatID, posted.MessageID); stopErr != nil {
			logger.WithField("error", stopErr.Error()).Warn("cant stop unattached telegram poll")
		}
		s.dropReservation(ctx, poll.ID)
		span.RecordError(err)
		return nil, false, fmt.Errorf("store telegram poll ids: %w", err)
	}
	poll.TelegramPollID = posted.PollID
	poll.MessageID = posted.MessageID

	observability.RecordPollCreated()
	logger.WithFields(log.Fields{
		"poll_date": poll.PollDate,
		"closes_at": poll.ClosesAt.In(s.loc).Format(time.RFC3339),
	}).Info("poll posted")
	return poll, true, nil
}

func (s *PollService) dropReservation(ctx context.Context, pollID int64) {
	if err := s.store.DeletePoll(ctx, pollID); err != nil {
		s.logger.WithField("poll_id", pollID).WithField("error", err.Error()).Error("cant drop poll reservation")
	}
}

func (s *PollService) isOrphan(poll *db.DailyPoll, now time.Time) bool {
	return poll.TelegramPollID == "" && poll.MessageID == 0 && now.Sub(poll.CreatedAt) > orphanReservationAge
}

// PostNow creates the poll of a single group right away. The boolean is
// false when the group already had an active poll for that date.
func (s *PollService) PostNow(ctx context.Context, groupID int64) (*db.DailyPoll, bool, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, false, fmt.Errorf("get group: %w", err)
	}
	if group == nil {
		return nil, false, fmt.Errorf("group %d does not exist", groupID)
	}
	return s.createPoll(ctx, group, s.now())
}

// ClosePoll marks the poll closed, stops the Telegram poll and posts the
// report. Closing an already closed poll is a no-op; a report that failed to
// send is retried by CloseExpiredPolls.
func (s *PollService) ClosePoll(ctx context.Context, poll *db.DailyPoll) error {
	ctx, span := tracer.Start(ctx, "ClosePoll")
	defer span.End()
	span.SetAttributes(attribute.Int64("poll_id", poll.ID))

	closed, err := s.store.ClosePoll(ctx, poll.ID, s.now())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("mark poll closed: %w", err)
	}
	if !closed {
		return nil
	}
	logger := s.logger.WithField("poll_id", poll.ID)

	group, err := s.store.GetGroup(ctx, poll.GroupID)
	if err != nil {
		return fmt.Errorf("get group: %w", err)
	}
	if group == nil {
		logger.Warn("poll closed without a group, no report posted")
		return nil
	}

	if poll.MessageID != 0 {
		if err := s.messenger.StopPoll(ctx, group.ChatID, poll.MessageID); err != nil {
			logger.WithField("error", err.Error()).Warn("cant stop telegram poll")
		}
	}
	observability.RecordPollClosed()

	if err := s.postReport(ctx, poll, group); err != nil {
		span.RecordError(err)
		return err
	}
	logger.WithField("group_id", group.ID).Info("poll closed")
	return nil
}

func (s *PollService) postReport(ctx context.Context, poll *db.DailyPoll, group *db.Group) error {
	report, err := s.Results(ctx, poll.ID)
	if err != nil {
		return err
	}
	messageID, err := s.messenger.SendText(ctx, group.ChatID, group.ReportTopic(), FormatResults(report, s.language))
	if err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	if err := s.store.SetPollReportMessage(ctx, poll.ID, messageID); err != nil {
		return fmt.Errorf("store report message: %w", err)
	}
	return nil
}

// CloseExpiredPolls closes every active poll whose cutoff is not after now,
// then posts the reports that earlier passes failed to send.
func (s *PollService) CloseExpiredPolls(ctx context.Context, now time.Time) error {
	ctx, span := tracer.Start(ctx, "CloseExpiredPolls")
	defer span.End()

	polls, err := s.store.ListActivePolls(ctx)
	if err != nil {
		return fmt.Errorf("list active polls: %w", err)
	}
	var errs []error
	attempted := map[int64]struct{}{}
	for _, poll := range polls {
		if poll.ClosesAt.After(now) {
			continue
		}
		attempted[poll.ID] = struct{}{}
		if err := s.ClosePoll(ctx, poll); err != nil {
			errs = append(errs, fmt.Errorf("poll %d: %w", poll.ID, err))
		}
	}

	if err := s.retryReports(ctx, now, attempted); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// retryReports posts the missing report of polls closed between
// reportRetryDelay and reportRetryWindow ago. The delay keeps it clear of a
// close that is still sending its report.
func (s *PollService) retryReports(ctx context.Context, now time.Time, skip map[int64]struct{}) error {
	polls, err := s.store.ListUnreportedPolls(ctx)
	if err != nil {
		return fmt.Errorf("list unreported polls: %w", err)
	}
	var errs []error
	for _, poll := range polls {
		if _, ok := skip[poll.ID]; ok || !poll.ClosedAt.Valid {
			continue
		}
		age := now.Sub(poll.ClosedAt.Time)
		if age < reportRetryDelay || age > reportRetryWindow {
			continue
		}
		group, err := s.store.GetGroup(ctx, poll.GroupID)
		if err != nil {
			errs = append(errs, fmt.Errorf("poll %d: get group: %w", poll.ID, err))
			continue
		}
		if group == nil {
			continue
		}
		if err := s.postReport(ctx, poll, group); err != nil {
			errs = append(errs, fmt.Errorf("poll %d: %w", poll.ID, err))
			continue
		}
		s.logger.WithField("poll_id", poll.ID).Info("missing report posted")
	}
	return errors.Join(errs...)
}

// CloseNow closes the active poll of a group before its cutoff.
func (s *PollService) CloseNow(ctx context.Context, groupID int64) error {
	poll, err := s.store.GetActivePollForGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("get active poll: %w", err)
	}
	if poll == nil {
		return ErrNoActivePoll
	}
	return s.ClosePoll(ctx, poll)
}

// ActivePoll returns the active poll of a group, or nil.
func (s *PollService) ActivePoll(ctx context.Context, groupID int64) (*db.DailyPoll, error) {
	return s.store.GetActivePollForGroup(ctx, groupID)
}

// Broadcast posts text into the report topic of every active group.
func (s *PollService) Broadcast(ctx context.Context, text string) (int, error) {
	groups, err := s.store.ListActiveGroups(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active groups: %w", err)
	}
	sent := 0
	var errs []error
	for _, group := range groups {
		if _, err := s.messenger.SendText(ctx, group.ChatID, group.ReportTopic(), text); err != nil {
			errs = append(errs, fmt.Errorf("group %d: %w", group.ID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}
