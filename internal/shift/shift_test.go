package shift

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iamwavecut/shiftbot/internal/db"
	"github.com/iamwavecut/shiftbot/internal/db/sqlstore"
)

type sentPoll struct {
	chatID   int64
	topicID  int
	question string
	options  []string
}

type sentText struct {
	chatID  int64
	topicID int
	text    string
}

type fakeMessenger struct {
	mu        sync.Mutex
	polls     []sentPoll
	texts     []sentText
	stopped   []int
	sendErr   error
	failChats map[int64]error
	textErrs  []error // returned by the next SendText calls, one per call
	nextID    int
}

func (m *fakeMessenger) SendPoll(_ context.Context, chatID int64, topicID int, question string, options []string) (*PostedPoll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	if err := m.failChats[chatID]; err != nil {
		return nil, err
	}
	m.nextID++
	m.polls = append(m.polls, sentPoll{chatID: chatID, topicID: topicID, question: question, options: options})
	return &PostedPoll{PollID: fmt.Sprintf("tg-%d", m.nextID), MessageID: 100 + m.nextID}, nil
}

func (m *fakeMessenger) StopPoll(_ context.Context, _ int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, messageID)
	return nil
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, topicID int, text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.textErrs) > 0 {
		err := m.textErrs[0]
		m.textErrs = m.textErrs[1:]
		return 0, err
	}
	m.nextID++
	m.texts = append(m.texts, sentText{chatID: chatID, topicID: topicID, text: text})
	return 100 + m.nextID, nil
}

func (m *fakeMessenger) pollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.polls)
}

var testNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	store     *sqlstore.Client
	messenger *fakeMessenger
	polls     *PollService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlstore.New(context.Background(), sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	messenger := &fakeMessenger{}
	return &testEnv{
		store:     store,
		messenger: messenger,
		polls: NewPollService(store, messenger, Options{
			Location:       time.UTC,
			Language:       "en",
			LookupAttempts: 3,
			LookupDelay:    time.Millisecond,
			Now:            func() time.Time { return testNow },
		}),
	}
}

func (e *testEnv) group(t *testing.T, chatID int64, active bool, capacities ...int) *db.Group {
	t.Helper()

	ctx := context.Background()
	group, err := e.store.UpsertGroup(ctx, &db.Group{
		ChatID:      chatID,
		Name:        fmt.Sprintf("group %d", chatID),
		PollTopicID: 3,
		Active:      active,
		CloseTime:   "21:00",
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	})
	if err != nil {
		t.Fatalf("upsert group: %v", err)
	}
	for i, capacity := range capacities {
		if _, err := e.store.AddGroupSlot(ctx, &db.SlotConfig{
			GroupID:   group.ID,
			StartTime: fmt.Sprintf("%02d:00", 8+i*4),
			EndTime:   fmt.Sprintf("%02d:00", 12+i*4),
			Capacity:  capacity,
		}); err != nil {
			t.Fatalf("add slot: %v", err)
		}
	}
	group, err = e.store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	return group
}

func (e *testEnv) user(t *testing.T, id int64, username string, verified bool) {
	t.Helper()

	ctx := context.Background()
	if err := e.store.UpsertUser(ctx, &db.User{ID: id, Username: username, FirstName: strings.ToUpper(username[:1]) + username[1:]}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if verified {
		if err := e.store.SetUserVerified(ctx, id, true, testNow); err != nil {
			t.Fatalf("verify user: %v", err)
		}
	}
}

func (e *testEnv) vote(userID int64, username, telegramPollID string, options ...int) (*VoteOutcome, error) {
	return e.polls.RecordVote(context.Background(), VoteInput{
		TelegramPollID: telegramPollID,
		UserID:         userID,
		Username:       username,
		FirstName:      strings.ToUpper(username[:1]) + username[1:],
		OptionIDs:      options,
	})
}

func TestCreateDailyPollsPostsOncePerGroup(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	env.group(t, -1, true, 2, 3)
	env.group(t, -2, true)
	env.group(t, -3, false, 1)

	if err := env.polls.CreateDailyPolls(ctx, testNow); err != nil {
		t.Fatalf("create daily polls: %v", err)
	}
	if err := env.polls.CreateDailyPolls(ctx, testNow); err != nil {
		t.Fatalf("create daily polls again: %v", err)
	}
	if got := env.messenger.pollCount(); got != 1 {
		t.Fatalf("expected exactly one posted poll, got %d", got)
	}

	sent := env.messenger.polls[0]
	if sent.chatID != -1 || sent.topicID != 3 {
		t.Fatalf("poll sent to wrong chat/topic: %#v", sent)
	}
	wantOptions := []string{"08:00-12:00 (2 places)", "12:00-16:00 (3 places)", "Day off"}
	if strings.Join(sent.options, "|") != strings.Join(wantOptions, "|") {
		t.Fatalf("unexpected options: %v", sent.options)
	}
	if !strings.Contains(sent.question, "Monday, 19.10") {
		t.Fatalf("day group must sign up for tomorrow: %q", sent.question)
	}
}

func TestCreateDailyPollsIsolatesFailingGroups(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	healthy := env.group(t, -1, true, 2)
	failing := env.group(t, -2, true, 1)
	env.messenger.failChats = map[int64]error{-2: errors.New("Forbidden: bot was kicked")}

	err := env.polls.CreateDailyPolls(ctx, testNow)
	if err == nil {
		t.Fatalf("expected the failing group to be reported")
	}
	if !strings.Contains(err.Error(), fmt.Sprintf("group %d", failing.ID)) || !strings.Contains(err.Error(), "chat -2") {
		t.Fatalf("error must name the failing group: %v", err)
	}
	if strings.Contains(err.Error(), fmt.Sprintf("group %d:", healthy.ID)) {
		t.Fatalf("healthy group must not fail: %v", err)
	}

	if got := env.messenger.pollCount(); got != 1 || env.messenger.polls[0].chatID != -1 {
		t.Fatalf("healthy group poll must be posted: %#v", env.messenger.polls)
	}
	posted, err := env.polls.ActivePoll(ctx, healthy.ID)
	if err != nil || posted == nil || posted.TelegramPollID == "" {
		t.Fatalf("healthy group poll not stored: %#v, %v", posted, err)
	}
	dropped, err := env.polls.ActivePoll(ctx, failing.ID)
	if err != nil || dropped != nil {
		t.Fatalf("failing group reservation must be dropped: %#v, %v", dropped, err)
	}
}

func TestCreatePollForGroupDropsReservationWhenSendFails(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	group := env.group(t, -1, true, 1)

	env.messenger.sendErr = errors.New("telegram is down")
	if _, err := env.polls.CreatePollForGroup(ctx, group, testNow); err == nil {
		t.Fatalf("expected send error")
	}
	active, err := env.polls.ActivePoll(ctx, group.ID)
	if err != nil || active != nil {
		t.Fatalf("reservation must be removed: %#v, %v", active, err)
	}

	env.messenger.sendErr = nil
	poll, err := env.polls.CreatePollForGroup(ctx, group, testNow)
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	if poll.TelegramPollID == "" || poll.MessageID == 0 {
		t.Fatalf("telegram ids not stored: %#v", poll)
	}
	if poll.PollDate != "2026-10-19" {
		t.Fatalf("unexpected poll date %s", poll.PollDate)
	}
	if want := time.Date(2026, 10, 18, 21, 0, 0, 0, time.UTC); !poll.ClosesAt.Equal(want) {
		t.Fatalf("closes at %s, want %s", poll.ClosesAt, want)
	}
}

func TestRecordVoteGatesAndCapacity(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	group := env.group(t, -1, true, 1, 2)
	poll, err := env.polls.CreatePollForGroup(ctx, group, testNow)
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}

	env.user(t, 1, "anna", true)
	env.user(t, 2, "boris", true)

	out, err := env.vote(3, "carl", poll.TelegramPollID, 0)
	if !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}
	if out == nil || out.Group == nil || out.Group.ChatID != -1 {
		t.Fatalf("outcome must carry the group for notices: %#v", out)
	}

	if _, err := env.vote(1, "anna", poll.TelegramPollID, 0); err != nil {
		t.Fatalf("anna votes: %v", err)
	}
	if _, err := env.vote(2, "boris", poll.TelegramPollID, 0); !errors.Is(err, ErrSlotFull) {
		t.Fatalf("expected ErrSlotFull, got %v", err)
	}
	out, err = env.vote(2, "boris", poll.TelegramPollID, 2)
	if err != nil || !out.DayOff {
		t.Fatalf("boris takes a day off: %#v, %v", out, err)
	}
	out, err = env.vote(1, "anna", poll.TelegramPollID)
	if err != nil || !out.Retracted {
		t.Fatalf("anna retracts: %#v, %v", out, err)
	}
	if _, err := env.vote(2, "boris", poll.TelegramPollID, 0); err != nil {
		t.Fatalf("boris takes the freed slot: %v", err)
	}
	if _, err := env.vote(2, "boris", poll.TelegramPollID, 7); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}

	if _, err := env.vote(1, "anna", "unknown"); !errors.Is(err, ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}

	stored, err := env.store.GetPoll(ctx, poll.ID)
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	if stored.Slots[0].Occupied != 1 || stored.Slots[1].Occupied != 0 {
		t.Fatalf("unexpected occupancy: %#v", stored.Slots)
	}

	members, err := env.store.ListGroupMembers(ctx, group.ID)
	if err != nil || len(members) != 3 {
		t.Fatalf("every voter must become a member: %d, %v", len(members), err)
	}
}

type attachFailStore struct {
	*sqlstore.Client
	failures int
}

func (s *attachFailStore) AttachTelegramPoll(ctx context.Context, pollID int64, telegramPollID string, messageID int) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("database is locked")
	}
	return s.Client.AttachTelegramPoll(ctx, pollID, telegramPollID, messageID)
}

func TestCreatePollForGroupStopsPollWhenIdsAreLost(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	group := env.group(t, -1, true, 1)
	store := &attachFailStore{Client: env.store, failures: 1}
	service := NewPollService(store, env.messenger, Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})

	if _, err := service.CreatePollForGroup(ctx, group, testNow); err == nil {
		t.Fatalf("expected attach error")
	}
	if len(env.messenger.stopped) != 1 || env.messenger.stopped[0] != 101 {
		t.Fatalf("unattached poll must be stopped: %#v", env.messenger.stopped)
	}
	if active, err := service.ActivePoll(ctx, group.ID); err != nil || active != nil {
		t.Fatalf("reservation must be dropped: %#v, %v", active, err)
	}

	poll, err := service.CreatePollForGroup(ctx, group, testNow)
	if err != nil {
		t.Fatalf("create poll again: %v", err)
	}
	if poll.TelegramPollID != "tg-2" || env.messenger.pollCount() != 2 {
		t.Fatalf("fresh poll must be posted: %#v", poll)
	}
}

func TestCreatePollForGroupRepostsOrphanedReservation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	group := env.group(t, -1, true, 1)

	reserve := func(createdAt time.Time) *db.DailyPoll {
		t.Helper()
		poll, created, err := env.store.ReservePoll(ctx, &db.DailyPoll{
			GroupID:   group.ID,
			PollDate:  TargetDate(false, testNow, time.UTC),
			Status:    db.PollStatusActive,
			ClosesAt:  testNow.Add(12 * time.Hour),
			CreatedAt: createdAt,
			Slots:     []db.PollSlot{{StartTime: "08:00", EndTime: "12:00", Capacity: 1}},
		})
		if err != nil || !created {
			t.Fatalf("reserve poll: %v %v", created, err)
		}
		return poll
	}

	fresh := reserve(testNow)
	poll, err := env.polls.CreatePollForGroup(ctx, group, testNow)
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	if poll.ID != fresh.ID || env.messenger.pollCount() != 0 {
		t.Fatalf("a reservation in progress must not be posted twice: %#v", poll)
	}
	if err := env.store.DeletePoll(ctx, fresh.ID); err != nil {
		t.Fatalf("delete poll: %v", err)
	}

	orphan := reserve(testNow.Add(-2 * orphanReservationAge))
	poll, err = env.polls.CreatePollForGroup(ctx, group, testNow)
	if err != nil {
		t.Fatalf("create poll over orphan: %v", err)
	}
	if poll.ID != orphan.ID || env.messenger.pollCount() != 1 || poll.TelegramPollID == "" {
		t.Fatalf("orphaned reservation must be posted: %#v", poll)
	}
	stored, err := env.store.GetPoll(ctx, orphan.ID)
	if err != nil || stored.MessageID != poll.MessageID {
		t.Fatalf("ids not attached to the orphan: %#v, %v", stored, err)
	}
}

type lateStore struct {
	*sqlstore.Client
	mu     sync.Mutex
	misses int
}

func (s *lateStore) GetPollByTelegramID(ctx context.Context, id string) (*db.DailyPoll, error) {
	s.mu.Lock()
	if s.misses > 0 {
		s.misses--
		s.mu.Unlock()
		return nil, nil
	}
	s.mu.Unlock()
	return s.Client.GetPollByTelegramID(ctx, id)
}

func TestRecordVoteRetriesPollLookup(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	group := env.group(t, -1, true, 1)
	poll, err := env.polls.CreatePollForGroup(ctx, group, testNow)
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	env.user(t, 1, "anna", true)

	store := &lateStore{Client: env.store, misses: 2}
	service := NewPollService(store, env.messenger, Options{
		LookupAttempts: 3,
		LookupDelay:    time.Millisecond,
		Now:            func() time.Time { return testNow },
	})
	if _, err := service.RecordVote(ctx, VoteInput{TelegramPollID: poll.TelegramPollID, UserID: 1, Username: "anna", OptionIDs: []int{0}}); err != nil {
		t.Fatalf("vote after two misses: %v", err)
	}

	store.misses = 3
	_, err = service.RecordVote(ctx, VoteInput{TelegramPollID: poll.TelegramPollID, UserID: 1, Username: "anna", OptionIDs: []int{1}})
	if !errors.Is(err, ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound after exhausting attempts, got %v", err)
	}
}

func TestClosePollPostsReportOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	group := env.group(t, -1, true, 2, 1)
	poll, err := env.polls.CreatePollForGroup(ctx, group, testNow)
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	env.user(t, 1, "anna", true)
	env.user(t, 2, "boris", true)
	env.user(t, 3, "carl", true)
	env.user(t, 4, "dora", false)
	for _, id := range []int64{1, 2, 3, 4} {
		if err := env.store.AddGroupMember(ctx, group.ID, id, testNow); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	if _, err := env.vote(1, "anna", poll.TelegramPollID, 0); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := env.vote(2, "boris", poll.TelegramPollID, 2); err != nil {
		t.Fatalf("vote: %v", err)
	}

	if err := env.polls.CloseExpiredPolls(ctx, testNow); err != nil {
		t.Fatalf("close before cutoff: %v", err)
	}
	if len(env.messenger.texts) != 0 {
		t.Fatalf("poll closed before its cutoff")
	}

	closeAt := testNow.Add(12 * time.Hour)
	if err := env.polls.CloseExpiredPolls(ctx, closeAt); err != nil {
		t.Fatalf("close expired polls: %v", err)
	}
	if err := env.polls.ClosePoll(ctx, poll); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if len(env.messenger.texts) != 1 || len(env.messenger.stopped) != 1 {
		t.Fatalf("expected one report and one stop, got %d and %d", len(env.messenger.texts), len(env.messenger.stopped))
	}

	report := env.messenger.texts[0].text
	for _, want := range []string{
		"Results for Monday, 19.10",
		"08:00-12:00: 1 of 2 taken",
		"• Anna",
		"12:00-16:00: 0 of 1 taken",
		"• nobody",
		"Day off: Boris",
		"No vote: Carl",
		"Free places left: 2",
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("report misses %q:\n%s", want, report)
		}
	}
	if strings.Contains(report, "Dora") {
		t.Fatalf("unverified members are not no-shows:\n%s", report)
	}
	if env.messenger.texts[0].topicID != 3 {
		t.Fatalf("report must fall back to the poll topic, got %d", env.messenger.texts[0].topicID)
	}

	if _, err := env.vote(3, "carl", poll.TelegramPollID, 0); !errors.Is(err, ErrPollClosed) {
		t.Fatalf("expected ErrPollClosed, got %v", err)
	}
	stored, err := env.store.GetPoll(ctx, poll.ID)
	if err != nil || stored.ReportMessageID == 0 {
		t.Fatalf("report message id not stored: %#v, %v", stored, err)
	}
}

func TestCloseExpiredPollsRetriesFailedReport(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	group := env.group(t, -1, true, 1)
	poll, err := env.polls.CreatePollForGroup(ctx, group, testNow)
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}

	env.messenger.textErrs = []error{errors.New("Bad Gateway")}
	closeAt := testNow.Add(12 * time.Hour)
	if err := env.polls.CloseExpiredPolls(ctx, closeAt); err == nil || !strings.Contains(err.Error(), "Bad Gateway") {
		t.Fatalf("expected the send error, got %v", err)
	}
	if active, _ := env.polls.ActivePoll(ctx, group.ID); active != nil {
		t.Fatalf("poll must be closed even without a report")
	}
	if len(env.messenger.texts) != 0 {
		t.Fatalf("failed report must not be retried in the same pass")
	}

	if err := env.polls.CloseExpiredPolls(ctx, closeAt.Add(time.Minute)); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(env.messenger.texts) != 1 || !strings.Contains(env.messenger.texts[0].text, "Results for") {
		t.Fatalf("report must be posted by the next pass: %#v", env.messenger.texts)
	}
	stored, err := env.store.GetPoll(ctx, poll.ID)
	if err != nil || stored.ReportMessageID == 0 {
		t.Fatalf("report message id not stored: %#v, %v", stored, err)
	}

	if err := env.polls.CloseExpiredPolls(ctx, closeAt.Add(2*time.Minute)); err != nil {
		t.Fatalf("third pass: %v", err)
	}
	if len(env.messenger.texts) != 1 {
		t.Fatalf("report must be posted once, got %d", len(env.messenger.texts))
	}
}

func TestSendRemindersMentionsMissingMembers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	group := env.group(t, -1, true, 2)
	poll, err := env.polls.CreatePollForGroup(ctx, group, testNow)
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	env.user(t, 1, "anna", true)
	env.user(t, 2, "boris", true)
	for _, id := range []int64{1, 2} {
		if err := env.store.AddGroupMember(ctx, group.ID, id, testNow); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	if _, err := env.vote(1, "anna", poll.TelegramPollID, 0); err != nil {
		t.Fatalf("vote: %v", err)
	}

	if err := env.polls.SendReminders(ctx, testNow.Add(time.Hour)); err != nil {
		t.Fatalf("send reminders: %v", err)
	}
	if len(env.messenger.texts) != 1 {
		t.Fatalf("expected one reminder, got %d", len(env.messenger.texts))
	}
	msg := env.messenger.texts[0].text
	if !strings.Contains(msg, "@boris") || strings.Contains(msg, "@anna") {
		t.Fatalf("unexpected reminder: %q", msg)
	}
	if !strings.Contains(msg, "closes at 21:00") {
		t.Fatalf("reminder must mention the cutoff: %q", msg)
	}

	if err := env.polls.SendReminders(ctx, testNow.Add(13*time.Hour)); err != nil {
		t.Fatalf("send reminders after cutoff: %v", err)
	}
	if len(env.messenger.texts) != 1 {
		t.Fatalf("no reminders after the cutoff")
	}
}

func TestRestoreVoteBypassesVerification(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	group := env.group(t, -1, true, 1)
	poll, err := env.polls.CreatePollForGroup(ctx, group, testNow)
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}

	out, err := env.polls.RestoreVote(ctx, poll.ID, 77, 0)
	if err != nil {
		t.Fatalf("restore vote: %v", err)
	}
	if out.Slot == nil || out.Slot.Position != 0 {
		t.Fatalf("unexpected outcome: %#v", out)
	}
	vote, err := env.store.GetVote(ctx, poll.ID, 77)
	if err != nil || vote == nil || !vote.SlotID.Valid {
		t.Fatalf("vote not stored: %#v, %v", vote, err)
	}
	if _, err := env.polls.RestoreVote(ctx, poll.ID+100, 77, 0); !errors.Is(err, ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}
}
