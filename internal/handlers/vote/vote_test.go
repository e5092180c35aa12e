package vote

import (
	"context"
	"errors"
	"strings"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/shiftbot/internal/db"
	"github.com/iamwavecut/shiftbot/internal/shift"
)

type fakeRecorder struct {
	out   *shift.VoteOutcome
	err   error
	input shift.VoteInput
}

func (r *fakeRecorder) RecordVote(_ context.Context, in shift.VoteInput) (*shift.VoteOutcome, error) {
	r.input = in
	return r.out, r.err
}

type notice struct {
	chatID  int64
	topicID int
	text    string
}

type fakeNotifier struct {
	sent []notice
}

func (n *fakeNotifier) SendText(_ context.Context, chatID int64, topicID int, text string) (int, error) {
	n.sent = append(n.sent, notice{chatID: chatID, topicID: topicID, text: text})
	return len(n.sent), nil
}

func pollAnswer(options ...int) *api.Update {
	return &api.Update{PollAnswer: &api.PollAnswer{
		PollID:    "tg-1",
		User:      &api.User{ID: 7, UserName: "anna", FirstName: "Anna"},
		OptionIDs: options,
	}}
}

func outcome() *shift.VoteOutcome {
	return &shift.VoteOutcome{
		Group: &db.Group{ID: 1, ChatID: -100, PollTopicID: 5, ReportTopicID: 9},
		Slot:  &db.PollSlot{StartTime: "08:00", EndTime: "12:00", Capacity: 1, Occupied: 1},
	}
}

func TestHandlePassesOtherUpdates(t *testing.T) {
	t.Parallel()

	handler := New(&fakeRecorder{}, &fakeNotifier{}, "en")
	proceed, err := handler.Handle(context.Background(), &api.Update{Message: &api.Message{}}, nil, nil)
	if err != nil || !proceed {
		t.Fatalf("non poll updates must pass through: %v %v", proceed, err)
	}
}

func TestHandleRecordsVote(t *testing.T) {
	t.Parallel()

	recorder := &fakeRecorder{out: outcome()}
	notifier := &fakeNotifier{}
	handler := New(recorder, notifier, "en")

	proceed, err := handler.Handle(context.Background(), pollAnswer(1), nil, nil)
	if err != nil || proceed {
		t.Fatalf("unexpected result: %v %v", proceed, err)
	}
	if recorder.input.TelegramPollID != "tg-1" || recorder.input.UserID != 7 || recorder.input.OptionIDs[0] != 1 {
		t.Fatalf("unexpected input: %#v", recorder.input)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("accepted votes are silent: %#v", notifier.sent)
	}
}

func TestHandleNotifiesRejectedVotes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"slot full", shift.ErrSlotFull, "@anna, slot 08:00-12:00 is already full"},
		{"not verified", shift.ErrNotVerified, "@anna, your vote is not counted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			notifier := &fakeNotifier{}
			handler := New(&fakeRecorder{out: outcome(), err: tt.err}, notifier, "en")

			if _, err := handler.Handle(context.Background(), pollAnswer(0), nil, nil); err != nil {
				t.Fatalf("handle: %v", err)
			}
			if len(notifier.sent) != 1 {
				t.Fatalf("expected one notice, got %d", len(notifier.sent))
			}
			got := notifier.sent[0]
			if got.chatID != -100 || got.topicID != 5 {
				t.Fatalf("notice must go to the poll topic: %#v", got)
			}
			if !strings.HasPrefix(got.text, tt.want) {
				t.Fatalf("unexpected notice %q", got.text)
			}
		})
	}
}

func TestHandleIgnoresStaleAndReturnsStoreErrors(t *testing.T) {
	t.Parallel()

	notifier := &fakeNotifier{}
	for _, stale := range []error{shift.ErrPollNotFound, shift.ErrPollClosed} {
		handler := New(&fakeRecorder{err: stale}, notifier, "en")
		if _, err := handler.Handle(context.Background(), pollAnswer(0), nil, nil); err != nil {
			t.Fatalf("%v must not fail the update: %v", stale, err)
		}
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("stale answers are silent")
	}

	storeErr := errors.New("database is locked")
	handler := New(&fakeRecorder{err: storeErr}, notifier, "en")
	if _, err := handler.Handle(context.Background(), pollAnswer(0), nil, nil); !errors.Is(err, storeErr) {
		t.Fatalf("expected the store error, got %v", err)
	}
}
