package verify

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/shiftbot/internal/db/sqlstore"
	"github.com/iamwavecut/shiftbot/internal/shift"
)

type sentMessage struct {
	chatID   int64
	text     string
	keyboard *api.InlineKeyboardMarkup
}

type fakeMessenger struct {
	mu       sync.Mutex
	sent     []sentMessage
	edits    []string
	answered []string
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, _ int, text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text})
	return len(m.sent), nil
}

func (m *fakeMessenger) SendWithKeyboard(_ context.Context, chatID int64, text string, keyboard *api.InlineKeyboardMarkup) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text, keyboard: keyboard})
	return len(m.sent), nil
}

func (m *fakeMessenger) EditText(_ context.Context, _ int64, _ int, text string, _ *api.InlineKeyboardMarkup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, text)
	return nil
}

func (m *fakeMessenger) AnswerCallback(_ context.Context, _ string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answered = append(m.answered, text)
	return nil
}

func (m *fakeMessenger) to(chatID int64) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, msg := range m.sent {
		if msg.chatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

func newHandler(t *testing.T) (*Verify, *fakeMessenger, *sqlstore.Client) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlstore.New(ctx, sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	messenger := &fakeMessenger{}
	return New(shift.NewVerificationService(store), messenger, []int64{1000}, "en"), messenger, store
}

func privateCommand(userID int64, command string) (*api.Update, *api.Chat, *api.User) {
	user := &api.User{ID: userID, FirstName: "Anna", UserName: "anna"}
	chat := &api.Chat{ID: userID, Type: "private"}
	return &api.Update{Message: &api.Message{
		Text:     command,
		Chat:     *chat,
		From:     user,
		Entities: []api.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(command)[0])}},
	}}, chat, user
}

func callback(fromID int64, data string) *api.Update {
	return &api.Update{CallbackQuery: &api.CallbackQuery{
		ID:   "cb",
		From: &api.User{ID: fromID, FirstName: "Boss"},
		Data: data,
		Message: &api.Message{
			MessageID: 1,
			Chat:      api.Chat{ID: fromID},
			Text:      "Verification request from Anna (id 7)",
		},
	}}
}

func approveData(t *testing.T, msg sentMessage) string {
	t.Helper()
	if msg.keyboard == nil || len(msg.keyboard.InlineKeyboard) == 0 || len(msg.keyboard.InlineKeyboard[0]) != 2 {
		t.Fatalf("admin message has no decision keyboard: %#v", msg)
	}
	data := msg.keyboard.InlineKeyboard[0][0].CallbackData
	if data == nil || !strings.HasPrefix(*data, callbackApprove) {
		t.Fatalf("unexpected approve button: %#v", msg.keyboard.InlineKeyboard[0][0])
	}
	return *data
}

func TestVerifyRequestAndApprove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	handler, messenger, store := newHandler(t)

	u, chat, user := privateCommand(7, "/verify")
	proceed, err := handler.Handle(ctx, u, chat, user)
	if err != nil || proceed {
		t.Fatalf("unexpected result: %v %v", proceed, err)
	}
	toAdmin := messenger.to(1000)
	if len(toAdmin) != 1 || !strings.Contains(toAdmin[0].text, "Anna (id 7)") {
		t.Fatalf("admin not notified: %#v", toAdmin)
	}
	if got := messenger.to(7); len(got) != 1 || !strings.Contains(got[0].text, "was sent") {
		t.Fatalf("unexpected user reply: %#v", got)
	}

	if _, err := handler.Handle(ctx, u, chat, user); err != nil {
		t.Fatalf("repeat request: %v", err)
	}
	if got := messenger.to(7); len(got) != 2 || !strings.Contains(got[1].text, "already pending") {
		t.Fatalf("repeat request must report pending: %#v", got)
	}
	if len(messenger.to(1000)) != 1 {
		t.Fatalf("admins must be notified once")
	}

	proceed, err = handler.Handle(ctx, callback(1000, approveData(t, toAdmin[0])), nil, nil)
	if err != nil || proceed {
		t.Fatalf("approve: %v %v", proceed, err)
	}
	stored, err := store.GetUser(ctx, 7)
	if err != nil || stored == nil || !stored.Verified {
		t.Fatalf("user must be verified: %#v %v", stored, err)
	}
	if got := messenger.to(7); !strings.Contains(got[len(got)-1].text, "You are verified") {
		t.Fatalf("user not told about approval: %#v", got)
	}
	if len(messenger.edits) != 1 || !strings.Contains(messenger.edits[0], "Approved: Boss") {
		t.Fatalf("admin message not updated: %#v", messenger.edits)
	}

	if _, err := handler.Handle(ctx, callback(1000, approveData(t, toAdmin[0])), nil, nil); err != nil {
		t.Fatalf("second decision: %v", err)
	}
	if last := messenger.answered[len(messenger.answered)-1]; last != "This request is already decided" {
		t.Fatalf("unexpected toast %q", last)
	}

	if _, err := handler.Handle(ctx, u, chat, user); err != nil {
		t.Fatalf("request after approval: %v", err)
	}
	if got := messenger.to(7); !strings.Contains(got[len(got)-1].text, "already verified") {
		t.Fatalf("verified user must be told so: %#v", got)
	}
}

func TestVerifyDecisionRequiresAdmin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	handler, messenger, store := newHandler(t)

	u, chat, user := privateCommand(7, "/start")
	if _, err := handler.Handle(ctx, u, chat, user); err != nil {
		t.Fatalf("request: %v", err)
	}
	data := approveData(t, messenger.to(1000)[0])

	if _, err := handler.Handle(ctx, callback(7, data), nil, nil); err != nil {
		t.Fatalf("decision by non admin: %v", err)
	}
	if len(messenger.answered) != 1 || messenger.answered[0] != "No access" {
		t.Fatalf("unexpected answers: %#v", messenger.answered)
	}
	stored, _ := store.GetUser(ctx, 7)
	if stored == nil || stored.Verified {
		t.Fatalf("non admin must not verify: %#v", stored)
	}

	if _, err := handler.Handle(ctx, callback(1000, callbackReject+"missing"), nil, nil); err != nil {
		t.Fatalf("missing token: %v", err)
	}
	if last := messenger.answered[len(messenger.answered)-1]; last != "Request not found" {
		t.Fatalf("unexpected toast %q", last)
	}
}

func TestVerifyIgnoresOtherUpdates(t *testing.T) {
	t.Parallel()
	handler, messenger, _ := newHandler(t)

	u, _, user := privateCommand(7, "/verify")
	group := &api.Chat{ID: -100, Type: "supergroup"}
	proceed, err := handler.Handle(context.Background(), u, group, user)
	if err != nil || !proceed {
		t.Fatalf("group commands pass through: %v %v", proceed, err)
	}

	u, chat, user := privateCommand(7, "/start other")
	proceed, err = handler.Handle(context.Background(), u, chat, user)
	if err != nil || !proceed {
		t.Fatalf("deep links other than verify pass through: %v %v", proceed, err)
	}
	if len(messenger.sent) != 0 {
		t.Fatalf("nothing must be sent: %#v", messenger.sent)
	}
}

func TestVerifyAdminToggle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	handler, messenger, store := newHandler(t)

	u, chat, admin := privateCommand(1000, "/verify 42")
	if _, err := handler.Handle(ctx, u, chat, admin); err != nil {
		t.Fatalf("verify by id: %v", err)
	}
	stored, err := store.GetUser(ctx, 42)
	if err != nil || stored == nil || !stored.Verified {
		t.Fatalf("user must be verified: %#v %v", stored, err)
	}
	if got := messenger.to(1000); len(got) != 1 || got[0].text != "User 42 is verified" {
		t.Fatalf("unexpected admin reply: %#v", got)
	}

	u, chat, admin = privateCommand(1000, "/unverify 42")
	if _, err := handler.Handle(ctx, u, chat, admin); err != nil {
		t.Fatalf("unverify by id: %v", err)
	}
	stored, _ = store.GetUser(ctx, 42)
	if stored == nil || stored.Verified {
		t.Fatalf("user must not be verified: %#v", stored)
	}

	u, chat, admin = privateCommand(1000, "/unverify abc")
	if _, err := handler.Handle(ctx, u, chat, admin); err != nil {
		t.Fatalf("bad id: %v", err)
	}
	if got := messenger.to(1000); got[len(got)-1].text != "Send the user id after the command" {
		t.Fatalf("unexpected reply: %#v", got)
	}

	u, chat, user := privateCommand(7, "/unverify 42")
	proceed, err := handler.Handle(ctx, u, chat, user)
	if err != nil || !proceed {
		t.Fatalf("non admins pass through: %v %v", proceed, err)
	}
}
