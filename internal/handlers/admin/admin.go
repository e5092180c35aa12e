package admin

import (
	"context"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/shiftbot/internal/bot"
	"github.com/iamwavecut/shiftbot/internal/db"
	"github.com/iamwavecut/shiftbot/internal/shift"
)

type Admin struct {
	s         bot.Service
	store     adminStore
	polls     pollOperations
	verifier  verifier
	messenger panelMessenger
	groups    groupCache
	notifier  decisionNotifier
	now       func() time.Time

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

type adminStore interface {
	UpsertGroup(ctx context.Context, group *db.Group) (*db.Group, error)
	UpdateGroup(ctx context.Context, group *db.Group) error
	GetGroup(ctx context.Context, id int64) (*db.Group, error)
	GetGroupByChat(ctx context.Context, chatID int64) (*db.Group, error)
	ListGroups(ctx context.Context) ([]*db.Group, error)
	DeleteGroup(ctx context.Context, id int64) error
	AddGroupSlot(ctx context.Context, slot *db.SlotConfig) (*db.SlotConfig, error)
	DeleteGroupSlot(ctx context.Context, groupID, slotID int64) error

	CreateAdminPanelSession(ctx context.Context, session *db.AdminPanelSession) (*db.AdminPanelSession, error)
	GetAdminPanelSession(ctx context.Context, id int64) (*db.AdminPanelSession, error)
	GetAdminPanelSessionByUser(ctx context.Context, userID int64) (*db.AdminPanelSession, error)
	UpdateAdminPanelSession(ctx context.Context, session *db.AdminPanelSession) error
	DeleteAdminPanelSession(ctx context.Context, id int64) error
	ListAdminPanelSessions(ctx context.Context) ([]*db.AdminPanelSession, error)

	CreateAdminPanelCommand(ctx context.Context, cmd *db.AdminPanelCommand) (*db.AdminPanelCommand, error)
	GetAdminPanelCommand(ctx context.Context, id int64) (*db.AdminPanelCommand, error)
	DeleteAdminPanelCommandsBySession(ctx context.Context, sessionID int64) error
}

type pollOperations interface {
	PostNow(ctx context.Context, groupID int64) (*db.DailyPoll, bool, error)
	CloseNow(ctx context.Context, groupID int64) error
	ActivePoll(ctx context.Context, groupID int64) (*db.DailyPoll, error)
	Broadcast(ctx context.Context, text string) (int, error)
	RestoreVote(ctx context.Context, pollID, userID int64, position int) (*shift.VoteOutcome, error)
}

type verifier interface {
	Pending(ctx context.Context) ([]shift.PendingRequest, error)
	Approve(ctx context.Context, token string, adminID int64) (*shift.PendingRequest, error)
	Reject(ctx context.Context, token string, adminID int64) (*shift.PendingRequest, error)
}

type panelMessenger interface {
	SendText(ctx context.Context, chatID int64, topicID int, text string) (int, error)
	SendWithKeyboard(ctx context.Context, chatID int64, text string, keyboard *api.InlineKeyboardMarkup) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, keyboard *api.InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	Typing(ctx context.Context, chatID int64)
}

type groupCache interface {
	Forget(chatID int64)
}

type decisionNotifier interface {
	NotifyDecision(ctx context.Context, decided *shift.PendingRequest)
}

type Deps struct {
	Polls     pollOperations
	Verifier  verifier
	Messenger panelMessenger
	Groups    groupCache
	Notifier  decisionNotifier
}

func NewAdmin(s bot.Service, deps Deps) *Admin {
	entry := log.WithField("object", "Admin").WithField("method", "NewAdmin")

	a := &Admin{
		s:         s,
		store:     s.GetDB(),
		polls:     deps.Polls,
		verifier:  deps.Verifier,
		messenger: deps.Messenger,
		groups:    deps.Groups,
		notifier:  deps.Notifier,
		now:       time.Now,
	}
	entry.Debug("created new admin handler")
	return a
}

func (a *Admin) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.startPanelCleanup(runCtx)
	a.started = true
	return nil
}

func (a *Admin) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (a *Admin) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error) {
	entry := a.getLogEntry().WithField("method", "Handle")

	if u == nil {
		return true, nil
	}

	if u.MyChatMember != nil {
		if err := a.handleMyChatMember(ctx, u.MyChatMember); err != nil {
			entry.WithField("error", err.Error()).Error("failed to handle my_chat_member update")
			return false, err
		}
		return false, nil
	}

	if u.CallbackQuery != nil {
		handled, err := a.handlePanelCallback(ctx, u.CallbackQuery, user)
		if err != nil {
			entry.WithField("error", err.Error()).Error("failed to handle callback")
			return false, err
		}
		return !handled, nil
	}

	if u.Message == nil || user == nil || chat == nil {
		entry.Debug("chat or user is nil, proceeding")
		return true, nil
	}

	if u.Message.IsCommand() {
		switch u.Message.Command() {
		case "register":
			entry.Debug("processing register command")
			return false, a.handleRegisterCommand(ctx, u.Message, chat, user)
		case "admin":
			entry.Debug("processing admin command")
			return false, a.handleAdminCommand(ctx, chat, user)
		default:
			return true, nil
		}
	}

	handled, err := a.handlePanelInput(ctx, u.Message, chat, user)
	if err != nil {
		entry.WithField("error", err.Error()).Error("failed to handle panel input")
		return false, err
	}
	return !handled, nil
}

func (a *Admin) language() string {
	return a.s.GetLanguage()
}

func (a *Admin) getLogEntry() *log.Entry {
	return log.WithField("context", "admin")
}
