package members

import (
	"context"
	"fmt"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/shiftbot/internal/db"
	"github.com/iamwavecut/shiftbot/internal/handlers/base"
)

type Store interface {
	UpsertUser(ctx context.Context, user *db.User) error
	AddGroupMember(ctx context.Context, groupID, userID int64, seenAt time.Time) error
	RemoveGroupMember(ctx context.Context, groupID, userID int64) error
}

type Groups interface {
	Group(ctx context.Context, chatID int64) (*db.Group, error)
}

// Members remembers who writes in registered groups, so reminders and
// reports know the people that did not vote.
type Members struct {
	base.BaseHandler
	store  Store
	groups Groups
	now    func() time.Time
}

func New(store Store, groups Groups, language string) *Members {
	return &Members{
		BaseHandler: base.NewBaseHandler(language, "members"),
		store:       store,
		groups:      groups,
		now:         time.Now,
	}
}

func (m *Members) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if err := m.ValidateUpdate(u, chat, user); err != nil {
		return true, nil
	}
	if !base.IsGroupChat(chat) || (u.Message == nil && u.ChatMember == nil) {
		return true, nil
	}

	group, err := m.groups.Group(ctx, chat.ID)
	if err != nil {
		return true, fmt.Errorf("get group: %w", err)
	}
	if group == nil {
		return true, nil
	}

	if u.ChatMember != nil {
		member := u.ChatMember.NewChatMember
		if member.User == nil || !(member.HasLeft() || member.WasKicked()) {
			return true, nil
		}
		return true, m.forget(ctx, group.ID, member.User)
	}

	if left := u.Message.LeftChatMember; left != nil {
		return true, m.forget(ctx, group.ID, left)
	}

	seen := []*api.User{user}
	for i := range u.Message.NewChatMembers {
		seen = append(seen, &u.Message.NewChatMembers[i])
	}
	for _, member := range seen {
		if member.IsBot {
			continue
		}
		if err := m.store.UpsertUser(ctx, base.UserFromAPI(member)); err != nil {
			return true, fmt.Errorf("upsert user: %w", err)
		}
		if err := m.store.AddGroupMember(ctx, group.ID, member.ID, m.now()); err != nil {
			return true, fmt.Errorf("add group member: %w", err)
		}
	}
	return true, nil
}

// forget drops a user that left the group from the no-vote lists.
func (m *Members) forget(ctx context.Context, groupID int64, user *api.User) error {
	if user.IsBot {
		return nil
	}
	if err := m.store.RemoveGroupMember(ctx, groupID, user.ID); err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	return nil
}
