package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/shiftbot/internal/db"
	"github.com/iamwavecut/shiftbot/internal/handlers/base"
	"github.com/iamwavecut/shiftbot/internal/i18n"
	"github.com/iamwavecut/shiftbot/internal/shift"
)

// handleMyChatMember deactivates a registered group once the bot is removed from it.
func (a *Admin) handleMyChatMember(ctx context.Context, update *api.ChatMemberUpdated) error {
	if update == nil {
		return nil
	}
	status := update.NewChatMember.Status
	if status != "left" && status != "kicked" {
		return nil
	}
	group, err := a.store.GetGroupByChat(ctx, update.Chat.ID)
	if err != nil {
		return err
	}
	if group == nil || !group.Active {
		return nil
	}
	group.Active = false
	group.UpdatedAt = a.now()
	if err := a.store.UpdateGroup(ctx, group); err != nil {
		return err
	}
	a.forgetGroup(group.ChatID)
	a.getLogEntry().WithField("chat_id", group.ChatID).Warn("bot removed from group, group deactivated")
	return nil
}

func (a *Admin) handleRegisterCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	entry := a.getLogEntry().WithField("command", "register")
	lang := a.language()
	if !base.IsGroupChat(chat) {
		if base.IsPrivateChat(chat) {
			_, _ = a.messenger.SendText(ctx, chat.ID, 0, i18n.Get("Send /register in the group you want to add", lang))
		}
		return nil
	}
	if !a.ensureAdminAccess(ctx, user.ID, "") {
		return nil
	}

	topicID := 0
	if msg.IsTopicMessage {
		topicID = msg.MessageThreadID
	}
	now := a.now()
	group, err := a.store.UpsertGroup(ctx, &db.Group{
		ChatID:      chat.ID,
		Name:        chat.Title,
		PollTopicID: topicID,
		Active:      true,
		CloseTime:   defaultCloseTime,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return fmt.Errorf("register group: %w", err)
	}
	if !group.Active {
		group.Active = true
		group.UpdatedAt = now
		if err := a.store.UpdateGroup(ctx, group); err != nil {
			return fmt.Errorf("activate group: %w", err)
		}
	}
	a.forgetGroup(chat.ID)

	reply := fmt.Sprintf(i18n.Get("Group %s is registered. Configure slots with /admin in a private chat with the bot.", lang), group.Name)
	if _, err := a.messenger.SendText(ctx, chat.ID, topicID, reply); err != nil {
		entry.WithField("error", err.Error()).Warn("cant confirm registration")
	}
	entry.WithField("chat_id", chat.ID).WithField("topic_id", topicID).Info("group registered")
	return nil
}

func (a *Admin) handleAdminCommand(ctx context.Context, chat *api.Chat, user *api.User) error {
	entry := a.getLogEntry().WithField("command", "admin")
	lang := a.language()
	if !base.IsPrivateChat(chat) {
		return nil
	}
	if !a.ensureAdminAccess(ctx, user.ID, "") {
		_, _ = a.messenger.SendText(ctx, chat.ID, 0, i18n.Get("No access", lang))
		return nil
	}

	stopTyping := a.startTyping(ctx, chat.ID)
	defer stopTyping()

	placeholderID, err := a.sendPlaceholder(ctx, chat.ID, lang)
	if err != nil {
		return fmt.Errorf("send placeholder: %w", err)
	}

	if err := a.replaceExistingSession(ctx, user.ID); err != nil {
		entry.WithField("error", err.Error()).Error("failed to replace existing session")
	}

	state := newPanelState(user.ID, lang)
	now := a.now()
	session, err := a.store.CreateAdminPanelSession(ctx, &db.AdminPanelSession{
		UserID:    user.ID,
		Page:      string(state.Page),
		StateJSON: mustJSON(state),
		MessageID: placeholderID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("create admin panel session: %w", err)
	}
	state.SessionID = session.ID

	return a.renderAndUpdatePanel(ctx, session, state, placeholderID)
}

func (a *Admin) handlePanelCallback(ctx context.Context, cq *api.CallbackQuery, user *api.User) (bool, error) {
	if cq == nil {
		return false, nil
	}
	if cq.From != nil {
		user = cq.From
	}
	if user == nil {
		return false, nil
	}

	session, cmd, ok, err := a.findPanelSessionCommand(ctx, cq.Data)
	if err != nil {
		return true, err
	}
	if !ok {
		return false, nil
	}
	if session == nil || cmd == nil {
		a.answerCallback(ctx, cq.ID, i18n.Get("Session expired", a.language()))
		return true, nil
	}

	if session.UserID != user.ID {
		a.answerCallback(ctx, cq.ID, i18n.Get("No access", a.language()))
		return true, nil
	}

	stopTyping := a.startTyping(ctx, session.UserID)
	defer stopTyping()

	state, err := a.loadPanelState(session)
	if err != nil {
		return true, err
	}

	command := panelCommand{}
	if err := json.Unmarshal([]byte(cmd.Payload), &command); err != nil {
		return true, err
	}

	if command.Action == panelActionCloseConfirm {
		a.answerCallback(ctx, cq.ID, "")
		return true, a.closePanelSession(ctx, session)
	}

	if !a.ensureAdminAccess(ctx, user.ID, cq.ID) {
		return true, nil
	}

	if err := a.applyPanelCommand(ctx, session, &state, command, user.ID); err != nil {
		return true, err
	}

	a.answerCallback(ctx, cq.ID, "")
	return true, a.renderAndUpdatePanel(ctx, session, state, session.MessageID)
}

func (a *Admin) handlePanelInput(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) (bool, error) {
	if msg == nil || !base.IsPrivateChat(chat) || user == nil {
		return false, nil
	}
	if msg.Text == "" || msg.IsCommand() {
		return false, nil
	}

	session, err := a.store.GetAdminPanelSessionByUser(ctx, user.ID)
	if err != nil {
		return true, err
	}
	if session == nil || !isPromptPage(panelPage(session.Page)) {
		return false, nil
	}
	if !a.ensureAdminAccess(ctx, user.ID, "") {
		return false, nil
	}

	stopTyping := a.startTyping(ctx, chat.ID)
	defer stopTyping()

	state, err := a.loadPanelState(session)
	if err != nil {
		return true, err
	}
	lang := state.Language

	input := strings.TrimSpace(msg.Text)
	if input == "" || len([]rune(input)) > panelMaxInputLen {
		state.PromptError = i18n.Get("Invalid input", lang)
		return true, a.renderAndUpdatePanel(ctx, session, state, session.MessageID)
	}

	var inputErr string
	switch state.Page {
	case panelPageTopicPrompt:
		inputErr, err = a.applyTopicInput(ctx, &state, input)
	case panelPageSlotPrompt:
		inputErr, err = a.applySlotInput(ctx, &state, input)
	case panelPageBroadcastPrompt:
		sent, broadcastErr := a.polls.Broadcast(ctx, input)
		if broadcastErr != nil {
			a.getLogEntry().WithField("error", broadcastErr.Error()).Warn("broadcast was not delivered everywhere")
		}
		state.Notice = fmt.Sprintf(i18n.Get("Sent to %d groups", lang), sent)
		state.Page = panelPageHome
	case panelPageRestorePrompt:
		inputErr, err = a.applyRestoreInput(ctx, &state, input)
	default:
		return false, nil
	}
	if err != nil {
		return true, err
	}
	if inputErr != "" {
		state.PromptError = inputErr
		return true, a.renderAndUpdatePanel(ctx, session, state, session.MessageID)
	}

	state.PromptError = ""
	return true, a.repostPanel(ctx, session, state)
}

// repostPanel moves the panel below the admin's input message.
func (a *Admin) repostPanel(ctx context.Context, session *db.AdminPanelSession, state panelState) error {
	if session.MessageID != 0 {
		_ = a.messenger.DeleteMessage(ctx, session.UserID, session.MessageID)
	}
	placeholderID, err := a.sendPlaceholder(ctx, session.UserID, state.Language)
	if err != nil {
		return err
	}
	session.MessageID = placeholderID
	return a.renderAndUpdatePanel(ctx, session, state, placeholderID)
}

func (a *Admin) applyTopicInput(ctx context.Context, state *panelState, input string) (string, error) {
	lang := state.Language
	fields := strings.Fields(input)
	if len(fields) == 0 || len(fields) > 2 {
		return i18n.Get("Invalid input", lang), nil
	}
	topics := make([]int, 0, 2)
	for _, field := range fields {
		topic, err := strconv.Atoi(field)
		if err != nil || topic < 0 {
			return i18n.Get("Invalid input", lang), nil
		}
		topics = append(topics, topic)
	}

	err := a.updateGroup(ctx, state.GroupID, func(group *db.Group) {
		group.PollTopicID = topics[0]
		if len(topics) > 1 {
			group.ReportTopicID = topics[1]
		}
	})
	if err != nil {
		return "", err
	}
	state.Page = panelPageGroupDetail
	state.Notice = i18n.Get("Topics are saved", lang)
	return "", nil
}

func (a *Admin) applySlotInput(ctx context.Context, state *panelState, input string) (string, error) {
	lang := state.Language
	start, end, capacity, err := shift.ParseSlotSpec(input)
	if err != nil {
		return i18n.Get("Invalid slot, expected HH:MM-HH:MM capacity", lang), nil
	}
	group, err := a.store.GetGroup(ctx, state.GroupID)
	if err != nil {
		return "", err
	}
	if group == nil {
		state.Page = panelPageGroupsList
		return "", nil
	}
	if len(group.Slots) >= shift.MaxSlots {
		return fmt.Sprintf(i18n.Get("A group can have at most %d slots", lang), shift.MaxSlots), nil
	}
	if _, err := a.store.AddGroupSlot(ctx, &db.SlotConfig{
		GroupID:   group.ID,
		StartTime: start,
		EndTime:   end,
		Capacity:  capacity,
	}); err != nil {
		return "", err
	}
	state.Page = panelPageSlots
	return "", nil
}

func (a *Admin) applyRestoreInput(ctx context.Context, state *panelState, input string) (string, error) {
	lang := state.Language
	fields := strings.Fields(input)
	if len(fields) != 2 {
		return i18n.Get("Invalid input", lang), nil
	}
	userID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || userID <= 0 {
		return i18n.Get("Invalid input", lang), nil
	}

	poll, err := a.polls.ActivePoll(ctx, state.GroupID)
	if err != nil {
		return "", err
	}
	if poll == nil {
		return i18n.Get("No active poll", lang), nil
	}

	position := poll.DayOffPosition()
	if !strings.EqualFold(fields[1], "off") {
		number, err := strconv.Atoi(fields[1])
		if err != nil || number < 1 || number > len(poll.Slots) {
			return i18n.Get("Unknown option", lang), nil
		}
		position = number - 1
	}

	_, err = a.polls.RestoreVote(ctx, poll.ID, userID, position)
	switch {
	case errors.Is(err, shift.ErrSlotFull):
		return i18n.Get("This slot is full", lang), nil
	case errors.Is(err, shift.ErrPollClosed), errors.Is(err, shift.ErrPollNotFound):
		return i18n.Get("No active poll", lang), nil
	case errors.Is(err, shift.ErrUnknownOption):
		return i18n.Get("Unknown option", lang), nil
	case err != nil:
		return "", err
	}

	a.getLogEntry().WithField("poll_id", poll.ID).WithField("user_id", userID).Info("vote restored from panel")
	state.Notice = fmt.Sprintf(i18n.Get("Vote of user %d is restored", lang), userID)
	state.Page = panelPageGroupDetail
	state.ListMode = ""
	return "", nil
}
