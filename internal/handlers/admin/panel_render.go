package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/shiftbot/internal/db"
	"github.com/iamwavecut/shiftbot/internal/i18n"
	"github.com/iamwavecut/shiftbot/internal/shift"
	"github.com/iamwavecut/shiftbot/internal/utils/text"
)

func (a *Admin) renderHome(ctx context.Context, session *db.AdminPanelSession, state *panelState) (string, *api.InlineKeyboardMarkup, error) {
	lang := state.Language
	groups, err := a.store.ListGroups(ctx)
	if err != nil {
		return "", nil, err
	}
	active := 0
	for _, group := range groups {
		if group.Active {
			active++
		}
	}
	body := fmt.Sprintf("%s\n\n%s",
		i18n.Get("Shift settings", lang),
		fmt.Sprintf(i18n.Get("Groups: %d, active: %d", lang), len(groups), active),
	)

	groupsBtn, err := a.commandButton(ctx, session.ID, i18n.Get("Groups", lang), panelCommand{Action: panelActionOpenGroups})
	if err != nil {
		return "", nil, err
	}
	verificationBtn, err := a.commandButton(ctx, session.ID, i18n.Get("Verification", lang), panelCommand{Action: panelActionOpenVerification})
	if err != nil {
		return "", nil, err
	}
	broadcastBtn, err := a.commandButton(ctx, session.ID, i18n.Get("Broadcast", lang), panelCommand{Action: panelActionOpenBroadcast})
	if err != nil {
		return "", nil, err
	}
	restoreBtn, err := a.commandButton(ctx, session.ID, i18n.Get("Restore vote", lang), panelCommand{Action: panelActionOpenRestore})
	if err != nil {
		return "", nil, err
	}
	closeBtn, err := a.commandButton(ctx, session.ID, "❌", panelCommand{Action: panelActionClose})
	if err != nil {
		return "", nil, err
	}

	keyboard := api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(groupsBtn),
		api.NewInlineKeyboardRow(verificationBtn),
		api.NewInlineKeyboardRow(broadcastBtn, restoreBtn),
		api.NewInlineKeyboardRow(closeBtn),
	)
	return withNotice(body, state), &keyboard, nil
}

func (a *Admin) renderGroupsList(ctx context.Context, session *db.AdminPanelSession, state *panelState) (string, *api.InlineKeyboardMarkup, error) {
	lang := state.Language
	groups, err := a.store.ListGroups(ctx)
	if err != nil {
		return "", nil, err
	}
	totalPages := pageCount(len(groups), panelGroupsPageSize)
	state.ListPage = clampPage(state.ListPage, totalPages)
	start := state.ListPage * panelGroupsPageSize
	end := min(start+panelGroupsPageSize, len(groups))

	builder := strings.Builder{}
	if state.ListMode == panelModeRestore {
		builder.WriteString(i18n.Get("Pick a group to restore a vote in", lang))
	} else {
		builder.WriteString(i18n.Get("Groups", lang))
	}
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf(i18n.Get("Page %d/%d", lang), state.ListPage+1, totalPages))
	builder.WriteString("\n\n")
	if len(groups) == 0 {
		builder.WriteString(i18n.Get("No groups yet. Send /register in a group to add it.", lang))
	}

	var rows [][]api.InlineKeyboardButton
	for _, group := range groups[start:end] {
		btn, err := a.commandButton(ctx, session.ID, groupLabel(group), panelCommand{Action: panelActionSelectGroup, GroupID: group.ID})
		if err != nil {
			return "", nil, err
		}
		rows = append(rows, api.NewInlineKeyboardRow(btn))
	}
	navRow, err := a.navRow(ctx, session.ID, panelActionGroupsPagePrev, panelActionGroupsPageNext, state.ListPage > 0, state.ListPage < totalPages-1)
	if err != nil {
		return "", nil, err
	}
	rows = append(rows, navRow)

	keyboard := api.NewInlineKeyboardMarkup(rows...)
	return withNotice(builder.String(), state), &keyboard, nil
}

func (a *Admin) renderGroupDetail(ctx context.Context, session *db.AdminPanelSession, state *panelState, group *db.Group) (string, *api.InlineKeyboardMarkup, error) {
	lang := state.Language
	poll, err := a.polls.ActivePoll(ctx, group.ID)
	if err != nil {
		return "", nil, err
	}
	activePoll := i18n.Get("none", lang)
	if poll != nil {
		activePoll = poll.PollDate
	}

	body := fmt.Sprintf("%s\n\n%s: %d\n%s %s\n%s %s\n%s: %s\n%s: %d, %s: %d\n%s: %d\n%s: %s",
		group.Name,
		i18n.Get("Chat ID", lang), group.ChatID,
		statusEmoji(group.Active), i18n.Get("Active", lang),
		statusEmoji(group.Night), i18n.Get("Night group", lang),
		i18n.Get("Sign-up closes at", lang), group.CloseTime,
		i18n.Get("Poll topic", lang), group.PollTopicID,
		i18n.Get("Report topic", lang), group.ReportTopicID,
		i18n.Get("Slots", lang), len(group.Slots),
		i18n.Get("Active poll", lang), activePoll,
	)

	buttons := []struct {
		label string
		cmd   panelCommand
	}{
		{statusEmoji(group.Active) + " " + i18n.Get("Active", lang), panelCommand{Action: panelActionToggleActive}},
		{statusEmoji(group.Night) + " " + i18n.Get("Night group", lang), panelCommand{Action: panelActionToggleNight}},
		{i18n.Get("Close time", lang), panelCommand{Action: panelActionOpenCloseTime}},
		{i18n.Get("Topics", lang), panelCommand{Action: panelActionOpenTopic}},
		{i18n.Get("Slots", lang), panelCommand{Action: panelActionOpenSlots}},
		{i18n.Get("Restore vote", lang), panelCommand{Action: panelActionOpenRestore, GroupID: group.ID}},
		{i18n.Get("Post poll now", lang), panelCommand{Action: panelActionPostNow}},
		{i18n.Get("Close poll now", lang), panelCommand{Action: panelActionCloseNow}},
	}
	var list []api.InlineKeyboardButton
	for _, b := range buttons {
		btn, err := a.commandButton(ctx, session.ID, b.label, b.cmd)
		if err != nil {
			return "", nil, err
		}
		list = append(list, btn)
	}
	rows := chunkButtons(list, 2)

	deleteBtn, err := a.commandButton(ctx, session.ID, "🗑 "+i18n.Get("Delete group", lang), panelCommand{Action: panelActionOpenDelete})
	if err != nil {
		return "", nil, err
	}
	backBtn, err := a.commandButton(ctx, session.ID, "↩️", panelCommand{Action: panelActionBack})
	if err != nil {
		return "", nil, err
	}
	rows = append(rows, api.NewInlineKeyboardRow(deleteBtn), api.NewInlineKeyboardRow(backBtn))

	keyboard := api.NewInlineKeyboardMarkup(rows...)
	return withNotice(body, state), &keyboard, nil
}

func (a *Admin) renderCloseTime(ctx context.Context, session *db.AdminPanelSession, state *panelState, group *db.Group) (string, *api.InlineKeyboardMarkup, error) {
	lang := state.Language
	body := fmt.Sprintf("%s\n\n%s: %s",
		group.Name,
		i18n.Get("Sign-up closes at", lang),
		group.CloseTime,
	)

	var buttons []api.InlineKeyboardButton
	for _, option := range panelCloseTimeOptions {
		btn, err := a.commandButton(ctx, session.ID, panelSelectLabel(option == group.CloseTime, option), panelCommand{Action: panelActionSetCloseTime, Value: option})
		if err != nil {
			return "", nil, err
		}
		buttons = append(buttons, btn)
	}
	rows := chunkButtons(buttons, 4)
	backRow, err := a.backRow(ctx, session.ID)
	if err != nil {
		return "", nil, err
	}
	rows = append(rows, backRow)

	keyboard := api.NewInlineKeyboardMarkup(rows...)
	return body, &keyboard, nil
}

func (a *Admin) renderTopicPrompt(ctx context.Context, session *db.AdminPanelSession, state *panelState, group *db.Group) (string, *api.InlineKeyboardMarkup, error) {
	lang := state.Language
	body := fmt.Sprintf("%s\n\n%s: %d, %s: %d\n\n%s",
		group.Name,
		i18n.Get("Poll topic", lang), group.PollTopicID,
		i18n.Get("Report topic", lang), group.ReportTopicID,
		i18n.Get("Send the poll topic id and, optionally, the report topic id. 0 means the main chat.", lang),
	)
	return a.promptPage(ctx, session, state, body)
}

func (a *Admin) renderSlots(ctx context.Context, session *db.AdminPanelSession, state *panelState, group *db.Group) (string, *api.InlineKeyboardMarkup, error) {
	lang := state.Language
	builder := strings.Builder{}
	builder.WriteString(group.Name)
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf(i18n.Get("Slots: %d of %d", lang), len(group.Slots), shift.MaxSlots))
	builder.WriteString("\n\n")
	if len(group.Slots) == 0 {
		builder.WriteString(i18n.Get("No slots yet", lang))
	}
	for i, slot := range group.Slots {
		builder.WriteString(fmt.Sprintf("%d. %s, %s\n", i+1, slot.Label(), fmt.Sprintf(i18n.Get("%d places", lang), slot.Capacity)))
	}

	var rows [][]api.InlineKeyboardButton
	for _, slot := range group.Slots {
		btn, err := a.commandButton(ctx, session.ID, "🗑 "+slot.Label(), panelCommand{Action: panelActionDeleteSlot, SlotID: slot.ID})
		if err != nil {
			return "", nil, err
		}
		rows = append(rows, api.NewInlineKeyboardRow(btn))
	}
	if len(group.Slots) < shift.MaxSlots {
		addBtn, err := a.commandButton(ctx, session.ID, "➕ "+i18n.Get("Add slot", lang), panelCommand{Action: panelActionAddSlot})
		if err != nil {
			return "", nil, err
		}
		rows = append(rows, api.NewInlineKeyboardRow(addBtn))
	}
	backRow, err := a.backRow(ctx, session.ID)
	if err != nil {
		return "", nil, err
	}
	rows = append(rows, backRow)

	keyboard := api.NewInlineKeyboardMarkup(rows...)
	return withNotice(builder.String(), state), &keyboard, nil
}

func (a *Admin) renderSlotPrompt(ctx context.Context, session *db.AdminPanelSession, state *panelState, group *db.Group) (string, *api.InlineKeyboardMarkup, error) {
	lang := state.Language
	body := fmt.Sprintf("%s\n\n%s",
		group.Name,
		i18n.Get("Send the new slot as HH:MM-HH:MM capacity, for example 08:00-12:00 3", lang),
	)
	return a.promptPage(ctx, session, state, body)
}

func (a *Admin) renderConfirmDelete(ctx context.Context, session *db.AdminPanelSession, state *panelState, group *db.Group) (string, *api.InlineKeyboardMarkup, error) {
	lang := state.Language
	body := fmt.Sprintf(i18n.Get("Delete group %s with all its polls?", lang), group.Name)

	yesBtn, err := a.commandButton(ctx, session.ID, "✅ "+i18n.Get("Yes", lang), panelCommand{Action: panelActionDeleteYes})
	if err != nil {
		return "", nil, err
	}
	noBtn, err := a.commandButton(ctx, session.ID, "❌ "+i18n.Get("No", lang), panelCommand{Action: panelActionDeleteNo})
	if err != nil {
		return "", nil, err
	}
	keyboard := api.NewInlineKeyboardMarkup(api.NewInlineKeyboardRow(yesBtn, noBtn))
	return body, &keyboard, nil
}

func (a *Admin) renderVerification(ctx context.Context, session *db.AdminPanelSession, state *panelState) (string, *api.InlineKeyboardMarkup, error) {
	lang := state.Language
	pending, err := a.verifier.Pending(ctx)
	if err != nil {
		return "", nil, err
	}

	builder := strings.Builder{}
	builder.WriteString(i18n.Get("Verification requests", lang))
	builder.WriteString("\n\n")
	if len(pending) == 0 {
		builder.WriteString(i18n.Get("No pending requests", lang))
	}

	shown := pending[:min(len(pending), panelVerificationPageSize)]
	var rows [][]api.InlineKeyboardButton
	for i, req := range shown {
		name := requestName(req)
		builder.WriteString(fmt.Sprintf("%d. %s (id %d)\n", i+1, name, req.Request.UserID))

		approveBtn, err := a.commandButton(ctx, session.ID, "✅ "+name, panelCommand{Action: panelActionApprove, Value: req.Request.Token})
		if err != nil {
			return "", nil, err
		}
		rejectBtn, err := a.commandButton(ctx, session.ID, "❌", panelCommand{Action: panelActionReject, Value: req.Request.Token})
		if err != nil {
			return "", nil, err
		}
		rows = append(rows, api.NewInlineKeyboardRow(approveBtn, rejectBtn))
	}
	if rest := len(pending) - len(shown); rest > 0 {
		builder.WriteString(fmt.Sprintf(i18n.Get("And %d more", lang), rest))
	}
	backRow, err := a.backRow(ctx, session.ID)
	if err != nil {
		return "", nil, err
	}
	rows = append(rows, backRow)

	keyboard := api.NewInlineKeyboardMarkup(rows...)
	return withNotice(builder.String(), state), &keyboard, nil
}

func (a *Admin) renderBroadcastPrompt(ctx context.Context, session *db.AdminPanelSession, state *panelState) (string, *api.InlineKeyboardMarkup, error) {
	body := i18n.Get("Send the text to post in every active group", state.Language)
	return a.promptPage(ctx, session, state, body)
}

func (a *Admin) renderRestorePrompt(ctx context.Context, session *db.AdminPanelSession, state *panelState, group *db.Group) (string, *api.InlineKeyboardMarkup, error) {
	lang := state.Language
	poll, err := a.polls.ActivePoll(ctx, group.ID)
	if err != nil {
		return "", nil, err
	}

	builder := strings.Builder{}
	builder.WriteString(group.Name)
	builder.WriteString("\n\n")
	if poll == nil {
		builder.WriteString(i18n.Get("No active poll", lang))
	} else {
		builder.WriteString(i18n.Get("Send: <user id> <option number or off>", lang))
		builder.WriteString("\n\n")
		for i, slot := range poll.Slots {
			builder.WriteString(fmt.Sprintf("%d. %s (%d/%d)\n", i+1, slot.Label(), slot.Occupied, slot.Capacity))
		}
		builder.WriteString("off. ")
		builder.WriteString(i18n.Get("Day off", lang))
	}
	return a.promptPage(ctx, session, state, builder.String())
}

func (a *Admin) renderConfirmClose(ctx context.Context, session *db.AdminPanelSession, state *panelState) (string, *api.InlineKeyboardMarkup, error) {
	lang := state.Language
	yesBtn, err := a.commandButton(ctx, session.ID, "✅ "+i18n.Get("Yes", lang), panelCommand{Action: panelActionCloseConfirm})
	if err != nil {
		return "", nil, err
	}
	noBtn, err := a.commandButton(ctx, session.ID, "❌ "+i18n.Get("No", lang), panelCommand{Action: panelActionBack})
	if err != nil {
		return "", nil, err
	}
	keyboard := api.NewInlineKeyboardMarkup(api.NewInlineKeyboardRow(yesBtn, noBtn))
	return i18n.Get("Close the panel?", lang), &keyboard, nil
}

func (a *Admin) promptPage(ctx context.Context, session *db.AdminPanelSession, state *panelState, body string) (string, *api.InlineKeyboardMarkup, error) {
	if state.PromptError != "" {
		body += "\n\n⚠️ " + state.PromptError
	}
	backRow, err := a.backRow(ctx, session.ID)
	if err != nil {
		return "", nil, err
	}
	keyboard := api.NewInlineKeyboardMarkup(backRow)
	return body, &keyboard, nil
}

func (a *Admin) commandButton(ctx context.Context, sessionID int64, label string, cmd panelCommand) (api.InlineKeyboardButton, error) {
	payload, err := a.createPanelCommand(ctx, sessionID, cmd)
	if err != nil {
		return api.InlineKeyboardButton{}, err
	}
	return api.NewInlineKeyboardButtonData(label, payload), nil
}

func (a *Admin) backRow(ctx context.Context, sessionID int64) ([]api.InlineKeyboardButton, error) {
	backBtn, err := a.commandButton(ctx, sessionID, "↩️", panelCommand{Action: panelActionBack})
	if err != nil {
		return nil, err
	}
	return api.NewInlineKeyboardRow(backBtn), nil
}

func (a *Admin) navRow(ctx context.Context, sessionID int64, prevAction string, nextAction string, hasPrev bool, hasNext bool) ([]api.InlineKeyboardButton, error) {
	row := make([]api.InlineKeyboardButton, 0, 3)
	if hasPrev {
		prevBtn, err := a.commandButton(ctx, sessionID, "⬅️", panelCommand{Action: prevAction})
		if err != nil {
			return nil, err
		}
		row = append(row, prevBtn)
	}
	backBtn, err := a.commandButton(ctx, sessionID, "↩️", panelCommand{Action: panelActionBack})
	if err != nil {
		return nil, err
	}
	row = append(row, backBtn)
	if hasNext {
		nextBtn, err := a.commandButton(ctx, sessionID, "➡️", panelCommand{Action: nextAction})
		if err != nil {
			return nil, err
		}
		row = append(row, nextBtn)
	}
	return api.NewInlineKeyboardRow(row...), nil
}

func (a *Admin) createPanelCommand(ctx context.Context, sessionID int64, cmd panelCommand) (string, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return "", err
	}
	created, err := a.store.CreateAdminPanelCommand(ctx, &db.AdminPanelCommand{
		SessionID: sessionID,
		Payload:   string(payload),
		CreatedAt: a.now(),
	})
	if err != nil {
		return "", err
	}
	return panelCallbackData(sessionID, created.ID), nil
}

// withNotice appends the outcome of the last action once.
func withNotice(body string, state *panelState) string {
	if state.Notice == "" {
		return body
	}
	body += "\n\nℹ️ " + state.Notice
	state.Notice = ""
	return body
}

func groupLabel(group *db.Group) string {
	label := statusEmoji(group.Active) + " " + group.Name
	if group.Night {
		label += " 🌙"
	}
	return label
}

func requestName(req shift.PendingRequest) string {
	if req.User == nil {
		return fmt.Sprintf("id%d", req.Request.UserID)
	}
	return text.DisplayName(req.User.ID, req.User.Username, req.User.FirstName, req.User.LastName)
}

func panelSelectLabel(selected bool, label string) string {
	if selected {
		return "✅ " + label
	}
	return label
}

func chunkButtons(buttons []api.InlineKeyboardButton, perRow int) [][]api.InlineKeyboardButton {
	if len(buttons) == 0 {
		return nil
	}
	var rows [][]api.InlineKeyboardButton
	for i := 0; i < len(buttons); i += perRow {
		end := min(i+perRow, len(buttons))
		rows = append(rows, api.NewInlineKeyboardRow(buttons[i:end]...))
	}
	return rows
}

func statusEmoji(enabled bool) string {
	if enabled {
		return "✅"
	}
	return "⬜"
}

func pageCount(total int, pageSize int) int {
	if total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

func clampPage(page int, totalPages int) int {
	if totalPages <= 0 {
		return 0
	}
	if page < 0 {
		return 0
	}
	if page >= totalPages {
		return totalPages - 1
	}
	return page
}
