package admin

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/shiftbot/internal/db"
	"github.com/iamwavecut/shiftbot/internal/infrastructure/telegram"
)

func (a *Admin) renderAndUpdatePanel(ctx context.Context, session *db.AdminPanelSession, state panelState, messageID int) error {
	text, markup, err := a.renderPanel(ctx, session, &state)
	if err != nil {
		return err
	}
	session.MessageID = messageID
	if err := a.savePanelState(ctx, session, state); err != nil {
		return err
	}
	if err := a.messenger.EditText(ctx, session.UserID, messageID, text, markup); err != nil {
		if telegram.IsMessageNotModified(err) {
			return nil
		}
		sentID, sendErr := a.messenger.SendWithKeyboard(ctx, session.UserID, text, markup)
		if sendErr == nil {
			session.MessageID = sentID
			return a.savePanelState(ctx, session, state)
		}
		return err
	}
	return nil
}

func (a *Admin) renderPanel(ctx context.Context, session *db.AdminPanelSession, state *panelState) (string, *api.InlineKeyboardMarkup, error) {
	if err := a.store.DeleteAdminPanelCommandsBySession(ctx, session.ID); err != nil {
		return "", nil, err
	}

	var group *db.Group
	if state.GroupID != 0 {
		var err error
		group, err = a.store.GetGroup(ctx, state.GroupID)
		if err != nil {
			return "", nil, err
		}
		if group == nil {
			state.GroupID = 0
		}
	}
	if group == nil && needsGroup(state.Page) {
		state.Page = panelPageGroupsList
	}

	switch state.Page {
	case panelPageGroupsList:
		return a.renderGroupsList(ctx, session, state)
	case panelPageGroupDetail:
		return a.renderGroupDetail(ctx, session, state, group)
	case panelPageCloseTime:
		return a.renderCloseTime(ctx, session, state, group)
	case panelPageTopicPrompt:
		return a.renderTopicPrompt(ctx, session, state, group)
	case panelPageSlots:
		return a.renderSlots(ctx, session, state, group)
	case panelPageSlotPrompt:
		return a.renderSlotPrompt(ctx, session, state, group)
	case panelPageConfirmDelete:
		return a.renderConfirmDelete(ctx, session, state, group)
	case panelPageVerification:
		return a.renderVerification(ctx, session, state)
	case panelPageBroadcastPrompt:
		return a.renderBroadcastPrompt(ctx, session, state)
	case panelPageRestorePrompt:
		return a.renderRestorePrompt(ctx, session, state, group)
	case panelPageConfirmClose:
		return a.renderConfirmClose(ctx, session, state)
	default:
		return a.renderHome(ctx, session, state)
	}
}

func needsGroup(page panelPage) bool {
	switch page {
	case panelPageGroupDetail, panelPageCloseTime, panelPageTopicPrompt, panelPageSlots,
		panelPageSlotPrompt, panelPageConfirmDelete, panelPageRestorePrompt:
		return true
	default:
		return false
	}
}

func isPromptPage(page panelPage) bool {
	switch page {
	case panelPageTopicPrompt, panelPageSlotPrompt, panelPageBroadcastPrompt, panelPageRestorePrompt:
		return true
	default:
		return false
	}
}
