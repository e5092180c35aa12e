package admin

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/iamwavecut/shiftbot/internal/db"
	"github.com/iamwavecut/shiftbot/internal/i18n"
	"github.com/iamwavecut/shiftbot/internal/shift"
)

func (a *Admin) applyPanelCommand(ctx context.Context, session *db.AdminPanelSession, state *panelState, command panelCommand, adminID int64) error {
	lang := state.Language
	state.PromptError = ""

	switch command.Action {
	case panelActionOpenGroups:
		state.Page = panelPageGroupsList
		state.ListMode = ""
	case panelActionGroupsPageNext:
		state.ListPage++
	case panelActionGroupsPagePrev:
		if state.ListPage > 0 {
			state.ListPage--
		}
	case panelActionSelectGroup:
		state.GroupID = command.GroupID
		if state.ListMode == panelModeRestore {
			state.Page = panelPageRestorePrompt
		} else {
			state.Page = panelPageGroupDetail
		}
	case panelActionToggleActive:
		if err := a.updateGroup(ctx, state.GroupID, func(group *db.Group) { group.Active = !group.Active }); err != nil {
			return err
		}
	case panelActionToggleNight:
		if err := a.updateGroup(ctx, state.GroupID, func(group *db.Group) { group.Night = !group.Night }); err != nil {
			return err
		}
	case panelActionOpenCloseTime:
		state.Page = panelPageCloseTime
	case panelActionSetCloseTime:
		if !slices.Contains(panelCloseTimeOptions, command.Value) {
			return nil
		}
		if err := a.updateGroup(ctx, state.GroupID, func(group *db.Group) { group.CloseTime = command.Value }); err != nil {
			return err
		}
		state.Page = panelPageGroupDetail
	case panelActionOpenTopic:
		state.Page = panelPageTopicPrompt
	case panelActionOpenSlots:
		state.Page = panelPageSlots
	case panelActionAddSlot:
		state.Page = panelPageSlotPrompt
	case panelActionDeleteSlot:
		if err := a.store.DeleteGroupSlot(ctx, state.GroupID, command.SlotID); err != nil {
			return err
		}
	case panelActionPostNow:
		poll, created, err := a.polls.PostNow(ctx, state.GroupID)
		switch {
		case errors.Is(err, shift.ErrNoSlots):
			state.Notice = i18n.Get("Add at least one slot first", lang)
		case err != nil:
			a.getLogEntry().WithField("group_id", state.GroupID).WithField("error", err.Error()).Error("failed to post poll")
			state.Notice = i18n.Get("Could not post the poll", lang)
		case !created:
			state.Notice = fmt.Sprintf(i18n.Get("Poll for %s is already posted", lang), poll.PollDate)
		default:
			state.Notice = fmt.Sprintf(i18n.Get("Poll for %s is posted", lang), poll.PollDate)
		}
	case panelActionCloseNow:
		err := a.polls.CloseNow(ctx, state.GroupID)
		switch {
		case errors.Is(err, shift.ErrNoActivePoll):
			state.Notice = i18n.Get("No active poll", lang)
		case err != nil:
			a.getLogEntry().WithField("group_id", state.GroupID).WithField("error", err.Error()).Error("failed to close poll")
			state.Notice = i18n.Get("Could not close the poll", lang)
		default:
			state.Notice = i18n.Get("Poll is closed, results are posted", lang)
		}
	case panelActionOpenDelete:
		state.Page = panelPageConfirmDelete
	case panelActionDeleteYes:
		group, err := a.store.GetGroup(ctx, state.GroupID)
		if err != nil {
			return err
		}
		if group != nil {
			if err := a.store.DeleteGroup(ctx, group.ID); err != nil {
				return err
			}
			a.forgetGroup(group.ChatID)
			state.Notice = fmt.Sprintf(i18n.Get("Group %s is deleted", lang), group.Name)
		}
		state.GroupID = 0
		state.Page = panelPageGroupsList
	case panelActionDeleteNo:
		state.Page = panelPageGroupDetail
	case panelActionOpenVerification:
		state.Page = panelPageVerification
	case panelActionApprove, panelActionReject:
		decide := a.verifier.Approve
		if command.Action == panelActionReject {
			decide = a.verifier.Reject
		}
		decided, err := decide(ctx, command.Value, adminID)
		switch {
		case errors.Is(err, shift.ErrRequestDecided), errors.Is(err, shift.ErrRequestNotFound):
			state.Notice = i18n.Get("This request is already decided", lang)
		case err != nil:
			return err
		default:
			if a.notifier != nil {
				a.notifier.NotifyDecision(ctx, decided)
			}
			if decided.Request.Status == db.VerificationApproved {
				state.Notice = i18n.Get("Approved", lang)
			} else {
				state.Notice = i18n.Get("Rejected", lang)
			}
		}
	case panelActionOpenBroadcast:
		state.Page = panelPageBroadcastPrompt
	case panelActionOpenRestore:
		if command.GroupID != 0 {
			state.GroupID = command.GroupID
			state.Page = panelPageRestorePrompt
		} else {
			state.Page = panelPageGroupsList
			state.ListMode = panelModeRestore
			state.ListPage = 0
		}
	case panelActionBack:
		state.Page = a.previousPage(state)
	case panelActionClose:
		state.Page = panelPageConfirmClose
	default:
	}
	return a.savePanelState(ctx, session, *state)
}

func (a *Admin) previousPage(state *panelState) panelPage {
	switch state.Page {
	case panelPageGroupsList, panelPageVerification, panelPageBroadcastPrompt, panelPageConfirmClose:
		state.ListMode = ""
		return panelPageHome
	case panelPageGroupDetail:
		return panelPageGroupsList
	case panelPageCloseTime, panelPageTopicPrompt, panelPageSlots, panelPageConfirmDelete:
		return panelPageGroupDetail
	case panelPageSlotPrompt:
		return panelPageSlots
	case panelPageRestorePrompt:
		if state.ListMode == panelModeRestore {
			return panelPageGroupsList
		}
		return panelPageGroupDetail
	default:
		return panelPageHome
	}
}

func (a *Admin) updateGroup(ctx context.Context, groupID int64, change func(group *db.Group)) error {
	group, err := a.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return nil
	}
	change(group)
	group.UpdatedAt = a.now()
	if err := a.store.UpdateGroup(ctx, group); err != nil {
		return err
	}
	a.forgetGroup(group.ChatID)
	return nil
}

func (a *Admin) forgetGroup(chatID int64) {
	if a.groups != nil {
		a.groups.Forget(chatID)
	}
}
