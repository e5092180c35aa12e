package verify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/shiftbot/internal/db"
	"github.com/iamwavecut/shiftbot/internal/handlers/base"
	"github.com/iamwavecut/shiftbot/internal/i18n"
	"github.com/iamwavecut/shiftbot/internal/shift"
	"github.com/iamwavecut/shiftbot/internal/utils/text"
)

const (
	callbackPrefix  = "vrf:"
	callbackApprove = callbackPrefix + "a:"
	callbackReject  = callbackPrefix + "r:"
)

type Verifier interface {
	Request(ctx context.Context, user *db.User) (*db.VerificationRequest, bool, error)
	Approve(ctx context.Context, token string, adminID int64) (*shift.PendingRequest, error)
	Reject(ctx context.Context, token string, adminID int64) (*shift.PendingRequest, error)
	SetVerified(ctx context.Context, userID int64, verified bool) error
}

type Messenger interface {
	SendText(ctx context.Context, chatID int64, topicID int, text string) (int, error)
	SendWithKeyboard(ctx context.Context, chatID int64, text string, keyboard *api.InlineKeyboardMarkup) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, keyboard *api.InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// Verify runs the verification workflow: users ask with /verify in a
// private chat and the configured admins decide with inline buttons.
type Verify struct {
	base.BaseHandler
	verifier  Verifier
	messenger Messenger
	adminIDs  []int64
}

func New(verifier Verifier, messenger Messenger, adminIDs []int64, language string) *Verify {
	return &Verify{
		BaseHandler: base.NewBaseHandler(language, "verify"),
		verifier:    verifier,
		messenger:   messenger,
		adminIDs:    adminIDs,
	}
}

func (v *Verify) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u == nil {
		return true, nil
	}
	if u.CallbackQuery != nil && strings.HasPrefix(u.CallbackQuery.Data, callbackPrefix) {
		return false, v.handleDecision(ctx, u.CallbackQuery)
	}
	if err := v.ValidateUpdate(u, chat, user); err != nil {
		return true, nil
	}
	if u.Message == nil || !u.Message.IsCommand() || !base.IsPrivateChat(chat) {
		return true, nil
	}

	args := strings.TrimSpace(u.Message.CommandArguments())
	switch u.Message.Command() {
	case "verify":
		if args != "" && v.isAdmin(user.ID) {
			return false, v.handleToggle(ctx, user, args, true)
		}
		return false, v.handleRequest(ctx, user)
	case "unverify":
		if !v.isAdmin(user.ID) {
			return true, nil
		}
		return false, v.handleToggle(ctx, user, args, false)
	case "start":
		if args != "" && args != "verify" {
			return true, nil
		}
		return false, v.handleRequest(ctx, user)
	default:
		return true, nil
	}
}

func (v *Verify) handleRequest(ctx context.Context, user *api.User) error {
	lang := v.GetLanguage()
	entry := v.GetLogger().WithField("user_id", user.ID)

	req, created, err := v.verifier.Request(ctx, base.UserFromAPI(user))
	switch {
	case errors.Is(err, shift.ErrAlreadyVerified):
		v.reply(ctx, user.ID, i18n.Get("You are already verified.", lang))
		return nil
	case err != nil:
		return fmt.Errorf("request verification: %w", err)
	case !created:
		v.reply(ctx, user.ID, i18n.Get("Your verification request is already pending.", lang))
		return nil
	}

	if len(v.adminIDs) == 0 {
		entry.Warn("no admins configured, verification request stays pending")
	}
	name := text.DisplayName(user.ID, user.UserName, user.FirstName, user.LastName)
	msg := fmt.Sprintf(i18n.Get("Verification request from %s (id %d)", lang), name, user.ID)
	if user.UserName != "" {
		msg += " @" + user.UserName
	}
	keyboard := DecisionKeyboard(req.Token, lang)
	for _, adminID := range v.adminIDs {
		if _, err := v.messenger.SendWithKeyboard(ctx, adminID, msg, &keyboard); err != nil {
			entry.WithField("admin_id", adminID).WithField("error", err.Error()).Warn("cant notify admin")
		}
	}

	v.reply(ctx, user.ID, i18n.Get("Your verification request was sent to the administrators.", lang))
	entry.Info("verification request sent")
	return nil
}

// handleToggle sets the verified flag of a user by id, without a request.
func (v *Verify) handleToggle(ctx context.Context, admin *api.User, args string, verified bool) error {
	lang := v.GetLanguage()
	userID, err := strconv.ParseInt(args, 10, 64)
	if err != nil || userID <= 0 {
		v.reply(ctx, admin.ID, i18n.Get("Send the user id after the command", lang))
		return nil
	}
	if err := v.verifier.SetVerified(ctx, userID, verified); err != nil {
		return fmt.Errorf("set verified: %w", err)
	}
	if verified {
		v.reply(ctx, admin.ID, fmt.Sprintf(i18n.Get("User %d is verified", lang), userID))
	} else {
		v.reply(ctx, admin.ID, fmt.Sprintf(i18n.Get("User %d is not verified anymore", lang), userID))
	}
	v.GetLogger().WithField("admin_id", admin.ID).WithField("user_id", userID).WithField("verified", verified).Info("verification toggled")
	return nil
}

func (v *Verify) isAdmin(userID int64) bool {
	return slices.Contains(v.adminIDs, userID)
}

func (v *Verify) handleDecision(ctx context.Context, cq *api.CallbackQuery) error {
	lang := v.GetLanguage()
	if cq.From == nil || !v.isAdmin(cq.From.ID) {
		v.answer(ctx, cq.ID, i18n.Get("No access", lang))
		return nil
	}

	var (
		decided *shift.PendingRequest
		err     error
		status  string
	)
	switch {
	case strings.HasPrefix(cq.Data, callbackApprove):
		decided, err = v.verifier.Approve(ctx, strings.TrimPrefix(cq.Data, callbackApprove), cq.From.ID)
		status = i18n.Get("Approved", lang)
	case strings.HasPrefix(cq.Data, callbackReject):
		decided, err = v.verifier.Reject(ctx, strings.TrimPrefix(cq.Data, callbackReject), cq.From.ID)
		status = i18n.Get("Rejected", lang)
	default:
		v.answer(ctx, cq.ID, "")
		return nil
	}

	switch {
	case errors.Is(err, shift.ErrRequestDecided):
		v.answer(ctx, cq.ID, i18n.Get("This request is already decided", lang))
		return nil
	case errors.Is(err, shift.ErrRequestNotFound):
		v.answer(ctx, cq.ID, i18n.Get("Request not found", lang))
		return nil
	case err != nil:
		v.answer(ctx, cq.ID, "")
		return fmt.Errorf("decide verification: %w", err)
	}
	v.answer(ctx, cq.ID, status)
	v.NotifyDecision(ctx, decided)

	if cq.Message != nil {
		admin := text.DisplayName(cq.From.ID, cq.From.UserName, cq.From.FirstName, cq.From.LastName)
		edited := fmt.Sprintf("%s\n\n%s: %s", cq.Message.Text, status, admin)
		if err := v.messenger.EditText(ctx, cq.Message.Chat.ID, cq.Message.MessageID, edited, nil); err != nil {
			v.GetLogger().WithField("error", err.Error()).Debug("cant edit decided request")
		}
	}
	return nil
}

// NotifyDecision tells the user how their request was decided.
func (v *Verify) NotifyDecision(ctx context.Context, decided *shift.PendingRequest) {
	if decided == nil || decided.Request == nil {
		return
	}
	lang := v.GetLanguage()
	msg := i18n.Get("Your verification request was rejected.", lang)
	if decided.Request.Status == db.VerificationApproved {
		msg = i18n.Get("You are verified. Your votes are counted now.", lang)
	}
	v.reply(ctx, decided.Request.UserID, msg)
	v.GetLogger().WithFields(log.Fields{
		"user_id": decided.Request.UserID,
		"status":  string(decided.Request.Status),
	}).Info("verification decided")
}

func (v *Verify) reply(ctx context.Context, chatID int64, msg string) {
	if _, err := v.messenger.SendText(ctx, chatID, 0, msg); err != nil {
		v.GetLogger().WithField("chat_id", chatID).WithField("error", err.Error()).Warn("cant send message")
	}
}

func (v *Verify) answer(ctx context.Context, callbackID, msg string) {
	if err := v.messenger.AnswerCallback(ctx, callbackID, msg); err != nil {
		v.GetLogger().WithField("error", err.Error()).Debug("cant answer callback")
	}
}

// DecisionKeyboard builds the Approve / Reject buttons of a request.
func DecisionKeyboard(token, lang string) api.InlineKeyboardMarkup {
	return api.NewInlineKeyboardMarkup(api.NewInlineKeyboardRow(
		api.NewInlineKeyboardButtonData("✅ "+i18n.Get("Approve", lang), callbackApprove+token),
		api.NewInlineKeyboardButtonData("❌ "+i18n.Get("Reject", lang), callbackReject+token),
	))
}
