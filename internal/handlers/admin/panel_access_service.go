package admin

import (
	"context"
	"time"

	"github.com/iamwavecut/shiftbot/internal/i18n"
)

// ensureAdminAccess checks the configured admin list and answers the callback
// with a toast when access is denied.
func (a *Admin) ensureAdminAccess(ctx context.Context, userID int64, callbackID string) bool {
	if a.s.IsAdmin(userID) {
		return true
	}
	if callbackID != "" {
		a.answerCallback(ctx, callbackID, i18n.Get("No access", a.language()))
	}
	a.getLogEntry().WithField("user_id", userID).Debug("access denied")
	return false
}

func (a *Admin) startTyping(ctx context.Context, chatID int64) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(panelTypingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.messenger.Typing(ctx, chatID)
			}
		}
	}()
	a.messenger.Typing(ctx, chatID)
	return func() {
		close(stop)
	}
}

func (a *Admin) sendPlaceholder(ctx context.Context, chatID int64, language string) (int, error) {
	return a.messenger.SendText(ctx, chatID, 0, i18n.Get("Please wait...", language))
}

func (a *Admin) answerCallback(ctx context.Context, callbackID string, text string) {
	if err := a.messenger.AnswerCallback(ctx, callbackID, text); err != nil {
		a.getLogEntry().WithField("error", err.Error()).Debug("cant answer callback")
	}
}
