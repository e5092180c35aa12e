package base

import (
	"errors"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/shiftbot/internal/db"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	language string
	logger   *log.Entry
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(language, handlerName string) BaseHandler {
	return BaseHandler{
		language: language,
		logger:   log.WithField("handler", handlerName),
	}
}

// GetLogger returns the handler's logger
func (h BaseHandler) GetLogger() *log.Entry {
	return h.logger
}

// GetLanguage returns the language of bot messages
func (h BaseHandler) GetLanguage() string {
	return h.language
}

// ValidateUpdate performs common update validation
func (h BaseHandler) ValidateUpdate(u *api.Update, chat *api.Chat, user *api.User) error {
	if u == nil {
		return ErrNilUpdate
	}
	if chat == nil || user == nil {
		return ErrNilChatOrUser
	}
	return nil
}

// IsGroupChat reports whether the chat can host shift polls
func IsGroupChat(chat *api.Chat) bool {
	return chat != nil && (chat.Type == "group" || chat.Type == "supergroup")
}

func IsPrivateChat(chat *api.Chat) bool {
	return chat != nil && chat.Type == "private"
}

// UserFromAPI maps a Telegram user to the stored profile
func UserFromAPI(user *api.User) *db.User {
	return &db.User{
		ID:        user.ID,
		Username:  user.UserName,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

var (
	ErrNilUpdate     = errors.New("nil update")
	ErrNilChatOrUser = errors.New("nil chat or user")
)
