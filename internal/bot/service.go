package bot

import (
	"slices"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/shiftbot/internal/db"
)

type service struct {
	bot      *api.BotAPI
	db       db.Client
	language string
	adminIDs []int64
}

func NewService(bot *api.BotAPI, db db.Client, language string, adminIDs []int64) *service {
	return &service{
		bot:      bot,
		db:       db,
		language: language,
		adminIDs: adminIDs,
	}
}

func (s *service) GetBot() *api.BotAPI {
	return s.bot
}

func (s *service) GetDB() db.Client {
	return s.db
}

func (s *service) GetLanguage() string {
	return s.language
}

// IsAdmin reports whether the user may manage groups and verify users.
func (s *service) IsAdmin(userID int64) bool {
	return slices.Contains(s.adminIDs, userID)
}
