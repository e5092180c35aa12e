package telegram

import (
	"context"
	"fmt"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/shiftbot/internal/shift"
)

// Operations provides the Telegram calls used by the poll lifecycle and the handlers
type Operations struct {
	bot *api.BotAPI
}

// NewOperations creates a new Operations instance
func NewOperations(bot *api.BotAPI) *Operations {
	return &Operations{bot: bot}
}

// SendPoll posts a non-anonymous single answer poll into a chat topic
func (o *Operations) SendPoll(ctx context.Context, chatID int64, topicID int, question string, options []string) (*shift.PostedPoll, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pollOptions := make([]api.InputPollOption, 0, len(options))
	for _, option := range options {
		pollOptions = append(pollOptions, api.NewPollOption(option))
	}
	config := api.NewPoll(chatID, question, pollOptions...)
	config.IsAnonymous = false
	config.AllowsMultipleAnswers = false
	config.MessageThreadID = topicID

	sent, err := o.bot.Send(config)
	if err != nil {
		return nil, fmt.Errorf("failed to send poll: %w", err)
	}
	if sent.Poll == nil {
		return nil, fmt.Errorf("sent message carries no poll")
	}
	return &shift.PostedPoll{PollID: sent.Poll.ID, MessageID: sent.MessageID}, nil
}

// StopPoll closes a poll. A poll that is already closed is not an error.
func (o *Operations) StopPoll(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := o.bot.StopPoll(api.NewStopPoll(chatID, messageID)); err != nil {
		if isAlreadyClosedError(err) {
			return nil
		}
		return fmt.Errorf("failed to stop poll: %w", err)
	}
	return nil
}

// SendText sends a plain message into a chat topic and returns its id
func (o *Operations) SendText(ctx context.Context, chatID int64, topicID int, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := api.NewMessage(chatID, text)
	msg.MessageThreadID = topicID
	msg.DisableNotification = true
	sent, err := o.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}
	return sent.MessageID, nil
}

// SendWithKeyboard sends a message with an inline keyboard
func (o *Operations) SendWithKeyboard(ctx context.Context, chatID int64, text string, keyboard *api.InlineKeyboardMarkup) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := api.NewMessage(chatID, text)
	msg.DisableNotification = true
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	sent, err := o.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}
	return sent.MessageID, nil
}

// EditText replaces the text and the keyboard of a message
func (o *Operations) EditText(ctx context.Context, chatID int64, messageID int, text string, keyboard *api.InlineKeyboardMarkup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := api.NewEditMessageText(chatID, messageID, text)
	edit.ReplyMarkup = keyboard
	if _, err := o.bot.Send(edit); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query, optionally with a toast
func (o *Operations) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := o.bot.Request(api.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// DeleteMessage deletes a message from a chat
func (o *Operations) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := o.bot.Request(api.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// Typing shows the typing indicator in a chat
func (o *Operations) Typing(ctx context.Context, chatID int64) {
	if ctx.Err() != nil {
		return
	}
	_, _ = o.bot.Request(api.NewChatAction(chatID, api.ChatTyping))
}

func isAlreadyClosedError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "poll has already been closed")
}

// IsMessageNotModified reports the error Telegram returns for an edit without changes
func IsMessageNotModified(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
