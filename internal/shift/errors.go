package shift

import (
	"errors"

	"github.com/iamwavecut/shiftbot/internal/db"
)

var (
	ErrPollNotFound    = errors.New("poll not found")
	ErrPollClosed      = db.ErrPollClosed
	ErrSlotFull        = db.ErrSlotFull
	ErrNotVerified     = errors.New("user is not verified")
	ErrUnknownOption   = errors.New("unknown poll option")
	ErrNoSlots         = errors.New("group has no slots")
	ErrTooManySlots    = errors.New("group has more slots than a poll can hold")
	ErrNoActivePoll    = errors.New("group has no active poll")
	ErrInvalidClock    = errors.New("invalid time, expected HH:MM")
	ErrInvalidSlot     = errors.New("invalid slot, expected HH:MM-HH:MM capacity")
	ErrAlreadyVerified = errors.New("user is already verified")
	ErrRequestNotFound = errors.New("verification request not found")
	ErrRequestDecided  = errors.New("verification request is already decided")
)
