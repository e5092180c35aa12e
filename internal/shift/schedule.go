package shift

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"

	// MaxSlots leaves one of the ten Telegram poll options for "Day off".
	MaxSlots    = 9
	MaxCapacity = 99
)

// ParseClock parses a "HH:MM" wall clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return t.Hour(), t.Minute(), nil
}

// TargetDate is the shift date a poll created at now signs up for: night
// groups work the coming night, day groups sign up for tomorrow.
func TargetDate(night bool, now time.Time, loc *time.Location) string {
	local := now.In(loc)
	if !night {
		local = local.AddDate(0, 0, 1)
	}
	return local.Format(dateLayout)
}

// NextClose returns the first occurrence of closeTime strictly after now.
func NextClose(closeTime string, now time.Time, loc *time.Location) (time.Time, error) {
	hour, minute, err := ParseClock(closeTime)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	at := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !at.After(local) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

// ParseSlotSpec parses "HH:MM-HH:MM capacity". Slots may cross midnight.
func ParseSlotSpec(s string) (start, end string, capacity int, err error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return "", "", 0, ErrInvalidSlot
	}
	bounds := strings.Split(fields[0], "-")
	if len(bounds) != 2 {
		return "", "", 0, ErrInvalidSlot
	}
	startHour, startMinute, err := ParseClock(bounds[0])
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: %w", ErrInvalidSlot, err)
	}
	endHour, endMinute, err := ParseClock(bounds[1])
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: %w", ErrInvalidSlot, err)
	}
	if startHour == endHour && startMinute == endMinute {
		return "", "", 0, ErrInvalidSlot
	}
	capacity, err = strconv.Atoi(fields[1])
	if err != nil || capacity < 1 || capacity > MaxCapacity {
		return "", "", 0, ErrInvalidSlot
	}
	return formatClock(startHour, startMinute), formatClock(endHour, endMinute), capacity, nil
}

func formatClock(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
