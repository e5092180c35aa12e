package shift

import (
	"errors"
	"testing"
	"time"
)

func TestTargetDate(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("MSK", 3*60*60)
	// 22:30 UTC is already the next day in Moscow.
	now := time.Date(2026, 10, 18, 22, 30, 0, 0, time.UTC)

	if got := TargetDate(true, now, loc); got != "2026-10-19" {
		t.Fatalf("night group: got %s", got)
	}
	if got := TargetDate(false, now, loc); got != "2026-10-20" {
		t.Fatalf("day group: got %s", got)
	}
	if got := TargetDate(false, now, time.UTC); got != "2026-10-19" {
		t.Fatalf("day group in UTC: got %s", got)
	}
}

func TestNextClose(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		closeTime string
		want      time.Time
	}{
		{"later today", "21:00", time.Date(2026, 10, 18, 21, 0, 0, 0, time.UTC)},
		{"already passed", "08:15", time.Date(2026, 10, 19, 8, 15, 0, 0, time.UTC)},
		{"exactly now", "09:00", time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NextClose(tt.closeTime, now, time.UTC)
			if err != nil {
				t.Fatalf("NextClose: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := NextClose("25:00", now, time.UTC); !errors.Is(err, ErrInvalidClock) {
		t.Fatalf("expected ErrInvalidClock, got %v", err)
	}
}

func TestParseSlotSpec(t *testing.T) {
	t.Parallel()

	start, end, capacity, err := ParseSlotSpec(" 8:00-12:30  3 ")
	if err != nil {
		t.Fatalf("ParseSlotSpec: %v", err)
	}
	if start != "08:00" || end != "12:30" || capacity != 3 {
		t.Fatalf("got %s %s %d", start, end, capacity)
	}

	if _, _, _, err := ParseSlotSpec("22:00-06:00 2"); err != nil {
		t.Fatalf("overnight slot must be accepted: %v", err)
	}

	for _, spec := range []string{
		"",
		"08:00-12:00",
		"08:00 12:00 2",
		"08:00-08:00 1",
		"08:00-12:00 0",
		"08:00-12:00 100",
		"08:00-12:00 many",
		"8-12 2",
	} {
		if _, _, _, err := ParseSlotSpec(spec); !errors.Is(err, ErrInvalidSlot) {
			t.Errorf("%q: expected ErrInvalidSlot, got %v", spec, err)
		}
	}
}
