package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

func TestLoadFromAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"SB_TOKEN": "123:abc",
	}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.DB.Driver != "sqlite" || cfg.DB.DSN != "shiftbot.db" {
		t.Fatalf("unexpected db defaults: %#v", cfg.DB)
	}
	if got := strings.Join(cfg.EnabledHandlers, ","); got != "members,verify,vote,admin" {
		t.Fatalf("unexpected handlers: %s", got)
	}
	if cfg.Schedule.CreateCron != "0 10 * * *" {
		t.Fatalf("unexpected create cron: %q", cfg.Schedule.CreateCron)
	}
	if cfg.Votes.LookupAttempts != 5 || cfg.Votes.LookupDelay != 300*time.Millisecond {
		t.Fatalf("unexpected vote lookup settings: %#v", cfg.Votes)
	}
	if strings.HasPrefix(cfg.DotPath, "~") {
		t.Fatalf("dot path must be expanded: %s", cfg.DotPath)
	}
}

func TestLoadFromParsesAdminsAndRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"SB_TOKEN":     "123:abc",
		"SB_ADMIN_IDS": "10,20",
		"SB_TIMEZONE":  "UTC",
	}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.IsAdmin(20) || cfg.IsAdmin(30) {
		t.Fatalf("unexpected admin ids: %v", cfg.AdminIDs)
	}

	_, err = LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"SB_TOKEN":    "123:abc",
		"SB_TIMEZONE": "Mars/Olympus",
	}))
	if err == nil {
		t.Fatalf("expected an error for unknown timezone")
	}

	_, err = LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err == nil {
		t.Fatalf("expected an error without token")
	}
}

func TestLogFormatterSortsFieldsWithoutColor(t *testing.T) {
	t.Parallel()

	entry := log.NewEntry(log.New()).WithFields(log.Fields{"b": 2, "a": "x"})
	entry.Message = "line\nbreak"
	entry.Level = log.WarnLevel

	out, err := (&LogFormatter{NoColor: true}).Format(entry)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	got := string(out)
	if !strings.HasPrefix(got, "level=WARN ts=") {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if !strings.Contains(got, `a="x" b=2 msg="line\nbreak"`) {
		t.Fatalf("unexpected body: %q", got)
	}
	if strings.Count(got, "\n") != 1 {
		t.Fatalf("expected a single line: %q", got)
	}
}
