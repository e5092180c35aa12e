package config

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "SB_"

type (
	Config struct {
		TelegramAPIToken string   `env:"TOKEN,required"`
		DefaultLanguage  string   `env:"LANG,default=en"`
		EnabledHandlers  []string `env:"HANDLERS,default=members,verify,vote,admin"`
		LogLevel         int      `env:"LOG_LEVEL,default=4"`
		DotPath          string   `env:"DOT_PATH,default=~/.shiftbot"`
		AdminIDs         []int64  `env:"ADMIN_IDS"`
		Timezone         string   `env:"TIMEZONE,default=Europe/Moscow"`
		MetricsAddr      string   `env:"METRICS_ADDR,default=:2112"`
		DB               DB
		Schedule         Schedule
		Votes            Votes
	}

	DB struct {
		Driver string `env:"DB_DRIVER,default=sqlite"`
		DSN    string `env:"DB_DSN,default=shiftbot.db"`
	}

	Schedule struct {
		CreateCron   string        `env:"POLL_CREATE_CRON,default=0 10 * * *"`
		CloseCron    string        `env:"POLL_CLOSE_CRON,default=* * * * *"`
		ReminderCron string        `env:"REMINDER_CRON,default=0 16 * * *"`
		JobTimeout   time.Duration `env:"JOB_TIMEOUT,default=2m"`
	}

	Votes struct {
		LookupAttempts int           `env:"VOTE_LOOKUP_ATTEMPTS,default=5"`
		LookupDelay    time.Duration `env:"VOTE_LOOKUP_DELAY,default=300ms"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

// Load reads the configuration once: a .env file in the working directory
// is applied first, then SB_-prefixed environment variables.
func Load() (Config, error) {
	once.Do(func() {
		if err := godotenv.Load(); err == nil {
			log.Traceln("loaded .env file")
		}
		cfg, err := LoadFrom(context.Background(), envconfig.OsLookuper())
		if err != nil {
			globalErr = err
			return
		}
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}

// LoadFrom processes the configuration from an arbitrary lookuper.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	envcfg := envconfig.Config{
		Lookuper: envconfig.PrefixLookuper(envPrefix, lookuper),
		Target:   cfg,
	}
	if err := envconfig.ProcessWith(ctx, &envcfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}

	dotPath, err := homedir.Expand(cfg.DotPath)
	if err != nil {
		return nil, fmt.Errorf("expand dot path: %w", err)
	}
	cfg.DotPath = dotPath

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if cfg.Votes.LookupAttempts < 1 {
		cfg.Votes.LookupAttempts = 1
	}
	log.Traceln("loaded config")
	return cfg, nil
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.AdminIDs, userID)
}
