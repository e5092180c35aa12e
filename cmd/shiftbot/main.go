package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/shiftbot/internal/bot"
	"github.com/iamwavecut/shiftbot/internal/config"
	"github.com/iamwavecut/shiftbot/internal/db/sqlstore"
	"github.com/iamwavecut/shiftbot/internal/handlers/admin"
	"github.com/iamwavecut/shiftbot/internal/handlers/members"
	"github.com/iamwavecut/shiftbot/internal/handlers/verify"
	"github.com/iamwavecut/shiftbot/internal/handlers/vote"
	"github.com/iamwavecut/shiftbot/internal/infra"
	"github.com/iamwavecut/shiftbot/internal/infra/reg"
	"github.com/iamwavecut/shiftbot/internal/infrastructure/telegram"
	"github.com/iamwavecut/shiftbot/internal/lifecycle"
	"github.com/iamwavecut/shiftbot/internal/observability"
	"github.com/iamwavecut/shiftbot/internal/scheduler"
	"github.com/iamwavecut/shiftbot/internal/shift"
)

const (
	stopTimeout        = 30 * time.Second
	updatesRetryDelay  = 3 * time.Second
	updatesPollTimeout = 60
)

func main() {
	cfg, err := config.Load()
	log.SetFormatter(&config.LogFormatter{})
	log.SetOutput(os.Stdout)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithField("error", err.Error()).Fatal("shiftbot stopped")
	}
	log.Info("shiftbot stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	dsn, err := storeDSN(cfg)
	if err != nil {
		return err
	}
	store, err := sqlstore.New(ctx, cfg.DB.Driver, dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithField("error", err.Error()).Warn("cant close store")
		}
	}()

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		return fmt.Errorf("initialize bot api: %w", err)
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	log.WithField("bot", botAPI.Self.UserName).Info("authorized")

	ops := telegram.NewOperations(botAPI)
	polls := shift.NewPollService(store, ops, shift.Options{
		Location:       loc,
		Language:       cfg.DefaultLanguage,
		LookupAttempts: cfg.Votes.LookupAttempts,
		LookupDelay:    cfg.Votes.LookupDelay,
	})
	verification := shift.NewVerificationService(store)
	registry := reg.New(store)
	sched := scheduler.New(polls, scheduler.Config{
		Location:     loc,
		CreateSpec:   cfg.Schedule.CreateCron,
		CloseSpec:    cfg.Schedule.CloseCron,
		ReminderSpec: cfg.Schedule.ReminderCron,
		JobTimeout:   cfg.Schedule.JobTimeout,
	})

	service := bot.NewService(botAPI, store, cfg.DefaultLanguage, cfg.AdminIDs)

	verifyHandler := verify.New(verification, ops, cfg.AdminIDs, cfg.DefaultLanguage)
	adminHandler := admin.NewAdmin(service, admin.Deps{
		Polls:     polls,
		Verifier:  verification,
		Messenger: ops,
		Groups:    registry,
		Notifier:  verifyHandler,
	})

	bot.RegisterUpdateHandler("members", members.New(store, registry, cfg.DefaultLanguage))
	bot.RegisterUpdateHandler("verify", verifyHandler)
	bot.RegisterUpdateHandler("vote", vote.New(polls, ops, cfg.DefaultLanguage))
	bot.RegisterUpdateHandler("admin", adminHandler)
	processor := bot.NewUpdateProcessor(service, cfg.EnabledHandlers)

	runtime := lifecycle.NewRuntime(stopTimeout)
	runtime.Register("observability", observability.NewService(cfg.MetricsAddr))
	runtime.Register("admin", adminHandler)
	runtime.Register("scheduler", sched)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go infra.GoRecoverable(-1, "process_updates", func() {
		processUpdates(runCtx, botAPI, processor)
	})
	go func() {
		<-infra.MonitorExecutable(runCtx)
		if runCtx.Err() == nil {
			log.Warn("executable file was modified, stopping")
			cancel()
		}
	}()

	return runtime.Run(runCtx)
}

// storeDSN places a relative sqlite file into the work directory.
func storeDSN(cfg config.Config) (string, error) {
	if cfg.DB.Driver != sqlstore.DriverSQLite || filepath.IsAbs(cfg.DB.DSN) || cfg.DB.DSN == ":memory:" {
		return cfg.DB.DSN, nil
	}
	workDir, err := infra.GetWorkDir(cfg.DotPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(workDir, cfg.DB.DSN), nil
}

func processUpdates(ctx context.Context, botAPI *api.BotAPI, processor *bot.UpdateProcessor) {
	entry := log.WithField("context", "updates")
	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = updatesPollTimeout
	updateConfig.AllowedUpdates = []string{"message", "callback_query", "poll_answer", "my_chat_member", "chat_member"}

	for ctx.Err() == nil {
		updates, errs := bot.GetUpdatesChans(ctx, botAPI, updateConfig)
		if !consumeUpdates(ctx, updates, errs, processor, &updateConfig) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(updatesRetryDelay):
			entry.Debug("restarting updates polling")
		}
	}
}

// consumeUpdates returns true when polling failed and should be restarted.
func consumeUpdates(ctx context.Context, updates api.UpdatesChannel, errs chan error, processor *bot.UpdateProcessor, updateConfig *api.UpdateConfig) bool {
	entry := log.WithField("context", "updates")
	for {
		select {
		case <-ctx.Done():
			return false
		case err, ok := <-errs:
			if !ok || ctx.Err() != nil {
				return false
			}
			entry.WithField("error", err.Error()).Error("bot api get updates error")
			return true
		case update, ok := <-updates:
			if !ok {
				return ctx.Err() == nil
			}
			if update.UpdateID >= updateConfig.Offset {
				updateConfig.Offset = update.UpdateID + 1
			}
			if err := processor.Process(ctx, &update); err != nil {
				entry.WithField("error", err.Error()).Error("cant process update")
			}
		}
	}
}
