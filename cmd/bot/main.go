package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"charitybot/internal/api"
	"charitybot/internal/bot"
	"charitybot/internal/catalog"
	"charitybot/internal/config"
	"charitybot/internal/digest"
	"charitybot/internal/dispatch"
	"charitybot/internal/logging"
	"charitybot/internal/storage"
	"charitybot/internal/transport/telegram"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath, logging.Nop())
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Console: cfg.Logging.Console})
	mgr = config.NewManager(cfgPath, log)
	mgr.Commit(cfg)

	store, err := storage.Open(storage.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.BusyTimeout(),
	}, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	channel, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.PollTimeout(),
	}, log)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	dispatcher := dispatch.New(store, channel, cfg.RatePerSec(), cfg.Burst(), log)
	categories := catalog.NewReconciler(catalog.EntityCategory, store.Categories(), log)
	tasks := catalog.NewReconciler(catalog.EntityTask, store.Tasks(), log)

	// Run-scoped context: cancelled on every return path, not just on a
	// signal, so the deferred Stop below never waits on a poll loop whose
	// only stop trigger is the still-live signal context.
	runCtx, stop := context.WithCancel(ctx)

	botSvc := bot.New(channel.Bot(), store, log)
	botSvc.Start(runCtx)
	defer botSvc.Stop()
	defer stop()

	var apiErr <-chan error
	if cfg.API.Enabled {
		srv := api.NewServer(api.Config{Listen: cfg.ListenAddr()}, categories, tasks, dispatcher, store, log)
		apiErr = srv.Start()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = srv.Stop(sctx)
		}()
	}

	if cfg.Digest.Enabled {
		dg := digest.New(digest.Config{Schedule: cfg.DigestSchedule()}, store, dispatcher, log)
		if err := dg.Start(ctx); err != nil {
			return err
		}
		defer dg.Stop()
	}

	// Hot reload: dispatch rate and log level follow the config file.
	go func() {
		if err := mgr.Watch(runCtx); err != nil {
			log.Warn().Err(err).Msg("config watch unavailable")
		}
	}()
	updates := mgr.Subscribe(1)
	defer mgr.Unsubscribe(updates)
	go func() {
		for next := range updates {
			dispatcher.Sender().SetRate(next.RatePerSec(), next.Burst())
			logging.SetLevel(next.Logging.Level)
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info().Msg("charitybot started")

	select {
	case <-ctx.Done():
	case err := <-apiErr:
		if err != nil {
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			return fmt.Errorf("api server: %w", err)
		}
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info().Msg("shutting down")
	return nil
}
