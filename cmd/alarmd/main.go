package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"alarmd/internal/alarm"
	"alarmd/internal/config"
	"alarmd/internal/maintenance"
	"alarmd/internal/notify"
	"alarmd/internal/storage"
	"alarmd/internal/web"
	"alarmd/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./alarmd.yaml", "path to config yaml")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log, logCloser, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logCloser.Close()

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("component", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	sink, err := buildSink(cfg, log)
	if err != nil {
		return err
	}

	sched, err := alarm.New(ctx, store,
		alarm.WithSink(sink),
		alarm.WithLogger(log.With(logx.String("component", "scheduler"))),
	)
	if err != nil {
		return err
	}

	var janitor *maintenance.Janitor
	if cfg.Maintenance.Enabled {
		retention, err := config.ParseDurationOrDefault("maintenance.retention", cfg.Maintenance.Retention, 30*24*time.Hour)
		if err != nil {
			return err
		}
		janitor, err = maintenance.New(maintenance.Config{
			Schedule:  cfg.Maintenance.PruneSchedule,
			Retention: retention,
		}, store, log.With(logx.String("component", "janitor")))
		if err != nil {
			return err
		}
		janitor.Start()
	}

	srv := web.NewHTTPServer(cfg.Listen, web.New(sched, log.With(logx.String("component", "web"))).Handler())
	httpErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", logx.String("addr", cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	// Live log-level reload on config edits.
	go func() {
		err := config.Watch(ctx, cfgPath, log.With(logx.String("component", "config")), func(c *config.Config) {
			logx.SetLevel(c.Logging.Level)
		})
		if err != nil {
			log.Warn("config watch unavailable", logx.Err(err))
		}
	}()

	notifySystemd(ctx, log)
	log.Info("alarmd started", logx.Int("pending", sched.Pending()))

	select {
	case <-ctx.Done():
	case err := <-httpErr:
		_ = shutdown(srv, sched, janitor, log)
		return fmt.Errorf("http server: %w", err)
	}
	return shutdown(srv, sched, janitor, log)
}

func buildSink(cfg *config.Config, log logx.Logger) (alarm.NotificationSink, error) {
	sinks := []alarm.NotificationSink{
		notify.NewLog(log.With(logx.String("component", "notify"))),
	}
	if tg := cfg.Notify.Telegram; tg.Enabled {
		s, err := notify.NewTelegram(notify.TelegramConfig{
			Token:      tg.Token,
			ChatID:     tg.ChatID,
			RatePerSec: tg.RatePerSec,
		}, log.With(logx.String("component", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	return notify.Multi(sinks...), nil
}

func shutdown(srv *http.Server, sched *alarm.Scheduler, janitor *maintenance.Janitor, log logx.Logger) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("shutting down")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	err := srv.Shutdown(shCtx)

	if janitor != nil {
		janitor.Stop()
	}
	sched.Shutdown()
	log.Info("shutdown complete")
	return err
}

// notifySystemd reports readiness and keeps the watchdog fed when running
// under a systemd unit with WatchdogSec set. A no-op otherwise.
func notifySystemd(ctx context.Context, log logx.Logger) {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
	} else if ok {
		log.Debug("sd_notify ready sent")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}
