// Package app assembles the bot: config, logging, chain client, per-platform
// adapters with their own state, command handling, and the poll loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"annobot/internal/chain"
	"annobot/internal/command"
	"annobot/internal/config"
	"annobot/internal/dispatch"
	"annobot/internal/poll"
	"annobot/internal/runtime/supervisor"
	"annobot/internal/state"
	"annobot/internal/transport"
	"annobot/internal/transport/discord"
	"annobot/internal/transport/telegram"
	"annobot/pkg/logx"
)

const (
	updateBuffer   = 64
	reconnectDelay = 5 * time.Second
)

type App struct {
	cfgMgr   *config.Manager
	watching bool

	logSvc *logx.Service
	log    logx.Logger

	client *chain.Client
	spec   poll.ParsedSpec

	sup    *supervisor.Supervisor
	stores []state.Store
}

// New loads configuration (file plus environment; the file is optional) and
// initializes logging. Nothing connects to the network yet.
func New(cfgPath string) (*App, error) {
	config.LoadDotEnv()

	a := &App{cfgMgr: config.NewManager(cfgPath)}

	cfg, err := a.cfgMgr.Load()
	switch {
	case err == nil:
		a.watching = true
	case errors.Is(err, os.ErrNotExist):
		// Logging isn't configured yet; announce the fallback on a plain
		// console logger.
		logx.NewConsole("info").Info("config file not found; using environment configuration",
			logx.String("path", cfgPath))
		cfg, err = config.FromEnv()
		if err != nil {
			return nil, err
		}
		a.cfgMgr.Commit(cfg)
	default:
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	a.logSvc, a.log = logx.New(loggingConfig(cfg))
	a.cfgMgr.SetLogger(a.log.With(logx.String("comp", "config")))

	if cfg.Telegram.Token == "" && cfg.Discord.Token == "" {
		return nil, errors.New("no platform tokens configured (set TELEGRAM_TOKEN or DISCORD_TOKEN)")
	}

	a.spec, err = poll.ParseSchedule(cfg.Chain.PollSchedule)
	if err != nil {
		return nil, fmt.Errorf("chain.poll_schedule: %w", err)
	}

	a.client = chain.NewClient(cfg.Chain.LCDURL, cfg.Chain.Contract, a.log.With(logx.String("comp", "chain")))
	return a, nil
}

// Start launches every configured platform and the shared workers. It
// returns once everything is running; Stop tears it down.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgMgr.Get()

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	if cfg.Telegram.Token != "" {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			a.sup.Cancel()
			return err
		}
		tgCfg := telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}
		err = a.startPlatform(ctx, "telegram", cfg, cfg.Telegram.RatePerSec, func(log logx.Logger) (transport.Adapter, error) {
			return telegram.New(tgCfg, log)
		})
		if err != nil {
			a.sup.Cancel()
			return err
		}
	}

	if cfg.Discord.Token != "" {
		dcCfg := discord.Config{Token: cfg.Discord.Token}
		err := a.startPlatform(ctx, "discord", cfg, cfg.Discord.RatePerSec, func(log logx.Logger) (transport.Adapter, error) {
			return discord.New(dcCfg, log)
		})
		if err != nil {
			a.sup.Cancel()
			return err
		}
	}

	if a.watching {
		updates := a.cfgMgr.Subscribe(1)
		a.sup.Go("config.watch", a.cfgMgr.Watch)
		a.sup.Go0("config.apply", func(ctx context.Context) {
			a.applyReloads(ctx, updates)
		})
	}

	a.startSystemd()

	a.log.Info("started",
		logx.Bool("telegram", cfg.Telegram.Token != ""),
		logx.Bool("discord", cfg.Discord.Token != ""),
		logx.String("schedule", cfg.Chain.PollSchedule),
	)
	return nil
}

// startPlatform opens the platform's state and supervises its connection:
// adapter construction and session failures are retried on a fixed delay.
func (a *App) startPlatform(ctx context.Context, name string, cfg *config.Config, ratePerSec int, connect func(logx.Logger) (transport.Adapter, error)) error {
	log := a.log.With(logx.String("bot", name))

	store, err := state.Open(state.Config{
		Driver:      cfg.State.Driver,
		Path:        filepath.Join(cfg.State.Dir, name),
		BusyTimeout: busyTimeout(cfg),
	}, log)
	if err != nil {
		return fmt.Errorf("%s state: %w", name, err)
	}
	a.stores = append(a.stores, store)

	registry, err := state.OpenRegistry(ctx, store, log)
	if err != nil {
		return fmt.Errorf("%s subscribers: %w", name, err)
	}
	marks, err := state.OpenWatermarks(ctx, store, log)
	if err != nil {
		return fmt.Errorf("%s watermark: %w", name, err)
	}

	a.sup.GoRestart("bot."+name, func(ctx context.Context) error {
		adapter, err := connect(log)
		if err != nil {
			return err
		}

		updates := make(chan transport.Update, updateBuffer)
		if err := adapter.Start(ctx, updates); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = adapter.Stop(stopCtx)
		}()

		handler := command.NewHandler(adapter, registry, log)
		dispatcher := dispatch.New(adapter, registry, marks, ratePerSec, log)
		poller := poll.New(a.client, dispatcher, marks, a.spec, log)

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var pollErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			handler.Run(runCtx, updates)
		}()
		go func() {
			defer wg.Done()
			// A poll loop failure takes the whole platform run down so the
			// supervisor restarts it rather than leaving a bot that answers
			// commands but never polls.
			if err := poller.Run(runCtx); err != nil {
				pollErr = err
				cancel()
			}
		}()

		<-runCtx.Done()
		cancel()
		wg.Wait()
		return pollErr
	}, supervisor.WithRestartDelay(reconnectDelay), supervisor.WithStopOnCleanExit(false))

	return nil
}

// applyReloads consumes committed configs from the watcher. Only the hot
// settings move at runtime; tokens and the state driver need a restart.
func (a *App) applyReloads(ctx context.Context, updates chan *config.Config) {
	defer a.cfgMgr.Unsubscribe(updates)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			a.logSvc.Apply(loggingConfig(cfg))
			a.client.SetContract(cfg.Chain.Contract)
			a.log.Info("applied config reload")
		}
	}
}

// startSystemd reports readiness and feeds the watchdog when running under a
// systemd unit with Type=notify. Outside systemd both calls are no-ops.
func (a *App) startSystemd() {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
		return
	}
	if !sent {
		return
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(ctx context.Context) {
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
	})
}

// Stop cancels all workers and waits for them to exit, then releases the
// state stores and log sinks.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	var err error
	if a.sup != nil {
		a.sup.Cancel()
		err = a.sup.Wait(ctx)
	}

	for _, st := range a.stores {
		if cerr := st.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	a.log.Info("stopped")
	if a.logSvc != nil {
		_ = a.logSvc.Close()
	}
	return err
}

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func busyTimeout(cfg *config.Config) time.Duration {
	d, err := config.ParseDurationOrDefault("state.busy_timeout", cfg.State.BusyTimeout, 0)
	if err != nil {
		return 0
	}
	return d
}
