// Package app wires castbot's services together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/viper"

	"castbot/internal/bot"
	"castbot/internal/broadcast"
	"castbot/internal/config"
	rtsup "castbot/internal/runtime/supervisor"
	"castbot/internal/server"
	"castbot/internal/storage"
	kit "castbot/internal/transport"
	"castbot/internal/transport/telegram"
	logx "castbot/pkg/logx"
)

type Options struct {
	ConfigPath string
	// Env is the environment/flag overlay; nil reads nothing but the file.
	Env *viper.Viper
	// HTTPClient overrides the Bot API client (tests).
	HTTPClient *http.Client
}

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	root logx.Logger
	log  logx.Logger
	logs *logx.Service

	store storage.Store
	tg    *telegram.Adapter
	bc    *broadcast.Service
	disp  *bot.Dispatcher
	srv   *server.Server

	mode    string
	updates chan kit.Update
}

func New(ctx context.Context, opt Options) (*App, error) {
	cfgm := config.NewConfigManager(opt.ConfigPath, opt.Env)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg, true); err != nil {
		return nil, err
	}

	tcfg, err := MapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	tcfg.HTTPClient = opt.HTTPClient
	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	tg, err := telegram.New(tcfg, bootLog)
	if err != nil {
		return nil, err
	}

	// The Telegram sink needs its target before it is enabled.
	logCfg := mapLogConfig(cfg)
	logSvc, root := logx.New(logx.Config{Level: logCfg.Level, Console: logCfg.Console, File: logCfg.File}, tg)
	setLogTarget(logSvc, cfg)
	logSvc.Apply(logCfg)
	log := root.With(logx.String("comp", "app"))

	sc, err := MapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, sc, root)
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	bcfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	bc := broadcast.New(bcfg, tg, root.With(logx.String("comp", "broadcast")))

	disp, err := bot.New(bot.Options{
		Sender:      tg,
		Store:       store,
		Broadcaster: bc,
		Settings:    mapBotSettings(cfg),
		Username:    tg.Username(),
		Log:         root.With(logx.String("comp", "bot")),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		root:    root,
		log:     log,
		logs:    logSvc,
		store:   store,
		tg:      tg,
		bc:      bc,
		disp:    disp,
		mode:    strings.ToLower(strings.TrimSpace(cfg.Telegram.Mode)),
		updates: make(chan kit.Update, 256),
	}
	if a.mode == "" {
		a.mode = config.ModeWebhook
	}

	if a.mode == config.ModeWebhook {
		scfg, err := mapServerConfig(cfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.srv, err = server.New(scfg, telegram.DecodeUpdate, disp, root.With(logx.String("comp", "server")))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return a, nil
}

func setLogTarget(logs *logx.Service, cfg *config.Config) {
	if cfg.Telegram.AdminChatID != 0 {
		logs.SetTelegramTarget(kit.ChatRecipient(cfg.Telegram.AdminChatID))
		return
	}
	logs.SetTelegramTarget("")
}

// Handler exposes the webhook HTTP handler (nil in polling mode).
func (a *App) Handler() http.Handler {
	if a.srv == nil {
		return nil
	}
	return a.srv.Handler()
}

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.root.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg, true)
	})

	switch a.mode {
	case config.ModePolling:
		// getUpdates is refused while a webhook is registered.
		if err := a.tg.DeleteWebhook(ctx, false); err != nil {
			a.log.Warn("webhook removal failed", logx.Err(err))
		}
		if err := a.tg.Start(a.sup.Context(), a.updates); err != nil {
			return err
		}
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.disp.DispatchLoop(c, a.updates)
		})
	default:
		if ws := MapWebhookSettings(a.cfgm.Get()); ws.URL != "" {
			if err := a.tg.SetWebhook(ctx, ws); err != nil {
				return fmt.Errorf("register webhook: %w", err)
			}
		}
		a.sup.Go("webhook.serve", a.srv.Run)
	}

	a.sup.Go0("menu.publish", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 15*time.Second)
		defer cancel()
		if err := a.disp.PublishMenu(mctx, a.tg); err != nil {
			a.log.Warn("command menu publish failed", logx.Err(err))
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started", logx.String("mode", a.mode), logx.String("bot", a.tg.Username()))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig pushes the live-reloadable parts of newCfg to the running
// services.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(oldCfg, newCfg); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("settings", strings.Join(restart, ",")))
	}

	setLogTarget(a.logs, newCfg)
	a.logs.Apply(mapLogConfig(newCfg))

	a.disp.Apply(mapBotSettings(newCfg))

	if bcfg, err := mapBroadcastConfig(newCfg); err != nil {
		a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
	} else {
		a.bc.Apply(bcfg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason string) error {
	if a.sup == nil {
		return a.closeStore()
	}
	a.log.Info("stopping", logx.String("reason", reason))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancelling the run context shuts the webhook server down and ends
	// any running broadcast.
	a.sup.Cancel()

	a.step(ctx, "adapter", 2*time.Second, a.tg.Stop)
	a.step(ctx, "supervisor", 35*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.closeStore() })

	a.log.Info("stopped")
	if a.logs != nil {
		return a.logs.Close()
	}
	return nil
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	if errors.Is(err, storage.ErrDisabled) {
		return nil
	}
	return err
}

// step runs one shutdown step bounded by max, never extending ctx's
// deadline. A step that overruns is logged and left behind.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		max = min(max, time.Until(dl))
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
