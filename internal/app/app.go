package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"igrelay/internal/broadcast"
	"igrelay/internal/config"
	"igrelay/internal/downloader"
	"igrelay/internal/eventbus"
	"igrelay/internal/observability"
	"igrelay/internal/registry"
	"igrelay/internal/report"
	rtsup "igrelay/internal/runtime/supervisor"
	"igrelay/internal/storage"
	kit "igrelay/internal/transport"
	telegram "igrelay/internal/transport/telegram/adapter"
	"igrelay/internal/transport/telegram/router"
	logx "igrelay/pkg/logx"
	"igrelay/pkg/systemd"
	"igrelay/pkg/tgui"
	bcplugin "igrelay/plugins/broadcast"
	dlplugin "igrelay/plugins/downloader"
	sysplugin "igrelay/plugins/system"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	reg   *registry.Registry

	adapter *telegram.Adapter
	engine  *broadcast.Engine
	obs     *observability.Service
	report  *report.Service
	cmdm    *router.CommandManager

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.DurationOr(cfg.Telegram.PollTimeout, 10*time.Second),
	}, logx.NewConsole("INFO").With(logx.Comp("telegram")))
	if err != nil {
		return nil, err
	}

	// Bootstrap with the Telegram sink off, set its target, then apply the
	// final config so Apply does not warn about a missing target.
	logCfg, logChat := mapLogConfig(cfg)
	boot := logCfg
	boot.Telegram.Enabled = false
	logSvc, log := logx.New(boot, ad)
	logSvc.SetTelegramTarget(logChat, logCfg.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	log = log.With(logx.Comp("app"))

	store, err := storage.Open(mapStorageConfig(cfg), log.With(logx.Comp("storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	reg := registry.Open(context.Background(), store, log)
	bus := eventbus.New()

	eng := broadcast.New(reg, ad, mapBroadcastConfig(cfg),
		broadcast.WithLogger(log),
		broadcast.WithBus(bus),
	)
	fetcher := downloader.New(mapDownloaderConfig(cfg), nil, log.With(logx.Comp("downloader")))

	cmdm := router.NewCommandManager(log.With(logx.Comp("commands")), ad, cfg.Telegram.AdminUserID)
	cmdm.SetDefaultTimeout(config.DurationOr(cfg.Telegram.CommandTimeout, 60*time.Second))
	// An interrupted broadcast still reports its summary during shutdown.
	cmdm.SetDrainTimeout(broadcast.ReportTimeout + 2*time.Second)

	bc := bcplugin.New(bcplugin.Deps{Engine: eng, Registry: reg, Audit: store, Log: log})
	dl := dlplugin.New(dlplugin.Deps{
		Fetcher:      fetcher,
		Registry:     reg,
		Bus:          bus,
		Log:          log,
		UserInterval: config.DurationOr(cfg.Downloader.UserInterval, 3*time.Second),
		UserBurst:    cfg.Downloader.UserBurst,
	})
	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		reg:     reg,
		adapter: ad,
		engine:  eng,
		obs:     observability.New(mapObservabilityConfig(cfg), log),
		cmdm:    cmdm,
		updates: make(chan kit.Update, 256),
	}
	a.report = report.New(mapReportConfig(cfg), a.sendReport, log)

	sys := sysplugin.New(sysplugin.Deps{
		Recipients:   reg.Count,
		Broadcasting: eng.Running,
		Breaker:      func() string { return fetcher.State().String() },
		Workers:      func() rtsup.Counters { return a.sup.Counters() },
		Tasks:        func() []rtsup.Task { return a.sup.Tasks() },
		NextReport:   a.report.Next,
	})

	var cmds []router.Command
	cmds = append(cmds, dl.Commands()...)
	cmds = append(cmds, sys.Commands()...)
	cmds = append(cmds, bc.Commands()...)
	cmdm.SetRegistry(cmds)
	cmdm.SetTextHandler(dl.TextHandler())
	return a, nil
}

// sendReport delivers the stats text to the admin.
func (a *App) sendReport(ctx context.Context) error {
	admin := a.cmdm.Admin()
	if admin == 0 {
		return nil
	}
	_, err := a.adapter.SendText(ctx, kit.ChatTarget{ChatID: admin}, bcplugin.StatsText(a.reg),
		&kit.SendOptions{ParseMode: tgui.ParseMode, DisablePreview: true})
	return err
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.Comp("config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateReload(cfg, a.report)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.cmdm.SetBotUsername(a.adapter.Username())

	if err := a.obs.Start(a.sup.Context()); err != nil {
		a.log.Warn("observability server not started", logx.Err(err))
	}
	if err := a.report.Start(a.sup.Context()); err != nil {
		a.log.Warn("stats report not scheduled", logx.Err(err))
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if sent, err := systemd.Notify(systemd.Ready); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	if every := systemd.WatchdogInterval(); every > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			systemd.RunWatchdog(c, every, func() bool { return a.sup.Err() == nil })
		})
	}

	a.log.Info("app started",
		logx.String("bot", a.adapter.Username()),
		logx.Int("recipients", a.reg.Count()),
		logx.String("store", a.reg.Location()),
	)
	return nil
}

// applyConfig pushes a reloaded config into the live components.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(prev, next); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	logCfg, logChat := mapLogConfig(next)
	a.logs.SetTelegramTarget(logChat, logCfg.Telegram.ThreadID)
	a.logs.Apply(logCfg)

	a.cmdm.SetAdmin(next.Telegram.AdminUserID)
	a.cmdm.SetDefaultTimeout(config.DurationOr(next.Telegram.CommandTimeout, 60*time.Second))
	a.engine.SetConfig(mapBroadcastConfig(next))

	if err := a.obs.Reconfigure(ctx, mapObservabilityConfig(next)); err != nil {
		a.log.Warn("observability reconfigure failed", logx.Err(err))
	}
	if err := a.report.Reconfigure(ctx, mapReportConfig(next)); err != nil {
		a.log.Warn("report reconfigure failed", logx.Err(err))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Notify(systemd.Stopping)

	// Cancel the run context first so loops and any running broadcast unwind.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
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
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
			go func() {
				err := <-done
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
			}()
		}
	}

	step("report", time.Second, func(c context.Context) error { a.report.Stop(c); return nil })
	step("observability", time.Second, func(c context.Context) error { a.obs.Stop(c); return nil })
	// A running broadcast sends its interrupted summary while this waits.
	step("supervisor", 15*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
