package app

import (
	"context"
	"fmt"
	"sync"

	"promobeat/internal/config"
	"promobeat/internal/dispatch"
	"promobeat/internal/engine"
	"promobeat/internal/eventbus"
	"promobeat/internal/storage"
	"promobeat/internal/trigger"
	logx "promobeat/pkg/logx"
)

// App wires the daemon together: config manager, logging service, record
// store, dispatch service, engine and tick trigger.
type App struct {
	cfgPath string
	cfgm    *config.Manager

	logs *logx.Service
	log  logx.Logger

	bus   eventbus.Bus
	store storage.Store
	disp  *dispatch.Service
	eng   *engine.Engine
	trig  *trigger.Service

	// lastCfg is only touched from the reload goroutine.
	lastCfg *config.Config

	watchCancel context.CancelFunc
	watchWG     sync.WaitGroup
}

// componentConfigs is the parsed, typed view of the raw config file.
type componentConfigs struct {
	logging  logx.Config
	storage  storage.Config
	engine   engine.Config
	dispatch dispatch.Config
	trigger  trigger.Config
}

func mapConfigs(cfg *config.Config) (componentConfigs, error) {
	var out componentConfigs

	out.logging = logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return out, err
	}
	out.storage = storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}

	interval, err := config.ParseDurationField("engine.interval", cfg.Engine.Interval)
	if err != nil {
		return out, err
	}
	out.engine = engine.Config{Timezone: cfg.Engine.Timezone}
	out.trigger = trigger.Config{
		Enabled:  cfg.Engine.Enabled,
		Interval: interval,
		Timezone: cfg.Engine.Timezone,
	}

	retryBase, err := config.ParseDurationField("dispatch.retry_base", cfg.Dispatch.RetryBase)
	if err != nil {
		return out, err
	}
	retryMaxDelay, err := config.ParseDurationField("dispatch.retry_max_delay", cfg.Dispatch.RetryMaxDelay)
	if err != nil {
		return out, err
	}
	webhookTimeout, err := config.ParseDurationField("dispatch.webhook.timeout", cfg.Dispatch.Webhook.Timeout)
	if err != nil {
		return out, err
	}
	out.dispatch = dispatch.Config{
		Channel:       cfg.Dispatch.Channel,
		RatePerSec:    cfg.Dispatch.RatePerSec,
		RetryMax:      cfg.Dispatch.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
		Webhook: dispatch.WebhookConfig{
			URL:     cfg.Dispatch.Webhook.URL,
			Timeout: webhookTimeout,
		},
		Telegram: dispatch.TelegramConfig{
			Token:  cfg.Dispatch.Telegram.Token,
			ChatID: cfg.Dispatch.Telegram.ChatID,
		},
	}
	return out, nil
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cc, err := mapConfigs(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cc.logging)
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(ctx context.Context, cfg *config.Config) error {
		_, err := mapConfigs(cfg)
		return err
	})

	store, err := storage.Open(cc.storage, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	disp, err := dispatch.New(cc.dispatch, log.With(logx.String("comp", "dispatch")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("init dispatch: %w", err)
	}

	bus := eventbus.New()
	eng, err := engine.New(cc.engine, engine.Deps{
		Store:      store,
		Dispatcher: disp,
		Bus:        bus,
		Log:        log.With(logx.String("comp", "engine")),
	})
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	trig := trigger.New(cc.trigger, eng.Tick, log.With(logx.String("comp", "trigger")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		bus:     bus,
		store:   store,
		disp:    disp,
		eng:     eng,
		trig:    trig,
		lastCfg: cfg,
	}, nil
}

// Store exposes the record store (seeding, ad-hoc admin tooling).
func (a *App) Store() storage.Store { return a.store }

// Engine exposes the engine (tests, manual tick runs).
func (a *App) Engine() *engine.Engine { return a.eng }

// Bus exposes the event bus for additional subscribers.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Start launches the trigger and the config watcher.
func (a *App) Start(ctx context.Context) error {
	if err := a.trig.Start(ctx); err != nil {
		return err
	}

	wctx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel

	updates := a.cfgm.Subscribe(2)
	a.watchWG.Add(2)
	go func() {
		defer a.watchWG.Done()
		_ = a.cfgm.Watch(wctx)
	}()
	go func() {
		defer a.watchWG.Done()
		for {
			select {
			case <-wctx.Done():
				a.cfgm.Unsubscribe(updates)
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	}()

	a.log.Info("started", logx.String("config", a.cfgPath))
	return nil
}

// applyReload applies the hot-reloadable parts of a new config.
// Storage, dispatch and engine timezone changes need a restart.
func (a *App) applyReload(cfg *config.Config) {
	cc, err := mapConfigs(cfg)
	if err != nil {
		// Validator should have caught this; keep running on the old config.
		a.log.Warn("config reload rejected", logx.Err(err))
		return
	}

	a.logs.Apply(cc.logging)
	a.trig.Apply(cc.trigger)

	prev := a.lastCfg
	if prev != nil {
		if cfg.Storage != prev.Storage {
			a.log.Warn("storage config changed; restart required to take effect")
		}
		if cfg.Dispatch != prev.Dispatch {
			a.log.Warn("dispatch config changed; restart required to take effect")
		}
		if cfg.Engine.Timezone != prev.Engine.Timezone {
			a.log.Warn("engine timezone changed; dedup day boundary updates on restart")
		}
	}
	a.lastCfg = cfg
	a.log.Info("config reloaded")
}

// Stop halts the trigger and the watcher, then closes resources.
func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
		a.watchCancel = nil
	}
	a.trig.Stop(ctx)
	a.watchWG.Wait()

	err := a.store.Close()
	_ = a.logs.Close()
	a.log.Info("stopped")
	return err
}
