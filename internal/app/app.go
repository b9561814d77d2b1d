// Package app wires the reminder bot together and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paul-wild/FAU-Clist-Bot/internal/clist"
	"github.com/paul-wild/FAU-Clist-Bot/internal/config"
	"github.com/paul-wild/FAU-Clist-Bot/internal/eventbus"
	"github.com/paul-wild/FAU-Clist-Bot/internal/notifier"
	"github.com/paul-wild/FAU-Clist-Bot/internal/observability/status"
	"github.com/paul-wild/FAU-Clist-Bot/internal/reminder"
	rtsup "github.com/paul-wild/FAU-Clist-Bot/internal/runtime/supervisor"
	"github.com/paul-wild/FAU-Clist-Bot/internal/storage"
	"github.com/paul-wild/FAU-Clist-Bot/internal/subscriber"
	"github.com/paul-wild/FAU-Clist-Bot/internal/task/engine"
	"github.com/paul-wild/FAU-Clist-Bot/internal/task/scheduler"
	kit "github.com/paul-wild/FAU-Clist-Bot/internal/transport"
	telegram "github.com/paul-wild/FAU-Clist-Bot/internal/transport/telegram/adapter"
	"github.com/paul-wild/FAU-Clist-Bot/internal/transport/telegram/router"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

const reconcileTask = "reminders.reconcile"

type App struct {
	cfgm *config.ConfigManager
	set  config.Settings
	sup  *rtsup.Supervisor

	root  logx.Logger
	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	subs     *subscriber.Registry
	clist    *clist.Client
	engine   *engine.Service
	sched    *scheduler.Service
	notif    *notifier.Service
	reminder *reminder.Scheduler
	cmds     *Commands
	cmdm     *router.CommandManager
	status   *status.Service

	updates chan kit.Update
}

// NewApp loads and validates the config at cfgPath and builds every
// component. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	set, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       set.Telegram.Token,
		PollTimeout: set.Telegram.PollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Start with the Telegram sink off so Apply does not warn about a
	// missing target, then enable it once the target is set.
	logCfg := set.Logging
	logCfg.Telegram.Enabled = false
	logSvc, root := logx.New(logCfg, ad)
	if set.Telegram.LogChatID != 0 {
		logSvc.SetTelegramTarget(set.Telegram.LogChatID, set.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(set.Logging)
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()

	store, err := storage.Open(set.Storage, root)
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", set.Storage.Driver))
	}

	subs := subscriber.NewRegistry()
	client := clist.New(set.Clist, root.With(logx.String("comp", "clist")))
	engineSvc := engine.New(set.TaskEngine, root, bus)
	schedSvc := scheduler.New(scheduler.Config{Timezone: set.Reminders.Location.String()}, engineSvc, root)
	notifSvc := notifier.New(notifier.Config{}, ad, root, bus, store)

	dispatcher := reminder.NewDispatcher(subs, notifSvc, root)
	remSched := reminder.NewScheduler(reminder.Config{
		Offsets:         set.Reminders.Offsets,
		Window:          set.Clist.Window,
		DeliveryTimeout: set.Reminders.DeliveryTimeout,
	}, client, schedSvc, dispatcher, root, bus)

	cmds := &Commands{
		Subs:      subs,
		Contests:  client,
		Store:     store,
		Bus:       bus,
		Log:       root.With(logx.String("comp", "commands")),
		Location:  set.Reminders.Location,
		ListLimit: set.Reminders.ListLimit,
		Window:    set.Clist.Window,
	}
	cmdm := router.NewCommandManager(root, ad, router.Options{
		Workers:        set.Telegram.CommandWorkers,
		DefaultTimeout: set.Telegram.CommandTimeout,
		BotUsername:    ad.Username(),
	})

	statusSvc := status.New(status.Config{Enabled: set.Status.Enabled, Addr: set.Status.Addr}, status.Sources{
		Reminders:   schedSvc,
		Deliveries:  notifSvc,
		Subscribers: subs,
		Tasks:       engineSvc,
	}, root)

	return &App{
		cfgm:     cfgm,
		set:      set,
		root:     root,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		subs:     subs,
		clist:    client,
		engine:   engineSvc,
		sched:    schedSvc,
		notif:    notifSvc,
		reminder: remSched,
		cmds:     cmds,
		cmdm:     cmdm,
		status:   statusSvc,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.root.With(logx.String("comp", "supervisor"))), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.root)
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.engine.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())

	rs := a.reminder
	err := a.sched.AddSchedule(reconcileTask, a.set.Reminders.Reconcile, a.set.Clist.Timeout+30*time.Second,
		scheduler.ScheduleOptions{Overlap: engine.OverlapSkipIfRunning, RunImmediately: true},
		func(c context.Context) error {
			_, err := rs.Reconcile(c)
			return err
		})
	if err != nil {
		return fmt.Errorf("register %s: %w", reconcileTask, err)
	}

	a.cmdm.SetAppSupervisor(a.sup)
	a.cmdm.SetRegistry(a.cmds.Registry())
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	a.status.Start(a.sup.Context())

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
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
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
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// keep only the latest of a burst
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(last, newCfg)
				last = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Strings("offsets", durations(a.set.Reminders.Offsets)),
		logx.String("reconcile", a.set.Reminders.Reconcile),
		logx.String("tz", a.set.Reminders.Location.String()))
	return nil
}

// applyConfig applies the live sections of a reloaded config and reports
// the rest.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.SetTelegramTarget(newCfg.Telegram.LogChatID, newCfg.Logging.Telegram.ThreadID)
	a.logs.Apply(config.LogConfig(newCfg.Logging))

	if rest := config.RestartRequired(sections); len(rest) > 0 {
		a.log.Warn("config sections changed; restart required for them to take effect",
			logx.String("sections", strings.Join(rest, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// Each step gets its own bound so one component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max <= 0 {
				a.log.Warn("stop step skipped, deadline reached", logx.String("name", name))
				return
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

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
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("status", 1*time.Second, func(c context.Context) error { a.status.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped", logx.Int("subscribers", a.subs.Len()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func durations(ds []time.Duration) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.String())
	}
	return out
}
