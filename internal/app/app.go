// Package app wires the runtime together: config, logging, event bus,
// the motion scheduler, the activity journal, the sequencer and the
// optional pprof server.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"motionrt/internal/config"
	"motionrt/internal/eventbus"
	"motionrt/internal/journal"
	"motionrt/internal/observability/pprof"
	"motionrt/internal/scenes"
	"motionrt/internal/sequencer"
	"motionrt/pkg/logx"
	"motionrt/pkg/motion"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	sched *motion.Scheduler
	jour  *journal.Service
	seq   *sequencer.Service
	pprof *pprof.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sched := motion.New(motion.Config{
		FrameInterval: frameInterval(cfg.Runtime.FrameRate),
	}, log.With(logx.String("comp", "motion")), bus)

	jcfg, err := mapJournalConfig(cfg)
	if err != nil {
		return nil, err
	}
	jour := journal.New(jcfg, log.With(logx.String("comp", "journal")), bus)

	seq := sequencer.New(sequencer.Config{
		Enabled:   sequencerEnabled(cfg),
		QueueSize: cfg.Sequencer.QueueSize,
	}, log.With(logx.String("comp", "sequencer")))

	pprofSvc := pprof.New(mapPprofConfig(cfg), log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		sched:   sched,
		jour:    jour,
		seq:     seq,
		pprof:   pprofSvc,
	}, nil
}

// Scheduler exposes the motion scheduler for embedding callers.
func (a *App) Scheduler() *motion.Scheduler { return a.sched }

func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	if err := a.jour.Start(ctx); err != nil {
		return fmt.Errorf("journal: %w", err)
	}

	a.sched.AddStateListener(stateLogger{log: a.log})

	if a.seq.Enabled() {
		a.seq.Start(ctx)
		if err := a.applySequence(ctx, a.cfgm.Get()); err != nil {
			return err
		}
	}

	a.pprof.Start(ctx)

	// config hot reload
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(ctx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("config watcher exited", logx.Err(err))
		}
	}()

	a.log.Info("started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.pprof.Stop(ctx)
	a.seq.Stop(ctx)
	a.jour.Stop(ctx)
	a.wg.Wait()
	a.log.Info("stopped")
	_ = a.logs.Close()
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(last, cfg)
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				last = cfg
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config changed", fields...)
			last = cfg

			a.apply(ctx, cfg, sections)
		}
	}
}

func (a *App) apply(ctx context.Context, cfg *config.Config, sections []string) {
	changed := map[string]bool{}
	for _, s := range sections {
		changed[s] = true
	}

	if changed["logging"] {
		a.logs.Apply(logx.Config{
			Level:   cfg.Logging.Level,
			Console: cfg.Logging.Console,
			File: logx.FileConfig{
				Enabled: cfg.Logging.File.Enabled,
				Path:    cfg.Logging.File.Path,
			},
		})
	}
	if changed["runtime"] {
		a.log.Warn("runtime config changed; restart required for the frame interval to take effect")
	}
	if changed["journal"] {
		a.log.Warn("journal config changed; restart required for changes to take effect")
	}
	if changed["pprof"] {
		a.pprof.Reconfigure(ctx, mapPprofConfig(cfg))
	}
	if changed["sequence"] {
		enabled := sequencerEnabled(cfg)
		prev := a.seq.Enabled()
		a.seq.SetEnabled(enabled)
		switch {
		case !enabled && prev:
			a.log.Info("sequencer disabled via config")
			a.seq.Clear()
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.seq.Stop(stopCtx)
			cancel()
		case enabled:
			if !prev {
				a.log.Info("sequencer enabled via config")
				a.seq.Start(ctx)
			}
			if err := a.applySequence(ctx, cfg); err != nil {
				a.log.Warn("invalid sequence config; keeping previous", logx.Err(err))
			}
		}
	}
}

// applySequence replaces the registered sequencer entries with cfg's.
func (a *App) applySequence(ctx context.Context, cfg *config.Config) error {
	jobs := make(map[string]struct {
		schedule string
		job      sequencer.Job
	}, len(cfg.Sequence))
	for _, entry := range cfg.Sequence {
		plan, target, err := scenes.Build(entry)
		if err != nil {
			return fmt.Errorf("sequence %q: %w", entry.Name, err)
		}
		p, t := plan, target
		jobs[entry.Name] = struct {
			schedule string
			job      sequencer.Job
		}{entry.Schedule, func(context.Context) {
			a.sched.AddPlan(p.Clone(), t)
		}}
	}

	a.seq.Clear()
	for name, j := range jobs {
		if _, err := a.seq.Add(name, j.schedule, j.job); err != nil {
			return fmt.Errorf("sequence %q: %w", name, err)
		}
	}
	return nil
}

// stateLogger logs coarse scheduler state transitions.
type stateLogger struct{ log logx.Logger }

func (l stateLogger) OnStateChange(_ *motion.Scheduler, newState motion.State) {
	l.log.Info("motion state changed", logx.String("state", newState.String()))
}

func frameInterval(rate int) time.Duration {
	if rate <= 0 {
		return 0 // scheduler default
	}
	return time.Second / time.Duration(rate)
}

func sequencerEnabled(cfg *config.Config) bool {
	if cfg.Sequencer.Enabled != nil {
		return *cfg.Sequencer.Enabled
	}
	return len(cfg.Sequence) > 0
}

func mapJournalConfig(cfg *config.Config) (journal.Config, error) {
	if cfg.Journal == nil {
		return journal.Config{}, nil
	}
	busy, err := cfg.Journal.BusyTimeoutDuration()
	if err != nil {
		return journal.Config{}, err
	}
	return journal.Config{
		Driver:      cfg.Journal.Driver,
		Path:        cfg.Journal.Path,
		BusyTimeout: busy,
		HistorySize: cfg.Journal.HistorySize,
	}, nil
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled:       cfg.Pprof.Enabled,
		Addr:          cfg.Pprof.Addr,
		Token:         cfg.Pprof.Token,
		AllowInsecure: cfg.Pprof.AllowInsecure,
	}
}

// validate rejects configs that would fail later at apply time, so bad
// hot-reloads never get committed.
func validate(cfg *config.Config) error {
	if cfg.Runtime.FrameRate < 0 {
		return fmt.Errorf("runtime.frame_rate must be >= 0")
	}
	if cfg.Sequencer.QueueSize < 0 {
		return fmt.Errorf("sequencer.queue_size must be >= 0")
	}
	if _, err := mapJournalConfig(cfg); err != nil {
		return err
	}
	if cfg.Journal != nil {
		switch cfg.Journal.Driver {
		case "", "none", "file", "sqlite":
		default:
			return fmt.Errorf("journal.driver: unknown driver %q", cfg.Journal.Driver)
		}
		if cfg.Journal.HistorySize < 0 {
			return fmt.Errorf("journal.history_size must be >= 0")
		}
	}
	seen := map[string]struct{}{}
	for i, entry := range cfg.Sequence {
		if strings.TrimSpace(entry.Name) == "" {
			return fmt.Errorf("sequence[%d].name is required", i)
		}
		if _, dup := seen[entry.Name]; dup {
			return fmt.Errorf("sequence[%d]: duplicate name %q", i, entry.Name)
		}
		seen[entry.Name] = struct{}{}
		if _, err := sequencer.ParseSchedule(entry.Schedule); err != nil {
			return fmt.Errorf("sequence[%d].schedule: %w", i, err)
		}
		if _, _, err := scenes.Build(entry); err != nil {
			return fmt.Errorf("sequence[%d]: %w", i, err)
		}
	}
	return nil
}
