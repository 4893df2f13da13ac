package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"motionrt/internal/eventbus"
	logx "motionrt/pkg/logx"
	"motionrt/pkg/motion"
)

const defaultHistorySize = 200

// Service consumes runtime activity events from the bus and journals them.
type Service struct {
	log   logx.Logger
	cfg   Config
	bus   eventbus.Bus
	store Store

	// session identifies one daemon run in the persisted journal.
	session string

	// errLimit keeps a broken store from flooding the log at frame rate.
	errLimit *rate.Limiter

	mu      sync.Mutex
	recent  []Entry
	unsub   func()
	done    chan struct{}
	started bool
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	return &Service{
		log:      log,
		cfg:      cfg,
		bus:      bus,
		session:  uuid.NewString(),
		errLimit: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// Session returns the id stamped on every entry of this run.
func (s *Service) Session() string { return s.session }

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	store, err := Open(s.cfg, s.log)
	if err != nil {
		return err
	}
	s.store = store

	ch, unsub := s.bus.SubscribeTypes(64,
		motion.EventStateChanged,
		motion.EventManualActivity,
		motion.EventContinuousActivity,
		motion.EventPlanCommitted,
	)
	s.unsub = unsub
	s.done = make(chan struct{})
	s.started = true

	go s.worker(ctx, ch)

	driver := s.cfg.Driver
	if store == nil {
		driver = "none"
	}
	s.log.Info("journal started", logx.String("driver", driver), logx.String("session", s.session))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	unsub := s.unsub
	done := s.done
	s.mu.Unlock()

	// Unsubscribing closes the event channel, which ends the worker.
	unsub()
	select {
	case <-done:
	case <-ctx.Done():
	}

	s.mu.Lock()
	store := s.store
	s.store = nil
	s.mu.Unlock()
	if store != nil {
		_ = store.Close()
	}
	s.log.Info("journal stopped")
}

// Recent returns up to n most recent entries, newest last.
func (s *Service) Recent(n int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.recent) {
		n = len(s.recent)
	}
	out := make([]Entry, n)
	copy(out, s.recent[len(s.recent)-n:])
	return out
}

func (s *Service) worker(ctx context.Context, ch <-chan eventbus.Event) {
	defer close(s.done)
	for ev := range ch {
		entry, ok := s.convert(ev)
		if !ok {
			continue
		}
		s.record(ctx, entry)
	}
}

// convert maps a bus event onto a journal entry.
func (s *Service) convert(ev eventbus.Event) (Entry, bool) {
	e := Entry{At: ev.Time, Session: s.session}
	switch ev.Type {
	case motion.EventStateChanged:
		change, ok := ev.Data.(motion.StateChange)
		if !ok {
			return Entry{}, false
		}
		e.Kind = "state"
		e.Detail = change.State.String()
	case motion.EventManualActivity, motion.EventContinuousActivity:
		change, ok := ev.Data.(motion.ActivityChange)
		if !ok {
			return Entry{}, false
		}
		e.Kind = change.Category
		if change.Active {
			e.Detail = "on"
		} else {
			e.Detail = "off"
		}
	case motion.EventPlanCommitted:
		commit, ok := ev.Data.(motion.PlanCommit)
		if !ok {
			return Entry{}, false
		}
		e.Kind = "plan"
		e.Detail = commit.Target
	default:
		return Entry{}, false
	}
	return e, true
}

func (s *Service) record(ctx context.Context, e Entry) {
	s.mu.Lock()
	s.recent = append(s.recent, e)
	if len(s.recent) > s.cfg.HistorySize {
		s.recent = s.recent[len(s.recent)-s.cfg.HistorySize:]
	}
	store := s.store
	s.mu.Unlock()

	if store == nil {
		return
	}
	if err := store.Append(ctx, e); err != nil && s.errLimit.Allow() {
		s.log.Warn("journal append failed",
			logx.String("kind", e.Kind),
			logx.Err(err),
		)
	}
}
