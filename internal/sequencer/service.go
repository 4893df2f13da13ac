package sequencer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	logx "motionrt/pkg/logx"
)

type Config struct {
	Enabled   bool
	QueueSize int
}

// Job is one scheduled submission. Jobs must be quick; a job that blocks
// stalls the worker, not the cron goroutine.
type Job func(ctx context.Context)

type entryDef struct {
	id     string
	name   string
	spec   ParsedSpec
	job    Job
	cronID cron.EntryID
}

// EntryInfo is a read-only view of a registered entry.
type EntryInfo struct {
	ID       string
	Name     string
	Schedule string
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config

	parser cron.Parser
	c      *cron.Cron
	defs   []*entryDef

	queue  chan queuedJob
	stopCh chan struct{}
}

type queuedJob struct {
	name string
	job  Job
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// SetEnabled flips the enabled flag on hot reload. The caller is in charge
// of the matching Start/Stop transition.
func (s *Service) SetEnabled(v bool) {
	s.mu.Lock()
	s.cfg.Enabled = v
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})

	size := s.cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	s.queue = make(chan queuedJob, size)
	s.c = cron.New(cron.WithParser(s.parser))

	// re-register existing defs (if any)
	for _, d := range s.defs {
		s.registerLocked(d)
	}

	go s.worker(ctx, s.stopCh, s.queue)
	s.c.Start()
	s.log.Info("sequencer started", logx.Int("entries", len(s.defs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	if s.c != nil {
		select {
		case <-s.c.Stop().Done():
		case <-ctx.Done():
		}
		s.c = nil
	}
	s.log.Info("sequencer stopped")
}

// Add registers a job under a name. Re-adding an existing name replaces its
// schedule, so hot-reloads can re-apply config without duplicating entries.
func (s *Service) Add(name, schedule string, job Job) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("name required")
	}
	if job == nil {
		return "", errors.New("job required")
	}
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)

	d := &entryDef{
		id:   uuid.NewString(),
		name: name,
		spec: spec,
		job:  job,
	}
	s.defs = append(s.defs, d)
	if s.c != nil {
		s.registerLocked(d)
	}
	s.log.Debug("sequence entry registered",
		logx.String("name", name),
		logx.String("id", d.id),
		logx.String("schedule", schedule),
	)
	return d.id, nil
}

// Remove drops the named entry; unknown names are a no-op.
func (s *Service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
}

// Clear drops every entry (used before re-applying config).
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if s.c != nil && d.cronID != 0 {
			s.c.Remove(d.cronID)
		}
	}
	s.defs = nil
}

// Snapshot lists the registered entries.
func (s *Service) Snapshot() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryInfo, 0, len(s.defs))
	for _, d := range s.defs {
		sched := d.spec.Cron
		if d.spec.Kind == SpecInterval {
			sched = "@every " + d.spec.Every.String()
		}
		out = append(out, EntryInfo{ID: d.id, Name: d.name, Schedule: sched})
	}
	return out
}

func (s *Service) removeLocked(name string) {
	kept := s.defs[:0]
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.cronID != 0 {
				s.c.Remove(d.cronID)
			}
			continue
		}
		kept = append(kept, d)
	}
	s.defs = kept
}

func (s *Service) registerLocked(d *entryDef) {
	expr := d.spec.Cron
	if d.spec.Kind == SpecInterval {
		expr = "@every " + d.spec.Every.String()
	}
	id, err := s.c.AddFunc(expr, func() {
		s.enqueue(queuedJob{name: d.name, job: d.job})
	})
	if err != nil {
		s.log.Error("sequence entry register failed",
			logx.String("name", d.name),
			logx.String("expr", expr),
			logx.Any("err", err),
		)
		return
	}
	d.cronID = id
}

func (s *Service) enqueue(q queuedJob) {
	select {
	case s.queue <- q:
	default:
		s.log.Warn("sequencer queue full, dropping submission", logx.String("name", q.name))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queuedJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case q := <-queue:
			start := time.Now()
			q.job(ctx)
			s.log.Debug("sequence entry ran",
				logx.String("name", q.name),
				logx.Duration("took", time.Since(start)),
			)
		}
	}
}
