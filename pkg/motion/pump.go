package motion

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "motionrt/pkg/logx"
)

// FrameFunc receives one frame timestamp per tick. Timestamps are
// monotonically increasing for the lifetime of a pump.
type FrameFunc func(now time.Time)

// FramePump delivers a sequence of frame timestamps to a single registered
// callback while started.
//
// Start and Stop are idempotent. Stop halts delivery promptly; one tick that
// was already in flight when Stop was called may still be delivered, and the
// scheduler discards such late ticks.
type FramePump interface {
	Start(fn FrameFunc)
	Stop()
}

// DefaultFrameInterval is the tick interval used when none is configured
// (roughly 60 frames per second).
const DefaultFrameInterval = time.Second / 60

// TickerPump is a FramePump driven by a time.Ticker.
//
// It logs a rate-limited warning when the callback overruns the frame
// interval.
type TickerPump struct {
	interval time.Duration
	log      logx.Logger
	overrun  *rate.Limiter

	mu   sync.Mutex
	stop chan struct{}
}

// NewTickerPump creates a pump ticking every interval. A non-positive
// interval falls back to DefaultFrameInterval.
func NewTickerPump(interval time.Duration, log logx.Logger) *TickerPump {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &TickerPump{
		interval: interval,
		log:      log,
		overrun:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Interval returns the configured tick interval.
func (p *TickerPump) Interval() time.Duration { return p.interval }

func (p *TickerPump) Start(fn FrameFunc) {
	if fn == nil {
		panic("motion: nil frame callback")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	stop := make(chan struct{})
	p.stop = stop
	go p.run(fn, stop)
}

func (p *TickerPump) Stop() {
	p.mu.Lock()
	stop := p.stop
	p.stop = nil
	p.mu.Unlock()
	if stop != nil {
		// Signal only. Waiting here would deadlock when Stop is reached
		// from inside a frame callback (a performer going idle mid-frame).
		close(stop)
	}
}

func (p *TickerPump) run(fn FrameFunc, stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			began := time.Now()
			fn(now)
			if took := time.Since(began); took > p.interval && p.overrun.Allow() {
				p.log.Warn("frame callback overran budget",
					logx.Duration("took", took),
					logx.Duration("budget", p.interval),
				)
			}
		}
	}
}

// frameAdvancer turns the pump's absolute timestamps into per-frame deltas.
//
// reset must be called on every pump start so a resubscription starts fresh:
// the first tick after reset always yields a zero delta instead of a diff
// against a stale timestamp.
type frameAdvancer struct {
	prev    time.Time
	hasPrev bool
}

func (f *frameAdvancer) reset() {
	f.prev = time.Time{}
	f.hasPrev = false
}

func (f *frameAdvancer) advance(now time.Time) time.Duration {
	if !f.hasPrev {
		f.prev = now
		f.hasPrev = true
		return 0
	}
	delta := now.Sub(f.prev)
	f.prev = now
	return delta
}
