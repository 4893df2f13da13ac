package scenes

import (
	"math"
	"sync"
	"testing"
	"time"

	"motionrt/internal/config"
	logx "motionrt/pkg/logx"
	"motionrt/pkg/motion"
)

func TestBuild(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		entry   config.SequenceEntry
		want    motion.Plan
		target  any
		wantErr bool
	}{
		{
			name:   "pulse with defaults",
			entry:  config.SequenceEntry{Name: "hero", Scene: "pulse"},
			want:   PulsePlan{Duration: defaultDuration, Period: defaultPeriod},
			target: Target("hero"),
		},
		{
			name:   "pulse explicit",
			entry:  config.SequenceEntry{Name: "hero", Scene: "Pulse", Target: "card", Duration: "3s", Period: "100ms"},
			want:   PulsePlan{Duration: 3 * time.Second, Period: 100 * time.Millisecond},
			target: Target("card"),
		},
		{
			name:   "drift",
			entry:  config.SequenceEntry{Name: "bg", Scene: "drift", Duration: "500ms"},
			want:   DriftPlan{Duration: 500 * time.Millisecond},
			target: Target("bg"),
		},
		{
			name:    "unknown scene",
			entry:   config.SequenceEntry{Name: "x", Scene: "sparkle"},
			wantErr: true,
		},
		{
			name:    "bad duration",
			entry:   config.SequenceEntry{Name: "x", Scene: "pulse", Duration: "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			plan, target, err := Build(tt.entry)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Build error: %v", err)
			}
			if plan != tt.want {
				t.Fatalf("plan = %+v, want %+v", plan, tt.want)
			}
			if target != tt.target {
				t.Fatalf("target = %v, want %v", target, tt.target)
			}
		})
	}
}

func TestPulsePerformerAccumulatesAndFinishes(t *testing.T) {
	t.Parallel()
	plan := PulsePlan{Duration: 20 * time.Millisecond, Period: 10 * time.Millisecond}
	p := plan.Performer().(*pulsePerformer)
	p.Initialize(Target("t"))

	p.AddPlan(plan)
	p.AddPlan(plan) // extends the active window

	steps := 0
	for p.Update(10*time.Millisecond) == motion.ActivityActive {
		steps++
		if steps > 10 {
			t.Fatal("performer never reported idle")
		}
	}
	// Two 20ms plans at 10ms per frame: three active frames, idle on the fourth.
	if steps != 3 {
		t.Fatalf("active steps = %d, want 3", steps)
	}

	if v := p.Value(); math.Abs(v) > 1 {
		t.Fatalf("Value() = %v, want within [-1, 1]", v)
	}
}

// endSource records begin/end pairs and signals when everything ended.
type endSource struct {
	mu    sync.Mutex
	open  int
	total int
	done  chan struct{}
}

func (s *endSource) Begin() motion.ActivityToken {
	s.mu.Lock()
	s.open++
	s.total++
	s.mu.Unlock()
	return &endToken{src: s}
}

type endToken struct {
	src  *endSource
	once sync.Once
}

func (t *endToken) End() {
	t.once.Do(func() {
		t.src.mu.Lock()
		t.src.open--
		if t.src.open == 0 && t.src.done != nil {
			close(t.src.done)
		}
		t.src.mu.Unlock()
	})
}

func TestDriftPerformerBracketsWork(t *testing.T) {
	t.Parallel()
	src := &endSource{done: make(chan struct{})}
	p := DriftPlan{}.Performer().(*driftPerformer)
	p.Initialize(Target("t"))
	p.SetActivityTokenSource(src)

	p.AddPlan(DriftPlan{Duration: 10 * time.Millisecond})

	select {
	case <-src.done:
	case <-time.After(2 * time.Second):
		t.Fatal("drift token never ended")
	}
	if src.total != 1 {
		t.Fatalf("Begin called %d times, want 1", src.total)
	}
}

// testPump delivers ticks only when the test calls tick.
type testPump struct {
	mu sync.Mutex
	fn motion.FrameFunc
}

func (p *testPump) Start(fn motion.FrameFunc) {
	p.mu.Lock()
	p.fn = fn
	p.mu.Unlock()
}

func (p *testPump) Stop() {}

func (p *testPump) tick(now time.Time) {
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	if fn != nil {
		fn(now)
	}
}

func TestPulseSceneDrivesScheduler(t *testing.T) {
	t.Parallel()
	pump := &testPump{}
	sched := motion.New(motion.Config{Pump: pump}, logx.Nop(), nil)

	plan, target, err := Build(config.SequenceEntry{
		Name: "hero", Scene: "pulse", Duration: "30ms", Period: "10ms",
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	sched.AddPlan(plan, target)

	if got := sched.GetState(); got != motion.Active {
		t.Fatalf("GetState() after commit = %v, want Active", got)
	}

	// First frame is delta 0, then 20ms steps burn through the 30ms window.
	base := time.Unix(0, 0)
	for i := 0; i < 3; i++ {
		pump.tick(base.Add(time.Duration(i) * 20 * time.Millisecond))
	}
	if got := sched.GetState(); got != motion.Idle {
		t.Fatalf("GetState() after scene finished = %v, want Idle", got)
	}
}

func TestDriftPerformerZeroDurationEndsImmediately(t *testing.T) {
	t.Parallel()
	src := &endSource{}
	p := DriftPlan{}.Performer().(*driftPerformer)
	p.Initialize(Target("t"))
	p.SetActivityTokenSource(src)

	p.AddPlan(DriftPlan{})

	src.mu.Lock()
	defer src.mu.Unlock()
	if src.open != 0 || src.total != 1 {
		t.Fatalf("open/total = %d/%d, want 0/1", src.open, src.total)
	}
}
