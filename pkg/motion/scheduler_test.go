package motion

import (
	"sync"
	"testing"
	"time"

	logx "motionrt/pkg/logx"
)

// fakePump delivers ticks only when the test calls Tick. Stop keeps the
// registered callback so the test can simulate a tick that was already in
// flight at stop time.
type fakePump struct {
	mu     sync.Mutex
	fn     FrameFunc
	starts int
	stops  int
}

func (p *fakePump) Start(fn FrameFunc) {
	p.mu.Lock()
	p.fn = fn
	p.starts++
	p.mu.Unlock()
}

func (p *fakePump) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

func (p *fakePump) Tick(now time.Time) {
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	if fn != nil {
		fn(now)
	}
}

func (p *fakePump) counts() (starts, stops int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts, p.stops
}

// recListener records every state it is notified with.
type recListener struct {
	mu     sync.Mutex
	states []State
}

func (l *recListener) OnStateChange(_ *Scheduler, newState State) {
	l.mu.Lock()
	l.states = append(l.states, newState)
	l.mu.Unlock()
}

func (l *recListener) got() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

// manualPlan drives a fake manual performer that stays active for a plan's
// worth of frames. All live performer instances register in rec.
type manualPlan struct {
	frames int
	rec    *performerRec
}

func (p manualPlan) Clone() Plan { return p }

func (p manualPlan) Performer() Performer { return &fakeManual{rec: p.rec} }

type fakeManual struct {
	rec        *performerRec
	target     any
	framesLeft int
	deltas     []time.Duration
	plans      int
}

func (f *fakeManual) Initialize(target any) {
	f.target = target
	f.rec.add(f)
}

func (f *fakeManual) AddPlan(plan Plan) {
	f.plans++
	f.framesLeft += plan.(manualPlan).frames
}

func (f *fakeManual) Update(delta time.Duration) Activity {
	f.deltas = append(f.deltas, delta)
	f.framesLeft--
	if f.framesLeft <= 0 {
		return ActivityIdle
	}
	return ActivityActive
}

// continuousPlan drives a fake continuous performer. The test brackets
// activity itself through the performer's token source.
type continuousPlan struct {
	rec *performerRec
}

func (p continuousPlan) Clone() Plan { return p }

func (p continuousPlan) Performer() Performer { return &fakeContinuous{rec: p.rec} }

type fakeContinuous struct {
	rec    *performerRec
	target any
	source ActivityTokenSource
	plans  int
}

func (f *fakeContinuous) Initialize(target any) {
	f.target = target
	f.rec.add(f)
}

func (f *fakeContinuous) AddPlan(Plan) { f.plans++ }

func (f *fakeContinuous) SetActivityTokenSource(source ActivityTokenSource) { f.source = source }

// performerRec collects the performer instances a scheduler actually
// initialized (discarded duplicates never register).
type performerRec struct {
	mu    sync.Mutex
	items []Performer
}

func (r *performerRec) add(p Performer) {
	r.mu.Lock()
	r.items = append(r.items, p)
	r.mu.Unlock()
}

func (r *performerRec) all() []Performer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Performer(nil), r.items...)
}

func newTestScheduler() (*Scheduler, *fakePump) {
	pump := &fakePump{}
	s := New(Config{Pump: pump}, logx.Nop(), nil)
	return s, pump
}

func TestSchedulerStartsIdle(t *testing.T) {
	t.Parallel()
	s, pump := newTestScheduler()
	if got := s.GetState(); got != Idle {
		t.Fatalf("GetState() = %v, want Idle", got)
	}
	if starts, _ := pump.counts(); starts != 0 {
		t.Fatalf("pump started %d times before any plan", starts)
	}
}

func TestManualPlanDrivesPumpAndDeltas(t *testing.T) {
	t.Parallel()
	s, pump := newTestScheduler()
	lis := &recListener{}
	s.AddStateListener(lis)

	rec := &performerRec{}
	s.AddPlan(manualPlan{frames: 2, rec: rec}, "target")

	// Manual performers count as active from commit.
	if got := s.GetState(); got != Active {
		t.Fatalf("GetState() after commit = %v, want Active", got)
	}
	if starts, stops := pump.counts(); starts != 1 || stops != 0 {
		t.Fatalf("pump starts/stops = %d/%d, want 1/0", starts, stops)
	}

	base := time.Unix(100, 0)
	pump.Tick(base)
	if got := s.GetState(); got != Active {
		t.Fatalf("GetState() after first tick = %v, want Active", got)
	}
	pump.Tick(base.Add(16 * time.Millisecond))

	if got := s.GetState(); got != Idle {
		t.Fatalf("GetState() after final tick = %v, want Idle", got)
	}
	if starts, stops := pump.counts(); starts != 1 || stops != 1 {
		t.Fatalf("pump starts/stops = %d/%d, want 1/1", starts, stops)
	}

	performers := rec.all()
	if len(performers) != 1 {
		t.Fatalf("initialized %d performers, want 1", len(performers))
	}
	fm := performers[0].(*fakeManual)
	if fm.target != "target" {
		t.Fatalf("performer target = %v, want %q", fm.target, "target")
	}
	// First frame after a pump start carries a zero delta.
	want := []time.Duration{0, 16 * time.Millisecond}
	if len(fm.deltas) != len(want) {
		t.Fatalf("deltas = %v, want %v", fm.deltas, want)
	}
	for i := range want {
		if fm.deltas[i] != want[i] {
			t.Fatalf("delta[%d] = %v, want %v", i, fm.deltas[i], want[i])
		}
	}

	if states := lis.got(); len(states) != 2 || states[0] != Active || states[1] != Idle {
		t.Fatalf("listener states = %v, want [Active Idle]", states)
	}
}

func TestResubscribeResetsDelta(t *testing.T) {
	t.Parallel()
	s, pump := newTestScheduler()
	rec := &performerRec{}
	base := time.Unix(200, 0)

	s.AddPlan(manualPlan{frames: 1, rec: rec}, "t")
	pump.Tick(base) // finishes the plan, pump stops

	// Much later, a new plan restarts the pump. The first tick must not
	// produce a delta against the stale pre-stop timestamp.
	s.AddPlan(manualPlan{frames: 1, rec: rec}, "t")
	pump.Tick(base.Add(time.Hour))

	fm := rec.all()[0].(*fakeManual)
	for i, d := range fm.deltas {
		if d != 0 {
			t.Fatalf("delta[%d] = %v, want 0 on each post-start first frame", i, d)
		}
	}
	if len(fm.deltas) != 2 {
		t.Fatalf("got %d deltas, want 2", len(fm.deltas))
	}
}

func TestLateTickDiscardedAfterStop(t *testing.T) {
	t.Parallel()
	s, pump := newTestScheduler()
	rec := &performerRec{}
	base := time.Unix(300, 0)

	s.AddPlan(manualPlan{frames: 1, rec: rec}, "t")
	pump.Tick(base) // plan done, scheduler stops the pump

	// A tick already in flight at stop time must not reach performers.
	pump.Tick(base.Add(16 * time.Millisecond))

	fm := rec.all()[0].(*fakeManual)
	if len(fm.deltas) != 1 {
		t.Fatalf("got %d updates, want 1 (late tick must be discarded)", len(fm.deltas))
	}
	if got := s.GetState(); got != Idle {
		t.Fatalf("GetState() = %v, want Idle", got)
	}
}

func TestContinuousTokensTrackActivity(t *testing.T) {
	t.Parallel()
	s, pump := newTestScheduler()
	lis := &recListener{}
	s.AddStateListener(lis)

	rec := &performerRec{}
	s.AddPlan(continuousPlan{rec: rec}, "t")

	// Committing a continuous plan does not by itself activate anything,
	// and never touches the pump.
	if got := s.GetState(); got != Idle {
		t.Fatalf("GetState() after commit = %v, want Idle", got)
	}
	if starts, _ := pump.counts(); starts != 0 {
		t.Fatalf("pump started for a continuous performer")
	}

	fc := rec.all()[0].(*fakeContinuous)
	if fc.source == nil {
		t.Fatal("token source was not set during initialization")
	}

	tok1 := fc.source.Begin()
	if got := s.GetState(); got != Active {
		t.Fatalf("GetState() after Begin = %v, want Active", got)
	}
	tok2 := fc.source.Begin()

	tok1.End()
	if got := s.GetState(); got != Active {
		t.Fatalf("GetState() with one open token = %v, want Active", got)
	}
	tok2.End()
	if got := s.GetState(); got != Idle {
		t.Fatalf("GetState() after all tokens ended = %v, want Idle", got)
	}

	// End is idempotent.
	tok2.End()
	if got := s.GetState(); got != Idle {
		t.Fatalf("GetState() after double End = %v, want Idle", got)
	}

	if starts, stops := pump.counts(); starts != 0 || stops != 0 {
		t.Fatalf("pump starts/stops = %d/%d, want 0/0", starts, stops)
	}
	if states := lis.got(); len(states) != 2 || states[0] != Active || states[1] != Idle {
		t.Fatalf("listener states = %v, want [Active Idle]", states)
	}
}

func TestCrossfadeStaysActiveWithoutNotification(t *testing.T) {
	t.Parallel()
	s, pump := newTestScheduler()
	lis := &recListener{}
	s.AddStateListener(lis)

	mrec := &performerRec{}
	crec := &performerRec{}
	base := time.Unix(400, 0)

	s.AddPlan(manualPlan{frames: 1, rec: mrec}, "t")
	s.AddPlan(continuousPlan{rec: crec}, "t")
	fc := crec.all()[0].(*fakeContinuous)
	tok := fc.source.Begin()

	// Manual work ends while continuous work is still open. The aggregate
	// stays non-zero, so no idle notification fires, but the pump stops.
	pump.Tick(base)
	if got := s.GetState(); got != Active {
		t.Fatalf("GetState() mid-crossfade = %v, want Active", got)
	}
	if _, stops := pump.counts(); stops != 1 {
		t.Fatalf("pump stops = %d, want 1 when manual goes idle", stops)
	}
	if states := lis.got(); len(states) != 1 || states[0] != Active {
		t.Fatalf("listener states mid-crossfade = %v, want [Active]", states)
	}

	tok.End()
	if states := lis.got(); len(states) != 2 || states[1] != Idle {
		t.Fatalf("listener states = %v, want [Active Idle]", states)
	}
}

func TestPerformerInstanceSharedPerTargetAndType(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler()
	rec := &performerRec{}

	s.AddPlan(continuousPlan{rec: rec}, "a")
	s.AddPlan(continuousPlan{rec: rec}, "a")
	s.AddPlan(continuousPlan{rec: rec}, "b")

	performers := rec.all()
	if len(performers) != 2 {
		t.Fatalf("initialized %d performers, want 2 (one per target)", len(performers))
	}
	byTarget := map[any]*fakeContinuous{}
	for _, p := range performers {
		fc := p.(*fakeContinuous)
		byTarget[fc.target] = fc
	}
	if byTarget["a"] == nil || byTarget["b"] == nil {
		t.Fatalf("unexpected targets: %v", byTarget)
	}
	if byTarget["a"].plans != 2 {
		t.Fatalf("target a performer received %d plans, want 2", byTarget["a"].plans)
	}
	if byTarget["b"].plans != 1 {
		t.Fatalf("target b performer received %d plans, want 1", byTarget["b"].plans)
	}
}

func TestDistinctPerformerTypesGetDistinctInstances(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler()
	mrec := &performerRec{}
	crec := &performerRec{}

	s.AddPlan(manualPlan{frames: 1, rec: mrec}, "t")
	s.AddPlan(continuousPlan{rec: crec}, "t")

	if len(mrec.all()) != 1 || len(crec.all()) != 1 {
		t.Fatalf("performer counts = %d/%d, want 1/1", len(mrec.all()), len(crec.all()))
	}
}

func TestAggregateOverMultipleTargets(t *testing.T) {
	t.Parallel()
	s, pump := newTestScheduler()
	rec := &performerRec{}
	base := time.Unix(500, 0)

	s.AddPlan(manualPlan{frames: 1, rec: rec}, "a")
	s.AddPlan(manualPlan{frames: 2, rec: rec}, "b")

	pump.Tick(base)
	// Target a's performer finished, target b's has a frame left.
	if got := s.GetState(); got != Active {
		t.Fatalf("GetState() = %v, want Active while any target is active", got)
	}
	if _, stops := pump.counts(); stops != 0 {
		t.Fatalf("pump stopped while a manual target was still active")
	}

	pump.Tick(base.Add(16 * time.Millisecond))
	if got := s.GetState(); got != Idle {
		t.Fatalf("GetState() = %v, want Idle after all targets finish", got)
	}
}

func TestListenerRegistrationIdempotent(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler()
	lis := &recListener{}
	s.AddStateListener(lis)
	s.AddStateListener(lis)

	rec := &performerRec{}
	s.AddPlan(continuousPlan{rec: rec}, "t")
	tok := rec.all()[0].(*fakeContinuous).source.Begin()
	defer tok.End()

	if states := lis.got(); len(states) != 1 {
		t.Fatalf("double-added listener notified %d times, want 1", len(states))
	}

	// Removing an unregistered listener is a no-op.
	s.RemoveStateListener(&recListener{})
}

// selfRemover unregisters itself from inside its first notification.
type selfRemover struct {
	calls int
}

func (l *selfRemover) OnStateChange(s *Scheduler, _ State) {
	l.calls++
	s.RemoveStateListener(l)
}

func TestListenerMayRemoveItselfDuringNotify(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler()
	self := &selfRemover{}
	other := &recListener{}
	s.AddStateListener(self)
	s.AddStateListener(other)

	rec := &performerRec{}
	s.AddPlan(continuousPlan{rec: rec}, "t")
	src := rec.all()[0].(*fakeContinuous).source

	src.Begin().End() // Active then Idle

	if self.calls != 1 {
		t.Fatalf("self-removing listener called %d times, want 1", self.calls)
	}
	if states := other.got(); len(states) != 2 {
		t.Fatalf("other listener notified %d times, want 2", len(states))
	}
}

func TestCommitTransactionMatchesAddPlan(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler()
	rec := &performerRec{}

	tx := &Transaction{}
	tx.AddPlan(continuousPlan{rec: rec}, "a")
	tx.AddNamedPlan(continuousPlan{rec: rec}, "pulse", "b")
	tx.AddNamedPlan(continuousPlan{rec: rec}, "pulse", "b") // replaces
	s.CommitTransaction(tx)

	total := 0
	for _, p := range rec.all() {
		total += p.(*fakeContinuous).plans
	}
	if total != 2 {
		t.Fatalf("performers received %d plans, want 2", total)
	}
}

// slowInitPlan drives a continuous performer whose Initialize takes long
// enough for a concurrent commit of the same type to race it, and whose
// AddPlan immediately uses the token source.
type slowInitPlan struct {
	rec *performerRec
}

func (p slowInitPlan) Clone() Plan { return p }

func (p slowInitPlan) Performer() Performer { return &slowInitContinuous{rec: p.rec} }

type slowInitContinuous struct {
	rec    *performerRec
	target any
	source ActivityTokenSource
}

func (f *slowInitContinuous) Initialize(target any) {
	time.Sleep(time.Millisecond)
	f.target = target
	f.rec.add(f)
}

func (f *slowInitContinuous) SetActivityTokenSource(source ActivityTokenSource) {
	f.source = source
}

func (f *slowInitContinuous) AddPlan(Plan) { f.source.Begin().End() }

func TestConcurrentCommitsWaitForInitialization(t *testing.T) {
	t.Parallel()
	for i := 0; i < 200; i++ {
		s, _ := newTestScheduler()
		rec := &performerRec{}

		var wg sync.WaitGroup
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.AddPlan(slowInitPlan{rec: rec}, "t")
			}()
		}
		wg.Wait()

		// Both commits must land on one fully initialized instance; the
		// AddPlan above dereferences the token source, so an uninitialized
		// performer panics here.
		if n := len(rec.all()); n != 1 {
			t.Fatalf("iteration %d: initialized %d performers, want 1", i, n)
		}
		if got := s.GetState(); got != Idle {
			t.Fatalf("iteration %d: GetState() = %v, want Idle", i, got)
		}
	}
}

func TestNilArgumentsPanic(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler()

	mustPanic := func(name string, fn func()) {
		defer func() {
			if recover() == nil {
				t.Fatalf("%s did not panic", name)
			}
		}()
		fn()
	}

	mustPanic("AddPlan(nil, target)", func() { s.AddPlan(nil, "t") })
	mustPanic("AddPlan(plan, nil)", func() { s.AddPlan(manualPlan{frames: 1, rec: &performerRec{}}, nil) })
	mustPanic("AddStateListener(nil)", func() { s.AddStateListener(nil) })
	mustPanic("CommitTransaction(nil)", func() { s.CommitTransaction(nil) })
}
