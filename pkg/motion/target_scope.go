package motion

import (
	"reflect"
	"sync"
	"time"
)

// TargetScope owns the performers bound to a single target. It enforces at
// most one performer instance per performer type, tracks which of its
// performers are currently active, and reports its two-bit detailed state
// up to the scheduler whenever it may have changed.
type TargetScope struct {
	sched  *Scheduler
	target any

	// mu guards the maps below. It is never held across calls into
	// performers, so a performer may begin or end activity tokens from
	// inside its own callbacks.
	mu           sync.Mutex
	performers   map[reflect.Type]*performerEntry
	activeManual map[ManualPerforming]struct{}
	tokens       map[*activityToken]struct{}
}

// performerEntry holds a performer together with a readiness gate. The
// creating committer initializes the performer outside the scope lock;
// concurrent committers of the same type wait on ready so no plan reaches
// a performer before Initialize and SetActivityTokenSource have run.
type performerEntry struct {
	performer Performer
	ready     chan struct{}
}

func newTargetScope(s *Scheduler, target any) *TargetScope {
	return &TargetScope{
		sched:        s,
		target:       target,
		performers:   map[reflect.Type]*performerEntry{},
		activeManual: map[ManualPerforming]struct{}{},
		tokens:       map[*activityToken]struct{}{},
	}
}

// commitPlan routes an already-cloned plan to its performer, creating and
// initializing the performer on first use. A manual performer is considered
// active from the moment a plan is committed to it until an Update reports
// it idle.
func (ts *TargetScope) commitPlan(plan Plan) {
	performer := ts.performerFor(plan)

	if mp, ok := performer.(ManualPerforming); ok {
		ts.mu.Lock()
		ts.activeManual[mp] = struct{}{}
		ts.mu.Unlock()
		ts.report()
	}

	performer.AddPlan(plan)
}

// performerFor returns the scope's performer for the plan's performer type,
// fully initialized. A fresh instance is allocated to learn the type; it is
// discarded when the scope already owns one. When the owning committer is
// still initializing, this blocks until initialization completes so the
// performer never sees a plan before Initialize.
func (ts *TargetScope) performerFor(plan Plan) Performer {
	fresh := plan.Performer()
	if fresh == nil {
		panic("motion: plan returned nil performer")
	}
	key := reflect.TypeOf(fresh)

	ts.mu.Lock()
	if entry, ok := ts.performers[key]; ok {
		ts.mu.Unlock()
		<-entry.ready
		return entry.performer
	}
	entry := &performerEntry{performer: fresh, ready: make(chan struct{})}
	ts.performers[key] = entry
	ts.mu.Unlock()

	fresh.Initialize(ts.target)
	if cp, ok := fresh.(ContinuousPerforming); ok {
		cp.SetActivityTokenSource(tokenSource{scope: ts})
	}
	close(entry.ready)
	return fresh
}

// advance steps every currently-active manual performer by delta and drops
// the ones that report idle, then reports the scope's new detailed state.
func (ts *TargetScope) advance(delta time.Duration) {
	ts.mu.Lock()
	active := make([]ManualPerforming, 0, len(ts.activeManual))
	for mp := range ts.activeManual {
		active = append(active, mp)
	}
	ts.mu.Unlock()

	for _, mp := range active {
		if mp.Update(delta) == ActivityIdle {
			ts.mu.Lock()
			delete(ts.activeManual, mp)
			ts.mu.Unlock()
		}
	}

	ts.report()
}

// report sends the scope's current detailed state to the scheduler. The
// scheduler tolerates redundant reports.
func (ts *TargetScope) report() {
	ts.mu.Lock()
	var state uint8
	if len(ts.activeManual) > 0 {
		state |= flagManual
	}
	if len(ts.tokens) > 0 {
		state |= flagContinuous
	}
	ts.mu.Unlock()

	ts.sched.setTargetState(ts, state)
}

// tokenSource is the ActivityTokenSource handed to continuous performers.
type tokenSource struct {
	scope *TargetScope
}

func (src tokenSource) Begin() ActivityToken {
	ts := src.scope
	token := &activityToken{scope: ts}
	ts.mu.Lock()
	ts.tokens[token] = struct{}{}
	ts.mu.Unlock()
	ts.report()
	return token
}

// activityToken marks one outstanding unit of self-driven work.
type activityToken struct {
	scope *TargetScope
	once  sync.Once
}

func (t *activityToken) End() {
	t.once.Do(func() {
		ts := t.scope
		ts.mu.Lock()
		delete(ts.tokens, t)
		ts.mu.Unlock()
		ts.report()
	})
}
