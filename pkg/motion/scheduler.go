package motion

import (
	"fmt"
	"sync"
	"time"

	"motionrt/internal/eventbus"
	logx "motionrt/pkg/logx"
)

// StateListener receives callbacks when a Scheduler's State changes.
type StateListener interface {
	// OnStateChange is invoked with the new state whenever the scheduler
	// crosses the idle/active boundary. It runs without scheduler locks
	// held, so a listener may add or remove listeners or query the
	// scheduler from inside the callback.
	OnStateChange(s *Scheduler, newState State)
}

// Config configures a Scheduler.
type Config struct {
	// FrameInterval is the tick interval for the default ticker pump.
	// Ignored when Pump is set. Non-positive means DefaultFrameInterval.
	FrameInterval time.Duration

	// Pump overrides the frame pump. Nil means a TickerPump at
	// FrameInterval.
	Pump FramePump
}

// Scheduler accepts Plans and creates Performers. It ensures at most one
// performer instance exists per (target, performer type) pair, aggregates
// every target's activity into a single idle/active signal, and runs a
// frame pump while any manual performer is active.
//
// All methods are safe for concurrent use.
type Scheduler struct {
	log  logx.Logger
	bus  eventbus.Bus
	pump FramePump

	// mu guards the target map, the membership sets, the pump subscription
	// flag and the frame advancer, as one unit per operation.
	mu               sync.Mutex
	targets          map[any]*TargetScope
	activeManual     map[*TargetScope]struct{}
	activeContinuous map[*TargetScope]struct{}
	pumpOn           bool
	frames           frameAdvancer

	// lmu guards the listener set. Notification iterates a snapshot, so
	// listeners may (un)register during a notification pass.
	lmu       sync.Mutex
	listeners map[StateListener]struct{}
}

// New creates a Scheduler. bus may be nil when no event fanout is wanted.
func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		log:              log,
		bus:              bus,
		targets:          map[any]*TargetScope{},
		activeManual:     map[*TargetScope]struct{}{},
		activeContinuous: map[*TargetScope]struct{}{},
		listeners:        map[StateListener]struct{}{},
	}
	s.pump = cfg.Pump
	if s.pump == nil {
		s.pump = NewTickerPump(cfg.FrameInterval, log.With(logx.String("comp", "framepump")))
	}
	return s
}

// GetState returns the current coarse state of this scheduler: Active iff
// at least one target currently has a non-zero detailed state.
func (s *Scheduler) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detailedStateLocked() == 0 {
		return Idle
	}
	return Active
}

// detailedStateLocked derives the aggregate bitmask from the membership
// sets. It is never stored; emptiness of the sets is the source of truth.
func (s *Scheduler) detailedStateLocked() uint8 {
	var state uint8
	if len(s.activeManual) > 0 {
		state |= flagManual
	}
	if len(s.activeContinuous) > 0 {
		state |= flagContinuous
	}
	return state
}

// AddStateListener registers l for state-change notifications. Adding a
// listener that is already registered is a no-op.
func (s *Scheduler) AddStateListener(l StateListener) {
	if l == nil {
		panic("motion: nil state listener")
	}
	s.lmu.Lock()
	s.listeners[l] = struct{}{}
	s.lmu.Unlock()
}

// RemoveStateListener unregisters l. Removing a listener that is not
// registered is a no-op.
func (s *Scheduler) RemoveStateListener(l StateListener) {
	s.lmu.Lock()
	delete(s.listeners, l)
	s.lmu.Unlock()
}

// AddPlan commits a plan against a target. The plan is cloned first, so the
// caller's copy stays free to mutate or reuse. A nil plan or target is a
// caller bug and panics.
func (s *Scheduler) AddPlan(plan Plan, target any) {
	if plan == nil {
		panic("motion: nil plan")
	}
	if target == nil {
		panic("motion: nil target")
	}
	s.publish(EventPlanCommitted, PlanCommit{Target: fmt.Sprint(target)})
	s.targetScope(target).commitPlan(plan.Clone())
}

// CommitTransaction commits every plan recorded in t, in order, exactly as
// the same sequence of AddPlan calls would.
//
// Deprecated: add plans directly with AddPlan.
func (s *Scheduler) CommitTransaction(t *Transaction) {
	if t == nil {
		panic("motion: nil transaction")
	}
	for _, info := range t.plans() {
		s.AddPlan(info.plan, info.target)
	}
}

// targetScope resolves the scope for target, creating it on first use.
// Scopes are retained for the scheduler's lifetime. The target must be
// comparable (it is used as a map key).
func (s *Scheduler) targetScope(target any) *TargetScope {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope, ok := s.targets[target]
	if !ok {
		scope = newTargetScope(s, target)
		s.targets[target] = scope
	}
	return scope
}

// setTargetState records a target scope's reported detailed state and
// reacts to any aggregate bit transitions. Redundant reports (no aggregate
// change) cause no side effects.
func (s *Scheduler) setTargetState(scope *TargetScope, scopeState uint8) {
	s.mu.Lock()

	oldState := s.detailedStateLocked()

	if isSet(scopeState, flagManual) {
		s.activeManual[scope] = struct{}{}
	} else {
		delete(s.activeManual, scope)
	}
	if isSet(scopeState, flagContinuous) {
		s.activeContinuous[scope] = struct{}{}
	} else {
		delete(s.activeContinuous, scope)
	}

	newState := s.detailedStateLocked()
	if oldState == newState {
		s.mu.Unlock()
		return
	}

	// Each bit's transition acts independently; a single report can flip
	// both bits and the idle/active boundary in the same pass.
	if changed(oldState, newState, flagManual) {
		if isSet(newState, flagManual) {
			s.frames.reset()
			s.pumpOn = true
			s.pump.Start(s.onFrame)
			s.log.Debug("manual performance targets now active")
		} else {
			s.pumpOn = false
			s.pump.Stop()
			s.log.Debug("manual performance targets now idle")
		}
	}
	if changed(oldState, newState, flagContinuous) {
		if isSet(newState, flagContinuous) {
			s.log.Debug("continuous performance targets now active")
		} else {
			s.log.Debug("continuous performance targets now idle")
		}
	}

	crossed := (oldState == 0) != (newState == 0)
	var public State
	if crossed {
		if newState == 0 {
			public = Idle
		} else {
			public = Active
		}
	}
	s.mu.Unlock()

	if changed(oldState, newState, flagManual) {
		s.publish(EventManualActivity, ActivityChange{Category: "manual", Active: isSet(newState, flagManual)})
	}
	if changed(oldState, newState, flagContinuous) {
		s.publish(EventContinuousActivity, ActivityChange{Category: "continuous", Active: isSet(newState, flagContinuous)})
	}

	if crossed {
		s.log.Debug("scheduler state changed", logx.String("state", public.String()))
		s.publish(EventStateChanged, StateChange{State: public})
		for _, l := range s.snapshotListeners() {
			l.OnStateChange(s, public)
		}
	}
}

// onFrame is the pump callback. It computes the per-frame delta and fans it
// out to every currently-active manual target scope.
func (s *Scheduler) onFrame(now time.Time) {
	s.mu.Lock()
	if !s.pumpOn {
		// A tick that was in flight when the pump stopped. Discard it so
		// delivery fully ends at unsubscription.
		s.mu.Unlock()
		return
	}
	delta := s.frames.advance(now)
	scopes := make([]*TargetScope, 0, len(s.activeManual))
	for scope := range s.activeManual {
		scopes = append(scopes, scope)
	}
	s.mu.Unlock()

	for _, scope := range scopes {
		scope.advance(delta)
	}
}

func (s *Scheduler) snapshotListeners() []StateListener {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	out := make([]StateListener, 0, len(s.listeners))
	for l := range s.listeners {
		out = append(out, l)
	}
	return out
}

func (s *Scheduler) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
