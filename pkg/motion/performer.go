package motion

import "time"

// Performer is a stateful worker bound to one target. A performer instance
// receives every plan of its type committed against that target, so it can
// maintain state across plans.
type Performer interface {
	// Initialize attaches the performer to its target. It is called exactly
	// once, before the first AddPlan.
	Initialize(target any)

	// AddPlan hands the performer a plan to execute against its target.
	// The plan is already a private clone; the performer owns it.
	AddPlan(plan Plan)
}

// ManualPerforming is implemented by performers that need clock-driven
// per-frame stepping. While any manual performer is active the scheduler
// keeps its frame pump running.
type ManualPerforming interface {
	Performer

	// Update advances the performer by delta of frame time and reports
	// whether it still has work left. The first frame after the pump starts
	// delivers a zero delta.
	Update(delta time.Duration) Activity
}

// ContinuousPerforming is implemented by performers that drive their own
// work (timers, springs, external callbacks) and only need to tell the
// runtime when that work starts and ends.
type ContinuousPerforming interface {
	Performer

	// SetActivityTokenSource hands the performer the source it must use to
	// bracket self-driven work. Called once, during initialization.
	SetActivityTokenSource(source ActivityTokenSource)
}

// ActivityTokenSource mints tokens that mark units of self-driven work.
type ActivityTokenSource interface {
	// Begin declares the start of one unit of self-driven work. The target
	// counts as continuously active until the token's End is called.
	Begin() ActivityToken
}

// ActivityToken marks one outstanding unit of self-driven work.
type ActivityToken interface {
	// End declares the work finished. End is idempotent.
	End()
}
