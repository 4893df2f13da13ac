package motion

// Event types published on the event bus when one is attached to a
// Scheduler. Payloads are the structs below.
const (
	// EventStateChanged fires when the scheduler crosses the idle/active
	// boundary. Payload: StateChange.
	EventStateChanged = "motion.state"
	// EventManualActivity fires when the aggregate manual bit flips.
	// Payload: ActivityChange.
	EventManualActivity = "motion.activity.manual"
	// EventContinuousActivity fires when the aggregate continuous bit
	// flips. Payload: ActivityChange.
	EventContinuousActivity = "motion.activity.continuous"
	// EventPlanCommitted fires for every plan committed to the scheduler.
	// Payload: PlanCommit.
	EventPlanCommitted = "motion.plan"
)

// StateChange is the payload of EventStateChanged.
type StateChange struct {
	State State
}

// ActivityChange is the payload of the per-category activity events.
type ActivityChange struct {
	Category string // "manual" or "continuous"
	Active   bool
}

// PlanCommit is the payload of EventPlanCommitted.
type PlanCommit struct {
	Target string
}
