package motion

// Plan is a cloneable unit of work committed to a Scheduler against a target.
//
// Plans are value-like: the scheduler clones every plan it receives, so the
// caller's copy stays free to mutate or reuse after committing.
type Plan interface {
	// Clone returns an independent, equivalent copy of this plan.
	Clone() Plan

	// Performer returns a new instance of the performer that executes this
	// plan. The dynamic type of the returned performer is the uniqueness
	// key: a target owns at most one performer of each type, and every plan
	// whose Performer has that type is routed to the shared instance.
	Performer() Performer
}

// planInfo pairs a recorded plan with the target it applies to.
type planInfo struct {
	target any
	name   string
	plan   Plan
}
