package scenes

import (
	"time"

	"motionrt/pkg/motion"
)

// DriftPlan drives a continuous performer that declares itself active for
// Duration of wall time. The performer runs off its own timer, so it needs
// no frame pump; it only brackets the work with an activity token.
type DriftPlan struct {
	Duration time.Duration
}

func (p DriftPlan) Clone() motion.Plan { return p }

func (p DriftPlan) Performer() motion.Performer { return &driftPerformer{} }

type driftPerformer struct {
	target any
	tokens motion.ActivityTokenSource
}

func (d *driftPerformer) Initialize(target any) { d.target = target }

func (d *driftPerformer) SetActivityTokenSource(source motion.ActivityTokenSource) {
	d.tokens = source
}

func (d *driftPerformer) AddPlan(plan motion.Plan) {
	p := plan.(DriftPlan)
	token := d.tokens.Begin()
	if p.Duration <= 0 {
		token.End()
		return
	}
	time.AfterFunc(p.Duration, token.End)
}
