package scenes

import (
	"math"
	"time"

	"motionrt/pkg/motion"
)

// PulsePlan drives a manual performer that stays active for Duration of
// accumulated frame time, oscillating with the given Period.
//
// Committing another PulsePlan to the same target extends the active
// window; the performer keeps its phase across plans.
type PulsePlan struct {
	Duration time.Duration
	Period   time.Duration
}

func (p PulsePlan) Clone() motion.Plan { return p }

func (p PulsePlan) Performer() motion.Performer { return &pulsePerformer{} }

type pulsePerformer struct {
	target    any
	period    time.Duration
	elapsed   time.Duration
	remaining time.Duration
}

func (p *pulsePerformer) Initialize(target any) { p.target = target }

func (p *pulsePerformer) AddPlan(plan motion.Plan) {
	pp := plan.(PulsePlan)
	p.remaining += pp.Duration
	if pp.Period > 0 {
		p.period = pp.Period
	}
}

func (p *pulsePerformer) Update(delta time.Duration) motion.Activity {
	p.elapsed += delta
	p.remaining -= delta
	if p.remaining <= 0 {
		p.remaining = 0
		return motion.ActivityIdle
	}
	return motion.ActivityActive
}

// Value samples the pulse waveform at the current phase, in [-1, 1].
func (p *pulsePerformer) Value() float64 {
	period := p.period
	if period <= 0 {
		period = 250 * time.Millisecond
	}
	phase := float64(p.elapsed%period) / float64(period)
	return math.Sin(2 * math.Pi * phase)
}
