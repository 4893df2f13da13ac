package scenes

import (
	"fmt"
	"strings"
	"time"

	"motionrt/internal/config"
	"motionrt/pkg/motion"
)

// Target is the comparable handle demo scenes animate. Distinct names are
// distinct targets; the same name always resolves to the same scope.
type Target string

const (
	defaultDuration = 2 * time.Second
	defaultPeriod   = 250 * time.Millisecond
)

// Build resolves a sequence entry into the plan and target to submit.
func Build(entry config.SequenceEntry) (motion.Plan, any, error) {
	targetName := strings.TrimSpace(entry.Target)
	if targetName == "" {
		targetName = entry.Name
	}
	target := Target(targetName)

	duration, err := entry.DurationOrDefault(defaultDuration)
	if err != nil {
		return nil, nil, err
	}

	switch strings.ToLower(strings.TrimSpace(entry.Scene)) {
	case "pulse":
		period, err := entry.PeriodOrDefault(defaultPeriod)
		if err != nil {
			return nil, nil, err
		}
		return PulsePlan{Duration: duration, Period: period}, target, nil
	case "drift":
		return DriftPlan{Duration: duration}, target, nil
	default:
		return nil, nil, fmt.Errorf("unknown scene %q (use 'pulse' or 'drift')", entry.Scene)
	}
}
