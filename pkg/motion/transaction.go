package motion

import "sync"

// Transaction records plans against targets for batch commit via
// Scheduler.CommitTransaction. Plans are cloned as they are recorded, so a
// transaction stays valid even if the caller mutates its plans afterwards.
//
// Deprecated: add plans directly with Scheduler.AddPlan.
type Transaction struct {
	mu    sync.Mutex
	infos []planInfo
}

// AddPlan records a plan against a target.
func (t *Transaction) AddPlan(plan Plan, target any) {
	if plan == nil {
		panic("motion: nil plan")
	}
	if target == nil {
		panic("motion: nil target")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.infos = append(t.infos, planInfo{target: target, plan: plan.Clone()})
}

// AddNamedPlan records a plan under a name, replacing any previously
// recorded plan with the same name for the same target.
func (t *Transaction) AddNamedPlan(plan Plan, name string, target any) {
	if plan == nil {
		panic("motion: nil plan")
	}
	if name == "" {
		panic("motion: empty plan name")
	}
	if target == nil {
		panic("motion: nil target")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeNamedLocked(name, target)
	t.infos = append(t.infos, planInfo{target: target, name: name, plan: plan.Clone()})
}

// RemoveNamedPlan drops the named plan recorded for the target. Removing a
// name that was never recorded is a no-op.
func (t *Transaction) RemoveNamedPlan(name string, target any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeNamedLocked(name, target)
}

func (t *Transaction) removeNamedLocked(name string, target any) {
	kept := t.infos[:0]
	for _, info := range t.infos {
		if info.name == name && info.target == target {
			continue
		}
		kept = append(kept, info)
	}
	t.infos = kept
}

// plans returns a snapshot of the recorded plan infos, in commit order.
func (t *Transaction) plans() []planInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]planInfo(nil), t.infos...)
}
