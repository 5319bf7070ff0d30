package scheduler

import "sync"

// OrderStrict is the default Scheduler policy: actions become runnable in
// the exact order the Task Analyser marked them ready, and never overtake
// an earlier action on the same resource queue except via UpgradeAction
// (spec.md §4.4 "generateSchedulerForResource"/"scheduleAction" default
// behavior). Resources without enough capacity surface the action as
// BLOCKED rather than silently dropping it.
type OrderStrict struct {
	mu        sync.Mutex
	queues    map[string][]Action // resourceId -> FIFO-ordered runnable actions
	upgraded  map[int64]struct{}
	blocked   []Action
}

func NewOrderStrict() *OrderStrict {
	return &OrderStrict{
		queues:   make(map[string][]Action),
		upgraded: make(map[int64]struct{}),
	}
}

func (s *OrderStrict) ScoreAction(resourceId string, a Action) Score {
	_, up := s.upgradedLocked(a.ActionId)
	priority := a.Priority
	if up {
		priority = priority + 1<<16 // upgraded actions outrank everything else
	}
	return Score{
		Priority:        priority,
		WaitingCost:     0,
		ExecutionCost:   a.EstimatedCostMs,
		DataLocalityHit: a.DataLocalityHit,
	}
}

func (s *OrderStrict) upgradedLocked(actionId int64) (struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.upgraded[actionId]
	return v, ok
}

func (s *OrderStrict) ScheduleAction(resourceId string, a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[resourceId] = append(s.queues[resourceId], a)
}

// HandleDependencyFreeActions re-queues actions that regained eligibility;
// blockedOut is appended to the resource queue again for re-evaluation
// rather than dropped, since capacity may have changed since they blocked.
func (s *OrderStrict) HandleDependencyFreeActions(dataFree, resourceFree, blockedOut []Action, resourceId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[resourceId] = append(s.queues[resourceId], dataFree...)
	s.queues[resourceId] = append(s.queues[resourceId], resourceFree...)
	s.queues[resourceId] = append(s.queues[resourceId], blockedOut...)
}

func (s *OrderStrict) UpgradeAction(resourceId string, actionId int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upgraded[actionId] = struct{}{}

	q := s.queues[resourceId]
	for i, a := range q {
		if a.ActionId == actionId {
			copy(q[1:i+1], q[0:i])
			q[0] = a
			break
		}
	}
}

// Next pops the front of resourceId's FIFO queue, preserving the ordering
// invariant the policy is named for: a later-readied action never runs
// ahead of an earlier one on the same resource unless upgraded.
func (s *OrderStrict) Next(resourceId string) (Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[resourceId]
	if len(q) == 0 {
		return Action{}, false
	}
	a := q[0]
	s.queues[resourceId] = q[1:]
	delete(s.upgraded, a.ActionId)
	return a, true
}

// MarkBlocked records an action that could not be placed on any resource
// for lack of capacity, surfaced via Blocked for monitoring/diagnostics.
func (s *OrderStrict) MarkBlocked(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = append(s.blocked, a)
}

func (s *OrderStrict) Blocked() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Action, len(s.blocked))
	copy(out, s.blocked)
	return out
}

// ClearBlocked empties the blocked-actions list, used by callers that just
// re-attempted placement for every entry and will re-add whatever still
// doesn't fit.
func (s *OrderStrict) ClearBlocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = nil
}
