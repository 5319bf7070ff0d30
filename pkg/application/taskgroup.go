// Package application implements the Application and TaskGroup scopes:
// per-program state, the throttle permit pool, group barriers and
// group-level on-failure semantics (spec.md §4.7).
package application

import "sync"

// TaskGroup is a named set of tasks within an Application. It supports
// barriers and COMPSsException propagation: once an exception is recorded,
// every other member is eligible for cancellation by the caller that
// observes it.
type TaskGroup struct {
	mu        sync.Mutex
	cond      *sync.Cond
	GroupId   int64
	Name      string
	taskIds   map[int64]struct{}
	pending   int
	exception error
}

func newTaskGroup(id int64, name string) *TaskGroup {
	g := &TaskGroup{
		GroupId: id,
		Name:    name,
		taskIds: make(map[int64]struct{}),
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// register attaches a task id to the group at creation time.
func (g *TaskGroup) register(taskId int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.taskIds[taskId] = struct{}{}
	g.pending++
}

// MarkTaskTerminal decrements the pending count; once it reaches zero any
// Barrier() waiters are woken.
func (g *TaskGroup) MarkTaskTerminal(taskId int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.taskIds[taskId]; !ok {
		return
	}
	delete(g.taskIds, taskId)
	g.pending--
	if g.pending <= 0 {
		g.cond.Broadcast()
	}
}

// RaiseException records a COMPSsException on the group. Other members may
// observe it via Exception() and decide to cancel.
func (g *TaskGroup) RaiseException(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exception == nil {
		g.exception = err
	}
}

func (g *TaskGroup) Exception() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exception
}

// Members returns a copy of the task ids currently registered with the
// group.
func (g *TaskGroup) Members() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]int64, 0, len(g.taskIds))
	for id := range g.taskIds {
		out = append(out, id)
	}
	return out
}

// Barrier blocks until the group has no non-terminal task left (spec.md §8
// property 7, scoped to the group). Tasks registered with the group while
// Barrier waits are waited for as well.
func (g *TaskGroup) Barrier() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.pending > 0 {
		g.cond.Wait()
	}
}
