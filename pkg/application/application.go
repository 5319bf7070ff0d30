package application

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Id is a securely-random 64-bit application identifier (spec.md §4.7).
type Id int64

// NewId generates a securely random, non-zero 64-bit application id.
func NewId() Id {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic("application: crypto/rand unavailable: " + err.Error())
		}
		v := int64(binary.BigEndian.Uint64(buf[:]))
		if v != 0 {
			if v < 0 {
				v = -v
			}
			return Id(v)
		}
	}
}

// Application owns the per-program state: the set of written-file data for
// end-of-run retrieval, the current group stack, total task count, and the
// throttle permit pool bounding outstanding tasks. Data aliases
// (location/hashcode/collection-id) are not kept here; they live in the
// Runtime's data arena.
type Application struct {
	mu sync.Mutex

	AppId Id

	// groupStack holds the currently open TaskGroups, innermost last; a new
	// task registers with every group on the stack at creation.
	groupStack []*TaskGroup
	groups     map[int64]*TaskGroup
	nextGroup  int64

	// writtenFiles is the set of DataInstanceId renamings produced as
	// file-kind outputs, consulted by GetResultFiles.
	writtenFiles map[string]struct{}

	totalTasks int64

	throttle    *semaphore.Weighted
	throttleMax int64

	allTasks  map[int64]struct{} // tasks created this Application's lifetime, for the global barrier
	allCond   *sync.Cond
	allPend   int64
	deadline  time.Time
	cancelled bool
}

// New creates an Application with the given throttle bound. throttleMax <= 0
// means "unlimited" (spec.md §6 THROTTLE_MAX_TASKS default).
func New(throttleMax int64) *Application {
	if throttleMax <= 0 {
		throttleMax = 1 << 30 // practically unlimited, still a real bound
	}
	a := &Application{
		AppId:        Id(NewId()),
		groups:       make(map[int64]*TaskGroup),
		writtenFiles: make(map[string]struct{}),
		throttle:     semaphore.NewWeighted(throttleMax),
		throttleMax:  throttleMax,
		allTasks:     make(map[int64]struct{}),
	}
	a.allCond = sync.NewCond(&a.mu)
	return a
}

// AcquireThrottle blocks until a permit is available, bounding the count of
// non-terminal tasks to THROTTLE_MAX_TASKS (spec.md §3 invariant, §8
// property 5).
func (a *Application) AcquireThrottle(ctx context.Context) error {
	return a.throttle.Acquire(ctx, 1)
}

// ReleaseThrottle returns a permit on task termination.
func (a *Application) ReleaseThrottle() {
	a.throttle.Release(1)
}

// OpenTaskGroup pushes a new named TaskGroup onto the stack.
func (a *Application) OpenTaskGroup(name string) *TaskGroup {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextGroup++
	g := newTaskGroup(a.nextGroup, name)
	a.groups[g.GroupId] = g
	a.groupStack = append(a.groupStack, g)
	return g
}

// CloseCurrentTaskGroup pops the innermost open group. Popping an empty
// stack is a no-op.
func (a *Application) CloseCurrentTaskGroup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.groupStack) == 0 {
		return
	}
	a.groupStack = a.groupStack[:len(a.groupStack)-1]
}

// OpenGroups returns the groups currently on the stack, outermost first.
func (a *Application) OpenGroups() []*TaskGroup {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*TaskGroup, len(a.groupStack))
	copy(out, a.groupStack)
	return out
}

// Group looks up a previously opened group by id.
func (a *Application) Group(id int64) (*TaskGroup, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.groups[id]
	return g, ok
}

// RegisterTask attaches taskId to every group currently on the stack and to
// the Application's own global-barrier bookkeeping, and bumps the task
// counter. Returns the ids of the groups the task joined.
func (a *Application) RegisterTask(taskId int64) []int64 {
	a.mu.Lock()
	groups := make([]*TaskGroup, len(a.groupStack))
	copy(groups, a.groupStack)
	a.totalTasks++
	a.allTasks[taskId] = struct{}{}
	a.allPend++
	a.mu.Unlock()

	ids := make([]int64, len(groups))
	for i, g := range groups {
		g.register(taskId)
		ids[i] = g.GroupId
	}
	return ids
}

// MarkTaskTerminal notifies every group the task belongs to and the
// Application-wide barrier bookkeeping that a task has reached a terminal
// state.
func (a *Application) MarkTaskTerminal(taskId int64, groupIds []int64) {
	for _, gid := range groupIds {
		if g, ok := a.Group(gid); ok {
			g.MarkTaskTerminal(taskId)
		}
	}
	a.mu.Lock()
	if _, ok := a.allTasks[taskId]; ok {
		delete(a.allTasks, taskId)
		a.allPend--
		if a.allPend <= 0 {
			a.allCond.Broadcast()
		}
	}
	a.mu.Unlock()
}

// Barrier blocks until every task created before the call has reached a
// terminal state (spec.md §8 property 7, application-wide scope).
func (a *Application) Barrier() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.allPend > 0 {
		a.allCond.Wait()
	}
}

// RecordWrittenFile adds a renaming to the set of file-kind outputs
// retrievable via GetResultFiles.
func (a *Application) RecordWrittenFile(renaming string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writtenFiles[renaming] = struct{}{}
}

// WrittenFiles returns the renamings of every file-kind output produced so
// far.
func (a *Application) WrittenFiles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.writtenFiles))
	for r := range a.writtenFiles {
		out = append(out, r)
	}
	return out
}

// TotalTasks returns the number of tasks ever submitted under this
// Application.
func (a *Application) TotalTasks() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalTasks
}

// PendingTaskIds returns the ids of tasks registered under this Application
// that have not yet reached a terminal state, for diagnostic inspection
// (internal/controlplane).
func (a *Application) PendingTaskIds() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int64, 0, len(a.allTasks))
	for id := range a.allTasks {
		out = append(out, id)
	}
	return out
}

// SetWallClockLimit arms a deadline after which Expired reports true.
// Reaching the deadline has no other effect: no task is cancelled on expiry
// by this package or by pkg/runtime.
func (a *Application) SetWallClockLimit(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d <= 0 {
		a.deadline = time.Time{}
		return
	}
	a.deadline = time.Now().Add(d)
}

// Expired reports whether the wall-clock limit has elapsed.
func (a *Application) Expired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.deadline.IsZero() && time.Now().After(a.deadline)
}

// MarkCancelled flags the Application as having been cancelled by a
// wall-clock timeout or explicit shutdown.
func (a *Application) MarkCancelled() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled = true
}

func (a *Application) Cancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}
