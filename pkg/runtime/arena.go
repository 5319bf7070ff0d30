// Package runtime owns the explicit, non-global runtime state: the integer
// id arenas for DataInfo and tasks, the waker registry that lets blocked
// main-code accesses resume, and the Runtime value that holds them together
// with the application registry and the Error Manager (spec.md §9 Design
// Notes: "explicit Runtime value replacing global static maps"). The Access
// Processor, Task Analyser, Scheduler and Job Manager are not held here;
// pkg/accessproc.Processor drives them.
package runtime

import (
	"sync"

	"github.com/bsc-wdc/compss-core/pkg/data"
)

// dataArena owns every DataInfo created this Runtime's lifetime, keyed by
// DataId, replacing the teacher-adjacent pattern of global static maps with
// an explicit, lockable, per-Runtime value.
type dataArena struct {
	mu      sync.RWMutex
	nextId  int64
	infos   map[int64]*data.DataInfo
	byAlias map[string]int64 // location/hashcode/collection-id -> DataId
}

func newDataArena() *dataArena {
	return &dataArena{
		infos:   make(map[int64]*data.DataInfo),
		byAlias: make(map[string]int64),
	}
}

// Create allocates a new DataId and its DataInfo.
func (a *dataArena) Create(kind data.Kind, payload data.Payload) *data.DataInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextId++
	id := a.nextId
	di := data.New(id, kind, payload)
	a.infos[id] = di
	return di
}

// Get returns the DataInfo for id, if still present (it may have been
// fully deleted).
func (a *dataArena) Get(id int64) (*data.DataInfo, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	di, ok := a.infos[id]
	return di, ok
}

// BindAlias associates a file location, object hashcode or collection id
// with a DataId, so later accesses to the same alias resolve to the same
// DataInfo (spec.md §4.1 registerDataAccess / §4.3 resolution rule).
func (a *dataArena) BindAlias(alias string, id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byAlias[alias] = id
}

func (a *dataArena) ResolveAlias(alias string) (int64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.byAlias[alias]
	return id, ok
}

// Forget removes a DataInfo once fully deleted, freeing the arena slot. The
// DataId itself is never reused.
func (a *dataArena) Forget(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.infos, id)
}

// taskArena owns every AbstractTask (Task or CommutativeGroupTask) created
// this Runtime's lifetime, keyed by task id.
type taskArena struct {
	mu     sync.RWMutex
	nextId int64
	tasks  map[int64]data.AbstractTask
}

func newTaskArena() *taskArena {
	return &taskArena{tasks: make(map[int64]data.AbstractTask)}
}

// NextId reserves the next task id without registering a task; callers
// construct the concrete Task/CommutativeGroupTask with it and then call
// Put.
func (a *taskArena) NextId() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextId++
	return a.nextId
}

func (a *taskArena) Put(t data.AbstractTask) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tasks[t.ID()] = t
}

func (a *taskArena) Get(id int64) (data.AbstractTask, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.tasks[id]
	return t, ok
}

func (a *taskArena) Task(id int64) (*data.Task, bool) {
	t, ok := a.Get(id)
	if !ok {
		return nil, false
	}
	task, ok := t.(*data.Task)
	return task, ok
}

func (a *taskArena) Group(id int64) (*data.CommutativeGroupTask, bool) {
	t, ok := a.Get(id)
	if !ok {
		return nil, false
	}
	g, ok := t.(*data.CommutativeGroupTask)
	return g, ok
}
