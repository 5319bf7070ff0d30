package runtime

import (
	"sync"

	"github.com/bsc-wdc/compss-core/internal/obslog"
	"github.com/bsc-wdc/compss-core/pkg/application"
	"github.com/bsc-wdc/compss-core/pkg/data"
	"github.com/bsc-wdc/compss-core/pkg/errormanager"
)

// Runtime is the single explicit value owning every piece of mutable
// runtime-core state: the DataInfo and task arenas, the per-application
// registry, the waker registry, and the error manager. Nothing in this
// module keeps state in package-level globals; every component that needs
// runtime state receives a *Runtime (spec.md §9 Design Notes).
type Runtime struct {
	Log    *obslog.Logger
	Errors *errormanager.Manager
	Wakers *WakerSet

	data  *dataArena
	tasks *taskArena

	appsMu sync.RWMutex
	apps   map[application.Id]*application.Application

	throttleMax int64
}

// Config bundles the construction-time knobs a deployment sets via
// internal/config.
type Config struct {
	ThrottleMax int64
	Log         *obslog.Logger
}

func New(cfg Config) *Runtime {
	log := cfg.Log
	if log == nil {
		log = obslog.New(obslog.DefaultConfig("runtime"))
	}
	rt := &Runtime{
		Log:         log,
		Wakers:      newWakerSet(),
		data:        newDataArena(),
		tasks:       newTaskArena(),
		apps:        make(map[application.Id]*application.Application),
		throttleMax: cfg.ThrottleMax,
	}
	rt.Errors = errormanager.New(log, 1000)
	return rt
}

// RegisterApplication creates and registers a new Application, bounded by
// the Runtime's configured throttle.
func (rt *Runtime) RegisterApplication() *application.Application {
	app := application.New(rt.throttleMax)
	rt.appsMu.Lock()
	rt.apps[app.AppId] = app
	rt.appsMu.Unlock()
	return app
}

func (rt *Runtime) Application(id application.Id) (*application.Application, bool) {
	rt.appsMu.RLock()
	defer rt.appsMu.RUnlock()
	app, ok := rt.apps[id]
	return app, ok
}

// DeregisterApplication drops an Application from the registry once its
// end-of-run bookkeeping (result file retrieval, checkpoint flush) is done.
func (rt *Runtime) DeregisterApplication(id application.Id) {
	rt.appsMu.Lock()
	delete(rt.apps, id)
	rt.appsMu.Unlock()
}

// Applications returns every currently registered Application.
func (rt *Runtime) Applications() []*application.Application {
	rt.appsMu.RLock()
	defer rt.appsMu.RUnlock()
	out := make([]*application.Application, 0, len(rt.apps))
	for _, a := range rt.apps {
		out = append(out, a)
	}
	return out
}

// CreateData allocates a new DataInfo, the entry point every
// RegisterDataAccess-on-a-new-alias request uses.
func (rt *Runtime) CreateData(kind data.Kind, payload data.Payload) *data.DataInfo {
	return rt.data.Create(kind, payload)
}

func (rt *Runtime) Data(id int64) (*data.DataInfo, bool) {
	return rt.data.Get(id)
}

func (rt *Runtime) BindDataAlias(alias string, id int64) {
	rt.data.BindAlias(alias, id)
}

func (rt *Runtime) ResolveDataAlias(alias string) (int64, bool) {
	return rt.data.ResolveAlias(alias)
}

// DeleteData fully removes a DataInfo once the Data Info Provider confirms
// no live version remains referenced.
func (rt *Runtime) DeleteData(id int64) {
	if di, ok := rt.data.Get(id); ok {
		di.Delete()
	}
	rt.data.Forget(id)
}

// NewTaskId reserves the next task id; the caller (pkg/accessproc) builds
// the concrete *data.Task or *data.CommutativeGroupTask and calls PutTask.
func (rt *Runtime) NewTaskId() int64 {
	return rt.tasks.NextId()
}

func (rt *Runtime) PutTask(t data.AbstractTask) {
	rt.tasks.Put(t)
}

func (rt *Runtime) Task(id int64) (*data.Task, bool) {
	return rt.tasks.Task(id)
}

func (rt *Runtime) Group(id int64) (*data.CommutativeGroupTask, bool) {
	return rt.tasks.Group(id)
}

func (rt *Runtime) AbstractTask(id int64) (data.AbstractTask, bool) {
	return rt.tasks.Get(id)
}
