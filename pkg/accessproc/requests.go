package accessproc

import (
	"fmt"

	"github.com/bsc-wdc/compss-core/pkg/application"
	"github.com/bsc-wdc/compss-core/pkg/checkpoint"
	"github.com/bsc-wdc/compss-core/pkg/data"
)

// RegisterDataAccess implements the DIP entry point main code and task
// submission both go through: resolve alias to an existing DataInfo (a
// prior access to the same file location / object hashcode / collection
// id) or create one, then record the pending access (spec.md §4.1/§4.3).
type RegisterDataAccess struct {
	Alias   string // "" means "always a fresh Data, never aliased" (e.g. a task's private temp output)
	Kind    data.Kind
	Payload data.Payload
	Dir     data.Direction
}

func (r RegisterDataAccess) Process(ap *Processor) Outcome {
	dataId, existed := ap.resolveOrCreate(r.Alias, r.Kind, r.Payload)

	if !existed && (r.Dir == data.R || r.Dir == data.C) {
		return Outcome{DataId: dataId, Unaware: true}
	}

	di, ok := ap.rt.Data(dataId)
	if !ok {
		return Outcome{Err: fmt.Errorf("accessproc: data %d vanished mid-registration", dataId)}
	}
	access, err := di.WillAccess(r.Dir)
	if err != nil {
		return Outcome{Err: err}
	}
	return Outcome{DataId: dataId, Access: access}
}

func (ap *Processor) resolveOrCreate(alias string, kind data.Kind, payload data.Payload) (dataId int64, existed bool) {
	if alias != "" {
		if id, ok := ap.rt.ResolveDataAlias(alias); ok {
			return id, true
		}
	}
	di := ap.rt.CreateData(kind, payload)
	if alias != "" {
		ap.rt.BindDataAlias(alias, di.DataId)
	}
	return di.DataId, false
}

// FinishDataAccess implements DIP's committedAccess/cancelledAccess for a
// main-code (non-task) access: the synchronous caller has finished reading
// or writing and releases its pending count, waking any stalled reader of
// the version it produced.
type FinishDataAccess struct {
	DataId    int64
	Access    *data.AccessId
	Cancelled bool // true if the access is being abandoned rather than committed
}

func (r FinishDataAccess) Process(ap *Processor) Outcome {
	di, ok := ap.rt.Data(r.DataId)
	if !ok {
		return Outcome{Err: fmt.Errorf("accessproc: unknown data %d", r.DataId)}
	}

	var err error
	if r.Cancelled {
		err = di.CancelledAccess(r.Access, false)
	} else {
		err = di.CommittedAccess(r.Access)
	}
	if err != nil {
		return Outcome{Err: err}
	}

	if wi, ok := r.Access.WriteInstance(); ok {
		ap.rt.Wakers.Wake(wi)
		if !r.Cancelled {
			_ = ap.chk.MainAccess(wi.Renaming())
		}
	}
	return Outcome{}
}

// RegisterRemoteData registers a DataInfo whose current version was
// already produced outside this runtime instance (federation / resumed
// checkpoint), so local accesses can consume it without waiting on a
// local producer.
type RegisterRemoteData struct {
	Alias   string
	Kind    data.Kind
	Payload data.Payload
}

func (r RegisterRemoteData) Process(ap *Processor) Outcome {
	dataId, existed := ap.resolveOrCreate(r.Alias, r.Kind, r.Payload)
	if existed {
		return Outcome{DataId: dataId}
	}
	return Outcome{DataId: dataId}
}

// DataGetLastVersion resolves an alias to the InstanceId of its current
// version, without registering any new access.
type DataGetLastVersion struct {
	Alias string
}

func (r DataGetLastVersion) Process(ap *Processor) Outcome {
	dataId, ok := ap.rt.ResolveDataAlias(r.Alias)
	if !ok {
		return Outcome{Unaware: true}
	}
	di, ok := ap.rt.Data(dataId)
	if !ok {
		return Outcome{Err: fmt.Errorf("accessproc: unknown data %d", dataId)}
	}
	return Outcome{DataId: dataId, Instance: data.InstanceId{DataId: dataId, VersionId: di.CurrentVersionId()}}
}

// DeleteData removes a DataInfo (and, for collection kinds, recursively
// its children) once the caller confirms no live reference remains.
type DeleteData struct {
	DataId int64
}

func (r DeleteData) Process(ap *Processor) Outcome {
	di, ok := ap.rt.Data(r.DataId)
	if !ok {
		return Outcome{}
	}
	var children []int64
	if di.Kind == data.CollectionData || di.Kind == data.DictCollectionData {
		children = append(children, di.Payload.ChildIds...)
	}
	ap.rt.DeleteData(r.DataId)
	for _, c := range children {
		ap.rt.DeleteData(c)
	}
	return Outcome{}
}

// CloseStream marks a stream DataInfo as completed: no further producer may
// join it, and the stream-dependency edges already attached to its readers
// remain against whichever writers were active when each read happened.
type CloseStream struct {
	DataId int64
}

func (r CloseStream) Process(ap *Processor) Outcome {
	di, ok := ap.rt.Data(r.DataId)
	if !ok {
		return Outcome{Err: fmt.Errorf("accessproc: unknown data %d", r.DataId)}
	}
	if di.Kind != data.StreamData {
		return Outcome{Err: fmt.Errorf("accessproc: data %d is not a stream", r.DataId)}
	}
	di.CompleteStream()
	return Outcome{}
}

// TaskSubmit creates a Task, wires it into the dependency graph, and
// dispatches it immediately if it has no outstanding dependency.
type TaskSubmit struct {
	AppId     application.Id
	CoreId    string
	Params    []*data.Parameter
	Impl      *data.Implementation
	OnFailure data.OnFailure
}

func (r TaskSubmit) Process(ap *Processor) Outcome {
	app, ok := ap.rt.Application(r.AppId)
	if !ok {
		return Outcome{Err: fmt.Errorf("accessproc: unknown application %d", r.AppId)}
	}

	taskId := ap.rt.NewTaskId()
	task := data.NewTask(taskId, int64(r.AppId), r.CoreId, r.OnFailure)
	task.Params = r.Params
	task.Impl = r.Impl
	_ = task.Transition(data.StateToAnalyse)
	_ = task.Transition(data.StateAnalysed)

	ap.rt.PutTask(task)
	task.Groups = app.RegisterTask(taskId)
	_ = ap.chk.NewTask(checkpoint.TaskRecord{TaskId: taskId, CoreId: r.CoreId, AppId: int64(r.AppId), State: string(task.State)})

	lookup := func(dataId int64) (*data.DataInfo, bool) { return ap.rt.Data(dataId) }
	ap.graph.AddTask(task, lookup)

	return Outcome{TaskId: taskId}
}

// TaskEnd is submitted (directly via JobFinished, not through a worker
// round trip that would itself need a Request) once a dispatched task's
// job reaches a terminal state.
type TaskEnd struct {
	TaskId    int64
	Failed    bool
	Exception error
	Err       error
}

func (r TaskEnd) Process(ap *Processor) Outcome {
	return ap.endTask(r)
}

// endTask is the non-Request-wrapped implementation CancelSuccessors
// cascades call directly (Process already runs on the Access Processor
// goroutine, so re-entering through Submit would deadlock on its own
// channel).
func (ap *Processor) endTask(r TaskEnd) Outcome {
	task, ok := ap.rt.Task(r.TaskId)
	if !ok {
		return Outcome{Err: fmt.Errorf("accessproc: unknown task %d", r.TaskId)}
	}

	ap.releaseResource(r.TaskId)

	produceEmpty := r.Failed && task.OnFailure.ProducesEmptyResultsOnFailure()
	commitWrites := !r.Failed || produceEmpty

	lookup := func(dataId int64) (*data.DataInfo, bool) { return ap.rt.Data(dataId) }
	var renamings []string
	for _, p := range task.Params {
		if p.Access == nil {
			continue
		}
		di, ok := lookup(p.Access.DataId)
		if !ok {
			continue
		}
		if commitWrites {
			_ = di.CommittedAccess(p.Access)
		} else {
			_ = di.CancelledAccess(p.Access, false)
		}
		if wi, ok := p.Access.WriteInstance(); ok {
			ap.rt.Wakers.Wake(wi)
			renamings = append(renamings, wi.Renaming())
			if di.Kind == data.FileData && p.Dir != data.CV {
				if app, ok := ap.rt.Application(application.Id(task.AppId)); ok {
					app.RecordWrittenFile(wi.Renaming())
				}
			}
		}
	}

	if r.Failed && !produceEmpty {
		ap.rt.Errors.ReportError("accessproc", fmt.Sprintf("task %d failed: %v", r.TaskId, errOrException(r)))
	} else if r.Failed {
		ap.rt.Errors.ReportWarn("accessproc", fmt.Sprintf("task %d failed (policy %s, continuing): %v", r.TaskId, task.OnFailure, errOrException(r)))
	}

	terminal := data.StateFinished
	if r.Failed {
		terminal = data.StateFailed
	}
	if task.BeingCancelled() {
		terminal = data.StateCanceled
	}
	_ = task.Transition(terminal)

	_ = ap.chk.EndTask(r.TaskId, renamings)

	if app, ok := ap.rt.Application(application.Id(task.AppId)); ok {
		app.MarkTaskTerminal(r.TaskId, task.Groups)
		app.ReleaseThrottle()
	}

	var cascaded []int64
	if r.Failed && task.OnFailure == data.CancelSuccessors {
		cascaded = ap.graph.Graph().GetDependents(r.TaskId)
	}

	ap.graph.CompleteTask(r.TaskId)

	for _, succId := range cascaded {
		if succ, ok := ap.rt.Task(succId); ok && !succ.State.IsTerminal() {
			succ.Cancel()
			ap.endTask(TaskEnd{TaskId: succId, Failed: true})
		}
	}

	return Outcome{TaskId: r.TaskId}
}

func errOrException(r TaskEnd) error {
	if r.Exception != nil {
		return r.Exception
	}
	return r.Err
}

// GetResultFiles returns the renamings of every file-kind output produced
// by appId so far (§6).
type GetResultFiles struct {
	AppId application.Id
}

func (r GetResultFiles) Process(ap *Processor) Outcome {
	app, ok := ap.rt.Application(r.AppId)
	if !ok {
		return Outcome{Err: fmt.Errorf("accessproc: unknown application %d", r.AppId)}
	}
	return Outcome{Files: app.WrittenFiles()}
}

// Shutdown stops the Access Processor's goroutine once this request has
// been (trivially) processed.
type Shutdown struct{}

func (r Shutdown) Process(ap *Processor) Outcome {
	go ap.Close() // Close waits on ap.wg, which this very goroutine must exit first
	return Outcome{}
}
