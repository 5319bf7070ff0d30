// Package accessproc implements the single-threaded Access Processor: every
// mutation of dependency/scheduling/data state funnels through one
// goroutine draining a buffered request channel, grounded on the teacher's
// coordinator.Coordinator readLoop/senderLoop and worker.Worker.Start
// single-goroutine-per-concern dispatch idiom.
package accessproc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bsc-wdc/compss-core/pkg/analyser"
	"github.com/bsc-wdc/compss-core/pkg/application"
	"github.com/bsc-wdc/compss-core/pkg/checkpoint"
	"github.com/bsc-wdc/compss-core/pkg/data"
	"github.com/bsc-wdc/compss-core/pkg/jobmanager"
	"github.com/bsc-wdc/compss-core/pkg/resource"
	"github.com/bsc-wdc/compss-core/pkg/runtime"
	"github.com/bsc-wdc/compss-core/pkg/scheduler"
)

// Outcome is the result of processing one Request. Only the fields
// relevant to the concrete Request type the caller submitted are set.
type Outcome struct {
	Err      error
	Access   *data.AccessId
	Instance data.InstanceId
	DataId   int64
	Unaware  bool
	TaskId   int64
	Files    []string
}

// Request is one unit of Access Processor work. Concrete types are defined
// in requests.go (RegisterDataAccess, FinishDataAccess, RegisterRemoteData,
// DataGetLastVersion, DeleteData, TaskSubmit, TaskEnd, GetResultFiles,
// Shutdown).
type Request interface {
	Process(ap *Processor) Outcome
}

type envelope struct {
	req    Request
	result chan Outcome
}

// Processor is the explicit, non-global value owning the Access
// Processor's goroutine and every collaborator it drives: the Runtime
// (data/task arenas, wakers, applications), the Task Analyser, the
// Scheduler, the Job Manager, and an optional Checkpoint Manager.
type Processor struct {
	rt    *runtime.Runtime
	graph *analyser.Analyser
	sched scheduler.Scheduler
	jobs  *jobmanager.Manager
	chk   checkpoint.Manager

	reqCh chan envelope
	done  chan struct{}
	wg    sync.WaitGroup

	mu         sync.Mutex // guards pool/dispatch bookkeeping below; AP-goroutine-only in steady state
	pool       map[string]*resource.Resource
	resourceOf map[int64]*resource.Resource // taskId -> resource it is running on
}

// Config bundles the collaborators a Processor drives. Checkpoint may be
// nil, in which case checkpoint.NoOp{} is used.
type Config struct {
	Runtime    *runtime.Runtime
	Scheduler  scheduler.Scheduler
	Jobs       *jobmanager.Manager
	Checkpoint checkpoint.Manager
	QueueDepth int // buffered request channel depth, default 256
}

// New constructs a Processor and starts its single request-draining
// goroutine. Call Close to stop it.
func New(cfg Config) *Processor {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	chk := cfg.Checkpoint
	if chk == nil {
		chk = checkpoint.NoOp{}
	}
	ap := &Processor{
		rt:         cfg.Runtime,
		sched:      cfg.Scheduler,
		jobs:       cfg.Jobs,
		chk:        chk,
		reqCh:      make(chan envelope, cfg.QueueDepth),
		done:       make(chan struct{}),
		pool:       make(map[string]*resource.Resource),
		resourceOf: make(map[int64]*resource.Resource),
	}
	ap.graph = analyser.New(analyser.NewGraph(), ap.newGroupId, cfg.Runtime.PutTask, ap.onTaskReady)

	ap.wg.Add(1)
	go ap.run()
	return ap
}

func (ap *Processor) newGroupId() int64 {
	return ap.rt.NewTaskId()
}

func (ap *Processor) run() {
	defer ap.wg.Done()
	for {
		select {
		case <-ap.done:
			return
		case e := <-ap.reqCh:
			e.result <- e.req.Process(ap)
		}
	}
}

// Submit enqueues req and blocks until the Access Processor goroutine has
// processed it. Submitting after Close returns an error Outcome rather than
// blocking forever. A TaskSubmit first takes one throttle permit of its
// Application on the caller's goroutine, so a full throttle blocks the
// submitter rather than the Access Processor; endTask returns the permit.
func (ap *Processor) Submit(req Request) Outcome {
	if ts, ok := req.(TaskSubmit); ok {
		if app, ok := ap.rt.Application(ts.AppId); ok {
			if err := app.AcquireThrottle(context.Background()); err != nil {
				return Outcome{Err: err}
			}
		}
	}
	e := envelope{req: req, result: make(chan Outcome, 1)}
	select {
	case ap.reqCh <- e:
	case <-ap.done:
		return Outcome{Err: errors.New("accessproc: processor is shut down")}
	}
	select {
	case o := <-e.result:
		return o
	case <-ap.done:
		return Outcome{Err: errors.New("accessproc: processor shut down while request was pending")}
	}
}

// RegisterResource adds r to the pool the Access Processor dispatches tasks
// onto once they become ready.
func (ap *Processor) RegisterResource(r *resource.Resource) {
	ap.mu.Lock()
	ap.pool[r.Desc.Id] = r
	ap.mu.Unlock()
	if ap.rt.Log != nil {
		ap.rt.Log.Infof("registered resource %s", r.Describe())
	}
}

// Close stops accepting new requests and waits for the goroutine to exit.
// Already-enqueued requests that haven't been picked up are abandoned.
func (ap *Processor) Close() {
	close(ap.done)
	ap.wg.Wait()
}

// Barrier blocks the calling goroutine (never the Access Processor's own)
// until every task registered under appId has reached a terminal state.
//
// This is deliberately NOT routed through Submit/the request channel: the
// Access Processor goroutine is also what ultimately unblocks a barrier (by
// processing the TaskEnd requests that call Application.MarkTaskTerminal),
// so queuing Barrier itself would deadlock the one goroutine that needs to
// keep draining. Application's own sync.Cond already makes this safe to
// call concurrently with the Access Processor loop.
func (ap *Processor) Barrier(appId application.Id) error {
	app, ok := ap.rt.Application(appId)
	if !ok {
		return fmt.Errorf("accessproc: unknown application %d", appId)
	}
	app.Barrier()
	return nil
}

// BarrierGroup is Barrier scoped to one TaskGroup, same non-serialized
// rationale as Barrier.
func (ap *Processor) BarrierGroup(appId application.Id, groupId int64) error {
	app, ok := ap.rt.Application(appId)
	if !ok {
		return fmt.Errorf("accessproc: unknown application %d", appId)
	}
	g, ok := app.Group(groupId)
	if !ok {
		return fmt.Errorf("accessproc: application %d has no group %d", appId, groupId)
	}
	g.Barrier()
	return nil
}

// JobFinished implements jobmanager.Listener: every adapter's terminal
// callback lands here, off the Access Processor goroutine, and is funneled
// back in as a TaskEnd request.
func (ap *Processor) JobFinished(o jobmanager.Outcome) {
	go func() {
		ap.Submit(TaskEnd{
			TaskId:    o.TaskId,
			Failed:    o.Status != jobmanager.Completed,
			Exception: o.Exception,
			Err:       o.Err,
		})
	}()
}
