package accessproc

import (
	"context"
	"fmt"

	"github.com/bsc-wdc/compss-core/pkg/data"
	"github.com/bsc-wdc/compss-core/pkg/resource"
	"github.com/bsc-wdc/compss-core/pkg/scheduler"
)

// onTaskReady is the Task Analyser's readiness callback: it fires once a
// task has no outstanding dependency, whether that happens immediately at
// TaskSubmit time or later via a predecessor's TaskEnd cascading through
// CompleteTask. Fires for Tasks only; a CommutativeGroupTask reaching zero
// dependencies has nothing to execute.
func (ap *Processor) onTaskReady(taskId int64) {
	task, ok := ap.rt.Task(taskId)
	if !ok {
		return
	}
	_ = task.Transition(data.StateToExecute)
	ap.dispatch(task)
}

func requirementsOf(impl *data.Implementation) resource.Requirements {
	return resource.Requirements{
		CPUs:      impl.Requirements.CPUs,
		GPUs:      impl.Requirements.GPUs,
		MemoryMB:  impl.Requirements.MemoryMB,
		StorageMB: impl.Requirements.StorageMB,
		Software:  impl.Requirements.Software,
	}
}

// dispatch hands a ready task to the Scheduler: the action is placed on the
// queue of every pool member that could ever host it (ScheduleAction), then
// each of those queues is drained immediately in case one has capacity free
// right now. A resource with no room records the action as BLOCKED;
// releaseResource re-dispatches blocked actions once capacity changes.
func (ap *Processor) dispatch(task *data.Task) {
	if task.Impl == nil {
		ap.rt.Errors.ReportError("accessproc", fmt.Sprintf("task %d submitted with no chosen implementation", task.TaskId))
		return
	}

	req := requirementsOf(task.Impl)
	action := scheduler.Action{ActionId: task.TaskId, CoreId: task.CoreId, Implementation: task.Impl.Name}

	candidates := ap.candidateResources(req)
	if len(candidates) == 0 {
		ap.sched.MarkBlocked(action)
		return
	}

	for _, id := range candidates {
		ap.sched.ScheduleAction(id, action)
	}
	for _, id := range candidates {
		ap.drainResource(id)
	}
}

// candidateResources returns the ids of every pool member whose static
// description could ever host req, stable iteration order is not required:
// the Scheduler decides run order within each resource's own queue, not
// which resources a task is a candidate for.
func (ap *Processor) candidateResources(req resource.Requirements) []string {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ids := make([]string, 0, len(ap.pool))
	for id, r := range ap.pool {
		if r.CanHost(req) {
			ids = append(ids, id)
		}
	}
	return ids
}

// drainResource pops resourceId's Scheduler queue until it finds an action
// still worth running. The same ready task is broadcast onto every
// candidate resource's queue, so most resources will pop stale entries for
// tasks another resource already claimed; those are discarded. The first
// live action is either placed or, if the resource has no room for it right
// now, recorded BLOCKED and left at the head of this resource's ordering:
// OrderStrict never lets a later action run ahead of it.
func (ap *Processor) drainResource(resourceId string) {
	ap.mu.Lock()
	r, ok := ap.pool[resourceId]
	ap.mu.Unlock()
	if !ok {
		return
	}

	for {
		action, ok := ap.sched.Next(resourceId)
		if !ok {
			return
		}

		task, ok := ap.rt.Task(action.ActionId)
		if !ok || task.State != data.StateToExecute || task.Impl == nil {
			continue // claimed by another candidate resource, or already terminated
		}

		req := requirementsOf(task.Impl)
		if !r.CanHostDynamic(req) {
			ap.sched.MarkBlocked(action)
			return
		}

		ap.place(task, r, req)
		return
	}
}

// place reserves r's dynamic capacity for task and submits it to the Job
// Manager, rolling the reservation back and ending the task on submit
// failure.
func (ap *Processor) place(task *data.Task, r *resource.Resource, req resource.Requirements) {
	r.ReduceDynamic(req)

	ap.mu.Lock()
	ap.resourceOf[task.TaskId] = r
	ap.mu.Unlock()

	_ = task.Transition(data.StateExecuting)
	if _, err := ap.jobs.Submit(context.Background(), r.Desc.Kind, task.TaskId, task.Impl.Name, r.Desc.Id, buildJobParams(task)); err != nil {
		r.IncreaseDynamic(req)
		ap.mu.Lock()
		delete(ap.resourceOf, task.TaskId)
		ap.mu.Unlock()
		ap.endTask(TaskEnd{TaskId: task.TaskId, Failed: true, Err: err})
	}
}

func buildJobParams(task *data.Task) map[string]string {
	params := make(map[string]string, len(task.Params))
	for _, p := range task.Params {
		if p.Access == nil {
			continue
		}
		if ri, ok := p.Access.ReadInstance(); ok {
			params[p.Name+".read"] = ri.Renaming()
		}
		if wi, ok := p.Access.WriteInstance(); ok {
			params[p.Name+".write"] = wi.Renaming()
		}
	}
	return params
}

// releaseResource returns a finished task's reserved dynamic capacity,
// retries anything the Scheduler had marked BLOCKED now that capacity may
// have changed, and drains the freed resource's own queue in case another
// action was already waiting on it specifically.
func (ap *Processor) releaseResource(taskId int64) {
	ap.mu.Lock()
	r, ok := ap.resourceOf[taskId]
	delete(ap.resourceOf, taskId)
	ap.mu.Unlock()
	if !ok {
		return
	}
	task, _ := ap.rt.Task(taskId)
	if task != nil && task.Impl != nil {
		r.IncreaseDynamic(requirementsOf(task.Impl))
	}
	ap.retryBlocked()
	ap.drainResource(r.Desc.Id)
}

// retryBlocked re-dispatches every action the Scheduler flagged BLOCKED now
// that capacity may have freed up. Policies exposing Blocked()/ClearBlocked()
// (OrderStrict does) get this retry; a bare Scheduler without them simply
// never surfaces blocked actions for retry here.
type blockedTracker interface {
	Blocked() []scheduler.Action
	ClearBlocked()
}

func (ap *Processor) retryBlocked() {
	b, ok := ap.sched.(blockedTracker)
	if !ok {
		return
	}
	pending := b.Blocked()
	b.ClearBlocked()
	for _, action := range pending {
		task, ok := ap.rt.Task(action.ActionId)
		if !ok || task.State != data.StateToExecute {
			continue
		}
		ap.dispatch(task)
	}
}
