package data

import "fmt"

// TaskState is the task state machine: CREATED → TO_ANALYSE → ANALYSED →
// TO_EXECUTE → EXECUTING → FINISHED | FAILED | CANCELED.
type TaskState string

const (
	StateCreated   TaskState = "CREATED"
	StateToAnalyse TaskState = "TO_ANALYSE"
	StateAnalysed  TaskState = "ANALYSED"
	StateToExecute TaskState = "TO_EXECUTE"
	StateExecuting TaskState = "EXECUTING"
	StateFinished  TaskState = "FINISHED"
	StateFailed    TaskState = "FAILED"
	StateCanceled  TaskState = "CANCELED"
)

// ValidTaskTransitions encodes the task's legal state-machine edges,
// grounded on the teacher's coordinator.ValidTransitions table idiom.
var ValidTaskTransitions = map[TaskState][]TaskState{
	StateCreated:   {StateToAnalyse, StateCanceled, StateFailed},
	StateToAnalyse: {StateAnalysed, StateCanceled, StateFailed},
	StateAnalysed:  {StateToExecute, StateCanceled, StateFailed},
	StateToExecute: {StateExecuting, StateCanceled, StateFailed},
	StateExecuting: {StateFinished, StateFailed, StateCanceled},
}

// IsTerminal reports whether s is one of FINISHED/FAILED/CANCELED.
func (s TaskState) IsTerminal() bool {
	return s == StateFinished || s == StateFailed || s == StateCanceled
}

// CanTransitionTo reports whether s → target is a legal edge.
func (s TaskState) CanTransitionTo(target TaskState) bool {
	for _, v := range ValidTaskTransitions[s] {
		if v == target {
			return true
		}
	}
	return false
}

// History records how a task came to exist.
type History string

const (
	HistoryNew         History = "NEW"
	HistoryResubmitted History = "RESUBMITTED"
	HistoryRescheduled History = "RESCHEDULED"
	HistoryCancelled   History = "CANCELLED"
)

// OnFailure is the per-task failure policy (§4.5).
type OnFailure string

const (
	Retry            OnFailure = "RETRY"
	Fail             OnFailure = "FAIL"
	Ignore           OnFailure = "IGNORE"
	CancelSuccessors OnFailure = "CANCEL_SUCCESSORS"
)

// ProducesEmptyResultsOnFailure is true iff the policy is IGNORE or
// CANCEL_SUCCESSORS: the task proceeds with unproduced outputs rather than
// escalating to the ErrorManager.
func (o OnFailure) ProducesEmptyResultsOnFailure() bool {
	return o == Ignore || o == CancelSuccessors
}

// Parameter pairs an access with its Direction and additionally carries stream-role and
// presentation metadata the scheduler/adapter need, keeping data.Direction
// itself free of task-specific concerns.
type Parameter struct {
	Access  *AccessId
	Dir     Direction
	Name    string
	Prefix  string
	Stream  bool
	Monitor bool
}

// Implementation is the concrete executable variant of a task's core chosen
// by the scheduler (e.g. a specific method signature, container image, or
// HTTP endpoint), identified by name for scoring and resource matching.
type Implementation struct {
	Name         string
	CoreId       string
	Requirements Requirements
}

// Requirements is the static resource shape an Implementation needs; the
// Resource Model's canHost checks against it (see pkg/resource).
type Requirements struct {
	CPUs      int
	GPUs      int
	MemoryMB  int
	StorageMB int
	Software  []string
}

// AbstractTask is the supertype shared by Task and CommutativeGroupTask:
// both are dependency-graph nodes that can be a "last writer" edge target.
type AbstractTask interface {
	ID() int64
	IsGroup() bool
}

// Task is a scheduling node: an id, its parameters, chosen implementation,
// on-failure policy, history, state machine and group memberships.
type Task struct {
	TaskId    int64
	CoreId    string
	Params    []*Parameter
	Impl      *Implementation
	OnFailure OnFailure
	Hist      History
	State     TaskState
	Groups    []int64 // TaskGroup ids this task registered with at creation
	AppId     int64

	// beingCancelled is set when a Cancel request targets a task that has
	// already been dispatched; the eventual worker callback (or an
	// immediate synthetic one, if never dispatched) is processed as
	// TaskEnd(CANCELED). A second Cancel on an already-terminal or
	// already-being-cancelled task is a no-op (§5 cancellation idempotence).
	beingCancelled bool
}

func NewTask(taskId int64, appId int64, coreId string, onFailure OnFailure) *Task {
	return &Task{
		TaskId:    taskId,
		AppId:     appId,
		CoreId:    coreId,
		OnFailure: onFailure,
		Hist:      HistoryNew,
		State:     StateCreated,
	}
}

func (t *Task) ID() int64     { return t.TaskId }
func (t *Task) IsGroup() bool { return false }

// Transition validates and applies a state change, returning an error if
// the edge is not in ValidTaskTransitions.
func (t *Task) Transition(target TaskState) error {
	if t.State == target {
		return nil
	}
	if !t.State.CanTransitionTo(target) {
		return fmt.Errorf("task %d: invalid transition %s -> %s", t.TaskId, t.State, target)
	}
	t.State = target
	return nil
}

// Cancel idempotently requests cancellation: a second call once the task is
// already terminal or already being cancelled is a no-op, satisfying the
// cancellation-idempotence property (spec.md §8 property 8).
func (t *Task) Cancel() (already bool) {
	if t.State.IsTerminal() || t.beingCancelled {
		return true
	}
	t.beingCancelled = true
	return false
}

func (t *Task) BeingCancelled() bool { return t.beingCancelled }

// CommutativeGroupTask is a synthetic AbstractTask representing a set of
// atomically-reorderable writes (§4.2 CV rule). It buffers member task ids
// until Close is called (first non-CV access on the same data, explicit
// close, or application end); once closed, dependents attach to the group
// node rather than to individual members.
type CommutativeGroupTask struct {
	GroupTaskId int64
	CoreId      string
	DataId      int64
	Members     []int64
	closed      bool
}

func NewCommutativeGroupTask(id int64, coreId string, dataId int64) *CommutativeGroupTask {
	return &CommutativeGroupTask{GroupTaskId: id, CoreId: coreId, DataId: dataId}
}

func (g *CommutativeGroupTask) ID() int64     { return g.GroupTaskId }
func (g *CommutativeGroupTask) IsGroup() bool { return true }

// Join adds memberTaskId to the buffered set. It is an error to join a
// group that has already closed.
func (g *CommutativeGroupTask) Join(memberTaskId int64) error {
	if g.closed {
		return fmt.Errorf("commutative group %d: already closed", g.GroupTaskId)
	}
	g.Members = append(g.Members, memberTaskId)
	return nil
}

// Close collapses the group into a single last-writer node. Idempotent:
// closing twice is a no-op.
func (g *CommutativeGroupTask) Close() {
	g.closed = true
}

func (g *CommutativeGroupTask) Closed() bool { return g.closed }
