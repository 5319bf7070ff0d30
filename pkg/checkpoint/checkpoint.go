// Package checkpoint records enough runtime state (new tasks, task
// completions, main-code accesses, deleted data) to resume an Application
// after a restart, behind a pluggable Manager interface (spec.md §4.9). A
// no-op Manager is the default; bolt and couch back concrete on-disk
// implementations.
package checkpoint

// TaskRecord is the minimal snapshot of one task needed to resume it.
type TaskRecord struct {
	TaskId    int64
	CoreId    string
	AppId     int64
	State     string
	Renamings []string // output InstanceId renamings produced so far
}

// Manager is the checkpointing interface every backend implements.
type Manager interface {
	NewTask(rec TaskRecord) error
	EndTask(taskId int64, renamings []string) error
	MainAccess(renaming string) error
	DeletedData(renaming string) error
	Close() error
}

// NoOp is the default Manager: every call succeeds and persists nothing,
// matching a deployment that has checkpointing disabled.
type NoOp struct{}

func (NoOp) NewTask(TaskRecord) error          { return nil }
func (NoOp) EndTask(int64, []string) error     { return nil }
func (NoOp) MainAccess(string) error           { return nil }
func (NoOp) DeletedData(string) error          { return nil }
func (NoOp) Close() error                      { return nil }
