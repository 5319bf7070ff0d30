// Package jobmanager dispatches ready actions to the resource that was
// chosen for them, via a pluggable Adapter per transport (spec.md §4.5).
// The Manager's executor-selection-by-CanHandle idiom mirrors the teacher
// corpus's Registry/Executor pattern.
package jobmanager

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Job is one in-flight dispatch of a task's chosen Implementation to a
// Resource.
type Job struct {
	JobId          int64
	TaskId         int64
	Implementation string
	ResourceId     string
	Params         map[string]string
	SubmittedAt    time.Time
}

// Status is the terminal outcome of a Job.
type Status string

const (
	Completed Status = "COMPLETED"
	Failed    Status = "FAILED"
	Cancelled Status = "CANCELLED"
)

// Outcome is delivered to Listener once a Job reaches a terminal state.
type Outcome struct {
	JobId     int64
	TaskId    int64
	Status    Status
	Exception error // set only when the task implementation raised a COMPSsException
	Err       error // set for FAILED/infrastructure errors
}

// Listener receives Job outcomes; pkg/accessproc implements this to funnel
// completions back into TaskEnd requests.
type Listener interface {
	JobFinished(Outcome)
}

// Recorder receives a duration sample per completed job; pkg/profile.Profile
// satisfies this and feeds the optional persisted execution profile (§4.9).
type Recorder interface {
	RecordImplementation(name string, ms int64)
	RecordResource(name string, ms int64)
}

// HistorySink receives a durable execution-history row per completed job;
// pkg/profile.HistorySink satisfies this. Optional, nil by default.
type HistorySink interface {
	Record(taskId int64, implementation, resourceId string, duration time.Duration, status string) error
}

// Adapter is the transport-specific half of the Job Manager: it knows how
// to actually start a job on a resource, cancel one in flight, and probe
// whether a piece of data already exists there (spec.md §4.5, §6).
type Adapter interface {
	Name() string
	CanHandle(resourceKind string) bool
	RunJob(ctx context.Context, job Job) error
	CancelJob(ctx context.Context, jobId int64) error
	GetData(ctx context.Context, resourceId, renaming string) ([]byte, error)
	ExistsData(ctx context.Context, resourceId, renaming string) (bool, error)
}

// Manager owns the adapter registry and in-flight job bookkeeping.
type Manager struct {
	mu       sync.RWMutex
	adapters []Adapter
	inFlight map[int64]Job
	listener Listener
	profiler Recorder
	history  HistorySink
	nextId   int64
}

func NewManager(listener Listener) *Manager {
	return &Manager{
		inFlight: make(map[int64]Job),
		listener: listener,
	}
}

// SetListener (re)binds the Listener notified of job outcomes, letting a
// constructor-order cycle (Manager needs a Listener; the Listener, e.g.
// accessproc.Processor, needs a Manager) resolve by passing nil at
// construction and wiring the real Listener once both values exist.
func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

// SetProfiler wires an optional execution-time recorder; nil (the default)
// disables profile accumulation entirely.
func (m *Manager) SetProfiler(r Recorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiler = r
}

// SetHistory wires an optional durable execution-history sink; nil (the
// default) disables it entirely.
func (m *Manager) SetHistory(h HistorySink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = h
}

func (m *Manager) RegisterAdapter(a Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters = append(m.adapters, a)
}

func (m *Manager) adapterFor(resourceKind string) (Adapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.adapters {
		if a.CanHandle(resourceKind) {
			return a, true
		}
	}
	return nil, false
}

// Submit starts a job for taskId's chosen implementation on a resource of
// the given kind ("ssh", "amqp", "redisqueue", "websocket", "container").
func (m *Manager) Submit(ctx context.Context, resourceKind string, taskId int64, implementation, resourceId string, params map[string]string) (Job, error) {
	adapter, ok := m.adapterFor(resourceKind)
	if !ok {
		return Job{}, fmt.Errorf("jobmanager: no adapter handles resource kind %q", resourceKind)
	}

	m.mu.Lock()
	m.nextId++
	job := Job{
		JobId:          m.nextId,
		TaskId:         taskId,
		Implementation: implementation,
		ResourceId:     resourceId,
		Params:         params,
		SubmittedAt:    time.Now(),
	}
	m.inFlight[job.JobId] = job
	m.mu.Unlock()

	if err := adapter.RunJob(ctx, job); err != nil {
		m.mu.Lock()
		delete(m.inFlight, job.JobId)
		m.mu.Unlock()
		return Job{}, err
	}
	return job, nil
}

// Cancel requests cancellation of an in-flight job. A job id unknown to
// this Manager (already completed, or never tracked) is a no-op, matching
// the cancellation-idempotence property tasks observe.
func (m *Manager) Cancel(ctx context.Context, resourceKind string, jobId int64) error {
	m.mu.RLock()
	_, ok := m.inFlight[jobId]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	adapter, ok := m.adapterFor(resourceKind)
	if !ok {
		return fmt.Errorf("jobmanager: no adapter handles resource kind %q", resourceKind)
	}
	return adapter.CancelJob(ctx, jobId)
}

// Completed records a job's success and notifies the listener.
func (m *Manager) Completed(jobId int64) {
	m.finish(Outcome{JobId: jobId, Status: Completed})
}

// FailedWithException records a job that raised a COMPSsException: the
// task's on-failure policy decides whether this escalates to the Error
// Manager or produces empty results.
func (m *Manager) FailedWithException(jobId int64, exception error) {
	m.finish(Outcome{JobId: jobId, Status: Failed, Exception: exception})
}

// Failed records an infrastructure-level job failure (adapter error,
// resource unreachable).
func (m *Manager) Failed(jobId int64, err error) {
	m.finish(Outcome{JobId: jobId, Status: Failed, Err: err})
}

func (m *Manager) finish(o Outcome) {
	m.mu.Lock()
	job, ok := m.inFlight[o.JobId]
	if ok {
		o.TaskId = job.TaskId
	}
	delete(m.inFlight, o.JobId)
	listener, profiler, history := m.listener, m.profiler, m.history
	m.mu.Unlock()

	if ok {
		elapsed := time.Since(job.SubmittedAt)
		if profiler != nil {
			profiler.RecordImplementation(job.Implementation, elapsed.Milliseconds())
			profiler.RecordResource(job.ResourceId, elapsed.Milliseconds())
		}
		if history != nil {
			_ = history.Record(job.TaskId, job.Implementation, job.ResourceId, elapsed, string(o.Status))
		}
	}

	if listener != nil {
		listener.JobFinished(o)
	}
}

func (m *Manager) InFlight(jobId int64) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.inFlight[jobId]
	return j, ok
}
