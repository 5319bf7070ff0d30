package jobmanager

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	kind    string
	mu      sync.Mutex
	ran     []Job
	cancels []int64
}

func (f *fakeAdapter) Name() string                    { return f.kind }
func (f *fakeAdapter) CanHandle(kind string) bool       { return kind == f.kind }
func (f *fakeAdapter) RunJob(ctx context.Context, j Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, j)
	return nil
}
func (f *fakeAdapter) CancelJob(ctx context.Context, jobId int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, jobId)
	return nil
}
func (f *fakeAdapter) GetData(ctx context.Context, resourceId, renaming string) ([]byte, error) {
	return []byte("x"), nil
}
func (f *fakeAdapter) ExistsData(ctx context.Context, resourceId, renaming string) (bool, error) {
	return true, nil
}

type fakeListener struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (l *fakeListener) JobFinished(o Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, o)
}

func TestManager_Submit_DispatchesToMatchingAdapter(t *testing.T) {
	listener := &fakeListener{}
	m := NewManager(listener)
	adapter := &fakeAdapter{kind: "ssh"}
	m.RegisterAdapter(adapter)

	job, err := m.Submit(context.Background(), "ssh", 1, "core.sum", "res1", nil)
	require.NoError(t, err)
	assert.Len(t, adapter.ran, 1)

	_, ok := m.InFlight(job.JobId)
	assert.True(t, ok)
}

func TestManager_Submit_NoAdapterForKind(t *testing.T) {
	m := NewManager(&fakeListener{})
	_, err := m.Submit(context.Background(), "ssh", 1, "core.sum", "res1", nil)
	assert.Error(t, err)
}

func TestManager_Completed_NotifiesListenerAndClearsInFlight(t *testing.T) {
	listener := &fakeListener{}
	m := NewManager(listener)
	adapter := &fakeAdapter{kind: "ssh"}
	m.RegisterAdapter(adapter)

	job, err := m.Submit(context.Background(), "ssh", 1, "core.sum", "res1", nil)
	require.NoError(t, err)

	m.Completed(job.JobId)
	require.Len(t, listener.outcomes, 1)
	assert.Equal(t, Completed, listener.outcomes[0].Status)

	_, ok := m.InFlight(job.JobId)
	assert.False(t, ok)
}

func TestManager_Cancel_UnknownJobIsNoOp(t *testing.T) {
	m := NewManager(&fakeListener{})
	err := m.Cancel(context.Background(), "ssh", 999)
	assert.NoError(t, err)
}

type fakeRecorder struct {
	mu    sync.Mutex
	impls map[string]int
	res   map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{impls: map[string]int{}, res: map[string]int{}}
}
func (f *fakeRecorder) RecordImplementation(name string, ms int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.impls[name]++
}
func (f *fakeRecorder) RecordResource(name string, ms int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.res[name]++
}

func TestManager_Completed_NotifiesProfiler(t *testing.T) {
	m := NewManager(&fakeListener{})
	adapter := &fakeAdapter{kind: "ssh"}
	m.RegisterAdapter(adapter)
	rec := newFakeRecorder()
	m.SetProfiler(rec)

	job, err := m.Submit(context.Background(), "ssh", 1, "core.sum", "res1", nil)
	require.NoError(t, err)
	m.Completed(job.JobId)

	assert.Equal(t, 1, rec.impls["core.sum"])
	assert.Equal(t, 1, rec.res["res1"])
}
