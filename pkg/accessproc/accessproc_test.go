package accessproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsc-wdc/compss-core/pkg/data"
	"github.com/bsc-wdc/compss-core/pkg/jobmanager"
	"github.com/bsc-wdc/compss-core/pkg/resource"
	"github.com/bsc-wdc/compss-core/pkg/runtime"
	"github.com/bsc-wdc/compss-core/pkg/scheduler"
)

// instantAdapter completes every job synchronously within RunJob, letting
// tests exercise the full TaskSubmit -> dispatch -> TaskEnd round trip
// without a real transport.
type instantAdapter struct {
	kind string
	mgr  *jobmanager.Manager
}

func (a *instantAdapter) Name() string           { return a.kind }
func (a *instantAdapter) CanHandle(k string) bool { return k == a.kind }
func (a *instantAdapter) RunJob(ctx context.Context, j jobmanager.Job) error {
	a.mgr.Completed(j.JobId)
	return nil
}
func (a *instantAdapter) CancelJob(ctx context.Context, jobId int64) error { return nil }
func (a *instantAdapter) GetData(ctx context.Context, resourceId, renaming string) ([]byte, error) {
	return nil, nil
}
func (a *instantAdapter) ExistsData(ctx context.Context, resourceId, renaming string) (bool, error) {
	return false, nil
}

func newFixture(t *testing.T) (*Processor, *runtime.Runtime) {
	t.Helper()
	rt := runtime.New(runtime.Config{})
	jobs := jobmanager.NewManager(nil)
	adapter := &instantAdapter{kind: "test", mgr: jobs}
	jobs.RegisterAdapter(adapter)

	ap := New(Config{Runtime: rt, Scheduler: scheduler.NewOrderStrict(), Jobs: jobs})
	jobs.SetListener(ap)

	ap.RegisterResource(resource.New(resource.Description{Id: "r1", Kind: "test", CPUs: 4, MemoryMB: 4096}))
	t.Cleanup(ap.Close)
	return ap, rt
}

func barrierWithTimeout(t *testing.T, wait func()) {
	t.Helper()
	done := make(chan struct{})
	go func() { wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("barrier did not return in time")
	}
}

func TestProcessor_TaskSubmit_RunsToCompletionAndProducesFile(t *testing.T) {
	ap, rt := newFixture(t)
	app := rt.RegisterApplication()

	reg := ap.Submit(RegisterDataAccess{Alias: "file:///tmp/a", Kind: data.FileData, Dir: data.W})
	require.NoError(t, reg.Err)
	require.NotNil(t, reg.Access)

	submit := ap.Submit(TaskSubmit{
		AppId:     app.AppId,
		CoreId:    "core.write",
		Params:    []*data.Parameter{{Access: reg.Access, Dir: data.W, Name: "f"}},
		Impl:      &data.Implementation{Name: "impl1", CoreId: "core.write"},
		OnFailure: data.Retry,
	})
	require.NoError(t, submit.Err)
	require.NotZero(t, submit.TaskId)

	barrierWithTimeout(t, app.Barrier)

	files := ap.Submit(GetResultFiles{AppId: app.AppId})
	assert.Len(t, files.Files, 1)
}

func TestProcessor_RegisterDataAccess_ReadOfUnknownAliasIsValueUnaware(t *testing.T) {
	ap, _ := newFixture(t)
	out := ap.Submit(RegisterDataAccess{Alias: "file:///tmp/never-written", Kind: data.FileData, Dir: data.R})
	assert.True(t, out.Unaware)
	assert.Nil(t, out.Access)
}

func TestProcessor_SecondTask_DependsOnFirstWriter(t *testing.T) {
	ap, rt := newFixture(t)
	app := rt.RegisterApplication()

	reg := ap.Submit(RegisterDataAccess{Alias: "file:///tmp/b", Kind: data.FileData, Dir: data.W})
	require.NoError(t, reg.Err)

	writer := ap.Submit(TaskSubmit{
		AppId:     app.AppId,
		CoreId:    "core.write",
		Params:    []*data.Parameter{{Access: reg.Access, Dir: data.W, Name: "f"}},
		Impl:      &data.Implementation{Name: "impl1", CoreId: "core.write"},
		OnFailure: data.Retry,
	})
	require.NoError(t, writer.Err)

	readReg := ap.Submit(RegisterDataAccess{Alias: "file:///tmp/b", Kind: data.FileData, Dir: data.R})
	require.NoError(t, readReg.Err)
	require.False(t, readReg.Unaware)

	reader := ap.Submit(TaskSubmit{
		AppId:     app.AppId,
		CoreId:    "core.read",
		Params:    []*data.Parameter{{Access: readReg.Access, Dir: data.R, Name: "f"}},
		Impl:      &data.Implementation{Name: "impl2", CoreId: "core.read"},
		OnFailure: data.Retry,
	})
	require.NoError(t, reader.Err)

	barrierWithTimeout(t, app.Barrier)
}

func TestProcessor_BlockedTask_RunsOnceCapacityIsReleased(t *testing.T) {
	rt := runtime.New(runtime.Config{})
	jobs := jobmanager.NewManager(nil)

	held := make(chan struct{})
	adapter := &holdingAdapter{kind: "test", mgr: jobs, release: held}
	jobs.RegisterAdapter(adapter)

	var sched scheduler.Scheduler = scheduler.NewOrderStrict()
	ap := New(Config{Runtime: rt, Scheduler: sched, Jobs: jobs})
	jobs.SetListener(ap)
	ap.RegisterResource(resource.New(resource.Description{Id: "solo", Kind: "test", CPUs: 1, MemoryMB: 1024}))
	t.Cleanup(ap.Close)

	app := rt.RegisterApplication()
	impl := &data.Implementation{Name: "impl1", CoreId: "core.busy", Requirements: data.Requirements{CPUs: 1, MemoryMB: 1024}}

	first := ap.Submit(TaskSubmit{AppId: app.AppId, CoreId: "core.busy", Impl: impl, OnFailure: data.Retry})
	require.NoError(t, first.Err)

	second := ap.Submit(TaskSubmit{AppId: app.AppId, CoreId: "core.busy", Impl: impl, OnFailure: data.Retry})
	require.NoError(t, second.Err)

	// The resource only has room for one concurrent task: the second task's
	// action must have been recorded BLOCKED by the Scheduler rather than
	// dispatched, since the first is still occupying the only slot.
	blocked, ok := sched.(interface{ Blocked() []scheduler.Action })
	require.True(t, ok)
	assert.Len(t, blocked.Blocked(), 1)
	assert.Equal(t, second.TaskId, blocked.Blocked()[0].ActionId)

	close(held)
	barrierWithTimeout(t, app.Barrier)
	assert.Empty(t, blocked.Blocked())
}

// holdingAdapter returns from RunJob immediately but only calls Completed
// once release is closed, in a separate goroutine: this lets a test observe
// a task sitting in StateExecuting (and the resource it occupies staying
// reserved) without blocking the Access Processor's own goroutine, which is
// the one that would otherwise have to deliver the completion back to it.
type holdingAdapter struct {
	kind    string
	mgr     *jobmanager.Manager
	release chan struct{}
}

func (a *holdingAdapter) Name() string           { return a.kind }
func (a *holdingAdapter) CanHandle(k string) bool { return k == a.kind }
func (a *holdingAdapter) RunJob(ctx context.Context, j jobmanager.Job) error {
	go func() {
		<-a.release
		a.mgr.Completed(j.JobId)
	}()
	return nil
}
func (a *holdingAdapter) CancelJob(ctx context.Context, jobId int64) error { return nil }
func (a *holdingAdapter) GetData(ctx context.Context, resourceId, renaming string) ([]byte, error) {
	return nil, nil
}
func (a *holdingAdapter) ExistsData(ctx context.Context, resourceId, renaming string) (bool, error) {
	return false, nil
}

func TestProcessor_DeleteData_RemovesDataInfo(t *testing.T) {
	ap, _ := newFixture(t)
	reg := ap.Submit(RegisterDataAccess{Alias: "file:///tmp/c", Kind: data.FileData, Dir: data.W})
	require.NoError(t, reg.Err)

	del := ap.Submit(DeleteData{DataId: reg.DataId})
	assert.NoError(t, del.Err)

	last := ap.Submit(DataGetLastVersion{Alias: "file:///tmp/c"})
	assert.Error(t, last.Err)
}

func TestProcessor_CloseStream_RejectsNonStreamData(t *testing.T) {
	ap, _ := newFixture(t)
	reg := ap.Submit(RegisterDataAccess{Alias: "file:///tmp/notastream", Kind: data.FileData, Dir: data.W})
	require.NoError(t, reg.Err)

	out := ap.Submit(CloseStream{DataId: reg.DataId})
	assert.Error(t, out.Err)
}

func TestProcessor_CloseStream_CompletesAStream(t *testing.T) {
	ap, _ := newFixture(t)
	reg := ap.Submit(RegisterDataAccess{Alias: "stream:///s1", Kind: data.StreamData, Dir: data.W})
	require.NoError(t, reg.Err)

	out := ap.Submit(CloseStream{DataId: reg.DataId})
	assert.NoError(t, out.Err)
}
