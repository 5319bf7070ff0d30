package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsc-wdc/compss-core/pkg/accessproc"
	"github.com/bsc-wdc/compss-core/pkg/application"
	"github.com/bsc-wdc/compss-core/pkg/jobmanager"
	"github.com/bsc-wdc/compss-core/pkg/resource"
	"github.com/bsc-wdc/compss-core/pkg/runtime"
	"github.com/bsc-wdc/compss-core/pkg/scheduler"
)

func idParam(id application.Id) string {
	return strconv.FormatInt(int64(id), 10)
}

// instantAdapter completes every job synchronously, mirroring
// pkg/accessproc's own test fixture so the control plane can be exercised
// against a real, if trivial, Access Processor.
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

func newFixture(t *testing.T) *Server {
	t.Helper()
	rt := runtime.New(runtime.Config{})
	jobs := jobmanager.NewManager(nil)
	adapter := &instantAdapter{kind: "test", mgr: jobs}
	jobs.RegisterAdapter(adapter)

	ap := accessproc.New(accessproc.Config{Runtime: rt, Scheduler: scheduler.NewOrderStrict(), Jobs: jobs})
	jobs.SetListener(ap)
	ap.RegisterResource(resource.New(resource.Description{Id: "r1", Kind: "test", CPUs: 4, MemoryMB: 4096}))
	t.Cleanup(ap.Close)

	return New(Config{Runtime: rt, Processor: ap})
}

func TestServer_ListApplications_ReflectsRegisteredApplications(t *testing.T) {
	s := newFixture(t)
	app := s.cfg.Runtime.RegisterApplication()

	req := httptest.NewRequest(http.MethodGet, "/api/applications", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []applicationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, app.AppId, got[0].AppId)
}

func TestServer_ApplicationTasks_UnknownIdIsNotFound(t *testing.T) {
	s := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/applications/999/tasks", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ApplicationTasks_MalformedIdIsBadRequest(t *testing.T) {
	s := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/applications/not-a-number/tasks", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_TriggerBarrier_SatisfiedWhenNoPendingTasks(t *testing.T) {
	s := newFixture(t)
	app := s.cfg.Runtime.RegisterApplication()

	req := httptest.NewRequest(http.MethodPost, "/api/applications/"+idParam(app.AppId)+"/barrier", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["satisfied"])
}

func TestServer_BarrierStatus_ReportsSatisfiedWithNoPendingTasks(t *testing.T) {
	s := newFixture(t)
	app := s.cfg.Runtime.RegisterApplication()

	req := httptest.NewRequest(http.MethodGet, "/api/applications/"+idParam(app.AppId)+"/barrier", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["satisfied"])
}
