//go:build integration
// +build integration

package couch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bsc-wdc/compss-core/pkg/checkpoint"
)

func setupCouchDBContainer(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "couchdb:3.3",
		ExposedPorts: []string{"5984/tcp"},
		Env: map[string]string{
			"COUCHDB_USER":     "admin",
			"COUCHDB_PASSWORD": "testpass",
		},
		WaitingFor: wait.ForHTTP("/_up").WithPort("5984/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start couchdb container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5984")
	require.NoError(t, err)

	url := fmt.Sprintf("http://admin:testpass@%s:%s/", host, port.Port())
	return url, func() { _ = container.Terminate(ctx) }
}

func TestManager_NewTaskThenEndTask_RoundTrips(t *testing.T) {
	url, cleanup := setupCouchDBContainer(t)
	defer cleanup()

	m, err := Open(context.Background(), url, "compss_checkpoint")
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.NewTask(checkpoint.TaskRecord{TaskId: 1, CoreId: "sum", AppId: 7, State: "RUNNING"}))
	require.NoError(t, m.EndTask(1, []string{"d1v2"}))

	doc, err := m.getTask(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "FINISHED", doc.State)
	require.Equal(t, []string{"d1v2"}, doc.Renamings)
}

func TestManager_MainAccessThenDeletedData_RoundTrips(t *testing.T) {
	url, cleanup := setupCouchDBContainer(t)
	defer cleanup()

	m, err := Open(context.Background(), url, "compss_checkpoint")
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.MainAccess("d1v1"))
	doc, err := m.getMainAccess(context.Background())
	require.NoError(t, err)
	require.True(t, doc.Renamings["d1v1"])

	require.NoError(t, m.DeletedData("d1v1"))
	doc, err = m.getMainAccess(context.Background())
	require.NoError(t, err)
	require.False(t, doc.Renamings["d1v1"])
}
