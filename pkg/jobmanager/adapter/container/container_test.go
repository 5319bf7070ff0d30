package container

import (
	"context"
	"io"
	"strings"
	"testing"

	containertypes "github.com/docker/docker/api/types/container"
	networktypes "github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsc-wdc/compss-core/pkg/jobmanager"
)

type fakeDockerClient struct {
	created  containertypes.Config
	started  string
	killed   string
	statusCh chan containertypes.WaitResponse
	errCh    chan error
}

func (f *fakeDockerClient) ContainerCreate(ctx context.Context, config *containertypes.Config, hostConfig *containertypes.HostConfig, networkingConfig *networktypes.NetworkingConfig, platform *ocispec.Platform, containerName string) (containertypes.CreateResponse, error) {
	f.created = *config
	return containertypes.CreateResponse{ID: "c1"}, nil
}

func (f *fakeDockerClient) ContainerStart(ctx context.Context, containerID string, options containertypes.StartOptions) error {
	f.started = containerID
	return nil
}

func (f *fakeDockerClient) ContainerWait(ctx context.Context, containerID string, condition containertypes.WaitCondition) (<-chan containertypes.WaitResponse, <-chan error) {
	go func() { f.statusCh <- containertypes.WaitResponse{StatusCode: 0} }()
	return f.statusCh, f.errCh
}

func (f *fakeDockerClient) ContainerLogs(ctx context.Context, containerID string, options containertypes.LogsOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("job output")), nil
}

func (f *fakeDockerClient) ContainerKill(ctx context.Context, containerID, signal string) error {
	f.killed = containerID
	return nil
}

func newFake() *fakeDockerClient {
	return &fakeDockerClient{
		statusCh: make(chan containertypes.WaitResponse, 1),
		errCh:    make(chan error, 1),
	}
}

func TestAdapter_RunJob_CreatesStartsAndWaits(t *testing.T) {
	fake := newFake()
	a := NewWithClient(fake, Config{})

	err := a.RunJob(context.Background(), jobmanager.Job{JobId: 1, Implementation: "myimage:latest"})
	require.NoError(t, err)
	assert.Equal(t, "myimage:latest", fake.created.Image)
	assert.Equal(t, "c1", fake.started)
}

func TestAdapter_CancelJob_KillsRunningContainer(t *testing.T) {
	fake := newFake()
	a := NewWithClient(fake, Config{})
	require.NoError(t, a.RunJob(context.Background(), jobmanager.Job{JobId: 1, Implementation: "myimage"}))

	require.NoError(t, a.CancelJob(context.Background(), 1))
	assert.Equal(t, "c1", fake.killed)
}

func TestAdapter_GetData_ReadsContainerLogs(t *testing.T) {
	fake := newFake()
	a := NewWithClient(fake, Config{})
	require.NoError(t, a.RunJob(context.Background(), jobmanager.Job{JobId: 1, Implementation: "myimage"}))

	out, err := a.GetData(context.Background(), "res1", "result.txt")
	require.NoError(t, err)
	assert.Equal(t, "job output", string(out))
}
