// Package container dispatches jobs as one-shot Docker containers,
// grounded on the teacher's common.ContainerRun create/start/wait/logs
// lifecycle.
package container

import (
	"context"
	"fmt"
	"io"
	"sync"

	containertypes "github.com/docker/docker/api/types/container"
	networktypes "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/bsc-wdc/compss-core/pkg/jobmanager"
)

type Config struct {
	Host          string // Docker daemon socket; empty uses client.FromEnv
	ImageFor      func(implementation string) string
	AutoRemove    bool
}

type Adapter struct {
	cli Client
	cfg Config

	mu        sync.Mutex
	running   map[int64]string // jobId -> containerId
}

// Client is the subset of *docker/client.Client the adapter needs,
// extracted so tests can substitute a fake.
type Client interface {
	ContainerCreate(ctx context.Context, config *containertypes.Config, hostConfig *containertypes.HostConfig, networkingConfig *networktypes.NetworkingConfig, platform *ocispec.Platform, containerName string) (containertypes.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options containertypes.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition containertypes.WaitCondition) (<-chan containertypes.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options containertypes.LogsOptions) (io.ReadCloser, error)
	ContainerKill(ctx context.Context, containerID, signal string) error
}

func New(cfg Config) (*Adapter, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("container adapter: new docker client: %w", err)
	}
	return NewWithClient(cli, cfg), nil
}

func NewWithClient(cli Client, cfg Config) *Adapter {
	return &Adapter{cli: cli, cfg: cfg, running: make(map[int64]string)}
}

func (a *Adapter) Name() string { return "container" }

func (a *Adapter) CanHandle(resourceKind string) bool { return resourceKind == "container" }

func (a *Adapter) RunJob(ctx context.Context, job jobmanager.Job) error {
	image := job.Implementation
	if a.cfg.ImageFor != nil {
		image = a.cfg.ImageFor(job.Implementation)
	}

	env := make([]string, 0, len(job.Params))
	for k, v := range job.Params {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	resp, err := a.cli.ContainerCreate(ctx,
		&containertypes.Config{Image: image, Env: env, AttachStdout: true, AttachStderr: true},
		&containertypes.HostConfig{AutoRemove: a.cfg.AutoRemove},
		&networktypes.NetworkingConfig{},
		&ocispec.Platform{},
		fmt.Sprintf("compss-job-%d", job.JobId),
	)
	if err != nil {
		return fmt.Errorf("container adapter: create: %w", err)
	}

	a.mu.Lock()
	a.running[job.JobId] = resp.ID
	a.mu.Unlock()

	if err := a.cli.ContainerStart(ctx, resp.ID, containertypes.StartOptions{}); err != nil {
		return fmt.Errorf("container adapter: start: %w", err)
	}

	statusCh, errCh := a.cli.ContainerWait(ctx, resp.ID, containertypes.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("container adapter: wait: %w", err)
		}
	case status := <-statusCh:
		if status.StatusCode != 0 {
			return fmt.Errorf("container adapter: job %d exited with status %d", job.JobId, status.StatusCode)
		}
	}
	return nil
}

func (a *Adapter) CancelJob(ctx context.Context, jobId int64) error {
	a.mu.Lock()
	id, ok := a.running[jobId]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return a.cli.ContainerKill(ctx, id, "SIGTERM")
}

func (a *Adapter) GetData(ctx context.Context, resourceId, renaming string) ([]byte, error) {
	a.mu.Lock()
	var id string
	for _, v := range a.running {
		id = v
	}
	a.mu.Unlock()
	if id == "" {
		return nil, fmt.Errorf("container adapter: no running container to read %s from", renaming)
	}
	out, err := a.cli.ContainerLogs(ctx, id, containertypes.LogsOptions{ShowStdout: true})
	if err != nil {
		return nil, fmt.Errorf("container adapter: logs: %w", err)
	}
	defer out.Close()
	return io.ReadAll(out)
}

func (a *Adapter) ExistsData(ctx context.Context, resourceId, renaming string) (bool, error) {
	_, err := a.GetData(ctx, resourceId, renaming)
	return err == nil, nil
}
