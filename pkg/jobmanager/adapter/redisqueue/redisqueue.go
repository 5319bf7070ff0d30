// Package redisqueue dispatches jobs through a Redis list acting as a
// queue, and uses a separate key namespace to answer GetData/ExistsData
// probes against data workers push back into Redis directly. Grounded on
// the teacher's queue/redis.Queue connection and key-prefix conventions.
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bsc-wdc/compss-core/pkg/jobmanager"
)

type Config struct {
	RedisURL  string
	KeyPrefix string // defaults to "compss:"
}

type Adapter struct {
	client *redis.Client
	prefix string
}

func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "compss:"
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redisqueue adapter: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisqueue adapter: connect: %w", err)
	}
	return &Adapter{client: client, prefix: cfg.KeyPrefix}, nil
}

func (a *Adapter) Name() string { return "redisqueue" }

func (a *Adapter) CanHandle(resourceKind string) bool { return resourceKind == "redisqueue" }

type wireMessage struct {
	JobId          int64             `json:"jobId"`
	TaskId         int64             `json:"taskId"`
	Implementation string            `json:"implementation"`
	ResourceId     string            `json:"resourceId"`
	Params         map[string]string `json:"params"`
}

func (a *Adapter) queueKey(resourceId string) string {
	return a.prefix + "jobs:" + resourceId
}

func (a *Adapter) cancelKey(jobId int64) string {
	return fmt.Sprintf("%scancel:%d", a.prefix, jobId)
}

func (a *Adapter) dataKey(resourceId, renaming string) string {
	return fmt.Sprintf("%sdata:%s:%s", a.prefix, resourceId, renaming)
}

func (a *Adapter) RunJob(ctx context.Context, job jobmanager.Job) error {
	body, err := json.Marshal(wireMessage{
		JobId:          job.JobId,
		TaskId:         job.TaskId,
		Implementation: job.Implementation,
		ResourceId:     job.ResourceId,
		Params:         job.Params,
	})
	if err != nil {
		return fmt.Errorf("redisqueue adapter: marshal: %w", err)
	}
	return a.client.RPush(ctx, a.queueKey(job.ResourceId), body).Err()
}

// CancelJob sets a cancellation flag (with no expiry) the worker polls for
// between task boundaries.
func (a *Adapter) CancelJob(ctx context.Context, jobId int64) error {
	return a.client.Set(ctx, a.cancelKey(jobId), "1", 0).Err()
}

func (a *Adapter) GetData(ctx context.Context, resourceId, renaming string) ([]byte, error) {
	b, err := a.client.Get(ctx, a.dataKey(resourceId, renaming)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("redisqueue adapter: no such data %s on %s", renaming, resourceId)
	}
	return b, err
}

func (a *Adapter) ExistsData(ctx context.Context, resourceId, renaming string) (bool, error) {
	n, err := a.client.Exists(ctx, a.dataKey(resourceId, renaming)).Result()
	return n > 0, err
}

func (a *Adapter) Close() error {
	return a.client.Close()
}
