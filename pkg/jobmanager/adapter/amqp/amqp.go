// Package amqp dispatches jobs to workers listening on a RabbitMQ queue,
// grounded on the teacher's queue.RabbitMQService connection/channel/
// publish lifecycle.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/bsc-wdc/compss-core/pkg/jobmanager"
)

// Config configures the connection to the broker and the queue jobs are
// published to.
type Config struct {
	URL       string // e.g. AMQP_URL
	QueueName string
}

type Adapter struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
}

// wireMessage is the payload published for a RunJob request.
type wireMessage struct {
	JobId          int64             `json:"jobId"`
	TaskId         int64             `json:"taskId"`
	Implementation string            `json:"implementation"`
	ResourceId     string            `json:"resourceId"`
	Params         map[string]string `json:"params"`
	Cancel         bool              `json:"cancel,omitempty"`
}

func New(cfg Config) (*Adapter, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp adapter: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp adapter: channel: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp adapter: queue declare: %w", err)
	}
	return &Adapter{conn: conn, channel: ch, cfg: cfg}, nil
}

func (a *Adapter) Name() string { return "amqp" }

func (a *Adapter) CanHandle(resourceKind string) bool { return resourceKind == "amqp" }

func (a *Adapter) publish(ctx context.Context, msg wireMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("amqp adapter: marshal: %w", err)
	}
	return a.channel.Publish("", a.cfg.QueueName, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (a *Adapter) RunJob(ctx context.Context, job jobmanager.Job) error {
	return a.publish(ctx, wireMessage{
		JobId:          job.JobId,
		TaskId:         job.TaskId,
		Implementation: job.Implementation,
		ResourceId:     job.ResourceId,
		Params:         job.Params,
	})
}

func (a *Adapter) CancelJob(ctx context.Context, jobId int64) error {
	return a.publish(ctx, wireMessage{JobId: jobId, Cancel: true})
}

// GetData and ExistsData are not meaningful over a fire-and-forget queue:
// workers push results back via their own completion message rather than
// answering synchronous probes, so both report "not supported here".
func (a *Adapter) GetData(ctx context.Context, resourceId, renaming string) ([]byte, error) {
	return nil, fmt.Errorf("amqp adapter: GetData not supported, results arrive via completion messages")
}

func (a *Adapter) ExistsData(ctx context.Context, resourceId, renaming string) (bool, error) {
	return false, fmt.Errorf("amqp adapter: ExistsData not supported, results arrive via completion messages")
}

func (a *Adapter) Close() error {
	if a.channel != nil {
		a.channel.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
