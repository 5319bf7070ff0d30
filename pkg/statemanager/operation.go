package statemanager

import "time"

// RequestState is a tracked control-plane HTTP request (spec.md's
// authenticated control plane), grounded on the teacher's
// statemanager.OperationState.
type RequestState struct {
	ID          string                 `json:"id"`
	ServiceName string                 `json:"service_name"`
	Route       string                 `json:"route"` // e.g. "list-applications", "barrier"
	Status      Status                 `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Duration    string                 `json:"duration,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Status is the lifecycle state of a tracked request.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RequestStats is aggregated, cheap-to-compute statistics over the
// currently retained request history.
type RequestStats struct {
	Total       int            `json:"total"`
	ByStatus    map[Status]int `json:"by_status"`
	ByRoute     map[string]int `json:"by_route"`
	AvgDuration string         `json:"average_duration,omitempty"`
}
