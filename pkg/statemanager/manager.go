// Package statemanager tracks the lifecycle of control-plane HTTP requests
// (internal/controlplane) for diagnostics, grounded on the teacher's
// statemanager.Manager bounded-history request-tracking idiom.
package statemanager

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

type Manager struct {
	mu          sync.RWMutex
	requests    map[string]*RequestState
	maxRequests int
	serviceName string
}

type Config struct {
	ServiceName string
	MaxRequests int // default 1000
}

func New(cfg Config) *Manager {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1000
	}
	return &Manager{
		requests:    make(map[string]*RequestState),
		maxRequests: cfg.MaxRequests,
		serviceName: cfg.ServiceName,
	}
}

func (m *Manager) StartRequest(id, route string, metadata map[string]interface{}) *RequestState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.requests) >= m.maxRequests {
		m.evictOldestLocked()
	}

	req := &RequestState{
		ID:          id,
		ServiceName: m.serviceName,
		Route:       route,
		Status:      StatusRunning,
		StartedAt:   time.Now(),
		Metadata:    metadata,
	}
	m.requests[id] = req
	return req
}

func (m *Manager) CompleteRequest(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return
	}
	now := time.Now()
	req.CompletedAt = &now
	req.Duration = now.Sub(req.StartedAt).String()
	if err != nil {
		req.Status = StatusFailed
		req.Error = err.Error()
	} else {
		req.Status = StatusCompleted
	}
}

func (m *Manager) GetRequest(id string) *RequestState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil
	}
	cp := *req
	return &cp
}

func (m *Manager) ListRequests() []*RequestState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*RequestState, 0, len(m.requests))
	for _, req := range m.requests {
		cp := *req
		out = append(out, &cp)
	}
	return out
}

func (m *Manager) Stats() *RequestStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &RequestStats{
		Total:    len(m.requests),
		ByStatus: make(map[Status]int),
		ByRoute:  make(map[string]int),
	}
	var total time.Duration
	var completed int
	for _, req := range m.requests {
		stats.ByStatus[req.Status]++
		stats.ByRoute[req.Route]++
		if req.CompletedAt != nil {
			total += req.CompletedAt.Sub(req.StartedAt)
			completed++
		}
	}
	if completed > 0 {
		stats.AvgDuration = (total / time.Duration(completed)).String()
	}
	return stats
}

// evictOldestLocked drops the oldest tracked request; caller holds m.mu.
func (m *Manager) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	for id, req := range m.requests {
		if oldestID == "" || req.StartedAt.Before(oldestAt) {
			oldestID, oldestAt = id, req.StartedAt
		}
	}
	if oldestID != "" {
		delete(m.requests, oldestID)
	}
}

// RegisterRoutes adds diagnostic endpoints for the request tracker itself,
// alongside the domain routes internal/controlplane registers.
func (m *Manager) RegisterRoutes(g *echo.Group) {
	g.GET("/requests", func(c echo.Context) error { return c.JSON(200, m.ListRequests()) })
	g.GET("/requests/:id", func(c echo.Context) error {
		req := m.GetRequest(c.Param("id"))
		if req == nil {
			return c.JSON(404, map[string]string{"error": "request not found"})
		}
		return c.JSON(200, req)
	})
	g.GET("/requests/stats", func(c echo.Context) error { return c.JSON(200, m.Stats()) })
}
