// Package errormanager classifies runtime-level failures into WARN (logged,
// execution continues) and ERROR (fatal, the runtime must shut down),
// keeping a capacity-bounded history of both for post-mortem inspection
// (spec.md §4.8).
package errormanager

import (
	"sync"
	"time"

	"github.com/bsc-wdc/compss-core/internal/obslog"
)

type Severity string

const (
	Warn  Severity = "WARN"
	Error Severity = "ERROR"
)

// Record is one reported incident.
type Record struct {
	Severity  Severity
	Message   string
	Component string
	At        time.Time
}

// Manager accumulates incidents and, on the first ERROR, notifies every
// registered shutdown hook exactly once.
type Manager struct {
	mu         sync.Mutex
	log        *obslog.Logger
	maxHistory int
	history    []Record
	hooks      []func(Record)
	fatal      bool
}

func New(log *obslog.Logger, maxHistory int) *Manager {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &Manager{log: log, maxHistory: maxHistory}
}

// OnFatal registers a hook invoked the first time an ERROR is reported.
// Hooks run synchronously and in registration order, under no lock held by
// the caller of ReportError.
func (m *Manager) OnFatal(hook func(Record)) {
	m.mu.Lock()
	m.hooks = append(m.hooks, hook)
	m.mu.Unlock()
}

func (m *Manager) record(r Record) (hooksToRun []func(Record)) {
	m.mu.Lock()
	if len(m.history) >= m.maxHistory {
		m.history = m.history[1:]
	}
	m.history = append(m.history, r)
	if r.Severity == Error && !m.fatal {
		m.fatal = true
		hooksToRun = append(hooksToRun, m.hooks...)
	}
	m.mu.Unlock()
	return hooksToRun
}

// ReportWarn logs a recoverable incident; the runtime continues.
func (m *Manager) ReportWarn(component, message string) {
	r := Record{Severity: Warn, Message: message, Component: component, At: time.Now()}
	m.record(r)
	if m.log != nil {
		m.log.WithField("component", component).Warn(message)
	}
}

// ReportError logs a fatal incident and fires registered shutdown hooks the
// first time it is called; subsequent ERRORs are recorded but do not
// re-trigger shutdown.
func (m *Manager) ReportError(component, message string) {
	r := Record{Severity: Error, Message: message, Component: component, At: time.Now()}
	hooks := m.record(r)
	if m.log != nil {
		m.log.WithField("component", component).Error(message)
	}
	for _, h := range hooks {
		h(r)
	}
}

// Fatal reports whether an ERROR has ever been recorded.
func (m *Manager) Fatal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fatal
}

// History returns a copy of the retained incident log, oldest first.
func (m *Manager) History() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.history))
	copy(out, m.history)
	return out
}
