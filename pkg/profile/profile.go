// Package profile persists per-resource/per-implementation/per-cloud-provider
// execution metrics across runs (spec.md §4.9). The on-disk format is a
// single JSON object with keys "resources", "implementations", "cloud";
// unknown top-level keys and unknown per-entry fields are preserved
// unchanged, so a newer or older binary sharing the same file never loses
// data it doesn't understand.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Metric is one name's accumulated execution-time aggregate.
type Metric struct {
	Count   int64 `json:"count"`
	TotalMs int64 `json:"totalMs"`
	MinMs   int64 `json:"minMs"`
	MaxMs   int64 `json:"maxMs"`

	extra map[string]json.RawMessage
}

func (m *Metric) record(ms int64) {
	if m.Count == 0 || ms < m.MinMs {
		m.MinMs = ms
	}
	if ms > m.MaxMs {
		m.MaxMs = ms
	}
	m.Count++
	m.TotalMs += ms
}

// Mean is the running average duration in milliseconds.
func (m Metric) Mean() float64 {
	if m.Count == 0 {
		return 0
	}
	return float64(m.TotalMs) / float64(m.Count)
}

func (m Metric) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.extra)+4)
	for k, v := range m.extra {
		out[k] = v
	}
	for key, val := range map[string]int64{"count": m.Count, "totalMs": m.TotalMs, "minMs": m.MinMs, "maxMs": m.MaxMs} {
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		out[key] = b
	}
	return json.Marshal(out)
}

func (m *Metric) UnmarshalJSON(b []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	fields := []struct {
		key string
		dst *int64
	}{{"count", &m.Count}, {"totalMs", &m.TotalMs}, {"minMs", &m.MinMs}, {"maxMs", &m.MaxMs}}
	for _, f := range fields {
		if v, ok := raw[f.key]; ok {
			if err := json.Unmarshal(v, f.dst); err != nil {
				return err
			}
			delete(raw, f.key)
		}
	}
	m.extra = raw
	return nil
}

// Profile is the in-memory form of the persisted profile document.
type Profile struct {
	mu sync.Mutex

	Resources       map[string]*Metric
	Implementations map[string]*Metric
	Cloud           map[string]*Metric

	extra map[string]json.RawMessage
}

func New() *Profile {
	return &Profile{
		Resources:       make(map[string]*Metric),
		Implementations: make(map[string]*Metric),
		Cloud:           make(map[string]*Metric),
	}
}

// Load reads path and parses it as a Profile. A missing file is not an
// error: INPUT_PROFILE pointing at a file that hasn't been written yet
// simply starts from an empty Profile.
func Load(path string) (*Profile, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	p := New()
	if err := json.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("profile: parse %s: %w", path, err)
	}
	return p, nil
}

// Dump writes the profile to path, replacing it atomically.
func (p *Profile) Dump(path string) error {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("profile: marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("profile: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("profile: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

func (p *Profile) MarshalJSON() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]json.RawMessage, len(p.extra)+3)
	for k, v := range p.extra {
		out[k] = v
	}
	buckets := map[string]map[string]*Metric{
		"resources":       p.Resources,
		"implementations": p.Implementations,
		"cloud":           p.Cloud,
	}
	for key, bucket := range buckets {
		b, err := json.Marshal(bucket)
		if err != nil {
			return nil, err
		}
		out[key] = b
	}
	return json.Marshal(out)
}

func (p *Profile) UnmarshalJSON(b []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Resources = make(map[string]*Metric)
	p.Implementations = make(map[string]*Metric)
	p.Cloud = make(map[string]*Metric)
	buckets := map[string]*map[string]*Metric{
		"resources":       &p.Resources,
		"implementations": &p.Implementations,
		"cloud":           &p.Cloud,
	}
	for key, dst := range buckets {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				return err
			}
			delete(raw, key)
		}
	}
	p.extra = raw
	return nil
}

func (p *Profile) RecordResource(name string, ms int64)       { p.recordInto(p.Resources, name, ms) }
func (p *Profile) RecordImplementation(name string, ms int64) { p.recordInto(p.Implementations, name, ms) }
func (p *Profile) RecordCloud(name string, ms int64)          { p.recordInto(p.Cloud, name, ms) }

func (p *Profile) recordInto(bucket map[string]*Metric, name string, ms int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := bucket[name]
	if !ok {
		m = &Metric{}
		bucket[name] = m
	}
	m.record(ms)
}

// Resource returns a snapshot of name's resource metric, if any.
func (p *Profile) Resource(name string) (Metric, bool) { return p.snapshot(p.Resources, name) }

// Implementation returns a snapshot of name's implementation metric, if any.
func (p *Profile) Implementation(name string) (Metric, bool) {
	return p.snapshot(p.Implementations, name)
}

// CloudMetric returns a snapshot of name's cloud-provider metric, if any.
func (p *Profile) CloudMetric(name string) (Metric, bool) { return p.snapshot(p.Cloud, name) }

func (p *Profile) snapshot(bucket map[string]*Metric, name string) (Metric, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := bucket[name]
	if !ok {
		return Metric{}, false
	}
	return *m, true
}
