// Package resource models a COMPSs worker resource: its static description,
// its dynamic (currently available) profile, and the CloudManager that can
// elastically create/destroy resources through a pluggable CloudProvider
// (spec.md §4.6).
package resource

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
)

// Description is a resource's static capacity, never mutated after
// creation.
type Description struct {
	Id        string
	CPUs      int
	GPUs      int
	MemoryMB  int
	StorageMB int
	Software  []string
	Kind      string // "ssh", "amqp", "redisqueue", "websocket", "container"
}

// Dynamic is a resource's currently-available capacity, shrinking as tasks
// are placed and growing as they terminate.
type Dynamic struct {
	CPUs      int
	GPUs      int
	MemoryMB  int
	StorageMB int

	// connections is used only by HTTP-style resources where concurrent
	// request count, not CPU/memory, is the binding constraint.
	connections int
	maxConns    int
}

// Resource pairs a static Description with its live Dynamic profile.
type Resource struct {
	mu      sync.Mutex
	Desc    Description
	dynamic Dynamic
}

func New(desc Description) *Resource {
	return &Resource{
		Desc: desc,
		dynamic: Dynamic{
			CPUs:      desc.CPUs,
			GPUs:      desc.GPUs,
			MemoryMB:  desc.MemoryMB,
			StorageMB: desc.StorageMB,
		},
	}
}

// WithMaxConnections configures this resource as connection-bound (HTTP
// endpoints) rather than CPU/memory-bound.
func (r *Resource) WithMaxConnections(max int) *Resource {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dynamic.maxConns = max
	return r
}

// Requirements is the shape of a requested allocation; shared with
// pkg/data.Requirements so scheduler decisions use the exact numbers tasks
// declared.
type Requirements struct {
	CPUs      int
	GPUs      int
	MemoryMB  int
	StorageMB int
	Software  []string
}

func hasAllSoftware(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, s := range have {
		set[s] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// CanHost reports whether the resource's static description could ever
// satisfy req, independent of current load.
func (r *Resource) CanHost(req Requirements) bool {
	return r.Desc.CPUs >= req.CPUs &&
		r.Desc.GPUs >= req.GPUs &&
		r.Desc.MemoryMB >= req.MemoryMB &&
		r.Desc.StorageMB >= req.StorageMB &&
		hasAllSoftware(r.Desc.Software, req.Software)
}

// CanHostDynamic reports whether the resource has enough currently-free
// capacity for req right now.
func (r *Resource) CanHostDynamic(req Requirements) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dynamic.maxConns > 0 {
		return r.dynamic.connections < r.dynamic.maxConns
	}
	return r.dynamic.CPUs >= req.CPUs &&
		r.dynamic.GPUs >= req.GPUs &&
		r.dynamic.MemoryMB >= req.MemoryMB &&
		r.dynamic.StorageMB >= req.StorageMB
}

// ReduceDynamic books req against the free profile once a task is placed.
func (r *Resource) ReduceDynamic(req Requirements) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dynamic.maxConns > 0 {
		r.dynamic.connections++
		return
	}
	r.dynamic.CPUs -= req.CPUs
	r.dynamic.GPUs -= req.GPUs
	r.dynamic.MemoryMB -= req.MemoryMB
	r.dynamic.StorageMB -= req.StorageMB
}

// IncreaseDynamic returns req to the free profile once a task terminates.
func (r *Resource) IncreaseDynamic(req Requirements) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dynamic.maxConns > 0 {
		if r.dynamic.connections > 0 {
			r.dynamic.connections--
		}
		return
	}
	r.dynamic.CPUs += req.CPUs
	r.dynamic.GPUs += req.GPUs
	r.dynamic.MemoryMB += req.MemoryMB
	r.dynamic.StorageMB += req.StorageMB
}

func (r *Resource) DynamicSnapshot() Dynamic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dynamic
}

// Describe renders a human-readable one-liner for registration/diagnostic
// logging, e.g. "r1 (ssh): 8 CPUs, 0 GPUs, 16 GiB RAM, 100 GiB storage".
func (r *Resource) Describe() string {
	d := r.Desc
	return fmt.Sprintf("%s (%s): %d CPUs, %d GPUs, %s RAM, %s storage",
		d.Id, d.Kind, d.CPUs, d.GPUs,
		humanize.IBytes(uint64(d.MemoryMB)*1024*1024),
		humanize.IBytes(uint64(d.StorageMB)*1024*1024),
	)
}
