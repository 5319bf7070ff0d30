package runtime

import (
	"sync"

	"github.com/bsc-wdc/compss-core/pkg/data"
)

// WakerSet implements the "stall/resume" protocol for main-code blocking
// accesses (spec.md §5): a goroutine calling a blocking read/write on a
// DataInstanceId that is not yet ready registers a channel here and blocks
// on it; only the Access Processor goroutine ever fires one, once the
// instance becomes available.
type WakerSet struct {
	mu      sync.Mutex
	waiters map[data.InstanceId][]chan struct{}
}

func newWakerSet() *WakerSet {
	return &WakerSet{waiters: make(map[data.InstanceId][]chan struct{})}
}

// Register returns a channel that will be closed by Wake(instance). The
// caller must hold no lock that Wake's caller (the AP goroutine) would need.
func (w *WakerSet) Register(instance data.InstanceId) <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan struct{})
	w.waiters[instance] = append(w.waiters[instance], ch)
	return ch
}

// Wake closes every channel registered for instance and clears them. Must
// only be called from the single Access Processor goroutine, which is the
// only writer of data readiness.
func (w *WakerSet) Wake(instance data.InstanceId) {
	w.mu.Lock()
	chans := w.waiters[instance]
	delete(w.waiters, instance)
	w.mu.Unlock()
	for _, ch := range chans {
		close(ch)
	}
}

// PendingCount reports how many waiters are registered for instance, for
// diagnostics and tests.
func (w *WakerSet) PendingCount(instance data.InstanceId) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiters[instance])
}
