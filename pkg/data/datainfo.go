package data

import (
	"fmt"
	"sync"
)

// Direction is the access direction requested against a Data.
type Direction int

const (
	R Direction = iota
	W
	RW
	C  // concurrent read
	CV // commutative write
)

func (d Direction) String() string {
	switch d {
	case R:
		return "R"
	case W:
		return "W"
	case RW:
		return "RW"
	case C:
		return "C"
	case CV:
		return "CV"
	default:
		return "?"
	}
}

// DataInfo is the runtime's record of one logical value's identity and
// versions. One instance exists per live Data; kind-specific behavior is
// dispatched on Kind rather than through a subclass hierarchy (see kind.go).
type DataInfo struct {
	mu sync.Mutex

	DataId           int64
	Kind             Kind
	Payload          Payload
	currentVersionId int64
	versions         map[int64]*DataVersion
	cancelled        map[int64]bool
	deletionBlocks   int
	pendingDeletions []int64
	deleted          bool

	// lastWriter is the id of the task (or CommutativeGroupTask) currently
	// regarded as the sole writer of the current version, 0 if none yet.
	lastWriter int64
	// concurrentReaders accumulates task ids granted a C access since the
	// last writer, cleared when a new writer/version is established.
	concurrentReaders []int64
	// streamWriters tracks active producer task ids for StreamData; readers
	// attach a dependency edge to every entry instead of consuming a version.
	streamWriters []int64
}

// New creates a DataInfo at version 1 with no pending accesses.
func New(dataId int64, kind Kind, payload Payload) *DataInfo {
	di := &DataInfo{
		DataId:           dataId,
		Kind:             kind,
		Payload:          payload,
		currentVersionId: 1,
		versions:         make(map[int64]*DataVersion),
		cancelled:        make(map[int64]bool),
	}
	di.versions[1] = &DataVersion{DataId: dataId, VersionId: 1}
	return di
}

// CurrentVersionId returns the current version id under the DataInfo lock.
func (di *DataInfo) CurrentVersionId() int64 {
	di.mu.Lock()
	defer di.mu.Unlock()
	return di.currentVersionId
}

// LastWriter returns the task id of the current last writer, 0 if none.
func (di *DataInfo) LastWriter() int64 {
	di.mu.Lock()
	defer di.mu.Unlock()
	return di.lastWriter
}

// ConcurrentReaders returns a copy of the accumulated concurrent-reader
// task ids since the last writer.
func (di *DataInfo) ConcurrentReaders() []int64 {
	di.mu.Lock()
	defer di.mu.Unlock()
	out := make([]int64, len(di.concurrentReaders))
	copy(out, di.concurrentReaders)
	return out
}

// StreamWriters returns a copy of the currently active stream producer ids.
func (di *DataInfo) StreamWriters() []int64 {
	di.mu.Lock()
	defer di.mu.Unlock()
	out := make([]int64, len(di.streamWriters))
	copy(out, di.streamWriters)
	return out
}

// RecordWriter sets taskId as the sole last writer of the current version
// and clears the concurrent-reader accumulator (any mode but C/CV closes the
// concurrent-reader window; CommutativeGroupTask merging is handled by the
// analyser, which calls this once per closed group).
func (di *DataInfo) RecordWriter(taskId int64) {
	di.mu.Lock()
	defer di.mu.Unlock()
	di.lastWriter = taskId
	di.concurrentReaders = nil
}

// RecordConcurrentReader appends taskId to the concurrent-reader set without
// disturbing lastWriter.
func (di *DataInfo) RecordConcurrentReader(taskId int64) {
	di.mu.Lock()
	defer di.mu.Unlock()
	di.concurrentReaders = append(di.concurrentReaders, taskId)
}

// RecordStreamWriter adds taskId as an active stream producer.
func (di *DataInfo) RecordStreamWriter(taskId int64) {
	di.mu.Lock()
	defer di.mu.Unlock()
	di.streamWriters = append(di.streamWriters, taskId)
}

// CompleteStream marks the stream as finished; no further writer edges
// attach to it after this point.
func (di *DataInfo) CompleteStream() {
	di.mu.Lock()
	defer di.mu.Unlock()
	di.Payload.StreamCompleted = true
	di.streamWriters = nil
}

// WillAccess implements the DIP primitive of the same name (§4.3): it
// records a new pending access against the current (or a newly advanced)
// version and returns the AccessId the caller should hold.
func (di *DataInfo) WillAccess(dir Direction) (*AccessId, error) {
	di.mu.Lock()
	defer di.mu.Unlock()

	if di.deleted {
		return nil, fmt.Errorf("datainfo %d: already deleted", di.DataId)
	}

	switch dir {
	case R, C:
		v := di.versions[di.currentVersionId]
		if v == nil {
			return nil, fmt.Errorf("datainfo %d: no current version", di.DataId)
		}
		v.PendingReads++
		v.BeenUsed = true
		return &AccessId{DataId: di.DataId, Direction: dir, ReadVersion: v.VersionId}, nil

	case W:
		nv := di.advanceVersionLocked()
		nv.PendingWrite = true
		return &AccessId{DataId: di.DataId, Direction: dir, WriteVersion: nv.VersionId}, nil

	case RW, CV:
		readVid := di.currentVersionId
		if rv := di.versions[readVid]; rv != nil {
			rv.PendingReads++
			rv.BeenUsed = true
		}
		nv := di.advanceVersionLocked()
		nv.PendingWrite = true
		return &AccessId{DataId: di.DataId, Direction: dir, ReadVersion: readVid, WriteVersion: nv.VersionId}, nil
	}
	return nil, fmt.Errorf("datainfo %d: unknown direction %v", di.DataId, dir)
}

// advanceVersionLocked advances currentVersionId (skipping cancelled
// predecessors is unnecessary on advance — cancellation skipping applies on
// rollback, see CancelledAccess) and installs a fresh DataVersion. Caller must
// hold di.mu.
func (di *DataInfo) advanceVersionLocked() *DataVersion {
	prev := di.currentVersionId
	next := prev + 1
	di.currentVersionId = next
	nv := &DataVersion{DataId: di.DataId, VersionId: next, Predecessor: prev}
	di.versions[next] = nv
	return nv
}

// CommittedAccess implements DIP's committedAccess: finalizes a read or
// write, releasing data whose pending counts have drained.
func (di *DataInfo) CommittedAccess(id *AccessId) error {
	di.mu.Lock()
	defer di.mu.Unlock()

	if id.ReadVersion != 0 {
		if v := di.versions[id.ReadVersion]; v != nil && v.PendingReads > 0 {
			v.PendingReads--
			di.maybeReleaseLocked(v)
		}
	}
	if id.WriteVersion != 0 {
		if v := di.versions[id.WriteVersion]; v != nil {
			v.PendingWrite = false
			// Promoting a write may free the immediate predecessor once it
			// has no pending reads left.
			if pv := di.versions[v.Predecessor]; pv != nil {
				di.maybeReleaseLocked(pv)
			}
		}
	}
	return nil
}

// CancelledAccess implements DIP's cancelledAccess. keepModified=true treats
// the write as committed so downstream reads of the new version remain
// valid; keepModified=false walks currentVersionId backwards through
// cancelled predecessors to the most recent still-used, non-cancelled one.
func (di *DataInfo) CancelledAccess(id *AccessId, keepModified bool) error {
	di.mu.Lock()
	defer di.mu.Unlock()

	if id.ReadVersion != 0 {
		if v := di.versions[id.ReadVersion]; v != nil && v.PendingReads > 0 {
			v.PendingReads--
			di.maybeReleaseLocked(v)
		}
	}
	if id.WriteVersion == 0 {
		return nil
	}

	v := di.versions[id.WriteVersion]
	if v == nil {
		return fmt.Errorf("datainfo %d: unknown version %d", di.DataId, id.WriteVersion)
	}
	v.PendingWrite = false
	v.Cancelled = true
	di.cancelled[v.VersionId] = true

	if keepModified {
		return nil
	}

	// Roll currentVersionId back, skipping cancelled versions, until a
	// still-used earlier version or version 1 is reached. Per the open
	// question carried from spec.md §9, a predecessor chain that is
	// entirely cancelled bottoms out at version 1 rather than panicking:
	// version 1 is never marked cancelled by this rollback.
	cur := di.currentVersionId
	for cur > 1 && di.cancelled[cur] {
		pred := di.versions[cur].Predecessor
		if pred == 0 {
			break
		}
		cur = pred
	}
	di.currentVersionId = cur
	// v is no longer current once the rollback above lands on an earlier
	// version; release it now instead of leaving a cancelled version
	// sitting in di.versions forever.
	di.maybeReleaseLocked(v)
	return nil
}

// maybeReleaseLocked marks a version for physical removal once its pending
// counts are both zero, subject to deletion blocks. Caller holds di.mu.
func (di *DataInfo) maybeReleaseLocked(v *DataVersion) {
	if v.VersionId == di.currentVersionId {
		return // never release the current version
	}
	if v.PendingReads > 0 || v.PendingWrite {
		return
	}
	if di.deletionBlocks > 0 {
		di.pendingDeletions = append(di.pendingDeletions, v.VersionId)
		return
	}
	v.ToDelete = true
	delete(di.versions, v.VersionId)
}

// BlockDeletions increments the deletion-block counter, suppressing
// physical version removal until matched by UnblockDeletions.
func (di *DataInfo) BlockDeletions() {
	di.mu.Lock()
	defer di.mu.Unlock()
	di.deletionBlocks++
}

// UnblockDeletions decrements the deletion-block counter; reaching zero
// flushes the pending-deletions list atomically.
func (di *DataInfo) UnblockDeletions() {
	di.mu.Lock()
	defer di.mu.Unlock()
	if di.deletionBlocks == 0 {
		return
	}
	di.deletionBlocks--
	if di.deletionBlocks > 0 {
		return
	}
	for _, vid := range di.pendingDeletions {
		if v, ok := di.versions[vid]; ok {
			v.ToDelete = true
			delete(di.versions, vid)
		}
	}
	di.pendingDeletions = nil
}

// Delete marks the DataInfo itself as deleted once its version map has
// drained. It does not touch a collection's children; the caller deletes
// those (see accessproc's DeleteData).
func (di *DataInfo) Delete() bool {
	di.mu.Lock()
	defer di.mu.Unlock()
	if len(di.versions) == 0 {
		di.deleted = true
	}
	return di.deleted
}

// Deleted reports whether the DataInfo has fully deregistered.
func (di *DataInfo) Deleted() bool {
	di.mu.Lock()
	defer di.mu.Unlock()
	return di.deleted
}

// HasVersion reports whether versionId is still tracked (not yet
// physically released).
func (di *DataInfo) HasVersion(versionId int64) bool {
	di.mu.Lock()
	defer di.mu.Unlock()
	_, ok := di.versions[versionId]
	return ok
}

// VersionCount returns the number of live versions, for tests and metrics.
func (di *DataInfo) VersionCount() int {
	di.mu.Lock()
	defer di.mu.Unlock()
	return len(di.versions)
}
