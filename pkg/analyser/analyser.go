package analyser

import (
	"sync"

	"github.com/bsc-wdc/compss-core/pkg/data"
)

// DataLookup resolves a DataId to its DataInfo; the Analyser never owns
// data directly, it only reads/updates the last-writer and
// concurrent-reader bookkeeping DataInfo already exposes.
type DataLookup func(dataId int64) (*data.DataInfo, bool)

// Analyser derives dependency edges from data accesses (spec.md §4.2: R/C
// read the last writer, W/RW also read-after-write against concurrent
// readers, CV folds into a CommutativeGroupTask, stream data attaches
// readers to every active producer instead of consuming a version), and
// reports readiness once every dependency of a task has completed.
type Analyser struct {
	mu         sync.Mutex
	graph      *Graph
	openGroups map[groupKey]*data.CommutativeGroupTask // (coreId, dataId) -> open CV group

	newGroupId   func() int64
	registerTask func(data.AbstractTask)
	onReady      func(taskId int64)
}

// groupKey identifies a commutative group's opening: the first CV write to
// a given (coreId, dataId) opens a group, and only a later CV write sharing
// both fields joins it. Two cores folding writes into the same data get
// independent groups rather than sharing one.
type groupKey struct {
	coreId string
	dataId int64
}

func New(graph *Graph, newGroupId func() int64, registerTask func(data.AbstractTask), onReady func(int64)) *Analyser {
	return &Analyser{
		graph:        graph,
		openGroups:   make(map[groupKey]*data.CommutativeGroupTask),
		newGroupId:   newGroupId,
		registerTask: registerTask,
		onReady:      onReady,
	}
}

// openGroupFor returns the currently open commutative group for (coreId,
// dataId), creating one if none is open.
func (a *Analyser) openGroupFor(coreId string, dataId int64) *data.CommutativeGroupTask {
	key := groupKey{coreId: coreId, dataId: dataId}
	if g, ok := a.openGroups[key]; ok {
		return g
	}
	g := data.NewCommutativeGroupTask(a.newGroupId(), coreId, dataId)
	a.openGroups[key] = g
	a.graph.AddNode(g.ID())
	a.registerTask(g)
	return g
}

// closeGroupFor closes and detaches every open commutative group against
// dataId, regardless of which CoreId opened it: any non-CV access (R, C, W,
// RW) to the data ends every in-flight CV fold on it, which then stops
// accepting new joins.
func (a *Analyser) closeGroupFor(dataId int64) {
	for key, g := range a.openGroups {
		if key.dataId != dataId {
			continue
		}
		g.Close()
		delete(a.openGroups, key)
	}
}

// AddTask wires task into the dependency graph according to each
// parameter's direction, then reports readiness if it has no outstanding
// dependency.
func (a *Analyser) AddTask(task *data.Task, lookup DataLookup) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.graph.AddNode(task.ID())

	for _, p := range task.Params {
		if p.Access == nil {
			continue
		}
		dataId := p.Access.DataId
		di, ok := lookup(dataId)
		if !ok {
			continue
		}

		switch p.Dir {
		case data.R, data.C:
			if di.Kind.IsMultiWriter() {
				// A stream read never consumes a version: it attaches a
				// dependency edge to every currently active producer instead,
				// since producers keep writing after this read is satisfied.
				for _, w := range di.StreamWriters() {
					a.graph.AddEdge(task.ID(), w)
				}
				break
			}
			a.closeGroupFor(dataId)
			if w := di.LastWriter(); w != 0 {
				a.graph.AddEdge(task.ID(), w)
			}
			di.RecordConcurrentReader(task.ID())

		case data.W:
			if di.Kind.IsMultiWriter() {
				// Streams allow more than one active producer at a time;
				// join the set instead of replacing the sole last writer.
				di.RecordStreamWriter(task.ID())
				break
			}
			a.closeGroupFor(dataId)
			if w := di.LastWriter(); w != 0 {
				a.graph.AddEdge(task.ID(), w)
			}
			for _, r := range di.ConcurrentReaders() {
				a.graph.AddEdge(task.ID(), r)
			}
			di.RecordWriter(task.ID())

		case data.RW:
			a.closeGroupFor(dataId)
			if w := di.LastWriter(); w != 0 {
				a.graph.AddEdge(task.ID(), w)
			}
			for _, r := range di.ConcurrentReaders() {
				a.graph.AddEdge(task.ID(), r)
			}
			di.RecordWriter(task.ID())

		case data.CV:
			g := a.openGroupFor(task.CoreId, dataId)
			if w := di.LastWriter(); w != 0 && w != g.ID() {
				a.graph.AddEdge(g.ID(), w)
			}
			_ = g.Join(task.ID())
			di.RecordWriter(g.ID())
		}
	}

	if a.graph.PendingDependencyCount(task.ID()) == 0 && a.onReady != nil {
		a.onReady(task.ID())
	}
}

// CompleteTask removes a finished task from the graph and reports
// readiness for every successor left with no outstanding dependency.
func (a *Analyser) CompleteTask(taskId int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	successors := a.graph.GetDependents(taskId)
	a.graph.RemoveNode(taskId)

	for _, s := range successors {
		if a.graph.PendingDependencyCount(s) == 0 && a.onReady != nil {
			a.onReady(s)
		}
	}
}

// CloseCommutativeGroup force-closes an open group (application end, or an
// explicit close request), detaching it from future accesses to its data.
func (a *Analyser) CloseCommutativeGroup(dataId int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeGroupFor(dataId)
}

func (a *Analyser) Graph() *Graph { return a.graph }
