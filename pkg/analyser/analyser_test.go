package analyser

import (
	"testing"

	"github.com/bsc-wdc/compss-core/pkg/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (*Analyser, map[int64]*data.DataInfo, *[]int64) {
	t.Helper()
	infos := make(map[int64]*data.DataInfo)
	var nextGroupId int64 = 1000
	var registered []data.AbstractTask
	var ready []int64

	a := New(
		NewGraph(),
		func() int64 { nextGroupId++; return nextGroupId },
		func(at data.AbstractTask) { registered = append(registered, at) },
		func(id int64) { ready = append(ready, id) },
	)
	return a, infos, &ready
}

func TestAnalyser_WriteThenRead_AddsRAWEdge(t *testing.T) {
	a, infos, ready := newFixture(t)
	di := data.New(1, data.FileData, data.Payload{})
	infos[1] = di
	lookup := func(id int64) (*data.DataInfo, bool) { d, ok := infos[id]; return d, ok }

	writer := data.NewTask(1, 1, "core.write", data.Retry)
	wid, _ := di.WillAccess(data.W)
	writer.Params = []*data.Parameter{{Access: wid, Dir: data.W}}
	a.AddTask(writer, lookup)
	assert.Contains(t, *ready, int64(1), "writer with no dependencies must be immediately ready")

	reader := data.NewTask(2, 1, "core.read", data.Retry)
	rid, _ := di.WillAccess(data.R)
	reader.Params = []*data.Parameter{{Access: rid, Dir: data.R}}
	a.AddTask(reader, lookup)

	assert.ElementsMatch(t, []int64{1}, a.Graph().GetDependencies(2))
}

func TestAnalyser_CompleteTask_UnblocksSuccessor(t *testing.T) {
	a, infos, ready := newFixture(t)
	di := data.New(1, data.FileData, data.Payload{})
	infos[1] = di
	lookup := func(id int64) (*data.DataInfo, bool) { d, ok := infos[id]; return d, ok }

	writer := data.NewTask(1, 1, "core.write", data.Retry)
	wid, _ := di.WillAccess(data.W)
	writer.Params = []*data.Parameter{{Access: wid, Dir: data.W}}
	a.AddTask(writer, lookup)

	reader := data.NewTask(2, 1, "core.read", data.Retry)
	rid, _ := di.WillAccess(data.R)
	reader.Params = []*data.Parameter{{Access: rid, Dir: data.R}}
	a.AddTask(reader, lookup)

	*ready = nil
	a.CompleteTask(1)
	assert.Contains(t, *ready, int64(2))
}

func TestAnalyser_CommutativeWrites_JoinSameGroup(t *testing.T) {
	a, infos, _ := newFixture(t)
	di := data.New(1, data.FileData, data.Payload{})
	infos[1] = di
	lookup := func(id int64) (*data.DataInfo, bool) { d, ok := infos[id]; return d, ok }

	t1 := data.NewTask(1, 1, "core.add", data.Retry)
	a1, _ := di.WillAccess(data.CV)
	t1.Params = []*data.Parameter{{Access: a1, Dir: data.CV}}
	a.AddTask(t1, lookup)

	t2 := data.NewTask(2, 1, "core.add", data.Retry)
	a2, _ := di.WillAccess(data.CV)
	t2.Params = []*data.Parameter{{Access: a2, Dir: data.CV}}
	a.AddTask(t2, lookup)

	require.Len(t, a.openGroups, 1)
	for _, g := range a.openGroups {
		assert.ElementsMatch(t, []int64{1, 2}, g.Members)
	}
}

func TestAnalyser_CommutativeWrites_DifferentCoreIdsOpenIndependentGroups(t *testing.T) {
	a, infos, _ := newFixture(t)
	di := data.New(1, data.FileData, data.Payload{})
	infos[1] = di
	lookup := func(id int64) (*data.DataInfo, bool) { d, ok := infos[id]; return d, ok }

	t1 := data.NewTask(1, 1, "core.add", data.Retry)
	a1, _ := di.WillAccess(data.CV)
	t1.Params = []*data.Parameter{{Access: a1, Dir: data.CV}}
	a.AddTask(t1, lookup)

	t2 := data.NewTask(2, 1, "core.multiply", data.Retry)
	a2, _ := di.WillAccess(data.CV)
	t2.Params = []*data.Parameter{{Access: a2, Dir: data.CV}}
	a.AddTask(t2, lookup)

	require.Len(t, a.openGroups, 2, "a different CoreId folding into the same data must open its own group")
	var members []int64
	for _, g := range a.openGroups {
		assert.Len(t, g.Members, 1)
		members = append(members, g.Members...)
	}
	assert.ElementsMatch(t, []int64{1, 2}, members)
}

func TestAnalyser_StreamRead_AttachesToEveryActiveWriterWithoutConsumingAVersion(t *testing.T) {
	a, infos, ready := newFixture(t)
	di := data.New(1, data.StreamData, data.Payload{})
	infos[1] = di
	lookup := func(id int64) (*data.DataInfo, bool) { d, ok := infos[id]; return d, ok }

	p1 := data.NewTask(1, 1, "core.produce", data.Retry)
	w1, _ := di.WillAccess(data.W)
	p1.Params = []*data.Parameter{{Access: w1, Dir: data.W}}
	a.AddTask(p1, lookup)

	p2 := data.NewTask(2, 1, "core.produce", data.Retry)
	w2, _ := di.WillAccess(data.W)
	p2.Params = []*data.Parameter{{Access: w2, Dir: data.W}}
	a.AddTask(p2, lookup)

	assert.ElementsMatch(t, []int64{1, 2}, di.StreamWriters(), "both producers must remain active at once")

	*ready = nil
	reader := data.NewTask(3, 1, "core.consume", data.Retry)
	r1, _ := di.WillAccess(data.R)
	reader.Params = []*data.Parameter{{Access: r1, Dir: data.R}}
	a.AddTask(reader, lookup)

	assert.ElementsMatch(t, []int64{1, 2}, a.Graph().GetDependencies(3), "a stream read depends on every active producer")

	di.CompleteStream()
	assert.Empty(t, di.StreamWriters())
}

func TestAnalyser_PlainWriteClosesOpenCommutativeGroup(t *testing.T) {
	a, infos, _ := newFixture(t)
	di := data.New(1, data.FileData, data.Payload{})
	infos[1] = di
	lookup := func(id int64) (*data.DataInfo, bool) { d, ok := infos[id]; return d, ok }

	t1 := data.NewTask(1, 1, "core.add", data.Retry)
	a1, _ := di.WillAccess(data.CV)
	t1.Params = []*data.Parameter{{Access: a1, Dir: data.CV}}
	a.AddTask(t1, lookup)
	require.Len(t, a.openGroups, 1)

	t2 := data.NewTask(2, 1, "core.write", data.Retry)
	a2, _ := di.WillAccess(data.W)
	t2.Params = []*data.Parameter{{Access: a2, Dir: data.W}}
	a.AddTask(t2, lookup)

	assert.Empty(t, a.openGroups, "a plain write must close any open commutative group")
}
