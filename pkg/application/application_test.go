package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplication_RegisterTask_JoinsOpenGroups(t *testing.T) {
	app := New(0)
	g := app.OpenTaskGroup("g1")

	groupIds := app.RegisterTask(1)
	require.Len(t, groupIds, 1)
	assert.Equal(t, g.GroupId, groupIds[0])
	assert.Contains(t, g.Members(), int64(1))
}

func TestApplication_CloseTaskGroup_StopsFutureRegistration(t *testing.T) {
	app := New(0)
	g := app.OpenTaskGroup("g1")
	app.CloseCurrentTaskGroup()

	groupIds := app.RegisterTask(1)
	assert.Empty(t, groupIds)
	assert.Empty(t, g.Members())
}

func TestApplication_Barrier_ReturnsImmediatelyWithNoTasks(t *testing.T) {
	app := New(0)
	done := make(chan struct{})
	go func() {
		app.Barrier()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Barrier blocked with no registered tasks")
	}
}

func TestApplication_Barrier_WaitsForAllRegisteredTasks(t *testing.T) {
	app := New(0)
	groupIds1 := app.RegisterTask(1)
	groupIds2 := app.RegisterTask(2)

	var wg sync.WaitGroup
	wg.Add(1)
	barrierReturned := false
	go func() {
		defer wg.Done()
		app.Barrier()
		barrierReturned = true
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, barrierReturned)

	app.MarkTaskTerminal(1, groupIds1)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, barrierReturned, "barrier must wait for every registered task")

	app.MarkTaskTerminal(2, groupIds2)
	wg.Wait()
	assert.True(t, barrierReturned)
}

func TestApplication_Throttle_BoundsConcurrentPermits(t *testing.T) {
	app := New(1)
	ctx := context.Background()
	require.NoError(t, app.AcquireThrottle(ctx))

	ctx2, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	err := app.AcquireThrottle(ctx2)
	assert.Error(t, err, "second permit must block while the first is held")

	app.ReleaseThrottle()
	require.NoError(t, app.AcquireThrottle(ctx))
}

func TestApplication_WallClockLimit_Expires(t *testing.T) {
	app := New(0)
	app.SetWallClockLimit(10 * time.Millisecond)
	assert.False(t, app.Expired())
	time.Sleep(20 * time.Millisecond)
	assert.True(t, app.Expired())
}

func TestApplication_RecordWrittenFile_Dedupes(t *testing.T) {
	app := New(0)
	app.RecordWrittenFile("d1v2")
	app.RecordWrittenFile("d1v2")
	app.RecordWrittenFile("d2v1")
	assert.Len(t, app.WrittenFiles(), 2)
}
