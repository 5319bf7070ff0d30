package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataInfo_WriteThenRead_AdvancesVersion(t *testing.T) {
	di := New(1, FileData, Payload{Location: "file:///tmp/x"})
	assert.Equal(t, int64(1), di.CurrentVersionId())

	wid, err := di.WillAccess(W)
	require.NoError(t, err)
	assert.Equal(t, int64(2), wid.WriteVersion)
	assert.Equal(t, int64(2), di.CurrentVersionId())

	rid, err := di.WillAccess(R)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rid.ReadVersion)

	require.NoError(t, di.CommittedAccess(wid))
	require.NoError(t, di.CommittedAccess(rid))

	assert.False(t, di.HasVersion(1), "version 1 should be released once unreferenced")
	assert.True(t, di.HasVersion(2), "current version must remain")
}

func TestDataInfo_CancelWrite_KeepModifiedFalse_RollsBack(t *testing.T) {
	di := New(1, FileData, Payload{})
	wid, err := di.WillAccess(W)
	require.NoError(t, err)
	assert.Equal(t, int64(2), di.CurrentVersionId())

	require.NoError(t, di.CancelledAccess(wid, false))
	assert.Equal(t, int64(1), di.CurrentVersionId())

	rid, err := di.WillAccess(R)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rid.ReadVersion)
}

func TestDataInfo_CancelWrite_KeepModifiedTrue_LeavesVersionCurrent(t *testing.T) {
	di := New(1, FileData, Payload{})
	wid, err := di.WillAccess(W)
	require.NoError(t, err)

	require.NoError(t, di.CancelledAccess(wid, true))
	assert.Equal(t, int64(2), di.CurrentVersionId())
}

func TestDataInfo_DeletionBlocks_DeferRelease(t *testing.T) {
	di := New(1, FileData, Payload{})
	di.BlockDeletions()

	wid, _ := di.WillAccess(W)
	rid, _ := di.WillAccess(R) // reads version 2, the new current
	require.NoError(t, di.CommittedAccess(wid))
	require.NoError(t, di.CommittedAccess(rid))

	// Write a second version so version 2 stops being current and becomes
	// eligible for release; it must stay pinned while blocked.
	wid2, _ := di.WillAccess(W)
	require.NoError(t, di.CommittedAccess(wid2))
	assert.True(t, di.HasVersion(2), "blocked deletions must defer release")

	di.UnblockDeletions()
	assert.False(t, di.HasVersion(2), "unblocking flushes pending deletions")
}

func TestDataInfo_RWAccess_CapturesReadAndWrite(t *testing.T) {
	di := New(1, FileData, Payload{})
	id, err := di.WillAccess(RW)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id.ReadVersion)
	assert.Equal(t, int64(2), id.WriteVersion)
}

func TestTask_StateMachine_RejectsInvalidTransitions(t *testing.T) {
	task := NewTask(1, 1, "core.sum", Retry)
	require.NoError(t, task.Transition(StateToAnalyse))
	require.NoError(t, task.Transition(StateAnalysed))
	require.NoError(t, task.Transition(StateToExecute))
	require.NoError(t, task.Transition(StateExecuting))
	require.NoError(t, task.Transition(StateFinished))
	assert.Error(t, task.Transition(StateToExecute), "FINISHED is terminal")
}

func TestTask_Cancel_IsIdempotent(t *testing.T) {
	task := NewTask(1, 1, "core.sum", Fail)
	first := task.Cancel()
	second := task.Cancel()
	assert.False(t, first)
	assert.True(t, second)
}

func TestCommutativeGroupTask_JoinAfterCloseFails(t *testing.T) {
	g := NewCommutativeGroupTask(100, "core.add", 1)
	require.NoError(t, g.Join(1))
	require.NoError(t, g.Join(2))
	g.Close()
	assert.Error(t, g.Join(3))
	assert.True(t, g.Closed())
}

func TestOnFailure_ProducesEmptyResultsOnFailure(t *testing.T) {
	assert.True(t, Ignore.ProducesEmptyResultsOnFailure())
	assert.True(t, CancelSuccessors.ProducesEmptyResultsOnFailure())
	assert.False(t, Retry.ProducesEmptyResultsOnFailure())
	assert.False(t, Fail.ProducesEmptyResultsOnFailure())
}
