package errormanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManager_ReportError_FiresHookOnce(t *testing.T) {
	m := New(nil, 10)
	fired := 0
	m.OnFatal(func(r Record) { fired++ })

	m.ReportError("scheduler", "no resources available")
	m.ReportError("scheduler", "second failure")

	assert.Equal(t, 1, fired)
	assert.True(t, m.Fatal())
}

func TestManager_ReportWarn_DoesNotSetFatal(t *testing.T) {
	m := New(nil, 10)
	m.ReportWarn("jobmanager", "retrying job")
	assert.False(t, m.Fatal())
	assert.Len(t, m.History(), 1)
}

func TestManager_History_BoundedByCapacity(t *testing.T) {
	m := New(nil, 3)
	for i := 0; i < 5; i++ {
		m.ReportWarn("x", "warn")
	}
	assert.Len(t, m.History(), 3)
}
