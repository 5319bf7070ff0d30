package resource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResource_Describe_IncludesIdKindAndHumanizedCapacity(t *testing.T) {
	r := New(Description{Id: "r1", Kind: "ssh", CPUs: 8, GPUs: 1, MemoryMB: 16384, StorageMB: 102400})
	desc := r.Describe()
	assert.Contains(t, desc, "r1")
	assert.Contains(t, desc, "ssh")
	assert.Contains(t, desc, "8 CPUs")
	assert.Contains(t, desc, "GiB")
}

func TestResource_CanHost_ChecksStaticCapacity(t *testing.T) {
	r := New(Description{CPUs: 4, MemoryMB: 8192})
	assert.True(t, r.CanHost(Requirements{CPUs: 2, MemoryMB: 4096}))
	assert.False(t, r.CanHost(Requirements{CPUs: 8}))
}

func TestResource_ReduceAndIncreaseDynamic_RoundTrip(t *testing.T) {
	r := New(Description{CPUs: 4, MemoryMB: 8192})
	req := Requirements{CPUs: 2, MemoryMB: 4096}

	require.True(t, r.CanHostDynamic(req))
	r.ReduceDynamic(req)
	assert.False(t, r.CanHostDynamic(Requirements{CPUs: 3}))

	r.IncreaseDynamic(req)
	assert.True(t, r.CanHostDynamic(req))
}

func TestResource_ConnectionBound(t *testing.T) {
	r := New(Description{Kind: "websocket"}).WithMaxConnections(1)
	require.True(t, r.CanHostDynamic(Requirements{}))
	r.ReduceDynamic(Requirements{})
	assert.False(t, r.CanHostDynamic(Requirements{}))
	r.IncreaseDynamic(Requirements{})
	assert.True(t, r.CanHostDynamic(Requirements{}))
}

type fakeProvider struct {
	name      string
	destroyed []string
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) CreateInstance(ctx context.Context, desc Description) (string, error) {
	return "inst-" + desc.Id, nil
}
func (f *fakeProvider) DestroyInstance(ctx context.Context, instanceId string) error {
	f.destroyed = append(f.destroyed, instanceId)
	return nil
}

func TestCloudManager_RequestAndRelease(t *testing.T) {
	cm := NewCloudManager()
	provider := &fakeProvider{name: "hcloud"}
	cm.RegisterProvider(provider)

	r, err := cm.RequestResource(context.Background(), "hcloud", Description{Id: "r1", CPUs: 2})
	require.NoError(t, err)
	assert.Equal(t, "r1", r.Desc.Id)

	require.NoError(t, cm.ReleaseResource(context.Background(), "r1"))
	assert.Equal(t, []string{"inst-r1"}, provider.destroyed)
}

func TestCloudManager_UnknownProvider(t *testing.T) {
	cm := NewCloudManager()
	_, err := cm.RequestResource(context.Background(), "missing", Description{Id: "r1"})
	assert.Error(t, err)
}
