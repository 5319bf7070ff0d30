package resource

import (
	"context"
	"fmt"
	"sync"
)

// CloudProvider is the pluggable interface a cloud backend implements to
// let the CloudManager elastically create and destroy worker resources
// (spec.md §4.6). Concrete implementations live under resource/cloud/*.
type CloudProvider interface {
	Name() string
	CreateInstance(ctx context.Context, desc Description) (instanceId string, err error)
	DestroyInstance(ctx context.Context, instanceId string) error
}

// CloudManager tracks which Resources were created elastically and by
// which provider, so it can tear them back down.
type CloudManager struct {
	mu        sync.Mutex
	providers map[string]CloudProvider
	instances map[string]string // resourceId -> (provider name, instanceId) encoded as "provider:instanceId"
}

func NewCloudManager() *CloudManager {
	return &CloudManager{
		providers: make(map[string]CloudProvider),
		instances: make(map[string]string),
	}
}

func (c *CloudManager) RegisterProvider(p CloudProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[p.Name()] = p
}

// RequestResource asks providerName to create a new instance matching
// desc, and returns the Resource wrapping it.
func (c *CloudManager) RequestResource(ctx context.Context, providerName string, desc Description) (*Resource, error) {
	c.mu.Lock()
	p, ok := c.providers[providerName]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("cloudmanager: no provider registered as %q", providerName)
	}

	instanceId, err := p.CreateInstance(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("cloudmanager: create instance via %s: %w", providerName, err)
	}

	c.mu.Lock()
	c.instances[desc.Id] = providerName + ":" + instanceId
	c.mu.Unlock()

	return New(desc), nil
}

// ReleaseResource tears down a previously cloud-created resource.
func (c *CloudManager) ReleaseResource(ctx context.Context, resourceId string) error {
	c.mu.Lock()
	encoded, ok := c.instances[resourceId]
	delete(c.instances, resourceId)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	var providerName, instanceId string
	for i := 0; i < len(encoded); i++ {
		if encoded[i] == ':' {
			providerName, instanceId = encoded[:i], encoded[i+1:]
			break
		}
	}

	c.mu.Lock()
	p, ok := c.providers[providerName]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("cloudmanager: provider %q no longer registered", providerName)
	}
	return p.DestroyInstance(ctx, instanceId)
}
