// Package hcloud implements resource.CloudProvider against Hetzner Cloud,
// grounded on the teacher's cloud.HetznerServerCreate/Delete token-based
// client usage.
package hcloud

import (
	"context"
	"fmt"
	"strconv"

	hcloudsdk "github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/bsc-wdc/compss-core/pkg/resource"
)

type Config struct {
	Token      string
	ServerType string // e.g. "ccx13"
	Image      string // e.g. "alma-10"
	Location   string // e.g. "nbg1"
	SSHKeyIds  []int64
}

type Provider struct {
	client *hcloudsdk.Client
	cfg    Config
}

func New(cfg Config) *Provider {
	return &Provider{client: hcloudsdk.NewClient(hcloudsdk.WithToken(cfg.Token)), cfg: cfg}
}

func (p *Provider) Name() string { return "hcloud" }

func (p *Provider) CreateInstance(ctx context.Context, desc resource.Description) (string, error) {
	sshKeys := make([]*hcloudsdk.SSHKey, 0, len(p.cfg.SSHKeyIds))
	for _, id := range p.cfg.SSHKeyIds {
		sshKeys = append(sshKeys, &hcloudsdk.SSHKey{ID: id})
	}

	serverType := p.cfg.ServerType
	if serverType == "" {
		serverType = "ccx13"
	}
	image := p.cfg.Image
	if image == "" {
		image = "alma-10"
	}
	location := p.cfg.Location
	if location == "" {
		location = "nbg1"
	}

	result, _, err := p.client.Server.Create(ctx, hcloudsdk.ServerCreateOpts{
		Name:       "compss-" + desc.Id,
		Image:      &hcloudsdk.Image{Name: image},
		ServerType: &hcloudsdk.ServerType{Name: serverType},
		Location:   &hcloudsdk.Location{Name: location},
		SSHKeys:    sshKeys,
	})
	if err != nil {
		return "", fmt.Errorf("hcloud provider: create server: %w", err)
	}
	return strconv.FormatInt(result.Server.ID, 10), nil
}

func (p *Provider) DestroyInstance(ctx context.Context, instanceId string) error {
	id, err := strconv.ParseInt(instanceId, 10, 64)
	if err != nil {
		return fmt.Errorf("hcloud provider: invalid instance id %q: %w", instanceId, err)
	}
	_, _, err = p.client.Server.DeleteWithResult(ctx, &hcloudsdk.Server{ID: id})
	if err != nil {
		return fmt.Errorf("hcloud provider: delete server %d: %w", id, err)
	}
	return nil
}
