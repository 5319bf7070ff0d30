// Package libvirt implements resource.CloudProvider against a local or
// remote libvirt daemon, grounded on the teacher's kvm.CreateVM/DeleteVM
// connect/define/create/destroy/undefine lifecycle.
package libvirt

import (
	"context"
	"fmt"
	"net"

	libvirtgo "github.com/digitalocean/go-libvirt"

	"github.com/bsc-wdc/compss-core/pkg/resource"
)

type Config struct {
	SocketPath string // e.g. /var/run/libvirt/libvirt-sock
	ImagePath  string // base disk image every worker VM boots from
	MemoryKiB  int
	VCPUs      int
}

type unixDialer struct{ path string }

func (d unixDialer) Dial() (net.Conn, error) { return net.Dial("unix", d.path) }

type Provider struct {
	cfg Config
}

func New(cfg Config) *Provider {
	if cfg.MemoryKiB == 0 {
		cfg.MemoryKiB = 2 << 20 // 2GB
	}
	if cfg.VCPUs == 0 {
		cfg.VCPUs = 2
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) Name() string { return "libvirt" }

func (p *Provider) connect() (*libvirtgo.Libvirt, error) {
	vir := libvirtgo.NewWithDialer(unixDialer{path: p.cfg.SocketPath})
	if err := vir.Connect(); err != nil {
		return nil, fmt.Errorf("libvirt provider: connect: %w", err)
	}
	return vir, nil
}

func (p *Provider) domainXML(name string, desc resource.Description) string {
	return fmt.Sprintf(`<domain type='kvm'>
  <name>%s</name>
  <memory unit='KiB'>%d</memory>
  <vcpu>%d</vcpu>
  <devices>
    <disk type='file' device='disk'>
      <source file='%s'/>
      <target dev='vda' bus='virtio'/>
    </disk>
  </devices>
</domain>`, name, p.cfg.MemoryKiB, p.cfg.VCPUs, p.cfg.ImagePath)
}

func (p *Provider) CreateInstance(ctx context.Context, desc resource.Description) (string, error) {
	vir, err := p.connect()
	if err != nil {
		return "", err
	}
	defer vir.Disconnect()

	name := "compss-" + desc.Id

	if dom, err := vir.DomainLookupByName(name); err == nil {
		_ = vir.DomainDestroy(dom)
		_ = vir.DomainUndefine(dom)
	}

	dom, err := vir.DomainDefineXML(p.domainXML(name, desc))
	if err != nil {
		return "", fmt.Errorf("libvirt provider: define domain: %w", err)
	}
	if err := vir.DomainCreate(dom); err != nil {
		return "", fmt.Errorf("libvirt provider: start domain: %w", err)
	}
	return name, nil
}

func (p *Provider) DestroyInstance(ctx context.Context, instanceId string) error {
	vir, err := p.connect()
	if err != nil {
		return err
	}
	defer vir.Disconnect()

	dom, err := vir.DomainLookupByName(instanceId)
	if err != nil {
		return fmt.Errorf("libvirt provider: domain %q not found: %w", instanceId, err)
	}

	state, _, err := vir.DomainGetState(dom, 0)
	if err != nil {
		return fmt.Errorf("libvirt provider: get state: %w", err)
	}
	if libvirtgo.DomainState(state) == libvirtgo.DomainRunning || libvirtgo.DomainState(state) == libvirtgo.DomainPaused {
		if err := vir.DomainDestroy(dom); err != nil {
			return fmt.Errorf("libvirt provider: destroy domain: %w", err)
		}
	}
	return vir.DomainUndefine(dom)
}
