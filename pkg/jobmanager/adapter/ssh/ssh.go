// Package ssh dispatches jobs as remote commands over an SSH connection,
// grounded on the teacher's transport.SSHTunnelTransport client-config and
// host-key-verification conventions.
package ssh

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/bsc-wdc/compss-core/pkg/jobmanager"
)

type Config struct {
	Host         string
	Port         int
	User         string
	KeyFile      string
	Password     string
	KnownHosts   string // path to a known_hosts file; empty means insecure (dev only)
	Timeout      time.Duration
	RemoteScript string // path on the remote host invoked as: <script> <implementation> <params...>
}

type Adapter struct {
	mu      sync.Mutex
	client  *ssh.Client
	cfg     Config
	cancels map[int64]chan struct{}
}

func buildClientConfig(cfg Config) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod
	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("ssh adapter: read key file: %w", err)
		}
		var signer ssh.Signer
		if cfg.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(cfg.Password))
		} else {
			signer, err = ssh.ParsePrivateKey(key)
		}
		if err != nil {
			return nil, fmt.Errorf("ssh adapter: parse key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" && cfg.KeyFile == "" {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("ssh adapter: no authentication method configured (need KeyFile or Password)")
	}

	var hostKeyCallback ssh.HostKeyCallback
	if cfg.KnownHosts != "" {
		var err error
		hostKeyCallback, err = knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("ssh adapter: load known_hosts: %w", err)
		}
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

func New(cfg Config) (*Adapter, error) {
	clientCfg, err := buildClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	client, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", cfg.Host, port), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("ssh adapter: dial: %w", err)
	}
	return &Adapter{client: client, cfg: cfg, cancels: make(map[int64]chan struct{})}, nil
}

func (a *Adapter) Name() string { return "ssh" }

func (a *Adapter) CanHandle(resourceKind string) bool { return resourceKind == "ssh" }

func (a *Adapter) RunJob(ctx context.Context, job jobmanager.Job) error {
	session, err := a.client.NewSession()
	if err != nil {
		return fmt.Errorf("ssh adapter: new session: %w", err)
	}
	defer session.Close()

	cancel := make(chan struct{})
	a.mu.Lock()
	a.cancels[job.JobId] = cancel
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.cancels, job.JobId)
		a.mu.Unlock()
	}()

	args := []string{a.cfg.RemoteScript, job.Implementation}
	for k, v := range job.Params {
		args = append(args, fmt.Sprintf("--%s=%s", k, v))
	}
	cmd := strings.Join(args, " ")

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case err := <-done:
		return err
	case <-cancel:
		_ = session.Signal(ssh.SIGTERM)
		return fmt.Errorf("ssh adapter: job %d cancelled", job.JobId)
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		return ctx.Err()
	}
}

func (a *Adapter) CancelJob(ctx context.Context, jobId int64) error {
	a.mu.Lock()
	ch, ok := a.cancels[jobId]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	close(ch)
	return nil
}

func (a *Adapter) GetData(ctx context.Context, resourceId, renaming string) ([]byte, error) {
	session, err := a.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh adapter: new session: %w", err)
	}
	defer session.Close()
	return session.Output(fmt.Sprintf("cat %s", renaming))
}

func (a *Adapter) ExistsData(ctx context.Context, resourceId, renaming string) (bool, error) {
	session, err := a.client.NewSession()
	if err != nil {
		return false, fmt.Errorf("ssh adapter: new session: %w", err)
	}
	defer session.Close()
	err = session.Run(fmt.Sprintf("test -e %s", renaming))
	return err == nil, nil
}

func (a *Adapter) Close() error {
	return a.client.Close()
}
