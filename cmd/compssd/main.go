// Command compssd is the demo driver binary wiring every piece of the
// runtime core together: it loads configuration, builds a Runtime and
// Access Processor, registers whichever job adapters and cloud providers
// the configuration enables, restores and persists the optional execution
// profile, and serves the operator control plane. It replaces the
// teacher's cli/ Cobra driver with a single-purpose daemon entrypoint,
// grounded on the same flag-then-config-then-run shape as the teacher's
// root.go Execute().
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsc-wdc/compss-core/internal/config"
	"github.com/bsc-wdc/compss-core/internal/controlplane"
	"github.com/bsc-wdc/compss-core/internal/obslog"
	"github.com/bsc-wdc/compss-core/pkg/accessproc"
	"github.com/bsc-wdc/compss-core/pkg/archive/gitea"
	"github.com/bsc-wdc/compss-core/pkg/archive/s3"
	"github.com/bsc-wdc/compss-core/pkg/checkpoint"
	"github.com/bsc-wdc/compss-core/pkg/checkpoint/bolt"
	"github.com/bsc-wdc/compss-core/pkg/jobmanager"
	"github.com/bsc-wdc/compss-core/pkg/jobmanager/adapter/amqp"
	"github.com/bsc-wdc/compss-core/pkg/jobmanager/adapter/redisqueue"
	"github.com/bsc-wdc/compss-core/pkg/profile"
	"github.com/bsc-wdc/compss-core/pkg/resource"
	"github.com/bsc-wdc/compss-core/pkg/resource/cloud/hcloud"
	"github.com/bsc-wdc/compss-core/pkg/runtime"
	"github.com/bsc-wdc/compss-core/pkg/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to a .compss config file (default: search $HOME and .)")
	listenAddr := flag.String("listen", ":8080", "control plane listen address")
	checkpointPath := flag.String("checkpoint", "", "bolt checkpoint file (empty disables checkpointing)")
	env := config.NewEnvConfig("COMPSS")
	oidcIssuer := flag.String("oidc-issuer", env.GetString("OIDC_ISSUER", ""), "OIDC issuer for control-plane bearer tokens (empty disables auth)")
	oidcAudience := flag.String("oidc-audience", env.GetString("OIDC_AUDIENCE", "compss-core"), "expected audience of control-plane bearer tokens")
	flag.Parse()

	log := obslog.New(obslog.DefaultConfig("compssd"))

	cfg, err := config.Load(*configPath, config.Config{})
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	rt := runtime.New(runtime.Config{ThrottleMax: int64(cfg.ThrottleMaxTasks), Log: log})

	jobs := jobmanager.NewManager(nil)
	wireAdapters(jobs, cfg, log)

	var chk checkpoint.Manager = checkpoint.NoOp{}
	if *checkpointPath != "" {
		m, err := bolt.Open(*checkpointPath)
		if err != nil {
			log.Fatalf("open checkpoint store %s: %v", *checkpointPath, err)
		}
		chk = m
		defer m.Close()
	}

	ap := accessproc.New(accessproc.Config{
		Runtime:    rt,
		Scheduler:  scheduler.NewOrderStrict(),
		Jobs:       jobs,
		Checkpoint: chk,
	})
	jobs.SetListener(ap)
	defer ap.Close()

	wireCloudProviders(ap, cfg, log)

	prof := loadProfile(cfg, log)
	jobs.SetProfiler(prof)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var verifier *controlplane.TokenVerifier
	if *oidcIssuer != "" {
		v, err := controlplane.NewTokenVerifier(ctx, *oidcIssuer, *oidcAudience)
		if err != nil {
			log.Fatalf("build control-plane token verifier: %v", err)
		}
		verifier = v
	}

	srv := controlplane.New(controlplane.Config{Runtime: rt, Processor: ap, Verifier: verifier})

	log.Infof("compssd listening on %s", *listenAddr)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(ctx, *listenAddr) }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Errorf("control plane server stopped: %v", err)
		}
	}

	if cfg.OutputProfile != "" {
		if err := prof.Dump(cfg.OutputProfile); err != nil {
			log.Errorf("dump output profile %s: %v", cfg.OutputProfile, err)
		}
	}

	archiveResults(rt, cfg, log)
}

// archiveResults pushes every still-registered application's written
// result files to whichever archive backends the configuration enables.
// Both backends are optional and independent; a deployment may configure
// either, both, or neither.
func archiveResults(rt *runtime.Runtime, cfg *config.Config, log *obslog.Logger) {
	var giteaArchiver *gitea.Archiver
	if cfg.ResultArchiveRepo != "" {
		owner, repo, ok := splitOwnerRepo(cfg.ResultArchiveRepo)
		if !ok {
			log.Errorf("result_archive_repo %q must be owner/repo", cfg.ResultArchiveRepo)
		} else {
			a, err := gitea.New("https://gitea.com", os.Getenv("GITEA_TOKEN"), owner, repo)
			if err != nil {
				log.Errorf("build gitea archiver: %v", err)
			} else {
				giteaArchiver = a
			}
		}
	}

	var s3Archiver *s3.Archiver
	if cfg.ResultArchiveS3Bucket != "" {
		a, err := s3.New(context.Background(), s3.Config{
			Bucket:   cfg.ResultArchiveS3Bucket,
			Region:   cfg.ResultArchiveS3Region,
			Prefix:   cfg.ResultArchiveS3Prefix,
			Endpoint: cfg.ResultArchiveS3Endpoint,
		})
		if err != nil {
			log.Errorf("build s3 archiver: %v", err)
		} else {
			s3Archiver = a
		}
	}

	if giteaArchiver == nil && s3Archiver == nil {
		return
	}
	for _, app := range rt.Applications() {
		files := app.WrittenFiles()
		if len(files) == 0 {
			continue
		}
		tag := fmt.Sprintf("app-%d", app.AppId)
		if giteaArchiver != nil {
			if err := giteaArchiver.ArchiveFiles(tag, files); err != nil {
				log.Errorf("archive results to gitea for application %d: %v", app.AppId, err)
			}
		}
		if s3Archiver != nil {
			if err := s3Archiver.ArchiveFiles(context.Background(), tag, files); err != nil {
				log.Errorf("archive results to s3 for application %d: %v", app.AppId, err)
			}
		}
	}
}

func splitOwnerRepo(ownerRepo string) (owner, repo string, ok bool) {
	for i := 0; i < len(ownerRepo); i++ {
		if ownerRepo[i] == '/' {
			return ownerRepo[:i], ownerRepo[i+1:], true
		}
	}
	return "", "", false
}

// wireAdapters registers every job adapter the configuration provides
// enough connection information for. A deployment with neither AMQP_URL
// nor REDIS_URL configured runs with no registered adapters, which is
// valid for exercising the Access Processor's bookkeeping in isolation but
// means no submitted task will ever actually run.
func wireAdapters(jobs *jobmanager.Manager, cfg *config.Config, log *obslog.Logger) {
	if cfg.AMQPURL != "" {
		a, err := amqp.New(amqp.Config{URL: cfg.AMQPURL, QueueName: "compss-core-tasks"})
		if err != nil {
			log.Errorf("amqp adapter: %v", err)
		} else {
			jobs.RegisterAdapter(a)
		}
	}
	if cfg.RedisURL != "" {
		a, err := redisqueue.New(context.Background(), redisqueue.Config{RedisURL: cfg.RedisURL})
		if err != nil {
			log.Errorf("redisqueue adapter: %v", err)
		} else {
			jobs.RegisterAdapter(a)
		}
	}
}

// wireCloudProviders registers hcloud (the only provider whose config is
// a single secret string rather than a cluster/hypervisor connection this
// binary has no opinion about) with a CloudManager when HCLOUD_TOKEN is set,
// and logs the registration. The CloudManager is not handed to the Access
// Processor or kept anywhere else, so no worker is provisioned through it.
func wireCloudProviders(ap *accessproc.Processor, cfg *config.Config, log *obslog.Logger) {
	if cfg.HCloudToken == "" {
		return
	}
	provider := hcloud.New(hcloud.Config{
		Token:      cfg.HCloudToken,
		ServerType: "ccx13",
		Image:      "alma-10",
		Location:   "nbg1",
	})
	cm := resource.NewCloudManager()
	cm.RegisterProvider(provider)
	log.Infof("registered hcloud cloud provider %s", provider.Name())
}

func loadProfile(cfg *config.Config, log *obslog.Logger) *profile.Profile {
	if cfg.InputProfile == "" {
		return profile.New()
	}
	p, err := profile.Load(cfg.InputProfile)
	if err != nil {
		log.Errorf("load input profile %s: %v", cfg.InputProfile, err)
		return profile.New()
	}
	return p
}
