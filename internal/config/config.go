// Package config layers the runtime's configuration: compiled-in defaults,
// an optional YAML/JSON file (spf13/viper, path resolved via
// mitchellh/go-homedir when unset), COMPSS_-prefixed environment variables,
// and finally explicit overrides from the embedding program (spec.md §6).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds every recognized setting. Every field has a default such
// that an unconfigured runtime behaves as the base spec describes: no
// cloud, no checkpoint persistence, in-process-only adapters.
type Config struct {
	ThrottleMaxTasks            int
	AppLogDir                   string
	InputProfile                string
	OutputProfile               string
	DisableCustomThreadsTracing bool
	WallClockLimit              time.Duration

	RedisURL          string
	AMQPURL           string
	SSHKnownHosts     string
	HCloudToken       string
	KubeConfig        string
	CouchURL          string
	ResultArchiveRepo string

	ResultArchiveS3Bucket   string
	ResultArchiveS3Region   string
	ResultArchiveS3Prefix   string
	ResultArchiveS3Endpoint string
}

func defaults() Config {
	return Config{
		AppLogDir: "./compss-logs",
	}
}

// Load builds a Config. explicitPath, when non-empty, is read as the
// config file verbatim; otherwise viper searches for ".compss.yaml" in
// $HOME (resolved via go-homedir) then the working directory. overrides'
// non-zero fields win over the file and environment.
func Load(explicitPath string, overrides Config) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COMPSS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".compss")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	cfg := defaults()
	v.SetDefault("throttle_max_tasks", cfg.ThrottleMaxTasks)
	v.SetDefault("app_log_dir", cfg.AppLogDir)
	v.SetDefault("disable_custom_threads_tracing", cfg.DisableCustomThreadsTracing)
	v.SetDefault("wall_clock_limit", cfg.WallClockLimit)

	cfg.ThrottleMaxTasks = v.GetInt("throttle_max_tasks")
	cfg.AppLogDir = v.GetString("app_log_dir")
	cfg.InputProfile = v.GetString("input_profile")
	cfg.OutputProfile = v.GetString("output_profile")
	cfg.DisableCustomThreadsTracing = v.GetBool("disable_custom_threads_tracing")
	cfg.WallClockLimit = v.GetDuration("wall_clock_limit")
	cfg.RedisURL = v.GetString("redis_url")
	cfg.AMQPURL = v.GetString("amqp_url")
	cfg.SSHKnownHosts = v.GetString("ssh_known_hosts")
	cfg.HCloudToken = v.GetString("hcloud_token")
	cfg.KubeConfig = v.GetString("kube_config")
	cfg.CouchURL = v.GetString("couch_url")
	cfg.ResultArchiveRepo = v.GetString("result_archive_repo")
	cfg.ResultArchiveS3Bucket = v.GetString("result_archive_s3_bucket")
	cfg.ResultArchiveS3Region = v.GetString("result_archive_s3_region")
	cfg.ResultArchiveS3Prefix = v.GetString("result_archive_s3_prefix")
	cfg.ResultArchiveS3Endpoint = v.GetString("result_archive_s3_endpoint")

	applyOverrides(&cfg, overrides)
	return &cfg, nil
}

func applyOverrides(cfg *Config, o Config) {
	if o.ThrottleMaxTasks != 0 {
		cfg.ThrottleMaxTasks = o.ThrottleMaxTasks
	}
	if o.AppLogDir != "" {
		cfg.AppLogDir = o.AppLogDir
	}
	if o.InputProfile != "" {
		cfg.InputProfile = o.InputProfile
	}
	if o.OutputProfile != "" {
		cfg.OutputProfile = o.OutputProfile
	}
	if o.DisableCustomThreadsTracing {
		cfg.DisableCustomThreadsTracing = true
	}
	if o.WallClockLimit != 0 {
		cfg.WallClockLimit = o.WallClockLimit
	}
	if o.RedisURL != "" {
		cfg.RedisURL = o.RedisURL
	}
	if o.AMQPURL != "" {
		cfg.AMQPURL = o.AMQPURL
	}
	if o.SSHKnownHosts != "" {
		cfg.SSHKnownHosts = o.SSHKnownHosts
	}
	if o.HCloudToken != "" {
		cfg.HCloudToken = o.HCloudToken
	}
	if o.KubeConfig != "" {
		cfg.KubeConfig = o.KubeConfig
	}
	if o.CouchURL != "" {
		cfg.CouchURL = o.CouchURL
	}
	if o.ResultArchiveRepo != "" {
		cfg.ResultArchiveRepo = o.ResultArchiveRepo
	}
	if o.ResultArchiveS3Bucket != "" {
		cfg.ResultArchiveS3Bucket = o.ResultArchiveS3Bucket
	}
	if o.ResultArchiveS3Region != "" {
		cfg.ResultArchiveS3Region = o.ResultArchiveS3Region
	}
	if o.ResultArchiveS3Prefix != "" {
		cfg.ResultArchiveS3Prefix = o.ResultArchiveS3Prefix
	}
	if o.ResultArchiveS3Endpoint != "" {
		cfg.ResultArchiveS3Endpoint = o.ResultArchiveS3Endpoint
	}
}
