// Package s3 pushes produced result files to an S3-compatible bucket, a
// second result-archiving backend alongside pkg/archive/gitea for
// deployments that already standardize on object storage rather than a
// forge. It uses the same aws-sdk-go-v2 stack as any other S3 client in
// the ecosystem; there is no teacher-repo S3 usage to ground the upload
// call itself on, so the upload path follows the SDK's own documented
// manager.Uploader idiom, while the credential/config resolution
// (LoadDefaultConfig, with explicit static credentials overriding the
// default chain when an access key is set) mirrors
// how this module's other cloud providers (pkg/resource/cloud/hcloud)
// take an explicit token rather than relying on ambient environment
// discovery alone.
package s3

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config bundles the bucket/credentials an Archiver uploads to.
type Config struct {
	Bucket          string
	Region          string
	Prefix          string // key prefix every upload is placed under
	AccessKeyId     string // optional; empty uses the default credential chain
	SecretAccessKey string
	Endpoint        string // optional; non-empty targets an S3-compatible endpoint (e.g. MinIO)
}

// Archiver uploads local files to one S3 bucket as archived results.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// New resolves AWS configuration (explicit credentials when provided,
// otherwise the default chain) and builds an Archiver scoped to cfg.Bucket.
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	var optFns []func(*config.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyId != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyId, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("archive/s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Archiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// ArchiveFiles uploads every local path in files to the bucket under
// <prefix>/<tagName>/<basename>.
func (a *Archiver) ArchiveFiles(ctx context.Context, tagName string, files []string) error {
	uploader := manager.NewUploader(a.client)
	for _, path := range files {
		if err := a.uploadFile(ctx, uploader, tagName, path); err != nil {
			return fmt.Errorf("archive/s3: upload %s: %w", path, err)
		}
	}
	return nil
}

func (a *Archiver) uploadFile(ctx context.Context, uploader *manager.Uploader, tagName, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	key := a.objectKey(tagName, filepath.Base(path))
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return err
}

func (a *Archiver) objectKey(tagName, name string) string {
	if a.prefix == "" {
		return tagName + "/" + name
	}
	return a.prefix + "/" + tagName + "/" + name
}
