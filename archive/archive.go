// Package archive mirrors persisted reports to an S3-compatible backend.
//
// The mirror is best effort: a failed put is reported to the caller, who
// logs and counts it, but never fails the run. Keys are Hive-partitioned
// by pull day and run id so downstream jobs can address one run's output.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// reportContentType is the content type recorded on every mirrored object.
const reportContentType = "text/csv"

// Config holds configuration for the S3 archive backend.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
}

// Validate checks that required archive configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("archive bucket is required")
	}
	return nil
}

// Archiver mirrors one saved report file to a remote backend.
type Archiver interface {
	// Store uploads one report body under the given filename.
	Store(ctx context.Context, filename string, body io.Reader) error
}

// PutObjectAPI is the narrow S3 surface the mirror needs.
// Satisfied by *s3.Client; stub it in tests.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver mirrors reports into an S3 bucket under
// {prefix}/day={day}/run_id={run_id}/{filename}.
type S3Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
}

var _ Archiver = (*S3Archiver)(nil)

// NewS3Archiver creates an archiver bound to one run's key partition.
// Uses the AWS SDK default credential chain (env vars, shared config,
// IAM role). day is the run's "from" date formatted YYYY-MM-DD.
func NewS3Archiver(ctx context.Context, cfg Config, day, runID string) (*S3Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return newS3Archiver(s3.NewFromConfig(awsConfig, s3Opts...), cfg, day, runID), nil
}

// newS3Archiver wires an archiver onto an existing client. Split from
// NewS3Archiver so tests can inject a stub PutObjectAPI.
func newS3Archiver(client PutObjectAPI, cfg Config, day, runID string) *S3Archiver {
	prefix := path.Join(cfg.Prefix, "day="+day, "run_id="+runID)
	return &S3Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}
}

// Store uploads one report body under the run's key partition.
func (a *S3Archiver) Store(ctx context.Context, filename string, body io.Reader) error {
	key := path.Join(a.prefix, filename)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(reportContentType),
	})
	if err != nil {
		return fmt.Errorf("archive put %s: %w", key, err)
	}
	return nil
}
