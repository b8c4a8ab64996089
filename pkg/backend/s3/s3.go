// Package s3 provides an S3-backed backend factory. Every archive is one
// object keyed by its path, loaded into memory on open and written back as
// a whole on sync and close. Works against AWS and S3-compatible services
// such as MinIO or Localstack.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/xuejiangtao/rrd4j/pkg/backend"
)

// Name is the canonical factory name for this kind.
const Name = "S3"

// Config holds configuration for the S3 adapter.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Region is the AWS region (optional, SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible
	// services).
	Endpoint string

	// KeyPrefix is prepended to all archive paths. Should end with "/"
	// when non-empty.
	KeyPrefix string

	// ForcePathStyle forces path-style addressing (required for
	// Localstack/MinIO).
	ForcePathStyle bool
}

// Register adds the factory to reg under its canonical name, capturing cfg
// in the constructor, and returns the name.
func Register(reg *backend.Registry, cfg Config) string {
	return reg.Register(Name, func() (backend.Driver, error) {
		if cfg.Bucket == "" {
			return nil, errors.New("s3 backend requires a bucket")
		}
		return New(cfg), nil
	})
}

// Driver stores archives as S3 objects. The client is built on Start
// unless one was injected with NewWithClient.
type Driver struct {
	cfg    Config
	client *s3.Client
	opens  atomic.Int64
	puts   atomic.Int64
	gets   atomic.Int64
}

// New returns a driver for cfg. No AWS configuration is loaded until
// Start.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

// NewWithClient returns a driver using an existing client. Start only
// verifies bucket access.
func NewWithClient(client *s3.Client, cfg Config) *Driver {
	return &Driver{cfg: cfg, client: client}
}

// Start implements backend.Driver: it builds the client when needed and
// verifies the bucket is reachable.
func (d *Driver) Start(ctx context.Context) error {
	if d.client == nil {
		var opts []func(*awsconfig.LoadOptions) error
		if d.cfg.Region != "" {
			opts = append(opts, awsconfig.WithRegion(d.cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}

		var s3Opts []func(*s3.Options)
		if d.cfg.Endpoint != "" {
			s3Opts = append(s3Opts, func(o *s3.Options) {
				o.BaseEndpoint = aws.String(d.cfg.Endpoint)
			})
		}
		if d.cfg.ForcePathStyle {
			s3Opts = append(s3Opts, func(o *s3.Options) {
				o.UsePathStyle = true
			})
		}
		d.client = s3.NewFromConfig(awsCfg, s3Opts...)
	}

	_, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(d.cfg.Bucket),
	})
	if err != nil {
		return fmt.Errorf("head bucket %q: %w", d.cfg.Bucket, err)
	}
	return nil
}

// Stop implements backend.Driver. The SDK client holds no resources that
// need explicit teardown.
func (d *Driver) Stop(ctx context.Context) error { return nil }

func (d *Driver) key(path string) string {
	return d.cfg.KeyPrefix + path
}

// Open implements backend.Driver. The object is fetched whole; a missing
// key starts empty unless opened read-only.
func (d *Driver) Open(ctx context.Context, path string, readOnly bool) (backend.Backend, error) {
	key := d.key(path)

	var image []byte
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		d.gets.Add(1)
		defer func() { _ = out.Body.Close() }()
		image, err = io.ReadAll(out.Body)
		if err != nil {
			return nil, fmt.Errorf("read rrd object s3://%s/%s: %w", d.cfg.Bucket, key, err)
		}
	case isNoSuchKey(err):
		if readOnly {
			return nil, fmt.Errorf("rrd object s3://%s/%s does not exist", d.cfg.Bucket, key)
		}
	default:
		return nil, fmt.Errorf("get rrd object s3://%s/%s: %w", d.cfg.Bucket, key, err)
	}

	d.opens.Add(1)
	return backend.NewBlobBackend(path, image, readOnly, func(ctx context.Context, image []byte) error {
		_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(d.cfg.Bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(image),
		})
		if err != nil {
			return fmt.Errorf("put rrd object s3://%s/%s: %w", d.cfg.Bucket, key, err)
		}
		d.puts.Add(1)
		return nil
	}), nil
}

// Exists implements backend.Driver.
func (d *Driver) Exists(ctx context.Context, path string) (bool, error) {
	_, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(d.key(path)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head rrd object s3://%s/%s: %w", d.cfg.Bucket, d.key(path), err)
}

// ShouldValidateHeader implements backend.Driver.
func (d *Driver) ShouldValidateHeader(ctx context.Context, path string) (bool, error) {
	return false, nil
}

// ResolveUniqID implements backend.Driver: archives resolve to their fully
// qualified object URL.
func (d *Driver) ResolveUniqID(id any) (string, error) {
	s, ok := id.(string)
	if !ok {
		return "", fmt.Errorf("cannot resolve %T as an s3 rrd path", id)
	}
	return fmt.Sprintf("s3://%s/%s", d.cfg.Bucket, d.key(s)), nil
}

// Stats implements backend.StatsProvider.
func (d *Driver) Stats() map[string]float64 {
	return map[string]float64{
		"opens_total": float64(d.opens.Load()),
		"gets_total":  float64(d.gets.Load()),
		"puts_total":  float64(d.puts.Load()),
	}
}

func isNoSuchKey(err error) bool {
	var noKey *types.NoSuchKey
	return errors.As(err, &noKey)
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}
