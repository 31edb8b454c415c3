package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"dupview/internal/config"
	"dupview/internal/dv"
)

// S3API is the subset of the S3 client used by S3Backend.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Backend reads a duplicity target stored under a key prefix of an S3
// bucket. Keys below a further "/" are not part of the target.
type S3Backend struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Backend wraps an existing client.
func NewS3Backend(client S3API, bucket, prefix string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, prefix: prefix}
}

// NewS3BackendFromConfig builds a client from the default AWS config
// chain. When no region is configured the bucket's region is looked up.
func NewS3BackendFromConfig(ctx context.Context, cfg config.BackendConfig) (*S3Backend, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}
	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}
	opts = append(opts, awsconfig.WithRegion(region))

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	}
	client := s3.NewFromConfig(awsCfg, clientOpts)

	if cfg.S3Region == "" && cfg.S3Endpoint == "" {
		detected, err := manager.GetBucketRegion(ctx, client, cfg.S3Bucket)
		if err != nil {
			return nil, fmt.Errorf("detecting region of bucket %s: %w", cfg.S3Bucket, err)
		}
		if detected != region {
			awsCfg.Region = detected
			client = s3.NewFromConfig(awsCfg, clientOpts)
		}
	}

	return NewS3Backend(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

func (b *S3Backend) List(ctx context.Context) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefix),
	})

	var names []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", b.bucket, b.prefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), b.prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			names = append(names, name)
		}
	}
	return names, nil
}

func (b *S3Backend) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.prefix + name),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("getting %s: %w", name, err)
	}
	return out.Body, nil
}

func (b *S3Backend) Location() string {
	return "s3://" + b.bucket + "/" + b.prefix
}

var _ dv.Backend = (*S3Backend)(nil)
