package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for the S3 source.
type S3Config struct {
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom endpoint for S3-compatible providers
	// (MinIO, R2). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
}

// S3API is the subset of the S3 client used by S3.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 reads ranges of S3 objects. The path passed to Fetch is
// "bucket/key".
type S3 struct {
	client S3API
	limit  limiter
}

// NewS3 creates an S3 fetcher using the AWS SDK default credential chain.
func NewS3(ctx context.Context, cfg S3Config, bytesPerSecond int64) (*S3, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
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
	return NewS3WithClient(s3.NewFromConfig(awsConfig, s3Opts...), bytesPerSecond), nil
}

// NewS3WithClient creates an S3 fetcher on an existing client.
func NewS3WithClient(client S3API, bytesPerSecond int64) *S3 {
	return &S3{client: client, limit: newLimiter(bytesPerSecond)}
}

// Fetch returns bytes [start, end) of the object at "bucket/key".
func (s *S3) Fetch(ctx context.Context, path string, start, end int64) ([]byte, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	bucket, key, err := splitS3Path(path)
	if err != nil {
		return nil, err
	}
	if start == end {
		return []byte{}, nil
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end-1)),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	buf, err := s.limit.readRange(out.Body, end-start)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	return buf, nil
}

func splitS3Path(path string) (bucket, key string, err error) {
	bucket, key, ok := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errors.New("s3 path must be bucket/key: " + path)
	}
	return bucket, key, nil
}
