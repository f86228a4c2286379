package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/trace"

	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/internal/telemetry"
	"github.com/reelcache/reelcache/pkg/metrics"
)

// S3Config holds configuration for the S3 fetcher.
type S3Config struct {
	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string

	// AccessKey and SecretKey select static credentials; when empty the SDK
	// default chain applies.
	AccessKey string
	SecretKey string

	// ForcePathStyle forces path-style addressing (required for Localstack/MinIO).
	ForcePathStyle bool
}

// S3Fetcher downloads assets addressed as s3://bucket/key locators.
type S3Fetcher struct {
	client  *s3.Client
	tempDir string
	timeout time.Duration
}

// NewS3Fetcher creates a fetcher writing into tempDir. timeout 0 means
// DefaultDownloadTimeout.
func NewS3Fetcher(ctx context.Context, cfg S3Config, tempDir string, timeout time.Duration) (*S3Fetcher, error) {
	if timeout == 0 {
		timeout = DefaultDownloadTimeout
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Fetcher{
		client:  s3.NewFromConfig(awsCfg, s3Opts...),
		tempDir: tempDir,
		timeout: timeout,
	}, nil
}

// parseS3URL splits s3://bucket/key into bucket and key.
func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("malformed s3 locator %q: %w", rawURL, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("malformed s3 locator %q", rawURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 locator %q has no object key", rawURL)
	}
	return u.Host, key, nil
}

// Fetch implements Fetcher for s3:// locators.
func (f *S3Fetcher) Fetch(ctx context.Context, rawURL, titleHint string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanFetch,
		trace.WithAttributes(
			telemetry.Backend("s3"),
			telemetry.Locator(rawURL),
		))
	defer span.End()

	start := time.Now()

	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	resp, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", fmt.Errorf("%w: s3 get object %s/%s: %v", ErrFetchFailed, bucket, key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	tmp, err := os.CreateTemp(f.tempDir, "fetch-*.download")
	if err != nil {
		return "", fmt.Errorf("%w: creating temp file: %v", ErrFetchFailed, err)
	}

	written, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: downloading %q: %v", ErrFetchFailed, titleHint, err)
	}

	metrics.ObserveFetch(time.Since(start))
	logger.InfoCtx(ctx, "Downloaded remote asset from S3",
		"title", titleHint,
		"bucket", bucket,
		"bytes", written,
	)

	return tmp.Name(), nil
}

// ForLocator picks a fetcher by locator scheme. s3:// goes to the S3 fetcher
// when one is configured; everything else goes to the HTTP fetcher.
func ForLocator(rawURL string, httpFetcher *HTTPFetcher, s3Fetcher *S3Fetcher) Fetcher {
	if s3Fetcher != nil && strings.HasPrefix(rawURL, "s3://") {
		return s3Fetcher
	}
	return httpFetcher
}
