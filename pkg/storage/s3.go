package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	lferrors "github.com/logflow/pmdash/pkg/errors"
)

// S3Config holds S3 client configuration.
type S3Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string `yaml:"region"`

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string `yaml:"endpoint"`

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool `yaml:"use_path_style"`

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	DownloadTimeout time.Duration `yaml:"download_timeout"`
	UploadTimeout   time.Duration `yaml:"upload_timeout"`
}

// DefaultS3Config returns sensible defaults for S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		DownloadTimeout: 5 * time.Minute,
		UploadTimeout:   5 * time.Minute,
	}
}

func (c S3Config) withDefaults() S3Config {
	d := DefaultS3Config()
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = d.DownloadTimeout
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = d.UploadTimeout
	}
	return c
}

type s3Client struct {
	cfg    S3Config
	client *s3.Client
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3Client, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	// Use explicit credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeFileNotFound, "failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &s3Client{cfg: cfg, client: client}, nil
}

func (c *s3Client) open(ctx context.Context, bucket, key string) (*Object, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)

	output, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		return nil, lferrors.Wrap(err, lferrors.CodeFileNotFound,
			fmt.Sprintf("failed to get object %s/%s", bucket, key))
	}

	size := int64(-1)
	if output.ContentLength != nil {
		size = *output.ContentLength
	}
	return &Object{
		ReadCloser: &cancelOnCloseReader{ReadCloser: output.Body, cancel: cancel},
		Name:       path.Base(key),
		Size:       size,
	}, nil
}

type cancelOnCloseReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnCloseReader) Close() error {
	r.cancel()
	return r.ReadCloser.Close()
}

func (c *s3Client) create(ctx context.Context, bucket, key string) *s3Writer {
	return &s3Writer{ctx: ctx, c: c, bucket: bucket, key: key}
}

// s3Writer buffers the object and uploads it with a single PutObject on
// Close. Rendered outputs are small enough that multipart is not needed.
type s3Writer struct {
	ctx    context.Context
	c      *s3Client
	bucket string
	key    string

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, fmt.Errorf("writer is closed")
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	ctx, cancel := context.WithTimeout(w.ctx, w.c.cfg.UploadTimeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(w.bucket),
		Key:           aws.String(w.key),
		Body:          bytes.NewReader(w.buf.Bytes()),
		ContentLength: aws.Int64(int64(w.buf.Len())),
	}
	if ct := mime.TypeByExtension(path.Ext(w.key)); ct != "" {
		input.ContentType = aws.String(ct)
	}

	if _, err := w.c.client.PutObject(ctx, input); err != nil {
		return lferrors.Wrap(err, lferrors.CodeWriteFailed,
			fmt.Sprintf("failed to put object %s/%s", w.bucket, w.key))
	}
	return nil
}
