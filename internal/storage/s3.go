package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Options configures an S3-compatible bucket (AWS S3, MinIO, R2).
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string // empty for AWS
	Key       string
	Secret    string
	PublicURL string
	MaxBytes  int64
}

type S3Store struct {
	client   *s3.Client
	bucket   string
	baseURL  string
	maxBytes int64
}

func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("storage/s3: bucket is not configured")
	}

	loadOpts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(opts.Region)}
	if opts.Key != "" && opts.Secret != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.Key, opts.Secret, ""),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage/s3: load config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	baseURL := strings.TrimRight(opts.PublicURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	}

	return &S3Store{
		client:   s3.NewFromConfig(cfg, clientOpts...),
		bucket:   opts.Bucket,
		baseURL:  baseURL,
		maxBytes: opts.MaxBytes,
	}, nil
}

func (s *S3Store) Store(ctx context.Context, filename string, r io.Reader, size int64) (string, error) {
	if err := check(filename, size, s.maxBytes); err != nil {
		return "", err
	}
	name := objectName(filename)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(name),
		Body:          r,
		ContentLength: aws.Int64(size),
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("storage/s3: put %s: %w", name, err)
	}
	return s.baseURL + "/" + name, nil
}

func (s *S3Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(SafeName(name)),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage/s3: get %s: %w", name, err)
	}
	return out.Body, nil
}
