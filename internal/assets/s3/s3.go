// Package s3 uploads assets to an S3-compatible bucket (AWS S3, MinIO).
package s3

import (
	"context"
	"fmt"
	"time"

	"accounts/internal/assets"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Uploader struct {
	client  putObjectAPI
	bucket  string
	baseURL string
	now     func() time.Time
}

// New builds a client from static credentials when they are given, and from
// the default AWS chain otherwise. A custom endpoint switches to path-style
// addressing.
func New(ctx context.Context, cfg Config) (*Uploader, error) {
	const op = "assets.s3.New"

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newUploader(client, cfg), nil
}

func newUploader(client putObjectAPI, cfg Config) *Uploader {
	return &Uploader{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: baseURL(cfg),
		now:     time.Now,
	}
}

func (u *Uploader) Upload(ctx context.Context, f assets.File) (string, error) {
	const op = "assets.s3.Upload"

	if f.Body == nil || f.Size <= 0 {
		return "", fmt.Errorf("%s: %w", op, assets.ErrEmptyFile)
	}

	key := assets.Key(f.Kind, f.Filename, u.now().UTC())

	in := &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f.Body,
		ContentLength: aws.Int64(f.Size),
	}
	if f.ContentType != "" {
		in.ContentType = aws.String(f.ContentType)
	}

	if _, err := u.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return assets.JoinURL(u.baseURL, key), nil
}

func baseURL(cfg Config) string {
	switch {
	case cfg.PublicBaseURL != "":
		return cfg.PublicBaseURL
	case cfg.Endpoint != "":
		return assets.JoinURL(cfg.Endpoint, cfg.Bucket)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}
