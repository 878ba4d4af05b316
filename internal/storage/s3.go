// Package storage uploads message attachments to S3-compatible object
// storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/npezzotti/go-dm/internal/apperr"
	"github.com/npezzotti/go-dm/internal/config"
	"github.com/npezzotti/go-dm/internal/types"
)

const StorageName = "s3"

var AllowedTypes = []string{"image/png", "image/jpeg", "application/pdf", "text/plain"}

var (
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrTooLarge        = errors.New("file too large")
)

// ObjectPutter is the part of *s3.Client the store uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type File struct {
	Name string
	Mime string
	Size int64
	Body io.Reader
}

type S3Store struct {
	client    ObjectPutter
	bucket    string
	publicURL string
	maxBytes  int64
	newKey    func(userId int, name string) string
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// NewS3Store builds a client for the configured endpoint using static
// credentials.
func NewS3Store(ctx context.Context, cfg config.S3Config, maxBytes int64) (*S3Store, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return NewS3StoreWithClient(client, cfg.Bucket, cfg.PublicURL, maxBytes), nil
}

func NewS3StoreWithClient(client ObjectPutter, bucket, publicURL string, maxBytes int64) *S3Store {
	return &S3Store{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		maxBytes:  maxBytes,
		newKey:    ObjectKey,
	}
}

// ObjectKey returns a unique key under the user's prefix that keeps the
// file's extension.
func ObjectKey(userId int, name string) string {
	return fmt.Sprintf("users/%d/%s%s", userId, uuid.NewString(), strings.ToLower(path.Ext(name)))
}

// NormalizeMime lowercases a declared content type and strips parameters.
func NormalizeMime(mime string) string {
	mime, _, _ = strings.Cut(mime, ";")
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "" {
		return "application/octet-stream"
	}
	return mime
}

// Check applies the type and size policy to f.
func (s *S3Store) Check(f File) error {
	if !slices.Contains(AllowedTypes, NormalizeMime(f.Mime)) {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, NormalizeMime(f.Mime))
	}
	if f.Size > s.maxBytes {
		return fmt.Errorf("%w (> %d bytes)", ErrTooLarge, s.maxBytes)
	}
	return nil
}

// Upload stores f for userId and returns the attachment record clients
// pass back in send_message frames.
func (s *S3Store) Upload(ctx context.Context, userId int, f File) (types.UploadedFile, error) {
	if err := s.Check(f); err != nil {
		return types.UploadedFile{}, err
	}

	mime := NormalizeMime(f.Mime)
	key := s.newKey(userId, f.Name)

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f.Body,
		ContentType:   aws.String(mime),
		ContentLength: aws.Int64(f.Size),
	}); err != nil {
		return types.UploadedFile{}, apperr.Upstream("upload failed", err)
	}

	name := f.Name
	if name == "" {
		name = path.Base(key)
	}

	return types.UploadedFile{
		FilePath:   s.publicURL + "/" + key,
		FileName:   name,
		Mime:       mime,
		SizeBytes:  f.Size,
		Storage:    StorageName,
		ProviderId: key,
	}, nil
}
