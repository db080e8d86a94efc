// Package objectstore keeps uploaded documents in S3 and hands the ingestion
// pipeline an s3://bucket/key reference to fetch them by.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"contentflow/internal/config"
	"contentflow/internal/retry"
	"contentflow/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

const refScheme = "s3"

type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(ctx context.Context, cfg config.Config) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name not set")
	}
	if cfg.S3Region == "" {
		return nil, fmt.Errorf("s3 region not set")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(awsCfg), bucket: cfg.S3Bucket}, nil
}

// Put uploads data under a per-user key and returns its s3:// reference. The
// reference keeps the original file extension so classification still works.
func (s *S3Store) Put(ctx context.Context, userID, filename string, data []byte, contentType string) (string, error) {
	key := ObjectKey(userID, filename, uuid.NewString())
	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := manager.NewUploader(s.client).Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return Ref(s.bucket, key), nil
}

// Get reads a whole object. A missing object is permanent.
func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	ctxGet, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := s.client.GetObject(ctxGet, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, retry.Permanent(fmt.Errorf("s3 object %s/%s: %w", bucket, key, util.ErrNotFound))
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return err
	}
	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := s.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

// ObjectKey is uploads/<user>/<id>/<clean file name>.
func ObjectKey(userID, filename, id string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case r == '/' || r == '?' || r == '#':
			return '_'
		}
		return r
	}, name)
	return path.Join("uploads", url.PathEscape(userID), id, name)
}

func Ref(bucket, key string) string {
	return (&url.URL{Scheme: refScheme, Host: bucket, Path: "/" + key}).String()
}

func ParseRef(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("parse object reference: %w", err)
	}
	if u.Scheme != refScheme || u.Host == "" || strings.Trim(u.Path, "/") == "" {
		return "", "", fmt.Errorf("object reference %q is not s3://bucket/key", ref)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
