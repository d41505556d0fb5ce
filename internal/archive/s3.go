package archive

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds the connection settings for an object-store archive.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3 implements Index over a bucket, treating "/" separated key prefixes as
// directories.
type S3 struct {
	client *minio.Client
	bucket string
}

// NewS3 creates an S3 backend.
func NewS3(cfg S3Config) (*S3, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("archive: s3 endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("archive: s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: init s3 client: %w", err)
	}
	return &S3{client: client, bucket: bucket}, nil
}

// prefix converts an archive path to an object key prefix.
func prefix(p string) string {
	if p == Root {
		return ""
	}
	return strings.TrimPrefix(p, "/") + "/"
}

// ListChildDirs returns the common prefixes one level below p.
func (s *S3) ListChildDirs(ctx context.Context, p string) ([]string, error) {
	pre := prefix(p)
	var out []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    pre,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("archive: list %s: %w", p, obj.Err)
		}
		if !strings.HasSuffix(obj.Key, "/") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, pre), "/")
		if name == "" {
			continue
		}
		out = append(out, Join(p, name))
	}
	sort.Strings(out)
	return out, nil
}

// SizeOf sums every object stored under p.
func (s *S3) SizeOf(ctx context.Context, p string) (Size, error) {
	var size Size
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix(p),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return Size{}, fmt.Errorf("archive: size %s: %w", p, obj.Err)
		}
		// Zero-byte "folder" markers are not files.
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		size.Bytes += obj.Size
		size.Files++
	}
	return size, nil
}
