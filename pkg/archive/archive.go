// Package archive uploads parsed manifests to an S3-compatible bucket.
//
// Objects are stored at manifests/<project_id>/<file_id>.json so the
// manifest of any resolved file can be inspected later without fetching the
// file again.
package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/matzehuels/dependents/pkg/deps"
)

const defaultRegion = "us-east-1"

// Config holds the bucket connection settings.
type Config struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// S3 implements [deps.ManifestArchive].
type S3 struct {
	client *minio.Client
	bucket string
	region string

	initOnce sync.Once
	initErr  error
}

// New validates cfg and creates the client. The bucket is created on first
// upload if it does not exist.
func New(cfg Config) (*S3, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("archive endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("archive access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init archive client: %w", err)
	}
	return &S3{client: client, bucket: bucket, region: region}, nil
}

func (s *S3) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Put uploads the manifest at localPath for id.
func (s *S3) Put(ctx context.Context, id deps.FileIdentifier, localPath string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	_, err := s.client.FPutObject(ctx, s.bucket, ObjectKey(id), localPath, minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload manifest %s: %w", id, err)
	}
	return nil
}

// Get downloads the archived manifest of id.
func (s *S3) Get(ctx context.Context, id deps.FileIdentifier) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ObjectKey(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, deps.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// ObjectKey returns the object name of the manifest of id.
func ObjectKey(id deps.FileIdentifier) string {
	return path.Join("manifests",
		strconv.FormatInt(id.ProjectID, 10),
		strconv.FormatInt(id.FileID, 10)+".json")
}

var _ deps.ManifestArchive = (*S3)(nil)
