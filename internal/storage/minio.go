package storage

import (
	"bytes"
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/logger"
)

// MinIO stores objects in an S3-compatible bucket
type MinIO struct {
	client     *minio.Client
	bucket     string
	prefix     string
	publicBase string
	log        logger.Logger
}

// NewMinIO connects to the endpoint and creates the bucket when missing.
func NewMinIO(ctx context.Context, s conf.MinIOSettings, prefix string) (*MinIO, error) {
	c, err := minio.New(s.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(s.AccessKey, s.SecretKey, ""),
		Secure: s.UseSSL,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("storage").
			Category(errors.CategoryConfiguration).
			Context("endpoint", s.Endpoint).
			Build()
	}

	exists, err := c.BucketExists(ctx, s.Bucket)
	if err != nil {
		return nil, errors.New(err).
			Component("storage").
			Category(errors.CategoryNetwork).
			Context("bucket", s.Bucket).
			Build()
	}
	if !exists {
		if err := c.MakeBucket(ctx, s.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.New(err).
				Component("storage").
				Category(errors.CategoryStorage).
				Context("bucket", s.Bucket).
				Build()
		}
	}

	return &MinIO{
		client:     c,
		bucket:     s.Bucket,
		prefix:     prefix,
		publicBase: minioPublicBase(s),
		log:        logger.Global().Module("storage").With(logger.String("backend", "minio")),
	}, nil
}

func minioPublicBase(s conf.MinIOSettings) string {
	if s.PublicBaseURL != "" {
		return strings.TrimRight(s.PublicBaseURL, "/")
	}
	scheme := "http"
	if s.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + s.Endpoint
}

// objectURL joins base, bucket and key into a public URL.
func objectURL(base, bucket, key string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "/" + bucket + "/" + url.PathEscape(key)
	}
	u.Path = path.Join(u.Path, bucket, key)
	return u.String()
}

// Upload stores u under a fresh key
func (m *MinIO) Upload(ctx context.Context, u Upload) (Object, error) {
	key, err := prepare(u, m.prefix)
	if err != nil {
		return Object{}, err
	}

	_, err = m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(u.Data), int64(len(u.Data)),
		minio.PutObjectOptions{ContentType: u.ContentType})
	if err != nil {
		return Object{}, uploadError(err, "minio", key)
	}

	m.log.Debug("image uploaded", logger.String("key", key), logger.Int("size", len(u.Data)))
	return Object{Key: key, URL: objectURL(m.publicBase, m.bucket, key)}, nil
}

// Delete removes the object stored under key
func (m *MinIO) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return deleteError(err, "minio", key)
	}
	m.log.Debug("image deleted", logger.String("key", key))
	return nil
}
