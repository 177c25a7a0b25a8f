package storage

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/logger"
)

const gcsPublicBase = "https://storage.googleapis.com"

// GCS stores objects in a Google Cloud Storage (or Firebase) bucket and
// makes them publicly readable.
type GCS struct {
	client     *storage.Client
	bucket     string
	prefix     string
	publicBase string
	log        logger.Logger
}

// NewGCS creates a client using the service account in s.CredentialsFile,
// or application default credentials when it is empty.
func NewGCS(ctx context.Context, s conf.GCSSettings, prefix string) (*GCS, error) {
	var opts []option.ClientOption
	if s.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to create GCS client: %w", err)).
			Component("storage").
			Category(errors.CategoryConfiguration).
			Build()
	}

	base := gcsPublicBase
	if s.PublicBaseURL != "" {
		base = strings.TrimRight(s.PublicBaseURL, "/")
	}
	return &GCS{
		client:     client,
		bucket:     s.Bucket,
		prefix:     prefix,
		publicBase: base,
		log:        logger.Global().Module("storage").With(logger.String("backend", "gcs")),
	}, nil
}

// Upload writes u and grants public read access to it
func (g *GCS) Upload(ctx context.Context, u Upload) (Object, error) {
	key, err := prepare(u, g.prefix)
	if err != nil {
		return Object{}, err
	}

	obj := g.client.Bucket(g.bucket).Object(key)
	w := obj.NewWriter(ctx)
	w.ContentType = u.ContentType
	if _, err := w.Write(u.Data); err != nil {
		_ = w.Close()
		return Object{}, uploadError(err, "gcs", key)
	}
	if err := w.Close(); err != nil {
		return Object{}, uploadError(err, "gcs", key)
	}

	if err := obj.ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
		// The object is already written; remove it so it does not leak.
		if delErr := obj.Delete(ctx); delErr != nil {
			g.log.Warn("failed to remove object after ACL error",
				logger.String("key", key), logger.Error(delErr))
		}
		return Object{}, uploadError(err, "gcs", key)
	}

	g.log.Debug("image uploaded", logger.String("key", key), logger.Int("size", len(u.Data)))
	return Object{Key: key, URL: objectURL(g.publicBase, g.bucket, key)}, nil
}

// Delete removes the object stored under key. A missing object is not an
// error.
func (g *GCS) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return deleteError(err, "gcs", key)
	}
	g.log.Debug("image deleted", logger.String("key", key))
	return nil
}

// Close releases the client
func (g *GCS) Close() error {
	return g.client.Close()
}
