// Package storage uploads diagnosis photos to object storage and deletes
// them again.
package storage

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/errors"
)

// AllowedContentTypes lists the image types accepted for upload.
var AllowedContentTypes = []string{"image/jpeg", "image/png", "image/gif"}

// Upload is an image to store.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Object is a stored image.
type Object struct {
	Key string // storage key, used for deletion
	URL string // public URL
}

// Store uploads and deletes objects.
type Store interface {
	Upload(ctx context.Context, u Upload) (Object, error)
	Delete(ctx context.Context, key string) error
}

// New returns the backend selected by settings.Backend.
func New(ctx context.Context, settings *conf.StorageSettings) (Store, error) {
	switch settings.Backend {
	case "minio":
		return NewMinIO(ctx, settings.MinIO, settings.Prefix)
	case "gcs":
		return NewGCS(ctx, settings.GCS, settings.Prefix)
	default:
		return nil, errors.Newf("unsupported storage backend %q", settings.Backend).
			Component("storage").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// ValidateContentType rejects types outside AllowedContentTypes.
func ValidateContentType(contentType string) error {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if slices.Contains(AllowedContentTypes, ct) {
		return nil
	}
	return errors.New(fmt.Errorf("%w: unsupported image type %q", errors.ErrInvalidInput, contentType)).
		Component("storage").
		Category(errors.CategoryValidation).
		Build()
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9\-_.]+`)

// sanitizeFileName keeps the base name with only [a-z0-9-_.].
func sanitizeFileName(name string) string {
	name = strings.ToLower(path.Base(strings.ReplaceAll(name, `\`, "/")))
	name = strings.ReplaceAll(name, " ", "-")
	name = unsafeChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-_.")
	if name == "" {
		name = "image"
	}
	return name
}

// ObjectKey returns "<prefix>-<uuid>-<filename>".
func ObjectKey(prefix, filename string) string {
	key := uuid.NewString() + "-" + sanitizeFileName(filename)
	if prefix == "" {
		return key
	}
	return prefix + "-" + key
}

func uploadError(err error, backend, key string) error {
	return errors.New(fmt.Errorf("%w: %w", errors.ErrUploadFailed, err)).
		Component("storage").
		Category(errors.CategoryStorage).
		Context("backend", backend).
		Context("key", key).
		Build()
}

func deleteError(err error, backend, key string) error {
	return errors.New(fmt.Errorf("failed to delete object: %w", err)).
		Component("storage").
		Category(errors.CategoryStorage).
		Context("backend", backend).
		Context("key", key).
		Build()
}

// prepare validates u and returns its object key.
func prepare(u Upload, prefix string) (string, error) {
	if err := ValidateContentType(u.ContentType); err != nil {
		return "", err
	}
	if len(u.Data) == 0 {
		return "", errors.New(fmt.Errorf("%w: empty image", errors.ErrInvalidInput)).
			Component("storage").
			Category(errors.CategoryValidation).
			Build()
	}
	return ObjectKey(prefix, u.Filename), nil
}
