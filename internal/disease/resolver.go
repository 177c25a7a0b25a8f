package disease

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/logger"
	"github.com/nongbuhae/cropdoc/internal/ncpms"
)

// External is the reference service used when the local table misses.
type External interface {
	Search(ctx context.Context, crop, name string) (*ncpms.SearchResult, error)
	FetchDetail(ctx context.Context, code string) (*ncpms.Detail, error)
}

// Resolver applies one precedence policy to every lookup: the local table
// first, then the external service.
type Resolver struct {
	store    *LocalStore
	external External
	cache    *cache.Cache // nil when caching is disabled
	log      logger.Logger
}

// NewResolver creates a Resolver. A positive cacheTTL caches successful
// resolutions per (crop, name) for that long.
func NewResolver(store *LocalStore, external External, cacheTTL time.Duration) *Resolver {
	r := &Resolver{
		store:    store,
		external: external,
		log:      logger.Global().Module("disease"),
	}
	if cacheTTL > 0 {
		r.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return r
}

func cacheKey(crop, name string) string {
	return NormalizeCrop(crop) + "\x00" + NormalizeName(name)
}

// Resolve resolves name for crop. Failures wrap errors.ErrDiseaseNotFound,
// errors.ErrInvalidCrop or errors.ErrUpstreamUnavailable; a local database
// failure is returned as is.
func (r *Resolver) Resolve(ctx context.Context, crop, name string) (*Resolution, error) {
	key := cacheKey(crop, name)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			if cached, ok := v.(*Resolution); ok {
				return cached.clone(), nil
			}
		}
	}

	res, err := r.resolve(ctx, crop, name)
	if err != nil {
		return nil, err
	}

	r.log.Debug("disease resolved",
		logger.String("crop", crop),
		logger.String("name", name),
		logger.String("source", string(res.Source)),
		logger.String("reference_code", res.ReferenceCode))

	if r.cache != nil {
		r.cache.SetDefault(key, res.clone())
	}
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, crop, name string) (*Resolution, error) {
	crop, name = NormalizeCrop(crop), NormalizeName(name)
	if name == "" {
		return nil, errors.New(fmt.Errorf("%w: empty disease name (%s)", errors.ErrDiseaseNotFound, crop)).
			Component("disease").
			Category(errors.CategoryNotFound).
			Context("crop", crop).
			Build()
	}
	desc, id, err := r.store.LookupByCropAndName(ctx, crop, name)
	if err != nil {
		return nil, err
	}
	if desc != nil {
		return &Resolution{
			Descriptor:    *desc,
			DiseaseID:     &id,
			ReferenceCode: id,
			Source:        SourceLocal,
		}, nil
	}

	hit, err := r.external.Search(ctx, crop, name)
	switch {
	case errors.Is(err, errors.ErrUnrecognizedCrop):
		return nil, errors.New(fmt.Errorf("%w: %s", errors.ErrInvalidCrop, crop)).
			Component("disease").
			Category(errors.CategoryValidation).
			Context("crop", crop).
			Build()
	case err != nil:
		return nil, err
	case hit == nil:
		return nil, errors.New(fmt.Errorf("%w: %s (%s)", errors.ErrDiseaseNotFound, name, crop)).
			Component("disease").
			Category(errors.CategoryNotFound).
			Context("crop", crop).
			Context("name", name).
			Build()
	}

	detail, err := r.external.FetchDetail(ctx, hit.ReferenceCode)
	if err != nil {
		return nil, err
	}
	d := fromDetail(detail)
	if hit.ThumbnailURL != "" {
		d.ImageURL = hit.ThumbnailURL
	}
	return &Resolution{
		Descriptor:    d,
		ReferenceCode: hit.ReferenceCode,
		Source:        SourceExternal,
	}, nil
}

// Describe returns the descriptor for (crop, name) using the same
// precedence as Resolve.
func (r *Resolver) Describe(ctx context.Context, crop, name string) (*Descriptor, error) {
	res, err := r.Resolve(ctx, crop, name)
	if err != nil {
		return nil, err
	}
	return &res.Descriptor, nil
}

// Expand rebuilds the descriptor of a stored diagnosis slot. A local id is
// read from the reference table, otherwise the reference code is fetched
// from the external service. A slot with neither is corrupt.
func (r *Resolver) Expand(ctx context.Context, diseaseID *string, referenceCode string) (*Descriptor, error) {
	if diseaseID != nil && *diseaseID != "" {
		desc, err := r.store.LookupByID(ctx, *diseaseID)
		if err != nil {
			return nil, err
		}
		if desc == nil {
			return nil, errors.New(fmt.Errorf("reference disease %s %w", *diseaseID, errors.ErrNotFound)).
				Component("disease").
				Category(errors.CategoryNotFound).
				Build()
		}
		return desc, nil
	}

	if referenceCode != "" {
		detail, err := r.external.FetchDetail(ctx, referenceCode)
		if err != nil {
			return nil, err
		}
		d := fromDetail(detail)
		return &d, nil
	}

	return nil, errors.New(fmt.Errorf("%w: no disease id or reference code", errors.ErrCorruptRecord)).
		Component("disease").
		Category(errors.CategoryIntegrity).
		Build()
}

// Invalidate drops the cached resolution for (crop, name).
func (r *Resolver) Invalidate(crop, name string) {
	if r.cache != nil {
		r.cache.Delete(cacheKey(crop, name))
	}
}

// Flush drops every cached resolution
func (r *Resolver) Flush() {
	if r.cache != nil {
		r.cache.Flush()
		r.log.Info("resolution cache flushed")
	}
}

func fromDetail(d *ncpms.Detail) Descriptor {
	return Descriptor{
		Name:       d.Name,
		Condition:  d.Condition,
		Symptoms:   d.Symptoms,
		Prevention: d.Prevention,
		ImageURL:   d.ImageURL,
		Crop:       d.Crop,
	}
}
