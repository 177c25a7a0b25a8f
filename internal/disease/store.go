package disease

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/nongbuhae/cropdoc/internal/datastore"
)

// Repository is the part of the datastore the reference store reads from.
type Repository interface {
	DiseaseByCropAndName(ctx context.Context, crop, name string) (*datastore.Disease, error)
	DiseaseByID(ctx context.Context, id string) (*datastore.Disease, error)
}

// LocalStore is the curated reference table. Lookups that miss return nil
// without an error.
type LocalStore struct {
	repo Repository
}

// NewLocalStore returns a LocalStore reading from repo
func NewLocalStore(repo Repository) *LocalStore {
	return &LocalStore{repo: repo}
}

// NormalizeName trims s and converts it to NFC. Some clients send Hangul in
// decomposed form, which would never match the seeded rows.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// NormalizeCrop is NormalizeName plus lower-casing. Crops are stored, looked
// up and allow-listed in this form.
func NormalizeCrop(s string) string {
	return strings.ToLower(NormalizeName(s))
}

// LookupByCropAndName returns the descriptor and row id for (crop, name).
func (s *LocalStore) LookupByCropAndName(ctx context.Context, crop, name string) (*Descriptor, string, error) {
	row, err := s.repo.DiseaseByCropAndName(ctx, NormalizeCrop(crop), NormalizeName(name))
	if err != nil || row == nil {
		return nil, "", err
	}
	d := fromRow(row)
	return &d, row.ID, nil
}

// LookupByID returns the descriptor stored under id.
func (s *LocalStore) LookupByID(ctx context.Context, id string) (*Descriptor, error) {
	row, err := s.repo.DiseaseByID(ctx, id)
	if err != nil || row == nil {
		return nil, err
	}
	d := fromRow(row)
	return &d, nil
}

func fromRow(row *datastore.Disease) Descriptor {
	return Descriptor{
		Name:        row.Name,
		EnglishName: row.EnglishName,
		Condition:   row.Condition,
		Symptoms:    row.Symptoms,
		Prevention:  row.Prevention,
		ImageURL:    row.ImageURL,
		Crop:        row.Crop,
	}
}
