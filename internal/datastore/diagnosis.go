package datastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/nongbuhae/cropdoc/internal/errors"
)

// DiagnosisFilters selects diagnosis records for listing.
type DiagnosisFilters struct {
	UserID         string
	From           time.Time // inclusive, zero means unbounded
	Until          time.Time // exclusive, zero means unbounded
	SortDescending bool
}

// NewDiagnosisFilters returns filters for one user's records in ascending
// creation order.
func NewDiagnosisFilters(userID string) *DiagnosisFilters {
	return &DiagnosisFilters{UserID: userID}
}

// WithCreatedRange restricts records to from <= created_at < until.
func (f *DiagnosisFilters) WithCreatedRange(from, until time.Time) *DiagnosisFilters {
	f.From = from
	f.Until = until
	return f
}

// WithDescending reverses the creation order
func (f *DiagnosisFilters) WithDescending(desc bool) *DiagnosisFilters {
	f.SortDescending = desc
	return f
}

// validateIdentities checks that the primary slot is resolved and that a
// local disease id always mirrors its reference code.
func validateIdentities(r *DiagnosisRecord) error {
	if strings.TrimSpace(r.ReferenceCode1) == "" {
		return errors.New(fmt.Errorf("%w: primary reference code is empty", errors.ErrCorruptRecord)).
			Component("datastore").
			Category(errors.CategoryIntegrity).
			Context("user_id", r.UserID).
			Build()
	}
	if r.DiseaseID1 != nil && *r.DiseaseID1 != r.ReferenceCode1 {
		return errors.New(fmt.Errorf("%w: disease id %q does not match reference code %q",
			errors.ErrCorruptRecord, *r.DiseaseID1, r.ReferenceCode1)).
			Component("datastore").
			Category(errors.CategoryIntegrity).
			Build()
	}
	if r.DiseaseID2 != nil && (r.ReferenceCode2 == nil || *r.DiseaseID2 != *r.ReferenceCode2) {
		return errors.New(fmt.Errorf("%w: secondary disease id without matching reference code", errors.ErrCorruptRecord)).
			Component("datastore").
			Category(errors.CategoryIntegrity).
			Build()
	}
	return nil
}

// SaveDiagnosis inserts a new record. Timestamps are stored in UTC.
func (ds *DataStore) SaveDiagnosis(ctx context.Context, record *DiagnosisRecord) error {
	if err := validateIdentities(record); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.CreatedAt = record.CreatedAt.UTC()

	if err := ds.DB.WithContext(ctx).Create(record).Error; err != nil {
		return dbError(err, "save_diagnosis")
	}
	return nil
}

// ListDiagnoses returns the records matching filters, ordered by creation
// time with the id as tie-breaker.
func (ds *DataStore) ListDiagnoses(ctx context.Context, filters *DiagnosisFilters) ([]DiagnosisRecord, error) {
	if filters == nil || filters.UserID == "" {
		return nil, errors.Newf("user id is required to list diagnoses").
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	q := ds.DB.WithContext(ctx).Where("user_id = ?", filters.UserID)
	if !filters.From.IsZero() {
		q = q.Where("created_at >= ?", filters.From.UTC())
	}
	if !filters.Until.IsZero() {
		q = q.Where("created_at < ?", filters.Until.UTC())
	}
	if filters.SortDescending {
		q = q.Order("created_at DESC").Order("id DESC")
	} else {
		q = q.Order("created_at ASC").Order("id ASC")
	}

	var records []DiagnosisRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, dbError(err, "list_diagnoses")
	}
	return records, nil
}

// DeleteDiagnosis removes record id if it belongs to userID and returns the
// deleted row.
func (ds *DataStore) DeleteDiagnosis(ctx context.Context, id uint, userID string) (*DiagnosisRecord, error) {
	var deleted DiagnosisRecord
	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Limit(1).Find(&deleted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.ErrNotFound
		}
		return tx.Delete(&DiagnosisRecord{}, deleted.ID).Error
	})
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return nil, errors.New(fmt.Errorf("diagnosis %d %w", id, errors.ErrNotFound)).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("user_id", userID).
			Build()
	case err != nil:
		return nil, dbError(err, "delete_diagnosis")
	}
	return &deleted, nil
}
