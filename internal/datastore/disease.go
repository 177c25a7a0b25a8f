package datastore

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nongbuhae/cropdoc/internal/errors"
)

// DiseaseByCropAndName returns the reference disease for (crop, name), or nil
// when no row matches.
func (ds *DataStore) DiseaseByCropAndName(ctx context.Context, crop, name string) (*Disease, error) {
	var d Disease
	err := ds.DB.WithContext(ctx).
		Where("crop = ? AND name = ?", crop, name).
		Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "disease_by_crop_and_name")
	}
	return &d, nil
}

// DiseaseByID returns the reference disease with the given id, or nil.
func (ds *DataStore) DiseaseByID(ctx context.Context, id string) (*Disease, error) {
	var d Disease
	err := ds.DB.WithContext(ctx).Where("id = ?", id).Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "disease_by_id")
	}
	return &d, nil
}

// UpsertDiseases inserts the given rows, replacing existing rows with the
// same id.
func (ds *DataStore) UpsertDiseases(ctx context.Context, diseases []Disease) error {
	if len(diseases) == 0 {
		return nil
	}
	err := ds.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"crop", "name", "english_name", "condition", "symptoms", "prevention", "image_url", "updated_at"}),
		}).
		CreateInBatches(diseases, 100).Error
	if err != nil {
		return dbError(err, "upsert_diseases")
	}
	return nil
}

// CountDiseases returns the number of reference rows.
func (ds *DataStore) CountDiseases(ctx context.Context) (int64, error) {
	var n int64
	if err := ds.DB.WithContext(ctx).Model(&Disease{}).Count(&n).Error; err != nil {
		return 0, dbError(err, "count_diseases")
	}
	return n, nil
}
