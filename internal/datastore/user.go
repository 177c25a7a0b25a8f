package datastore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nongbuhae/cropdoc/internal/errors"
)

// GetUser returns the user with the given id.
func (ds *DataStore) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := ds.DB.WithContext(ctx).Where("id = ?", id).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New(fmt.Errorf("%w: %s", errors.ErrUserNotFound, id)).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	if err != nil {
		return nil, dbError(err, "get_user")
	}
	return &u, nil
}

// SaveUser creates the user or updates its nickname.
func (ds *DataStore) SaveUser(ctx context.Context, user *User) error {
	err := ds.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"nickname"}),
		}).
		Create(user).Error
	if err != nil {
		return dbError(err, "save_user")
	}
	return nil
}
