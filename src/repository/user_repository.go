package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalcopier/src/database"
	"signalcopier/src/model"
)

// UserRepository handles API user lookups for the auth middleware.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *UserRepository) WithDB(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByToken resolves an opaque bearer token to its user, with the user's
// prop firms preloaded. Returns (nil, nil) when the token is unknown.
func (r *UserRepository) FindByToken(
	ctx context.Context,
	token string,
) (*model.User, error) {

	var user model.User

	err := r.db.WithContext(ctx).
		Preload("PropFirms").
		Where("token = ?", token).
		First(&user).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "UserRepository",
				"op":   "FindByToken",
			}).Info("Unknown API token")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "UserRepository",
			"op":   "FindByToken",
		}).WithError(err).Error("Failed to resolve API token")

		return nil, err
	}

	return &user, nil
}

func (r *UserRepository) Create(
	ctx context.Context,
	user *model.User,
) error {

	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "UserRepository",
			"op":       "Create",
			"username": user.Username,
		}).WithError(err).Error("Failed to create user")

		return err
	}

	return nil
}
