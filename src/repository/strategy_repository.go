package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalcopier/src/database"
	"signalcopier/src/model"
)

// StrategyRepository handles the registry of known signal sources.
type StrategyRepository struct {
	db *gorm.DB
}

func NewStrategyRepository() *StrategyRepository {
	return &StrategyRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *StrategyRepository) WithDB(db *gorm.DB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

func (r *StrategyRepository) Create(
	ctx context.Context,
	strategy *model.TradingStrategy,
) error {

	err := r.db.WithContext(ctx).Create(strategy).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "StrategyRepository",
			"op":   "Create",
			"name": strategy.Name,
		}).WithError(err).Error("Failed to create trading strategy")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo": "StrategyRepository",
		"op":   "Create",
		"name": strategy.Name,
	}).Info("Trading strategy created")

	return nil
}

// FindByName fetches a strategy by its unique name.
// Returns (nil, nil) if not found.
func (r *StrategyRepository) FindByName(
	ctx context.Context,
	name string,
) (*model.TradingStrategy, error) {

	var strategy model.TradingStrategy

	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		First(&strategy).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "StrategyRepository",
			"op":   "FindByName",
			"name": name,
		}).WithError(err).Error("Failed to fetch trading strategy")

		return nil, err
	}

	return &strategy, nil
}

// FindByID fetches a strategy. Returns (nil, nil) if not found.
func (r *StrategyRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.TradingStrategy, error) {

	var strategy model.TradingStrategy

	err := r.db.WithContext(ctx).First(&strategy, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "StrategyRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch trading strategy by ID")

		return nil, err
	}

	return &strategy, nil
}

// Save persists edits to an existing strategy.
func (r *StrategyRepository) Save(
	ctx context.Context,
	strategy *model.TradingStrategy,
) error {

	err := r.db.WithContext(ctx).Save(strategy).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "StrategyRepository",
			"op":   "Save",
			"id":   strategy.ID,
		}).WithError(err).Error("Failed to save trading strategy")

		return err
	}

	return nil
}

func (r *StrategyRepository) FindAll(
	ctx context.Context,
) ([]model.TradingStrategy, error) {

	var strategies []model.TradingStrategy

	err := r.db.WithContext(ctx).
		Order("name ASC").
		Find(&strategies).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "StrategyRepository",
			"op":   "FindAll",
		}).WithError(err).Error("Failed to fetch trading strategies")

		return nil, err
	}

	return strategies, nil
}

func (r *StrategyRepository) Delete(
	ctx context.Context,
	id uint,
) error {

	err := r.db.WithContext(ctx).Delete(&model.TradingStrategy{}, id).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "StrategyRepository",
			"op":   "Delete",
			"id":   id,
		}).WithError(err).Error("Failed to delete trading strategy")

		return err
	}

	return nil
}
