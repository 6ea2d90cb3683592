package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalcopier/src/database"
	"signalcopier/src/model"
)

// SignalRepository handles read/write operations for parsed signals.
type SignalRepository struct {
	db *gorm.DB
}

func NewSignalRepository() *SignalRepository {
	logger.WithField("component", "SignalRepository").
		Info("Creating new SignalRepository with MainDB")

	return &SignalRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Create inserts a new signal. Every parsed signal is persisted before any
// fan-out happens, so failed placements still leave an audit row.
func (r *SignalRepository) Create(
	ctx context.Context,
	sig *model.Signal,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":       "SignalRepository",
		"op":         "Create",
		"strategy":   sig.Strategy,
		"order_type": sig.OrderType,
		"ticker":     sig.Ticker,
	}).Debug("Creating new signal")

	err := r.db.WithContext(ctx).Create(sig).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create signal")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "SignalRepository",
		"op":        "Create",
		"signal_id": sig.ID,
	}).Info("Signal created successfully")

	return nil
}

// FindByID fetches a single signal. Returns (nil, nil) if not found.
func (r *SignalRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Signal, error) {

	var sig model.Signal

	err := r.db.WithContext(ctx).First(&sig, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch signal by ID")

		return nil, err
	}

	return &sig, nil
}

// FindLatest returns the latest signals ordered from newest to oldest.
func (r *SignalRepository) FindLatest(
	ctx context.Context,
	limit int,
) ([]model.Signal, error) {

	if limit <= 0 {
		limit = 20
	}

	var signals []model.Signal

	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&signals).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "SignalRepository",
			"op":    "FindLatest",
			"limit": limit,
		}).WithError(err).Error("Failed to fetch latest signals")

		return nil, err
	}

	return signals, nil
}

// FindMatching returns every signal carrying the exact identity an update
// message targets: strategy, order type, ticker and position size together.
func (r *SignalRepository) FindMatching(
	ctx context.Context,
	strategy string,
	orderType string,
	ticker string,
	positionSize float64,
) ([]model.Signal, error) {

	var signals []model.Signal

	err := r.db.WithContext(ctx).
		Where("strategy = ? AND order_type = ? AND ticker = ? AND position_size = ?",
			strategy, orderType, ticker, positionSize).
		Find(&signals).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "SignalRepository",
			"op":       "FindMatching",
			"strategy": strategy,
			"ticker":   ticker,
		}).WithError(err).Error("Failed to fetch matching signals")

		return nil, err
	}

	return signals, nil
}

// Save persists an in-place correction to an existing signal.
func (r *SignalRepository) Save(
	ctx context.Context,
	sig *model.Signal,
) error {

	err := r.db.WithContext(ctx).Save(sig).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "SignalRepository",
			"op":        "Save",
			"signal_id": sig.ID,
		}).WithError(err).Error("Failed to save signal")

		return err
	}

	return nil
}

// FindByStrategy returns a strategy's signals, newest first.
func (r *SignalRepository) FindByStrategy(
	ctx context.Context,
	strategy string,
	limit int,
) ([]model.Signal, error) {

	if limit <= 0 {
		limit = 50
	}

	var signals []model.Signal

	err := r.db.WithContext(ctx).
		Where("strategy = ?", strategy).
		Order("id DESC").
		Limit(limit).
		Find(&signals).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "SignalRepository",
			"op":       "FindByStrategy",
			"strategy": strategy,
		}).WithError(err).Error("Failed to fetch signals by strategy")

		return nil, err
	}

	return signals, nil
}
