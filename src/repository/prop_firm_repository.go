package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalcopier/src/database"
	"signalcopier/src/model"
)

// PropFirmRepository handles read/write operations for prop firm accounts and
// the balance-coupled trade writes.
type PropFirmRepository struct {
	db *gorm.DB
}

// NewPropFirmRepository creates a new repository instance using the main read/write database.
func NewPropFirmRepository() *PropFirmRepository {
	logger.WithField("component", "PropFirmRepository").
		Info("Creating new PropFirmRepository with MainDB")

	return &PropFirmRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PropFirmRepository) WithDB(db *gorm.DB) *PropFirmRepository {
	return &PropFirmRepository{db: db}
}

// Create inserts a new prop firm. The available balance starts equal to the
// full balance, whatever the payload carried.
func (r *PropFirmRepository) Create(
	ctx context.Context,
	firm *model.PropFirm,
) error {

	logger.WithFields(map[string]interface{}{
		"repo": "PropFirmRepository",
		"op":   "Create",
		"name": firm.Name,
	}).Debug("Creating new prop firm")

	if err := firm.SetAvailableToFull(); err != nil && !errors.Is(err, model.ErrDegenerateBalance) {
		return err
	}

	err := r.db.WithContext(ctx).Create(firm).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PropFirmRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create prop firm")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "PropFirmRepository",
		"op":           "Create",
		"prop_firm_id": firm.ID,
	}).Info("Prop firm created successfully")

	return nil
}

// FindByID fetches a single prop firm by its primary ID.
// Returns (nil, nil) if the firm is not found.
func (r *PropFirmRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.PropFirm, error) {

	var firm model.PropFirm

	err := r.db.WithContext(ctx).First(&firm, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "PropFirmRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Prop firm not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "PropFirmRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch prop firm by ID")

		return nil, err
	}

	return &firm, nil
}

// FindAll returns every prop firm ordered by ID.
func (r *PropFirmRepository) FindAll(
	ctx context.Context,
) ([]model.PropFirm, error) {

	var firms []model.PropFirm

	err := r.db.WithContext(ctx).
		Order("id ASC").
		Find(&firms).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PropFirmRepository",
			"op":   "FindAll",
		}).WithError(err).Error("Failed to fetch prop firms")

		return nil, err
	}

	return firms, nil
}

// FindActive returns every firm flagged active. Signal fan-out acts on this
// set, inactive firms keep their history but receive nothing new.
func (r *PropFirmRepository) FindActive(
	ctx context.Context,
) ([]model.PropFirm, error) {

	var firms []model.PropFirm

	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&firms).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PropFirmRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to fetch active prop firms")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PropFirmRepository",
		"op":          "FindActive",
		"rows_return": len(firms),
	}).Debug("Active prop firms fetched")

	return firms, nil
}

// Save persists every field of the firm, including the balance triple.
func (r *PropFirmRepository) Save(
	ctx context.Context,
	firm *model.PropFirm,
) error {

	err := r.db.WithContext(ctx).Save(firm).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "PropFirmRepository",
			"op":           "Save",
			"prop_firm_id": firm.ID,
		}).WithError(err).Error("Failed to save prop firm")

		return err
	}

	return nil
}

// Delete removes the firm and everything hanging off it: trades and symbol
// associations go in the same transaction.
func (r *PropFirmRepository) Delete(
	ctx context.Context,
	id uint,
) error {

	logger.WithFields(map[string]interface{}{
		"repo": "PropFirmRepository",
		"op":   "Delete",
		"id":   id,
	}).Info("Deleting prop firm")

	// Historical trades stay behind as the account's audit trail.
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("prop_firm_id = ?", id).Delete(&model.SymbolAssociation{}).Error; err != nil {
			logger.WithError(err).Error("Failed to delete symbol associations inside transaction")
			return err
		}
		if err := tx.Delete(&model.PropFirm{}, id).Error; err != nil {
			logger.WithError(err).Error("Failed to delete prop firm inside transaction")
			return err
		}
		return nil
	})
}

// ---------------------------------------------------
// Transaction helpers
// ---------------------------------------------------

// RecordTradePlacement writes the trade and the firm's debited balances in
// one transaction. The caller has already run ApplyTradeCost on the firm.
func (r *PropFirmRepository) RecordTradePlacement(
	ctx context.Context,
	firm *model.PropFirm,
	trade *model.Trade,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":         "PropFirmRepository",
		"op":           "RecordTradePlacement",
		"prop_firm_id": firm.ID,
		"signal_id":    trade.SignalID,
		"platform_id":  trade.PlatformID,
	}).Info("Recording trade placement with balance update")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(trade).Error; err != nil {
			logger.WithError(err).Error("Failed to create trade inside transaction")
			return err
		}
		if err := tx.Save(firm).Error; err != nil {
			logger.WithError(err).Error("Failed to save firm balances inside transaction")
			return err
		}
		return nil
	})
}

// RecordTradeClosure deletes the trade and persists the firm's credited
// balances in one transaction. The caller has already run ReleaseTradeCost.
func (r *PropFirmRepository) RecordTradeClosure(
	ctx context.Context,
	firm *model.PropFirm,
	trade *model.Trade,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":         "PropFirmRepository",
		"op":           "RecordTradeClosure",
		"prop_firm_id": firm.ID,
		"signal_id":    trade.SignalID,
	}).Info("Recording trade closure with balance update")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("prop_firm_id = ? AND signal_id = ?", trade.PropFirmID, trade.SignalID).
			Delete(&model.Trade{}).Error; err != nil {
			logger.WithError(err).Error("Failed to delete trade inside transaction")
			return err
		}
		if err := tx.Save(firm).Error; err != nil {
			logger.WithError(err).Error("Failed to save firm balances inside transaction")
			return err
		}
		return nil
	})
}
