package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalcopier/src/database"
	"signalcopier/src/model"
)

// SymbolRepository handles the per-firm ticker to broker-label mapping.
type SymbolRepository struct {
	db *gorm.DB
}

func NewSymbolRepository() *SymbolRepository {
	logger.WithField("component", "SymbolRepository").
		Info("Creating new SymbolRepository with MainDB")

	return &SymbolRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *SymbolRepository) WithDB(db *gorm.DB) *SymbolRepository {
	return &SymbolRepository{db: db}
}

// GetLabel resolves the broker label one firm uses for a ticker. Returns
// ("", nil) when the firm has no mapping, which callers treat as "this firm
// does not trade the instrument".
func (r *SymbolRepository) GetLabel(
	ctx context.Context,
	propFirmID uint,
	ticker string,
) (string, error) {

	var assoc model.SymbolAssociation

	err := r.db.WithContext(ctx).
		Where("prop_firm_id = ? AND ticker = ?", propFirmID, ticker).
		First(&assoc).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":         "SymbolRepository",
				"op":           "GetLabel",
				"prop_firm_id": propFirmID,
				"ticker":       ticker,
			}).Info("No symbol mapping for ticker")

			return "", nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":         "SymbolRepository",
			"op":           "GetLabel",
			"prop_firm_id": propFirmID,
			"ticker":       ticker,
		}).WithError(err).Error("Failed to resolve symbol label")

		return "", err
	}

	return assoc.Label, nil
}

// ListByPropFirm returns a firm's full symbol table ordered by ticker.
func (r *SymbolRepository) ListByPropFirm(
	ctx context.Context,
	propFirmID uint,
) ([]model.SymbolAssociation, error) {

	var assocs []model.SymbolAssociation

	err := r.db.WithContext(ctx).
		Where("prop_firm_id = ?", propFirmID).
		Order("ticker ASC").
		Find(&assocs).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "SymbolRepository",
			"op":           "ListByPropFirm",
			"prop_firm_id": propFirmID,
		}).WithError(err).Error("Failed to fetch symbol associations")

		return nil, err
	}

	return assocs, nil
}

// ReplaceAll swaps a firm's entire symbol table for the given pairs in one
// transaction. An empty pair list clears the table.
func (r *SymbolRepository) ReplaceAll(
	ctx context.Context,
	propFirmID uint,
	pairs []model.SymbolPair,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":         "SymbolRepository",
		"op":           "ReplaceAll",
		"prop_firm_id": propFirmID,
		"pairs":        len(pairs),
	}).Info("Replacing symbol associations")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("prop_firm_id = ?", propFirmID).
			Delete(&model.SymbolAssociation{}).Error; err != nil {
			logger.WithError(err).Error("Failed to clear symbol associations inside transaction")
			return err
		}

		for _, pair := range pairs {
			assoc := model.SymbolAssociation{
				PropFirmID: propFirmID,
				Ticker:     pair.Ticker,
				Label:      pair.Label,
			}
			if err := tx.Create(&assoc).Error; err != nil {
				logger.WithError(err).WithField("ticker", pair.Ticker).
					Error("Failed to insert symbol association inside transaction")
				return err
			}
		}

		return nil
	})
}

// DeleteTicker removes a single mapping.
func (r *SymbolRepository) DeleteTicker(
	ctx context.Context,
	propFirmID uint,
	ticker string,
) error {

	err := r.db.WithContext(ctx).
		Where("prop_firm_id = ? AND ticker = ?", propFirmID, ticker).
		Delete(&model.SymbolAssociation{}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "SymbolRepository",
			"op":           "DeleteTicker",
			"prop_firm_id": propFirmID,
			"ticker":       ticker,
		}).WithError(err).Error("Failed to delete symbol association")

		return err
	}

	return nil
}
