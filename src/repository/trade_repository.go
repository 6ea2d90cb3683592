package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalcopier/src/database"
	"signalcopier/src/model"
)

// TradeRepository handles read/write operations for trades. Trades are keyed
// by (prop_firm_id, signal_id); balance-coupled writes live on
// PropFirmRepository so they share a transaction with the firm row.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository() *TradeRepository {
	logger.WithField("component", "TradeRepository").
		Info("Creating new TradeRepository with MainDB")

	return &TradeRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// FindByKey fetches the trade for one (prop firm, signal) pair.
// Returns (nil, nil) if the trade is not found.
func (r *TradeRepository) FindByKey(
	ctx context.Context,
	propFirmID uint,
	signalID uint,
) (*model.Trade, error) {

	var trade model.Trade

	err := r.db.WithContext(ctx).
		Preload("Signal").
		Where("prop_firm_id = ? AND signal_id = ?", propFirmID, signalID).
		First(&trade).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":         "TradeRepository",
			"op":           "FindByKey",
			"prop_firm_id": propFirmID,
			"signal_id":    signalID,
		}).WithError(err).Error("Failed to fetch trade by key")

		return nil, err
	}

	return &trade, nil
}

// FindAll returns every trade with its signal preloaded, newest first.
func (r *TradeRepository) FindAll(
	ctx context.Context,
) ([]model.Trade, error) {

	var trades []model.Trade

	err := r.db.WithContext(ctx).
		Preload("Signal").
		Order("created_at DESC").
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "FindAll",
		}).WithError(err).Error("Failed to fetch trades")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "TradeRepository",
		"op":          "FindAll",
		"rows_return": len(trades),
	}).Debug("Trades fetched")

	return trades, nil
}

// FindByPropFirm returns a firm's open trades with signals preloaded.
func (r *TradeRepository) FindByPropFirm(
	ctx context.Context,
	propFirmID uint,
) ([]model.Trade, error) {

	var trades []model.Trade

	err := r.db.WithContext(ctx).
		Preload("Signal").
		Where("prop_firm_id = ?", propFirmID).
		Order("created_at DESC").
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "TradeRepository",
			"op":           "FindByPropFirm",
			"prop_firm_id": propFirmID,
		}).WithError(err).Error("Failed to fetch trades for prop firm")

		return nil, err
	}

	return trades, nil
}

// FindBySignal returns every firm's trade rows for one signal.
func (r *TradeRepository) FindBySignal(
	ctx context.Context,
	signalID uint,
) ([]model.Trade, error) {

	var trades []model.Trade

	err := r.db.WithContext(ctx).
		Where("signal_id = ?", signalID).
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "TradeRepository",
			"op":        "FindBySignal",
			"signal_id": signalID,
		}).WithError(err).Error("Failed to fetch trades for signal")

		return nil, err
	}

	return trades, nil
}

// FindMostRecentOpposing finds the trade a flatten/close signal refers to:
// the newest trade on the firm whose signal matches the incoming one on
// ticker, strategy and contracts but carries the opposite order type.
// Returns (nil, nil) if nothing matches.
func (r *TradeRepository) FindMostRecentOpposing(
	ctx context.Context,
	propFirmID uint,
	sig *model.Signal,
) (*model.Trade, error) {

	logger.WithFields(map[string]interface{}{
		"repo":         "TradeRepository",
		"op":           "FindMostRecentOpposing",
		"prop_firm_id": propFirmID,
		"ticker":       sig.Ticker,
		"strategy":     sig.Strategy,
		"order_type":   sig.OppositeOrderType(),
	}).Debug("Looking up opposing trade")

	var trade model.Trade

	err := r.db.WithContext(ctx).
		Joins("JOIN signals ON signals.id = trades.signal_id").
		Where("trades.prop_firm_id = ?", propFirmID).
		Where("signals.ticker = ? AND signals.strategy = ? AND signals.contracts = ? AND signals.order_type = ?",
			sig.Ticker, sig.Strategy, sig.Contracts, sig.OppositeOrderType()).
		Order("trades.created_at DESC").
		Preload("Signal").
		First(&trade).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":         "TradeRepository",
				"op":           "FindMostRecentOpposing",
				"prop_firm_id": propFirmID,
				"ticker":       sig.Ticker,
			}).Info("No opposing trade found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":         "TradeRepository",
			"op":           "FindMostRecentOpposing",
			"prop_firm_id": propFirmID,
		}).WithError(err).Error("Failed to look up opposing trade")

		return nil, err
	}

	return &trade, nil
}

// FindByPlatformID fetches the trade tracking one broker ticket on a firm.
// Returns (nil, nil) if the ticket is untracked.
func (r *TradeRepository) FindByPlatformID(
	ctx context.Context,
	propFirmID uint,
	platformID string,
) (*model.Trade, error) {

	var trade model.Trade

	err := r.db.WithContext(ctx).
		Preload("Signal").
		Where("prop_firm_id = ? AND platform_id = ?", propFirmID, platformID).
		First(&trade).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":         "TradeRepository",
			"op":           "FindByPlatformID",
			"prop_firm_id": propFirmID,
			"platform_id":  platformID,
		}).WithError(err).Error("Failed to fetch trade by platform ID")

		return nil, err
	}

	return &trade, nil
}

// Delete removes one trade row without touching balances. Reconciliation uses
// this for stale rows whose broker position is already gone.
func (r *TradeRepository) Delete(
	ctx context.Context,
	propFirmID uint,
	signalID uint,
) error {

	err := r.db.WithContext(ctx).
		Where("prop_firm_id = ? AND signal_id = ?", propFirmID, signalID).
		Delete(&model.Trade{}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "TradeRepository",
			"op":           "Delete",
			"prop_firm_id": propFirmID,
			"signal_id":    signalID,
		}).WithError(err).Error("Failed to delete trade")

		return err
	}

	return nil
}
