package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"signalcopier/src/connectors"
	"signalcopier/src/model"
	"signalcopier/src/repository"
)

// helper to create a new in memory gorm DB and migrate schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in memory db: %v", err)
	}

	if err := db.AutoMigrate(
		&model.PropFirm{},
		&model.Signal{},
		&model.Trade{},
		&model.SymbolAssociation{},
		&model.TradingStrategy{},
	); err != nil {
		t.Fatalf("failed to automigrate: %v", err)
	}

	return db
}

type rig struct {
	db       *gorm.DB
	svc      *Service
	registry *connectors.Registry
	firms    *repository.PropFirmRepository
	trades   *repository.TradeRepository
}

func newRig(t *testing.T) *rig {
	t.Helper()

	db := newTestDB(t)
	firms := (&repository.PropFirmRepository{}).WithDB(db)
	signals := (&repository.SignalRepository{}).WithDB(db)
	trades := (&repository.TradeRepository{}).WithDB(db)
	symbols := (&repository.SymbolRepository{}).WithDB(db)
	strategies := (&repository.StrategyRepository{}).WithDB(db)
	registry := connectors.NewRegistry()

	svc := NewService(nil, firms, signals, trades, symbols, strategies, registry, nil)
	return &rig{db: db, svc: svc, registry: registry, firms: firms, trades: trades}
}

func (r *rig) addFirm(t *testing.T, name string) *model.PropFirm {
	t.Helper()

	firm := &model.PropFirm{
		Name:         name,
		FullBalance:  100000,
		IsActive:     true,
		PlatformType: connectors.PlatformPaper,
	}
	require.NoError(t, r.firms.Create(context.Background(), firm))
	return firm
}

func (r *rig) connectorOf(t *testing.T, firm *model.PropFirm) *connectors.MemoryConnector {
	t.Helper()
	conn, err := r.registry.ConnectorFor(firm)
	require.NoError(t, err)
	return conn.(*connectors.MemoryConnector)
}

func TestSyncPullsBalancesFromSnapshot(t *testing.T) {
	r := newRig(t)
	firm := r.addFirm(t, "alpha")
	r.connectorOf(t, firm).SetBalance(87000)

	report, err := r.svc.SyncPropFirm(context.Background(), firm)
	require.NoError(t, err)
	assert.True(t, report.BalanceSynced)

	loaded, err := r.firms.FindByID(context.Background(), firm.ID)
	require.NoError(t, err)
	assert.Equal(t, 87000.0, loaded.FullBalance)
	assert.Equal(t, 87000.0, loaded.AvailableBalance)
}

func TestSyncAdoptsUntrackedPosition(t *testing.T) {
	r := newRig(t)
	firm := r.addFirm(t, "alpha")

	symbols := (&repository.SymbolRepository{}).WithDB(r.db)
	require.NoError(t, symbols.ReplaceAll(context.Background(), firm.ID, []model.SymbolPair{
		{Ticker: "XAUUSD!", Label: "GOLD.x"},
	}))

	r.connectorOf(t, firm).SeedPosition(connectors.BrokerPosition{
		Ticket:    "7777",
		Symbol:    "GOLD.x",
		OrderType: model.OrderTypeBuy,
		Volume:    0.5,
		Profit:    -130.5,
		Swap:      -2.5,
		Comment:   "manual scalp",
	})

	report, err := r.svc.SyncPropFirm(context.Background(), firm)
	require.NoError(t, err)
	require.Equal(t, []string{"7777"}, report.AdoptedTickets)

	trade, err := r.trades.FindByPlatformID(context.Background(), firm.ID, "7777")
	require.NoError(t, err)
	require.NotNil(t, trade)
	require.NotNil(t, trade.Signal)
	// unknown comment falls back to the sync sentinel, label maps back to the ticker
	assert.Equal(t, model.SyncStrategySentinel, trade.Signal.Strategy)
	assert.Equal(t, "XAUUSD!", trade.Signal.Ticker)
	assert.Equal(t, 0.5, trade.Signal.Contracts)
	// the broker snapshot prices the position, the signal records that value
	assert.Equal(t, 133.0, trade.Signal.PositionSize)
}

func TestSyncAdoptionMatchesKnownStrategy(t *testing.T) {
	r := newRig(t)
	firm := r.addFirm(t, "alpha")

	strategies := (&repository.StrategyRepository{}).WithDB(r.db)
	require.NoError(t, strategies.Create(context.Background(), &model.TradingStrategy{Name: "fractal_breakout"}))

	r.connectorOf(t, firm).SeedPosition(connectors.BrokerPosition{
		Ticket:    "8888",
		Symbol:    "EURUSD",
		OrderType: model.OrderTypeSell,
		Volume:    1,
		Comment:   "fractal_breakout",
	})

	_, err := r.svc.SyncPropFirm(context.Background(), firm)
	require.NoError(t, err)

	trade, err := r.trades.FindByPlatformID(context.Background(), firm.ID, "8888")
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, "fractal_breakout", trade.Signal.Strategy)
	// no reverse mapping configured, the label stands in for the ticker
	assert.Equal(t, "EURUSD", trade.Signal.Ticker)
}

func TestSyncRemovesStaleTrades(t *testing.T) {
	r := newRig(t)
	firm := r.addFirm(t, "alpha")

	signals := (&repository.SignalRepository{}).WithDB(r.db)
	sig := &model.Signal{Strategy: "fractal_breakout", OrderType: model.OrderTypeBuy, Contracts: 1, Ticker: "EURUSD!", PositionSize: 1000}
	require.NoError(t, signals.Create(context.Background(), sig))
	require.NoError(t, r.firms.RecordTradePlacement(context.Background(), firm, &model.Trade{
		PropFirmID: firm.ID,
		SignalID:   sig.ID,
		PlatformID: "gone-1",
	}))

	report, err := r.svc.SyncPropFirm(context.Background(), firm)
	require.NoError(t, err)
	assert.Equal(t, []string{"gone-1"}, report.RemovedTickets)

	left, err := r.trades.FindByPropFirm(context.Background(), firm.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestSyncIsIdempotent(t *testing.T) {
	r := newRig(t)
	firm := r.addFirm(t, "alpha")

	r.connectorOf(t, firm).SeedPosition(connectors.BrokerPosition{
		Ticket:    "7777",
		Symbol:    "EURUSD",
		OrderType: model.OrderTypeBuy,
		Volume:    0.5,
	})

	first, err := r.svc.SyncPropFirm(context.Background(), firm)
	require.NoError(t, err)
	assert.Len(t, first.AdoptedTickets, 1)

	second, err := r.svc.SyncPropFirm(context.Background(), firm)
	require.NoError(t, err)
	assert.Empty(t, second.AdoptedTickets)
	assert.Empty(t, second.RemovedTickets)
}

func TestSyncAllSurvivesFirmFailure(t *testing.T) {
	r := newRig(t)
	r.addFirm(t, "healthy")

	broken := &model.PropFirm{
		Name:         "broken",
		FullBalance:  100000,
		IsActive:     true,
		PlatformType: "ninjatrader",
	}
	require.NoError(t, r.firms.Create(context.Background(), broken))

	report, err := r.svc.SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Firms, 2)

	var failed, succeeded int
	for _, fr := range report.Firms {
		if fr.Error != "" {
			failed++
		} else {
			succeeded++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, succeeded)
}
