package executors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"signalcopier/src/connectors"
	"signalcopier/src/model"
	"signalcopier/src/repository"
	"signalcopier/src/throttle"
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
	); err != nil {
		t.Fatalf("failed to automigrate: %v", err)
	}

	return db
}

type testRig struct {
	db       *gorm.DB
	engine   *Engine
	registry *connectors.Registry
	gate     *throttle.Gate
	firms    *repository.PropFirmRepository
	trades   *repository.TradeRepository
	symbols  *repository.SymbolRepository
}

func newRig(t *testing.T, cooldown time.Duration) *testRig {
	t.Helper()

	db := newTestDB(t)
	firms := (&repository.PropFirmRepository{}).WithDB(db)
	signals := (&repository.SignalRepository{}).WithDB(db)
	trades := (&repository.TradeRepository{}).WithDB(db)
	symbols := (&repository.SymbolRepository{}).WithDB(db)

	registry := connectors.NewRegistry()
	gate := throttle.NewGate(cooldown)
	t.Cleanup(gate.Shutdown)

	engine := NewEngine(nil, firms, signals, trades, symbols, registry, gate, nil)
	return &testRig{
		db:       db,
		engine:   engine,
		registry: registry,
		gate:     gate,
		firms:    firms,
		trades:   trades,
		symbols:  symbols,
	}
}

func (r *testRig) addFirm(t *testing.T, name string, balance float64, tickers ...string) model.PropFirm {
	t.Helper()

	firm := &model.PropFirm{
		Name:         name,
		FullBalance:  balance,
		IsActive:     true,
		PlatformType: connectors.PlatformPaper,
	}
	require.NoError(t, r.firms.Create(context.Background(), firm))

	var pairs []model.SymbolPair
	for _, ticker := range tickers {
		pairs = append(pairs, model.SymbolPair{Ticker: ticker, Label: "MAPPED-" + ticker})
	}
	require.NoError(t, r.symbols.ReplaceAll(context.Background(), firm.ID, pairs))
	return *firm
}

func (r *testRig) connectorOf(t *testing.T, firm *model.PropFirm) *connectors.MemoryConnector {
	t.Helper()
	conn, err := r.registry.ConnectorFor(firm)
	require.NoError(t, err)
	mem, ok := conn.(*connectors.MemoryConnector)
	require.True(t, ok)
	return mem
}

const openAlert = `"strategy":"fractal_breakout","order":"buy","contracts":"1","ticker":"EURUSD!","position_size":"2500"`
const flattenAlert = `"strategy":"fractal_breakout","order":"sell","contracts":"1","ticker":"EURUSD!","position_size":"0"`

func TestIngestAlertOpensOnEveryFirm(t *testing.T) {
	rig := newRig(t, time.Millisecond)
	f1 := rig.addFirm(t, "alpha", 100000, "EURUSD!")
	f2 := rig.addFirm(t, "beta", 50000, "EURUSD!")

	sig, result, err := rig.engine.IngestAlert(context.Background(), openAlert, []model.PropFirm{f1, f2})
	require.NoError(t, err)
	require.NotNil(t, sig)
	require.Len(t, result.PerFirm, 2)
	assert.Empty(t, result.Errors)

	for _, fo := range result.PerFirm {
		assert.True(t, fo.Outcome.Success, fo.Outcome.Message)
	}

	trades, err := rig.trades.FindAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, trades, 2)

	loaded, err := rig.firms.FindByID(context.Background(), f1.ID)
	require.NoError(t, err)
	assert.Equal(t, 97500.0, loaded.AvailableBalance)
	assert.InDelta(t, 100000.0/97500.0, loaded.DrawdownPercentage, 1e-9)
}

func TestIngestAlertRejectsGarbage(t *testing.T) {
	rig := newRig(t, time.Millisecond)

	_, _, err := rig.engine.IngestAlert(context.Background(), "not an alert", nil)
	require.ErrorIs(t, err, model.ErrMalformedSignal)
}

func TestOpenSkipsFirmWithoutMapping(t *testing.T) {
	rig := newRig(t, time.Millisecond)
	mapped := rig.addFirm(t, "mapped", 100000, "EURUSD!")
	unmapped := rig.addFirm(t, "unmapped", 100000)

	_, result, err := rig.engine.IngestAlert(context.Background(), openAlert, []model.PropFirm{mapped, unmapped})
	require.NoError(t, err)
	assert.Empty(t, result.Errors)

	trades, err := rig.trades.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, mapped.ID, trades[0].PropFirmID)

	// the unmapped firm's balance is untouched
	loaded, err := rig.firms.FindByID(context.Background(), unmapped.ID)
	require.NoError(t, err)
	assert.Equal(t, 100000.0, loaded.AvailableBalance)
}

func TestOpenPartialFailureKeepsSiblings(t *testing.T) {
	rig := newRig(t, time.Millisecond)
	healthy := rig.addFirm(t, "healthy", 100000, "EURUSD!")
	broken := rig.addFirm(t, "broken", 100000, "EURUSD!")

	rig.connectorOf(t, &broken).FailNextOrder = true

	_, result, err := rig.engine.IngestAlert(context.Background(), openAlert, []model.PropFirm{broken, healthy})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)

	trades, err := rig.trades.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, healthy.ID, trades[0].PropFirmID)

	loaded, err := rig.firms.FindByID(context.Background(), broken.ID)
	require.NoError(t, err)
	assert.Equal(t, 100000.0, loaded.AvailableBalance)
}

func TestFlattenClosesOpposingTradeAndRestoresBalance(t *testing.T) {
	rig := newRig(t, time.Millisecond)
	firm := rig.addFirm(t, "alpha", 100000, "EURUSD!")

	_, openRes, err := rig.engine.IngestAlert(context.Background(), openAlert, []model.PropFirm{firm})
	require.NoError(t, err)
	require.Empty(t, openRes.Errors)

	time.Sleep(5 * time.Millisecond) // let the cooldown lapse

	_, closeRes, err := rig.engine.IngestAlert(context.Background(), flattenAlert, []model.PropFirm{firm})
	require.NoError(t, err)
	require.Empty(t, closeRes.Errors)
	require.Len(t, closeRes.PerFirm, 1)
	assert.True(t, closeRes.PerFirm[0].Outcome.Success)

	trades, err := rig.trades.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, trades)

	positions, err := rig.connectorOf(t, &firm).ListOpenPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)

	loaded, err := rig.firms.FindByID(context.Background(), firm.ID)
	require.NoError(t, err)
	assert.Equal(t, 100000.0, loaded.AvailableBalance)
	assert.Equal(t, 1.0, loaded.DrawdownPercentage)
}

func TestFlattenWithoutOpenTradeIsAWarning(t *testing.T) {
	rig := newRig(t, time.Millisecond)
	firm := rig.addFirm(t, "alpha", 100000, "EURUSD!")

	_, result, err := rig.engine.IngestAlert(context.Background(), flattenAlert, []model.PropFirm{firm})
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.PerFirm, 1)
	assert.ErrorIs(t, result.PerFirm[0].Outcome.Err, model.ErrNoMatchingTrade)
}

func TestBurstQueuesSecondPlacement(t *testing.T) {
	rig := newRig(t, 50*time.Millisecond)
	firm := rig.addFirm(t, "alpha", 100000, "EURUSD!")

	_, first, err := rig.engine.IngestAlert(context.Background(), openAlert, []model.PropFirm{firm})
	require.NoError(t, err)
	require.False(t, first.PerFirm[0].Outcome.Queued)

	secondAlert := `"strategy":"fractal_breakout","order":"buy","contracts":"2","ticker":"EURUSD!","position_size":"1000"`
	_, second, err := rig.engine.IngestAlert(context.Background(), secondAlert, []model.PropFirm{firm})
	require.NoError(t, err)
	require.Len(t, second.PerFirm, 1)
	assert.True(t, second.PerFirm[0].Outcome.Queued)

	// queued placement lands once the window lapses
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		trades, err := rig.trades.FindAll(context.Background())
		require.NoError(t, err)
		if len(trades) == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("queued placement never drained")
}

func TestOpenFailureCarriesBrokerOutcome(t *testing.T) {
	rig := newRig(t, time.Millisecond)
	firm := rig.addFirm(t, "broken", 100000, "EURUSD!")

	rig.connectorOf(t, &firm).FailNextOrder = true

	_, result, err := rig.engine.IngestAlert(context.Background(), openAlert, []model.PropFirm{firm})
	require.NoError(t, err)
	require.Len(t, result.PerFirm, 1)

	// the broker's rejection surfaces as-is, not a generic placement error
	outcome := result.PerFirm[0].Outcome
	assert.False(t, outcome.Success)
	assert.Equal(t, "Order failed: rejected", outcome.Message)
	assert.ErrorIs(t, outcome.Err, model.ErrOrderRejected)
	assert.NotNil(t, outcome.Details)
}

func TestUpdateMatchingTradesRewritesStoredSignal(t *testing.T) {
	rig := newRig(t, time.Millisecond)
	firm := rig.addFirm(t, "alpha", 1000000, "EURUSD!")

	sig, _, err := rig.engine.IngestAlert(context.Background(), openAlert, []model.PropFirm{firm})
	require.NoError(t, err)

	criteria := UpdateCriteria{
		Strategy:     "fractal_breakout",
		OrderType:    "buy",
		Ticker:       "EURUSD!",
		PositionSize: 2500,
	}
	result, err := rig.engine.UpdateMatchingTrades(context.Background(), criteria, 3, 2500)
	require.NoError(t, err)
	require.Equal(t, 1, result.Matched)
	require.Equal(t, []uint{sig.ID}, result.UpdatedSignalIDs)
	require.Len(t, result.PerFirm, 1)
	assert.Equal(t, "trade updated", result.PerFirm[0].Outcome.Message)

	loaded, err := (&repository.SignalRepository{}).WithDB(rig.db).FindByID(context.Background(), sig.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 3.0, loaded.Contracts)
	assert.Equal(t, 2500.0, loaded.PositionSize)
}

func TestUpdateMatchingTradesSkipsFirmOverDrawdown(t *testing.T) {
	rig := newRig(t, time.Millisecond)
	firm := rig.addFirm(t, "stretched", 100000, "EURUSD!")

	sig, _, err := rig.engine.IngestAlert(context.Background(), openAlert, []model.PropFirm{firm})
	require.NoError(t, err)

	// 100000 / (97500 - 2500) crosses the 1.04 line
	criteria := UpdateCriteria{
		Strategy:     "fractal_breakout",
		OrderType:    "buy",
		Ticker:       "EURUSD!",
		PositionSize: 2500,
	}
	result, err := rig.engine.UpdateMatchingTrades(context.Background(), criteria, 3, 2500)
	require.NoError(t, err)
	require.Equal(t, 1, result.Matched)
	assert.Empty(t, result.UpdatedSignalIDs)
	require.Len(t, result.PerFirm, 1)
	assert.Contains(t, result.PerFirm[0].Outcome.Message, "skipped")

	// the held-back signal keeps its original values
	loaded, err := (&repository.SignalRepository{}).WithDB(rig.db).FindByID(context.Background(), sig.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 1.0, loaded.Contracts)
	assert.Equal(t, 2500.0, loaded.PositionSize)
}

func TestUpdateMatchingTradesNoMatch(t *testing.T) {
	rig := newRig(t, time.Millisecond)
	firm := rig.addFirm(t, "alpha", 100000, "EURUSD!")

	_, _, err := rig.engine.IngestAlert(context.Background(), openAlert, []model.PropFirm{firm})
	require.NoError(t, err)

	criteria := UpdateCriteria{
		Strategy:     "fractal_breakout",
		OrderType:    "sell",
		Ticker:       "EURUSD!",
		PositionSize: 2500,
	}
	result, err := rig.engine.UpdateMatchingTrades(context.Background(), criteria, 3, 2500)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Matched)
	assert.Empty(t, result.UpdatedSignalIDs)
}

func TestReplaySendsToOneFirm(t *testing.T) {
	rig := newRig(t, time.Millisecond)
	firm := rig.addFirm(t, "alpha", 100000, "EURUSD!")

	sig := &model.Signal{
		Strategy: "fractal_breakout", OrderType: model.OrderTypeBuy,
		Contracts: 1, Ticker: "EURUSD!", PositionSize: 2500,
	}
	require.NoError(t, ((&repository.SignalRepository{}).WithDB(rig.db)).Create(context.Background(), sig))

	outcome, err := rig.engine.Replay(context.Background(), sig.ID, &firm)
	require.NoError(t, err)
	assert.True(t, outcome.Success, outcome.Message)

	trade, err := rig.trades.FindByKey(context.Background(), firm.ID, sig.ID)
	require.NoError(t, err)
	require.NotNil(t, trade)
}

func TestReplayUnknownSignal(t *testing.T) {
	rig := newRig(t, time.Millisecond)
	firm := rig.addFirm(t, "alpha", 100000, "EURUSD!")

	_, err := rig.engine.Replay(context.Background(), 9999, &firm)
	require.Error(t, err)
}
