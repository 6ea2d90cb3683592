package mapper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalcopier/src/model"
)

func TestParseSignal_QuotedNumericValues(t *testing.T) {
	raw := `"strategy":"Stiff Zone", "order":"sell", "contracts":"0.001", "ticker":"BTCUSDT.P", "position_size":"-0.001"`

	sig, err := ParseSignal(raw)
	require.NoError(t, err)

	assert.Equal(t, "Stiff Zone", sig.Strategy)
	assert.Equal(t, model.OrderTypeSell, sig.OrderType)
	assert.Equal(t, 0.001, sig.Contracts)
	assert.Equal(t, "BTCUSDT.P", sig.Ticker)
	assert.Equal(t, -0.001, sig.PositionSize)
}

func TestParseSignal_BareNumbersAndEscapedQuotes(t *testing.T) {
	raw := `\"strategy\":\"Stiff Zone\", \"order\":\"buy\", \"contracts\":\"10\", \"ticker\":\"EURUSD\", "position_size":-10`

	sig, err := ParseSignal(raw)
	require.NoError(t, err)

	assert.Equal(t, model.OrderTypeBuy, sig.OrderType)
	assert.Equal(t, 10.0, sig.Contracts)
	assert.Equal(t, -10.0, sig.PositionSize)
}

func TestParseSignal_RepairsUnquotedTicker(t *testing.T) {
	raw := `"strategy":"S1", "order":"sell", "contracts":"1", "ticker":EURUSD, "position_size":"-1"`

	sig, err := ParseSignal(raw)
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", sig.Ticker)
}

func TestParseSignal_SingleQuotedPayload(t *testing.T) {
	raw := `'strategy':'S1', 'order':'BUY', 'contracts':'2', 'ticker':'XAUUSD', 'position_size':'2'`

	sig, err := ParseSignal(raw)
	require.NoError(t, err)
	assert.Equal(t, model.OrderTypeBuy, sig.OrderType)
	assert.Equal(t, "XAUUSD", sig.Ticker)
}

func TestParseSignal_MissingKey(t *testing.T) {
	raw := `"strategy":"S1", "order":"sell", "ticker":"EURUSD", "position_size":"-1"`

	_, err := ParseSignal(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrMalformedSignal))
}

func TestParseSignal_BadNumeric(t *testing.T) {
	raw := `"strategy":"S1", "order":"sell", "contracts":"lots", "ticker":"EURUSD", "position_size":"-1"`

	_, err := ParseSignal(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrMalformedSignal))
}

func TestParseSignal_Garbage(t *testing.T) {
	_, err := ParseSignal("definitely not a signal")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrMalformedSignal))
}

func TestSignalToAlertStringRoundTrip(t *testing.T) {
	sig := &model.Signal{
		Strategy:     "S1",
		OrderType:    model.OrderTypeSell,
		Contracts:    10,
		Ticker:       "EURUSD",
		PositionSize: -10,
	}

	parsed, err := ParseSignal(SignalToAlertString(sig))
	require.NoError(t, err)
	assert.Equal(t, sig.Strategy, parsed.Strategy)
	assert.Equal(t, sig.OrderType, parsed.OrderType)
	assert.Equal(t, sig.Contracts, parsed.Contracts)
	assert.Equal(t, sig.Ticker, parsed.Ticker)
	assert.Equal(t, sig.PositionSize, parsed.PositionSize)
}
