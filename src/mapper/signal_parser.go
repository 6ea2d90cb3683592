package mapper

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	logger "github.com/sirupsen/logrus"

	"signalcopier/src/model"
)

// The alert source posts comma-separated "key":"value" pairs that are almost,
// but not reliably, JSON. Two known shapes:
//
//	"strategy":"Stiff Zone", "order":"sell", "contracts":"0.001", "ticker":"BTCUSDT.P", "position_size":"-0.001"
//	\"strategy\":\"Stiff Zone\", \"order\":\"sell\", ... "position_size":-0.001
//
// ParseSignal wraps the blob in braces, normalizes quoting, and parses it.
// When that fails it runs one regex repair pass for unquoted ticker values
// and retries.

var reUnquotedTicker = regexp.MustCompile(`("ticker"\s*:\s*)([A-Za-z0-9._!]+)`)

func ParseSignal(raw string) (*model.Signal, error) {
	data, err := decodeAlertBody(raw)
	if err != nil {
		logger.WithField("mapper", "ParseSignal").
			WithError(err).
			Warn("Failed to decode alert body")
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedSignal, err)
	}

	sig := &model.Signal{}

	if sig.Strategy, err = stringField(data, "strategy"); err != nil {
		return nil, err
	}
	if sig.OrderType, err = stringField(data, "order"); err != nil {
		return nil, err
	}
	sig.OrderType = strings.ToLower(sig.OrderType)
	if sig.Ticker, err = stringField(data, "ticker"); err != nil {
		return nil, err
	}
	if sig.Contracts, err = floatField(data, "contracts"); err != nil {
		return nil, err
	}
	// Sign is preserved as received; every balance computation works on the
	// absolute value.
	if sig.PositionSize, err = floatField(data, "position_size"); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"mapper":        "ParseSignal",
		"strategy":      sig.Strategy,
		"order_type":    sig.OrderType,
		"ticker":        sig.Ticker,
		"contracts":     sig.Contracts,
		"position_size": sig.PositionSize,
	}).Debug("Alert body parsed into signal")

	return sig, nil
}

func decodeAlertBody(raw string) (map[string]any, error) {
	normalized := normalizeQuoting(strings.TrimSpace(raw))
	wrapped := "{" + normalized + "}"

	var data map[string]any
	if err := json.Unmarshal([]byte(wrapped), &data); err == nil {
		return data, nil
	}

	// Best effort repair: some alert templates emit the ticker without
	// quotes ("ticker":EURUSD). Quote it and retry once.
	repaired := reUnquotedTicker.ReplaceAllString(wrapped, `$1"$2"`)

	var repairedData map[string]any
	if err := json.Unmarshal([]byte(repaired), &repairedData); err != nil {
		return nil, err
	}
	return repairedData, nil
}

func normalizeQuoting(raw string) string {
	// Double-escaped payloads arrive when the source JSON-encodes the body a
	// second time.
	raw = strings.ReplaceAll(raw, `\"`, `"`)
	raw = strings.ReplaceAll(raw, "'", `"`)
	return raw
}

func stringField(data map[string]any, key string) (string, error) {
	v, ok := data[key]
	if !ok {
		return "", fmt.Errorf("%w: missing key %q", model.ErrMalformedSignal, key)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: key %q is not a usable string", model.ErrMalformedSignal, key)
	}
	return strings.TrimSpace(s), nil
}

func floatField(data map[string]any, key string) (float64, error) {
	v, ok := data[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing key %q", model.ErrMalformedSignal, key)
	}

	switch val := v.(type) {
	case float64:
		return val, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: key %q does not parse as a number", model.ErrMalformedSignal, key)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: key %q has unsupported type", model.ErrMalformedSignal, key)
	}
}

// SignalToAlertString renders a stored signal back into the alert source
// format. Used by the trade replay endpoint.
func SignalToAlertString(sig *model.Signal) string {
	return fmt.Sprintf(
		`"strategy":"%s", "order":"%s", "contracts":"%g", "ticker":"%s", "position_size":"%g"`,
		sig.Strategy, sig.OrderType, sig.Contracts, sig.Ticker, sig.PositionSize,
	)
}
