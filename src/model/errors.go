package model

import "errors"

// Error taxonomy shared by the parser, ledger, connectors and the engine.
// Handlers translate these into the API status/message pairs; nothing in the
// core ever panics across a package boundary.
var (
	// ErrMalformedSignal means the raw alert body could not be parsed into a
	// Signal. Surfaced to the ingestion caller, no side effects.
	ErrMalformedSignal = errors.New("malformed signal")

	// ErrDegenerateBalance means available balance reached zero and the
	// drawdown percentage is undefined. Raised instead of producing Inf/NaN.
	ErrDegenerateBalance = errors.New("available balance is zero, drawdown undefined")

	// ErrOrderRejected means the broker declined the order after every retry.
	ErrOrderRejected = errors.New("order rejected by broker")

	// ErrGhostFill means the broker reported success but the open position
	// count did not change. Treated as a failure.
	ErrGhostFill = errors.New("broker reported fill but no position appeared")

	// ErrAdapterConnection is a transient network/auth failure talking to the
	// trading terminal.
	ErrAdapterConnection = errors.New("connection to trading terminal failed")

	// ErrNoMatchingTrade means a close/update request found nothing to act on.
	// Reported as a warning, never fatal.
	ErrNoMatchingTrade = errors.New("no matching trade found")
)
