package model

import "encoding/json"

// ExecutionOutcome is the synchronous result of one order attempt. It is
// never persisted as-is; Details gets serialized into Trade.BrokerResponse
// when the attempt produced a trade.
type ExecutionOutcome struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	TradeID string         `json:"trade_id,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	// Queued is true when the throttle deferred the request instead of
	// executing it.
	Queued bool `json:"queued,omitempty"`
	// Err carries the taxonomy error behind a failure, when one applies.
	Err error `json:"-"`
}

// DetailsJSON renders Details for storage in Trade.BrokerResponse.
func (o ExecutionOutcome) DetailsJSON() string {
	if len(o.Details) == 0 {
		return ""
	}
	out, err := json.Marshal(o.Details)
	if err != nil {
		return ""
	}
	return string(out)
}

// FailedOutcome builds the standard failure shape used across connectors.
func FailedOutcome(msg string, err error, details map[string]any) ExecutionOutcome {
	return ExecutionOutcome{
		Success: false,
		Message: msg,
		Details: details,
		Err:     err,
	}
}
