package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"signalcopier/src/executors"
	"signalcopier/src/model"
)

type alertIngester interface {
	IngestAlert(ctx context.Context, raw string, firms []model.PropFirm) (*model.Signal, executors.FanOutResult, error)
}

type tradeUpdater interface {
	UpdateMatchingTrades(ctx context.Context, criteria executors.UpdateCriteria, contracts, positionSize float64) (executors.UpdateResult, error)
}

type activeFirmLister interface {
	FindActive(ctx context.Context) ([]model.PropFirm, error)
}

type webhookResponse struct {
	Message string                  `json:"message"`
	Signal  *model.Signal           `json:"signal,omitempty"`
	PerFirm []executors.FirmOutcome `json:"per_firm,omitempty"`
}

// WebhookHandler ingests raw alerts. The body is the alert text as the
// source emits it, not JSON; parsing failures come back as 400 with no side
// effects.
func WebhookHandler(engine alertIngester, firms activeFirmLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		targets, err := firms.FindActive(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list active firms")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		sig, result, err := engine.IngestAlert(r.Context(), string(body), targets)
		if err != nil {
			if errors.Is(err, model.ErrMalformedSignal) {
				writeJSON(w, http.StatusBadRequest, webhookResponse{Message: err.Error()})
				return
			}
			logger.WithError(err).Error("alert ingestion failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		status := http.StatusOK
		message := "signal processed"
		if len(result.Errors) > 0 {
			// partial failure still returns the full per-firm picture
			status = http.StatusMultiStatus
			message = "signal processed with failures"
		}

		writeJSON(w, status, webhookResponse{
			Message: message,
			Signal:  sig,
			PerFirm: result.PerFirm,
		})
	}
}

type updateRequest struct {
	Strategy     string   `json:"strategy"`
	Order        string   `json:"order"`
	Contracts    *float64 `json:"contracts"`
	Ticker       string   `json:"ticker"`
	PositionSize *float64 `json:"position_size"`
}

type updateResponse struct {
	Message          string                  `json:"message"`
	UpdatedSignalIDs []uint                  `json:"updated_signal_ids,omitempty"`
	PerFirm          []executors.FirmOutcome `json:"per_firm,omitempty"`
}

// UpdateTradesHandler applies a correction message: every stored signal
// matching the payload's strategy/order/ticker/position_size gets its
// contracts and position size rewritten in place, per-account drawdown
// permitting.
func UpdateTradesHandler(engine tradeUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload updateRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil ||
			payload.Strategy == "" || payload.Order == "" || payload.Ticker == "" ||
			payload.Contracts == nil || payload.PositionSize == nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		criteria := executors.UpdateCriteria{
			Strategy:     payload.Strategy,
			OrderType:    payload.Order,
			Ticker:       payload.Ticker,
			PositionSize: *payload.PositionSize,
		}
		result, err := engine.UpdateMatchingTrades(r.Context(), criteria, *payload.Contracts, *payload.PositionSize)
		if err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"strategy": payload.Strategy,
				"ticker":   payload.Ticker,
			}).Error("trade update failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if result.Matched == 0 {
			writeJSON(w, http.StatusOK, updateResponse{Message: "no matching trades found"})
			return
		}

		writeJSON(w, http.StatusOK, updateResponse{
			Message:          fmt.Sprintf("updated %d trades", len(result.UpdatedSignalIDs)),
			UpdatedSignalIDs: result.UpdatedSignalIDs,
			PerFirm:          result.PerFirm,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}
