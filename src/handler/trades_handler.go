package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"signalcopier/src/model"
	"signalcopier/src/repository"
)

type tradeCloser interface {
	CloseTrade(ctx context.Context, firm *model.PropFirm, trade *model.Trade) model.ExecutionOutcome
	Replay(ctx context.Context, signalID uint, firm *model.PropFirm) (model.ExecutionOutcome, error)
}

// TradesHandler serves the stored trade rows and the manual close/replay
// operator endpoints.
type TradesHandler struct {
	trades *repository.TradeRepository
	firms  *repository.PropFirmRepository
	engine tradeCloser
}

func NewTradesHandler(trades *repository.TradeRepository, firms *repository.PropFirmRepository, engine tradeCloser) *TradesHandler {
	return &TradesHandler{trades: trades, firms: firms, engine: engine}
}

func (h *TradesHandler) List(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.FindAll(r.Context())
	if err != nil {
		logger.WithError(err).Error("failed to list trades")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

type propFirmTradesResponse struct {
	PropFirm *model.PropFirm `json:"prop_firm"`
	Trades   []model.Trade   `json:"trades"`
}

// ListForPropFirm serves one firm's trades with their signals attached.
func (h *TradesHandler) ListForPropFirm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid prop firm id", http.StatusBadRequest)
		return
	}

	firm, err := h.firms.FindByID(r.Context(), uint(id))
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if firm == nil {
		http.Error(w, "prop firm not found", http.StatusNotFound)
		return
	}

	trades, err := h.trades.FindByPropFirm(r.Context(), firm.ID)
	if err != nil {
		logger.WithError(err).WithField("prop_firm_id", firm.ID).
			Error("failed to list trades for prop firm")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, propFirmTradesResponse{PropFirm: firm, Trades: trades})
}

type tradeKeyPayload struct {
	PropFirmID uint `json:"prop_firm_id"`
	SignalID   uint `json:"signal_id"`
}

// Close flattens one stored trade at the broker and settles the ledger.
func (h *TradesHandler) Close(w http.ResponseWriter, r *http.Request) {
	var payload tradeKeyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.PropFirmID == 0 || payload.SignalID == 0 {
		http.Error(w, "prop_firm_id and signal_id are required", http.StatusBadRequest)
		return
	}

	firm, err := h.firms.FindByID(r.Context(), payload.PropFirmID)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if firm == nil {
		http.Error(w, "prop firm not found", http.StatusNotFound)
		return
	}

	trade, err := h.trades.FindByKey(r.Context(), payload.PropFirmID, payload.SignalID)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if trade == nil {
		http.Error(w, "trade not found", http.StatusNotFound)
		return
	}

	outcome := h.engine.CloseTrade(r.Context(), firm, trade)
	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, outcome)
}

type replayPayload struct {
	PropFirmID uint `json:"prop_firm_id"`
	SignalID   uint `json:"signal_id"`
}

// Replay re-sends a stored signal to one firm.
func (h *TradesHandler) Replay(w http.ResponseWriter, r *http.Request) {
	var payload replayPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.PropFirmID == 0 || payload.SignalID == 0 {
		http.Error(w, "prop_firm_id and signal_id are required", http.StatusBadRequest)
		return
	}

	firm, err := h.firms.FindByID(r.Context(), payload.PropFirmID)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if firm == nil {
		http.Error(w, "prop firm not found", http.StatusNotFound)
		return
	}

	outcome, err := h.engine.Replay(r.Context(), payload.SignalID, firm)
	if err != nil {
		logger.WithError(err).WithField("signal_id", payload.SignalID).Error("replay failed")
		http.Error(w, "signal not found", http.StatusNotFound)
		return
	}

	status := http.StatusOK
	if !outcome.Success && !outcome.Queued {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, outcome)
}
