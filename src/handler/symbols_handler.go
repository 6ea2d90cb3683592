package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"signalcopier/src/model"
	"signalcopier/src/repository"
)

// SymbolsHandler serves a firm's ticker to broker-label table.
type SymbolsHandler struct {
	symbols *repository.SymbolRepository
	firms   *repository.PropFirmRepository
}

func NewSymbolsHandler(symbols *repository.SymbolRepository, firms *repository.PropFirmRepository) *SymbolsHandler {
	return &SymbolsHandler{symbols: symbols, firms: firms}
}

func (h *SymbolsHandler) List(w http.ResponseWriter, r *http.Request) {
	firmID, ok := h.firmID(w, r)
	if !ok {
		return
	}

	assocs, err := h.symbols.ListByPropFirm(r.Context(), firmID)
	if err != nil {
		logger.WithError(err).Error("failed to list symbol associations")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, assocs)
}

type symbolsPayload struct {
	Symbols []model.SymbolPair `json:"symbols"`
}

// Replace swaps the firm's whole symbol table atomically. Sending an empty
// list clears it.
func (h *SymbolsHandler) Replace(w http.ResponseWriter, r *http.Request) {
	firmID, ok := h.firmID(w, r)
	if !ok {
		return
	}

	var payload symbolsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	for _, pair := range payload.Symbols {
		if pair.Ticker == "" || pair.Label == "" {
			http.Error(w, "ticker and label are required on every pair", http.StatusBadRequest)
			return
		}
	}

	if err := h.symbols.ReplaceAll(r.Context(), firmID, payload.Symbols); err != nil {
		logger.WithError(err).Error("failed to replace symbol associations")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	assocs, err := h.symbols.ListByPropFirm(r.Context(), firmID)
	if err != nil {
		logger.WithError(err).Error("failed to reload symbol associations")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, assocs)
}

func (h *SymbolsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	firmID, ok := h.firmID(w, r)
	if !ok {
		return
	}

	ticker := chi.URLParam(r, "ticker")
	if ticker == "" {
		http.Error(w, "ticker is required", http.StatusBadRequest)
		return
	}

	if err := h.symbols.DeleteTicker(r.Context(), firmID, ticker); err != nil {
		logger.WithError(err).Error("failed to delete symbol association")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SymbolsHandler) firmID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid prop firm id", http.StatusBadRequest)
		return 0, false
	}

	firm, err := h.firms.FindByID(r.Context(), uint(id))
	if err != nil {
		logger.WithError(err).Error("failed to fetch prop firm")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return 0, false
	}
	if firm == nil {
		http.Error(w, "prop firm not found", http.StatusNotFound)
		return 0, false
	}
	return firm.ID, true
}
