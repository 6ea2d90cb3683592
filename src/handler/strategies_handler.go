package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"signalcopier/src/model"
	"signalcopier/src/repository"
)

// StrategiesHandler manages the registry of known signal sources.
// Reconciliation matches broker position comments against these names, so an
// empty registry means every adopted position lands on the sync sentinel.
type StrategiesHandler struct {
	strategies *repository.StrategyRepository
}

func NewStrategiesHandler(strategies *repository.StrategyRepository) *StrategiesHandler {
	return &StrategiesHandler{strategies: strategies}
}

func (h *StrategiesHandler) List(w http.ResponseWriter, r *http.Request) {
	strategies, err := h.strategies.FindAll(r.Context())
	if err != nil {
		logger.WithError(err).Error("failed to list trading strategies")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, strategies)
}

func (h *StrategiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	strategy, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, strategy)
}

type strategyPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *StrategiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload strategyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	existing, err := h.strategies.FindByName(r.Context(), payload.Name)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, "a strategy with this name already exists", http.StatusBadRequest)
		return
	}

	strategy := &model.TradingStrategy{
		Name:        payload.Name,
		Description: payload.Description,
	}
	if err := h.strategies.Create(r.Context(), strategy); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, strategy)
}

func (h *StrategiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	strategy, ok := h.load(w, r)
	if !ok {
		return
	}

	var payload struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if payload.Name != nil && *payload.Name != strategy.Name {
		existing, err := h.strategies.FindByName(r.Context(), *payload.Name)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if existing != nil {
			http.Error(w, "a strategy with this name already exists", http.StatusBadRequest)
			return
		}
		strategy.Name = *payload.Name
	}
	if payload.Description != nil {
		strategy.Description = *payload.Description
	}

	if err := h.strategies.Save(r.Context(), strategy); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, strategy)
}

func (h *StrategiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	strategy, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := h.strategies.Delete(r.Context(), strategy.ID); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StrategiesHandler) load(w http.ResponseWriter, r *http.Request) (*model.TradingStrategy, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid strategy id", http.StatusBadRequest)
		return nil, false
	}

	strategy, err := h.strategies.FindByID(r.Context(), uint(id))
	if err != nil {
		logger.WithError(err).Error("failed to fetch trading strategy")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	if strategy == nil {
		http.Error(w, "trading strategy not found", http.StatusNotFound)
		return nil, false
	}
	return strategy, true
}
