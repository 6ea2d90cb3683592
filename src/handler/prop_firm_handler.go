package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"signalcopier/src/model"
	"signalcopier/src/repository"
	"signalcopier/src/security"
)

type connectorEvicter interface {
	Evict(firmID uint)
}

// PropFirmHandler bundles the account CRUD endpoints.
type PropFirmHandler struct {
	firms   *repository.PropFirmRepository
	cipher  *security.Cipher
	evicter connectorEvicter
}

func NewPropFirmHandler(firms *repository.PropFirmRepository, cipher *security.Cipher, evicter connectorEvicter) *PropFirmHandler {
	return &PropFirmHandler{firms: firms, cipher: cipher, evicter: evicter}
}

type propFirmPayload struct {
	Name          *string  `json:"name"`
	FullBalance   *float64 `json:"full_balance"`
	IsActive      *bool    `json:"is_active"`
	Username      *string  `json:"username"`
	Password      *string  `json:"password"`
	ServerAddress *string  `json:"server_address"`
	Port          *int     `json:"port"`
	PlatformType  *string  `json:"platform_type"`
	Description   *string  `json:"description"`
}

// Create registers a new account. The terminal password is encrypted before
// it touches the database, the available balance starts at the full balance.
func (h *PropFirmHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload propFirmPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if payload.Name == nil || *payload.Name == "" || payload.FullBalance == nil {
		http.Error(w, "name and full_balance are required", http.StatusBadRequest)
		return
	}

	firm := &model.PropFirm{
		Name:        *payload.Name,
		FullBalance: *payload.FullBalance,
	}
	if payload.IsActive != nil {
		firm.IsActive = *payload.IsActive
	}
	if payload.Username != nil {
		firm.Username = *payload.Username
	}
	if payload.ServerAddress != nil {
		firm.ServerAddress = *payload.ServerAddress
	}
	if payload.Port != nil {
		firm.Port = *payload.Port
	}
	if payload.PlatformType != nil {
		firm.PlatformType = *payload.PlatformType
	}
	if payload.Description != nil {
		firm.Description = *payload.Description
	}
	if payload.Password != nil && *payload.Password != "" {
		sealed, err := h.cipher.Encrypt(*payload.Password)
		if err != nil {
			logger.WithError(err).Error("failed to encrypt terminal password")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		firm.Password = sealed
	}

	if err := h.firms.Create(r.Context(), firm); err != nil {
		logger.WithError(err).Error("failed to create prop firm")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, firm)
}

func (h *PropFirmHandler) List(w http.ResponseWriter, r *http.Request) {
	firms, err := h.firms.FindAll(r.Context())
	if err != nil {
		logger.WithError(err).Error("failed to list prop firms")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, firms)
}

func (h *PropFirmHandler) Get(w http.ResponseWriter, r *http.Request) {
	firm, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, firm)
}

// Update applies a partial edit. Touching full_balance resets the available
// balance as well; touching credentials drops the cached terminal session.
func (h *PropFirmHandler) Update(w http.ResponseWriter, r *http.Request) {
	firm, ok := h.load(w, r)
	if !ok {
		return
	}

	var payload propFirmPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	credentialsChanged := false

	if payload.Name != nil {
		firm.Name = *payload.Name
	}
	if payload.IsActive != nil {
		firm.IsActive = *payload.IsActive
	}
	if payload.Description != nil {
		firm.Description = *payload.Description
	}
	if payload.Username != nil {
		firm.Username = *payload.Username
		credentialsChanged = true
	}
	if payload.ServerAddress != nil {
		firm.ServerAddress = *payload.ServerAddress
		credentialsChanged = true
	}
	if payload.Port != nil {
		firm.Port = *payload.Port
		credentialsChanged = true
	}
	if payload.PlatformType != nil {
		firm.PlatformType = *payload.PlatformType
		credentialsChanged = true
	}
	if payload.Password != nil && *payload.Password != "" {
		sealed, err := h.cipher.Encrypt(*payload.Password)
		if err != nil {
			logger.WithError(err).Error("failed to encrypt terminal password")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		firm.Password = sealed
		credentialsChanged = true
	}
	if payload.FullBalance != nil {
		firm.FullBalance = *payload.FullBalance
		if err := firm.SetAvailableToFull(); err != nil {
			logger.WithError(err).WithField("prop_firm_id", firm.ID).
				Warn("balance edit left the account degenerate")
		}
	}

	if err := h.firms.Save(r.Context(), firm); err != nil {
		logger.WithError(err).Error("failed to update prop firm")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if credentialsChanged && h.evicter != nil {
		h.evicter.Evict(firm.ID)
	}

	writeJSON(w, http.StatusOK, firm)
}

func (h *PropFirmHandler) Delete(w http.ResponseWriter, r *http.Request) {
	firm, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := h.firms.Delete(r.Context(), firm.ID); err != nil {
		logger.WithError(err).Error("failed to delete prop firm")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if h.evicter != nil {
		h.evicter.Evict(firm.ID)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PropFirmHandler) load(w http.ResponseWriter, r *http.Request) (*model.PropFirm, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid prop firm id", http.StatusBadRequest)
		return nil, false
	}

	firm, err := h.firms.FindByID(r.Context(), uint(id))
	if err != nil {
		logger.WithError(err).Error("failed to fetch prop firm")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	if firm == nil {
		http.Error(w, "prop firm not found", http.StatusNotFound)
		return nil, false
	}
	return firm, true
}
