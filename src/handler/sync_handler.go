package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"signalcopier/src/model"
	"signalcopier/src/repository"
	syncsvc "signalcopier/src/sync"
)

type reconciler interface {
	SyncAll(ctx context.Context) (syncsvc.Report, error)
	SyncPropFirm(ctx context.Context, firm *model.PropFirm) (syncsvc.FirmReport, error)
}

// SyncHandler triggers reconciliation on demand; the syncer daemon covers the
// scheduled runs.
type SyncHandler struct {
	svc   reconciler
	firms *repository.PropFirmRepository
}

func NewSyncHandler(svc reconciler, firms *repository.PropFirmRepository) *SyncHandler {
	return &SyncHandler{svc: svc, firms: firms}
}

func (h *SyncHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.SyncAll(r.Context())
	if err != nil {
		logger.WithError(err).Error("reconciliation pass failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *SyncHandler) SyncOne(w http.ResponseWriter, r *http.Request) {
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

	report, err := h.svc.SyncPropFirm(r.Context(), firm)
	if err != nil {
		logger.WithError(err).WithField("prop_firm_id", firm.ID).
			Error("reconciliation failed")
		report.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
