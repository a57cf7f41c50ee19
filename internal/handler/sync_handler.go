package handler

import (
	"net/http"

	"medicapp-sync/internal/service"
	"medicapp-sync/pkg/response"
)

type SyncHandler struct {
	sync *service.SyncService
}

func NewSyncHandler(sync *service.SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.sync.GetSyncStatus()
	if err != nil {
		response.InternalError(w, "Failed to read sync status")
		return
	}

	response.Success(w, status)
}

// ForceSync triggers a queue drain; the drain itself no-ops when offline, so
// this always answers with the resulting status.
func (h *SyncHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.ForceSync(r.Context()); err != nil {
		response.InternalError(w, "Sync failed")
		return
	}

	status, err := h.sync.GetSyncStatus()
	if err != nil {
		response.InternalError(w, "Failed to read sync status")
		return
	}

	response.Success(w, status)
}
