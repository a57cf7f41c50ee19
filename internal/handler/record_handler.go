package handler

import (
	"encoding/json"
	"net/http"

	"medicapp-sync/internal/domain"
	"medicapp-sync/internal/service"
	"medicapp-sync/pkg/response"

	"github.com/gorilla/mux"
)

type RecordHandler struct {
	records *service.RecordService
}

func NewRecordHandler(records *service.RecordService) *RecordHandler {
	return &RecordHandler{records: records}
}

func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	if patientID := r.URL.Query().Get("patient_id"); patientID != "" {
		records, err := h.records.ListByPatient(r.Context(), patientID)
		if err != nil {
			response.InternalError(w, "Failed to list records")
			return
		}
		response.Success(w, records)
		return
	}

	records, err := h.records.List(r.Context())
	if err != nil {
		response.InternalError(w, "Failed to list records")
		return
	}

	response.Success(w, records)
}

func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		response.BadRequest(w, "Record ID is required")
		return
	}

	record, err := h.records.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Failed to load record")
		return
	}

	response.Success(w, record)
}

func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	record, err := h.records.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "Failed to create record")
		return
	}

	response.Created(w, record)
}

func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		response.BadRequest(w, "Record ID is required")
		return
	}

	if err := h.records.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, "Failed to delete record")
		return
	}

	response.Success(w, map[string]string{"deleted": id})
}
