package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"medicapp-sync/internal/domain"
	"medicapp-sync/internal/service"
	"medicapp-sync/pkg/response"

	"github.com/gorilla/mux"
)

type PatientHandler struct {
	sync *service.SyncService
}

func NewPatientHandler(sync *service.SyncService) *PatientHandler {
	return &PatientHandler{sync: sync}
}

func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	patients, err := h.sync.GetPatients(r.Context())
	if err != nil {
		response.InternalError(w, "Failed to list patients")
		return
	}

	response.Success(w, patients)
}

func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	patient, err := h.sync.CreatePatient(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "Failed to create patient")
		return
	}

	response.Created(w, patient)
}

func (h *PatientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		response.BadRequest(w, "Patient ID is required")
		return
	}

	var req domain.UpdatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	patient, err := h.sync.UpdatePatient(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, err, "Failed to update patient")
		return
	}

	response.Success(w, patient)
}

// Delete takes the patient id from the query string, matching the UI's
// existing call shape.
func (h *PatientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		response.BadRequest(w, "Patient ID is required")
		return
	}

	if err := h.sync.DeletePatient(r.Context(), id); err != nil {
		writeServiceError(w, err, "Failed to delete patient")
		return
	}

	response.Success(w, map[string]string{"deleted": id})
}

func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		response.BadRequest(w, validationErr.Error())
		return
	}

	var notFoundErr *service.NotFoundError
	if errors.As(err, &notFoundErr) {
		response.NotFound(w, notFoundErr.Error())
		return
	}

	response.InternalError(w, fallback)
}
