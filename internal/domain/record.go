package domain

import "time"

// PrehospitalRecord is one pre-hospital care form. Forms are written straight
// through to the remote store; the local copy is a read cache only.
type PrehospitalRecord struct {
	ID        string `json:"id"`
	PatientID string `json:"patient_id"`

	FolioNumber  string `json:"folio_number,omitempty"`
	ServiceDate  string `json:"service_date,omitempty"`
	ChiefReason  string `json:"chief_reason,omitempty"`
	Evaluation   string `json:"evaluation,omitempty"`
	Treatment    string `json:"treatment,omitempty"`
	Transfer     string `json:"transfer,omitempty"`
	AttendingLot string `json:"attending_lot,omitempty"`

	Sections map[string]interface{} `json:"sections,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type CreateRecordRequest struct {
	PatientID   string                 `json:"patient_id" validate:"required"`
	FolioNumber string                 `json:"folio_number"`
	ServiceDate string                 `json:"service_date"`
	ChiefReason string                 `json:"chief_reason" validate:"required,min=1"`
	Evaluation  string                 `json:"evaluation"`
	Treatment   string                 `json:"treatment"`
	Transfer    string                 `json:"transfer"`
	Sections    map[string]interface{} `json:"sections"`
}
