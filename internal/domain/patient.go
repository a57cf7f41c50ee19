package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks client-assigned ids for records that have not yet
// completed a first remote write.
const TempIDPrefix = "local-"

type PatientRecord struct {
	ID string `json:"id"`

	FirstName        string `json:"first_name"`
	PaternalLastName string `json:"paternal_last_name"`
	MaternalLastName string `json:"maternal_last_name,omitempty"`

	BirthDate string `json:"birth_date,omitempty"`
	Sex       string `json:"sex,omitempty"`
	Curp      string `json:"curp,omitempty"`

	Street       string `json:"street,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`

	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`

	MedicalNotes string `json:"medical_notes,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// HasTempID reports whether the record still carries a client-assigned id.
func (p *PatientRecord) HasTempID() bool {
	return strings.HasPrefix(p.ID, TempIDPrefix)
}

// NewTempID builds a client-side id used until the remote store assigns one.
// The millisecond timestamp keeps ids roughly ordered; the uuid suffix keeps
// same-millisecond creations from colliding.
func NewTempID() string {
	return fmt.Sprintf("%s%d-%s", TempIDPrefix, time.Now().UnixMilli(), uuid.New().String()[:8])
}

type CreatePatientRequest struct {
	FirstName        string `json:"first_name" validate:"required,min=1,max=100"`
	PaternalLastName string `json:"paternal_last_name" validate:"required,min=1,max=100"`
	MaternalLastName string `json:"maternal_last_name" validate:"max=100"`
	BirthDate        string `json:"birth_date"`
	Sex              string `json:"sex" validate:"omitempty,oneof=male female other"`
	Curp             string `json:"curp" validate:"max=18"`
	Street           string `json:"street"`
	Neighborhood     string `json:"neighborhood"`
	City             string `json:"city"`
	State            string `json:"state"`
	PostalCode       string `json:"postal_code" validate:"omitempty,len=5,numeric"`
	Phone            string `json:"phone" validate:"max=20"`
	Email            string `json:"email" validate:"omitempty,email"`
	MedicalNotes     string `json:"medical_notes"`
}

type UpdatePatientRequest struct {
	FirstName        *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	PaternalLastName *string `json:"paternal_last_name" validate:"omitempty,min=1,max=100"`
	MaternalLastName *string `json:"maternal_last_name"`
	BirthDate        *string `json:"birth_date"`
	Sex              *string `json:"sex" validate:"omitempty,oneof=male female other"`
	Curp             *string `json:"curp"`
	Street           *string `json:"street"`
	Neighborhood     *string `json:"neighborhood"`
	City             *string `json:"city"`
	State            *string `json:"state"`
	PostalCode       *string `json:"postal_code" validate:"omitempty,len=5,numeric"`
	Phone            *string `json:"phone"`
	Email            *string `json:"email" validate:"omitempty,email"`
	MedicalNotes     *string `json:"medical_notes"`
}

// Fields returns only the fields present in the request, keyed by their wire
// names, ready to merge into a remote document.
func (r *UpdatePatientRequest) Fields() map[string]interface{} {
	raw, _ := json.Marshal(r)

	fields := make(map[string]interface{})
	_ = json.Unmarshal(raw, &fields)

	for k, v := range fields {
		if v == nil {
			delete(fields, k)
		}
	}
	return fields
}

// ApplyTo merges the request's present fields over an existing record.
func (r *UpdatePatientRequest) ApplyTo(p *PatientRecord) {
	if r.FirstName != nil {
		p.FirstName = *r.FirstName
	}
	if r.PaternalLastName != nil {
		p.PaternalLastName = *r.PaternalLastName
	}
	if r.MaternalLastName != nil {
		p.MaternalLastName = *r.MaternalLastName
	}
	if r.BirthDate != nil {
		p.BirthDate = *r.BirthDate
	}
	if r.Sex != nil {
		p.Sex = *r.Sex
	}
	if r.Curp != nil {
		p.Curp = *r.Curp
	}
	if r.Street != nil {
		p.Street = *r.Street
	}
	if r.Neighborhood != nil {
		p.Neighborhood = *r.Neighborhood
	}
	if r.City != nil {
		p.City = *r.City
	}
	if r.State != nil {
		p.State = *r.State
	}
	if r.PostalCode != nil {
		p.PostalCode = *r.PostalCode
	}
	if r.Phone != nil {
		p.Phone = *r.Phone
	}
	if r.Email != nil {
		p.Email = *r.Email
	}
	if r.MedicalNotes != nil {
		p.MedicalNotes = *r.MedicalNotes
	}
}
