package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ClinicID    uuid.UUID  `db:"clinic_id" json:"clinicId"`
	MRN         string     `db:"mrn" json:"mrn"`
	FirstName   string     `db:"first_name" json:"firstName"`
	LastName    string     `db:"last_name" json:"lastName"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"dateOfBirth,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// Profile maps to patient_profile. A patient has at most one.
type Profile struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	PatientID            uuid.UUID `db:"patient_id" json:"patientId"`
	AMH                  *float64  `db:"amh" json:"amh,omitempty"`
	FSH                  *float64  `db:"fsh" json:"fsh,omitempty"`
	BMI                  *float64  `db:"bmi" json:"bmi,omitempty"`
	InfertilityDiagnosis *string   `db:"infertility_diagnosis" json:"infertilityDiagnosis,omitempty"`
	PreviousCycles       int       `db:"previous_cycles" json:"previousCycles"`
	Notes                *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt            time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time `db:"updated_at" json:"updatedAt"`
}

// Summary is the directory projection of a patient.
type Summary struct {
	ID          uuid.UUID  `json:"id"`
	MRN         string     `json:"mrn"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Email       *string    `json:"email,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Record is a patient together with its optional profile.
type Record struct {
	*Patient
	Profile *Profile `json:"profile"`
}
