package treatment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CycleStatus is the lifecycle stage of a treatment cycle.
type CycleStatus string

const (
	StatusPlanning      CycleStatus = "PLANNING"
	StatusStimulation   CycleStatus = "STIMULATION"
	StatusMonitoring    CycleStatus = "MONITORING"
	StatusTrigger       CycleStatus = "TRIGGER"
	StatusRetrieval     CycleStatus = "RETRIEVAL"
	StatusFertilization CycleStatus = "FERTILIZATION"
	StatusTransfer      CycleStatus = "TRANSFER"
	StatusTWW           CycleStatus = "TWW"
	StatusPositive      CycleStatus = "POSITIVE"
	StatusNegative      CycleStatus = "NEGATIVE"
	StatusCancelled     CycleStatus = "CANCELLED"
	StatusCompleted     CycleStatus = "COMPLETED"
)

// Statuses lists every cycle status in lifecycle order.
var Statuses = []CycleStatus{
	StatusPlanning, StatusStimulation, StatusMonitoring, StatusTrigger, StatusRetrieval,
	StatusFertilization, StatusTransfer, StatusTWW, StatusPositive, StatusNegative,
	StatusCancelled, StatusCompleted,
}

func (s CycleStatus) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Cycle maps to the treatment_cycle table.
type Cycle struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	PatientID   uuid.UUID   `db:"patient_id" json:"patientId"`
	CycleNumber int         `db:"cycle_number" json:"cycleNumber"`
	Protocol    *string     `db:"protocol" json:"protocol,omitempty"`
	Status      CycleStatus `db:"status" json:"status"`
	StartDate   *time.Time  `db:"start_date" json:"startDate,omitempty"`
	EndDate     *time.Time  `db:"end_date" json:"endDate,omitempty"`
	Notes       *string     `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}

// LabResult maps to the lab_result table. Values holds the analyte readings
// as a JSON object, e.g. {"amh": 1.8, "unit": "ng/mL"}.
type LabResult struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	PatientID  uuid.UUID       `db:"patient_id" json:"patientId"`
	CycleID    *uuid.UUID      `db:"cycle_id" json:"cycleId,omitempty"`
	TestType   string          `db:"test_type" json:"testType"`
	Values     json.RawMessage `db:"test_values" json:"values"`
	ResultDate time.Time       `db:"result_date" json:"resultDate"`
	Notes      *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// Document maps to the document table. Only metadata and a storage URL are kept.
type Document struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	PatientID  uuid.UUID  `db:"patient_id" json:"patientId"`
	CycleID    *uuid.UUID `db:"cycle_id" json:"cycleId,omitempty"`
	Title      string     `db:"title" json:"title"`
	DocType    string     `db:"doc_type" json:"docType"`
	StorageURL string     `db:"storage_url" json:"storageUrl"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}
