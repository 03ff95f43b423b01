package consultation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultConfidence is stored on every prediction; the model reports none.
const DefaultConfidence = 0.85

// FallbackMessage is returned in place of model output when inference fails.
const FallbackMessage = "The clinical decision support service is temporarily unavailable. " +
	"Please try your consultation again in a few moments. If the problem persists, " +
	"proceed with standard clinical protocols and consult a senior colleague."

// FallbackError is the client-facing error text of a fallback reply.
const FallbackError = "AI service temporarily unavailable"

// Prediction maps to the ai_prediction table. Rows are insert-only.
type Prediction struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	PatientID    uuid.UUID       `db:"patient_id" json:"patientId"`
	CycleID      *uuid.UUID      `db:"cycle_id" json:"cycleId"`
	InputText    string          `db:"input_text" json:"inputText"`
	OutputText   string          `db:"output_text" json:"outputText"`
	ModelVersion string          `db:"model_version" json:"modelVersion"`
	Confidence   float64         `db:"confidence" json:"confidence"`
	Context      json.RawMessage `db:"context" json:"context,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

// Request is a consultation submitted by clinic staff.
type Request struct {
	Message   string          `json:"message"`
	PatientID string          `json:"patientId"`
	CycleID   *string         `json:"cycleId,omitempty"`
	Context   json.RawMessage `json:"context,omitempty"`
}

// Reply is the successful consultation payload. PredictionID is null when the
// audit row could not be written.
type Reply struct {
	Response     string     `json:"response"`
	Timestamp    time.Time  `json:"timestamp"`
	Model        string     `json:"model"`
	PatientID    uuid.UUID  `json:"patientId"`
	CycleID      *uuid.UUID `json:"cycleId"`
	PredictionID *uuid.UUID `json:"predictionId"`
}

// FallbackReply is returned with status 200 when inference fails.
type FallbackReply struct {
	Response string `json:"response"`
	Fallback bool   `json:"fallback"`
	Error    string `json:"error"`
}

// Result holds exactly one of Reply or Fallback.
type Result struct {
	Reply    *Reply
	Fallback *FallbackReply
}

// Body returns the payload to serialize.
func (r *Result) Body() interface{} {
	if r.Fallback != nil {
		return r.Fallback
	}
	return r.Reply
}

// History is the response of a history read.
type History struct {
	PatientID uuid.UUID     `json:"patientId"`
	Limit     int           `json:"limit"`
	History   []*Prediction `json:"history"`
}

// Metadata describes the consultation endpoint when no patient is given.
type Metadata struct {
	Service      string `json:"service"`
	Status       string `json:"status"`
	Model        string `json:"model"`
	HistoryLimit struct {
		Default int `json:"default"`
		Max     int `json:"max"`
	} `json:"historyLimit"`
}
