package treatment

import (
	"context"

	"github.com/google/uuid"
)

type CycleRepository interface {
	Create(ctx context.Context, c *Cycle) error
	GetByID(ctx context.Context, id uuid.UUID) (*Cycle, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Cycle, error)
	// NextCycleNumber returns one more than the patient's highest cycle number.
	NextCycleNumber(ctx context.Context, patientID uuid.UUID) (int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status CycleStatus) (*Cycle, error)
	Count(ctx context.Context) (int, error)
}

type LabResultRepository interface {
	Create(ctx context.Context, r *LabResult) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*LabResult, error)
	Count(ctx context.Context) (int, error)
}

type DocumentRepository interface {
	Create(ctx context.Context, d *Document) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Document, error)
	Count(ctx context.Context) (int, error)
}

// PatientChecker reports whether a patient exists.
type PatientChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}
