package consultation

import (
	"context"

	"github.com/google/uuid"

	"github.com/fertility/cds/internal/domain/treatment"
)

// Repository stores consultation audit rows. There is deliberately no update
// or delete method.
type Repository interface {
	Create(ctx context.Context, p *Prediction) error
	// ListByPatient returns up to limit rows, newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Prediction, error)
	Count(ctx context.Context) (int, error)
}

// PatientChecker reports whether a patient exists.
type PatientChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// CycleGetter loads a treatment cycle. A missing cycle is a NotFound error.
type CycleGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*treatment.Cycle, error)
}
