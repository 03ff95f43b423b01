package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// Search returns at most limit summaries, most recently updated first.
	// An empty term matches every patient.
	Search(ctx context.Context, term string, limit int) ([]*Summary, error)
	Count(ctx context.Context) (int, error)

	// Profiles
	UpsertProfile(ctx context.Context, pr *Profile) error
	GetProfile(ctx context.Context, patientID uuid.UUID) (*Profile, error)
}
