package clinic

import (
	"context"

	"github.com/google/uuid"
)

type ClinicRepository interface {
	Create(ctx context.Context, c *Clinic) error
	GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	List(ctx context.Context) ([]*Clinic, error)
	Count(ctx context.Context) (int, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*User, error)
	Count(ctx context.Context) (int, error)
}
