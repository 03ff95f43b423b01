package clinic

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/fertility/cds/internal/platform/apperr"
	"github.com/fertility/cds/internal/platform/auth"
)

type Service struct {
	clinics ClinicRepository
	users   UserRepository
}

func NewService(clinics ClinicRepository, users UserRepository) *Service {
	return &Service{clinics: clinics, users: users}
}

func (s *Service) CreateClinic(ctx context.Context, c *Clinic) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return apperr.Validation("name is required")
	}
	return s.clinics.Create(ctx, c)
}

func (s *Service) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return s.clinics.GetByID(ctx, id)
}

func (s *Service) ListClinics(ctx context.Context) ([]*Clinic, error) {
	return s.clinics.List(ctx)
}

// CreateUser adds a staff member to an existing clinic. Role defaults to nurse.
func (s *Service) CreateUser(ctx context.Context, u *User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Name = strings.TrimSpace(u.Name)
	if u.Email == "" {
		return apperr.Validation("email is required")
	}
	if u.Name == "" {
		return apperr.Validation("name is required")
	}
	if u.Role == "" {
		u.Role = auth.RoleNurse
	}
	if !auth.ValidRole(u.Role) {
		return apperr.Validation("role %q is not a valid staff role", u.Role)
	}
	if _, err := s.clinics.GetByID(ctx, u.ClinicID); err != nil {
		return err
	}
	return s.users.Create(ctx, u)
}

func (s *Service) ListUsers(ctx context.Context, clinicID uuid.UUID) ([]*User, error) {
	if _, err := s.clinics.GetByID(ctx, clinicID); err != nil {
		return nil, err
	}
	return s.users.ListByClinic(ctx, clinicID)
}
