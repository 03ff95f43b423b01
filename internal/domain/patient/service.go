package patient

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/fertility/cds/internal/platform/apperr"
	"github.com/fertility/cds/pkg/pagination"
)

type Service struct {
	patients Repository
}

func NewService(patients Repository) *Service {
	return &Service{patients: patients}
}

// Directory searches patient summaries. The limit is clamped to the
// directory bounds and the term is trimmed; a blank term lists everyone.
func (s *Service) Directory(ctx context.Context, term string, limit int) ([]*Summary, int, error) {
	limit = pagination.Directory.Clamp(limit)
	results, err := s.patients.Search(ctx, strings.TrimSpace(term), limit)
	if err != nil {
		return nil, limit, err
	}
	return results, limit, nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.MRN = strings.TrimSpace(p.MRN)
	if p.FirstName == "" || p.LastName == "" {
		return apperr.Validation("firstName and lastName are required")
	}
	if p.MRN == "" {
		return apperr.Validation("mrn is required")
	}
	if p.ClinicID == uuid.Nil {
		return apperr.Validation("clinicId is required")
	}
	return s.patients.Create(ctx, p)
}

// GetRecord returns the patient with its profile, if one has been saved.
func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	pr, err := s.patients.GetProfile(ctx, id)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	return &Record{Patient: p, Profile: pr}, nil
}

func (s *Service) SaveProfile(ctx context.Context, pr *Profile) error {
	if pr.PreviousCycles < 0 {
		return apperr.Validation("previousCycles must not be negative")
	}
	for name, v := range map[string]*float64{"amh": pr.AMH, "fsh": pr.FSH, "bmi": pr.BMI} {
		if v != nil && *v < 0 {
			return apperr.Validation("%s must not be negative", name)
		}
	}
	ok, err := s.patients.Exists(ctx, pr.PatientID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("patient not found")
	}
	return s.patients.UpsertProfile(ctx, pr)
}
