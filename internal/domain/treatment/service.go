package treatment

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fertility/cds/internal/platform/apperr"
	"github.com/fertility/cds/pkg/pagination"
)

type Service struct {
	patients  PatientChecker
	cycles    CycleRepository
	labs      LabResultRepository
	documents DocumentRepository
}

func NewService(patients PatientChecker, cycles CycleRepository, labs LabResultRepository, documents DocumentRepository) *Service {
	return &Service{patients: patients, cycles: cycles, labs: labs, documents: documents}
}

func (s *Service) requirePatient(ctx context.Context, id uuid.UUID) error {
	ok, err := s.patients.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("patient not found")
	}
	return nil
}

// requireCycleOf checks that cycleID names a cycle of patientID.
func (s *Service) requireCycleOf(ctx context.Context, patientID uuid.UUID, cycleID *uuid.UUID) error {
	if cycleID == nil {
		return nil
	}
	c, err := s.cycles.GetByID(ctx, *cycleID)
	if err != nil {
		return err
	}
	if c.PatientID != patientID {
		return apperr.Validation("cycleId does not belong to this patient")
	}
	return nil
}

// -- Cycles --

// CreateCycle opens a cycle for a patient. Status defaults to PLANNING and
// the cycle number to one past the patient's highest.
func (s *Service) CreateCycle(ctx context.Context, c *Cycle) error {
	if c.Status == "" {
		c.Status = StatusPlanning
	}
	c.Status = CycleStatus(strings.ToUpper(string(c.Status)))
	if !c.Status.Valid() {
		return apperr.Validation("status %q is not a valid cycle status", c.Status)
	}
	if c.CycleNumber < 0 {
		return apperr.Validation("cycleNumber must be positive")
	}
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return apperr.Validation("endDate must not be before startDate")
	}
	if err := s.requirePatient(ctx, c.PatientID); err != nil {
		return err
	}
	if c.CycleNumber == 0 {
		n, err := s.cycles.NextCycleNumber(ctx, c.PatientID)
		if err != nil {
			return err
		}
		c.CycleNumber = n
	}
	return s.cycles.Create(ctx, c)
}

func (s *Service) GetCycle(ctx context.Context, id uuid.UUID) (*Cycle, error) {
	return s.cycles.GetByID(ctx, id)
}

func (s *Service) ListCycles(ctx context.Context, patientID uuid.UUID, limit int) ([]*Cycle, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.cycles.ListByPatient(ctx, patientID, pagination.Records.Clamp(limit))
}

func (s *Service) UpdateCycleStatus(ctx context.Context, id uuid.UUID, status CycleStatus) (*Cycle, error) {
	status = CycleStatus(strings.ToUpper(strings.TrimSpace(string(status))))
	if !status.Valid() {
		return nil, apperr.Validation("status %q is not a valid cycle status", status)
	}
	return s.cycles.UpdateStatus(ctx, id, status)
}

// -- Lab results --

func (s *Service) CreateLabResult(ctx context.Context, l *LabResult) error {
	l.TestType = strings.TrimSpace(l.TestType)
	if l.TestType == "" {
		return apperr.Validation("testType is required")
	}
	if len(l.Values) == 0 {
		l.Values = json.RawMessage(`{}`)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(l.Values, &obj); err != nil || obj == nil {
		return apperr.Validation("values must be a JSON object")
	}
	if l.ResultDate.IsZero() {
		l.ResultDate = time.Now().UTC()
	}
	if err := s.requirePatient(ctx, l.PatientID); err != nil {
		return err
	}
	if err := s.requireCycleOf(ctx, l.PatientID, l.CycleID); err != nil {
		return err
	}
	return s.labs.Create(ctx, l)
}

func (s *Service) ListLabResults(ctx context.Context, patientID uuid.UUID, limit int) ([]*LabResult, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.labs.ListByPatient(ctx, patientID, pagination.Records.Clamp(limit))
}

// -- Documents --

func (s *Service) CreateDocument(ctx context.Context, d *Document) error {
	d.Title = strings.TrimSpace(d.Title)
	d.DocType = strings.TrimSpace(d.DocType)
	if d.Title == "" {
		return apperr.Validation("title is required")
	}
	if d.DocType == "" {
		return apperr.Validation("docType is required")
	}
	u, err := url.Parse(d.StorageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return apperr.Validation("storageUrl must be an absolute URL")
	}
	if err := s.requirePatient(ctx, d.PatientID); err != nil {
		return err
	}
	if err := s.requireCycleOf(ctx, d.PatientID, d.CycleID); err != nil {
		return err
	}
	return s.documents.Create(ctx, d)
}

func (s *Service) ListDocuments(ctx context.Context, patientID uuid.UUID, limit int) ([]*Document, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.documents.ListByPatient(ctx, patientID, pagination.Records.Clamp(limit))
}
