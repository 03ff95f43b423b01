package consultation

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fertility/cds/internal/platform/apperr"
	"github.com/fertility/cds/internal/platform/inference"
	"github.com/fertility/cds/pkg/pagination"
)

// Outcomes reported to the Recorder.
const (
	OutcomeSuccess     = "success"
	OutcomeFallback    = "fallback"
	OutcomeAuditFailed = "audit_failed"
)

const auditWriteTimeout = 5 * time.Second

// Recorder receives consultation metrics.
type Recorder interface {
	ObserveConsultation(outcome string)
	ObserveInference(d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveConsultation(string)            {}
func (nopRecorder) ObserveInference(time.Duration, error) {}

type Service struct {
	patients    PatientChecker
	cycles      CycleGetter
	predictions Repository
	llm         inference.Client
	recorder    Recorder
	timeout     time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTimeout bounds a single inference call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewService(patients PatientChecker, cycles CycleGetter, predictions Repository, llm inference.Client, opts ...Option) *Service {
	s := &Service{
		patients:    patients,
		cycles:      cycles,
		predictions: predictions,
		llm:         llm,
		recorder:    nopRecorder{},
		timeout:     60 * time.Second,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookupPatient resolves a raw patient id. Ids that are not UUIDs cannot
// name a patient and are reported as not found.
func (s *Service) lookupPatient(ctx context.Context, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.NotFound("patient not found")
	}
	ok, err := s.patients.Exists(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, apperr.NotFound("patient not found")
	}
	return id, nil
}

// Consult runs one consultation: validate, confirm the patient, call the
// model once, and record the exchange. An inference failure yields a
// fallback result rather than an error. A failed audit write is logged and
// the reply carries a nil PredictionID.
func (s *Service) Consult(ctx context.Context, req Request) (*Result, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, apperr.Validation("message is required")
	}
	rawPatient := strings.TrimSpace(req.PatientID)
	if rawPatient == "" {
		return nil, apperr.Validation("patientId is required")
	}

	var cycleID *uuid.UUID
	if req.CycleID != nil {
		if raw := strings.TrimSpace(*req.CycleID); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, apperr.Validation("cycleId is invalid")
			}
			cycleID = &id
		}
	}

	consultCtx, err := normalizeContext(req.Context)
	if err != nil {
		return nil, err
	}

	patientID, err := s.lookupPatient(ctx, rawPatient)
	if err != nil {
		return nil, err
	}
	if cycleID != nil {
		if err := s.requireCycleOf(ctx, patientID, *cycleID); err != nil {
			return nil, err
		}
	}

	text, err := s.generate(ctx, message)
	if err != nil {
		s.logger.Error().Err(err).
			Str("patient_id", patientID.String()).
			Str("model", s.llm.Model()).
			Msg("inference failed, returning fallback")
		s.recorder.ObserveConsultation(OutcomeFallback)
		return &Result{Fallback: &FallbackReply{
			Response: FallbackMessage,
			Fallback: true,
			Error:    FallbackError,
		}}, nil
	}

	reply := &Reply{
		Response:  text,
		Timestamp: s.now().UTC(),
		Model:     s.llm.Model(),
		PatientID: patientID,
		CycleID:   cycleID,
	}

	p := &Prediction{
		PatientID:    patientID,
		CycleID:      cycleID,
		InputText:    message,
		OutputText:   text,
		ModelVersion: reply.Model,
		Confidence:   DefaultConfidence,
		Context:      consultCtx,
	}

	// The audit write must not be lost to a client disconnect.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()
	if err := s.predictions.Create(auditCtx, p); err != nil {
		s.logger.Error().Err(err).
			Str("patient_id", patientID.String()).
			Msg("failed to record consultation audit row")
		s.recorder.ObserveConsultation(OutcomeAuditFailed)
		return &Result{Reply: reply}, nil
	}

	id := p.ID
	reply.PredictionID = &id
	s.recorder.ObserveConsultation(OutcomeSuccess)
	return &Result{Reply: reply}, nil
}

func (s *Service) generate(ctx context.Context, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.llm.Generate(ctx, inference.SystemPrompt, message)
	if err == nil && strings.TrimSpace(text) == "" {
		err = inference.ErrEmptyResponse
	}
	s.recorder.ObserveInference(time.Since(start), err)
	if err != nil {
		return "", apperr.Upstream("inference call failed", err)
	}
	return text, nil
}

// requireCycleOf checks that cycleID names a cycle of patientID.
func (s *Service) requireCycleOf(ctx context.Context, patientID, cycleID uuid.UUID) error {
	c, err := s.cycles.GetByID(ctx, cycleID)
	if err != nil {
		return err
	}
	if c.PatientID != patientID {
		return apperr.Validation("cycleId does not belong to this patient")
	}
	return nil
}

// normalizeContext drops an absent or JSON null context. Anything else must
// be a JSON object.
func normalizeContext(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, apperr.Validation("context must be a JSON object")
	}
	return trimmed, nil
}

// History returns a patient's most recent consultations, newest first.
func (s *Service) History(ctx context.Context, rawPatientID string, limit int) (*History, error) {
	patientID, err := s.lookupPatient(ctx, strings.TrimSpace(rawPatientID))
	if err != nil {
		return nil, err
	}
	limit = pagination.History.Clamp(limit)
	rows, err := s.predictions.ListByPatient(ctx, patientID, limit)
	if err != nil {
		return nil, err
	}
	return &History{PatientID: patientID, Limit: limit, History: rows}, nil
}

// Metadata describes the service without touching the store.
func (s *Service) Metadata() *Metadata {
	m := &Metadata{
		Service: "fertility clinical decision support",
		Status:  "ok",
		Model:   s.llm.Model(),
	}
	m.HistoryLimit.Default = pagination.History.Default
	m.HistoryLimit.Max = pagination.History.Max
	return m
}
