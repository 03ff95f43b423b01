package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fertility/cds/internal/domain/treatment"
	"github.com/fertility/cds/internal/platform/apperr"
	"github.com/fertility/cds/internal/platform/inference"
)

// -- Mocks --

type mockPatients map[uuid.UUID]bool

func (m mockPatients) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return m[id], nil
}

type mockCycles map[uuid.UUID]*treatment.Cycle

func (m mockCycles) GetByID(_ context.Context, id uuid.UUID) (*treatment.Cycle, error) {
	c, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("cycle not found")
	}
	return c, nil
}

type mockRepo struct {
	mu        sync.Mutex
	rows      []*Prediction
	createErr error
	listErr   error
}

func (m *mockRepo) Create(_ context.Context, p *Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now().Add(time.Duration(len(m.rows)) * time.Millisecond)
	m.rows = append(m.rows, p)
	return nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit int) ([]*Prediction, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []*Prediction{}
	for _, p := range m.rows {
		if p.PatientID == patientID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepo) Count(_ context.Context) (int, error) { return len(m.rows), nil }

type fakeLLM struct {
	reply   string
	err     error
	calls   int
	prompt  string
	message string
}

func (f *fakeLLM) Generate(_ context.Context, systemPrompt, message string) (string, error) {
	f.calls++
	f.prompt, f.message = systemPrompt, message
	return f.reply, f.err
}

func (f *fakeLLM) Model() string { return "test-model" }

type fakeRecorder struct {
	outcomes   []string
	inferences int
}

func (r *fakeRecorder) ObserveConsultation(o string)           { r.outcomes = append(r.outcomes, o) }
func (r *fakeRecorder) ObserveInference(time.Duration, error) { r.inferences++ }

type fixture struct {
	svc       *Service
	cycles    mockCycles
	repo      *mockRepo
	llm       *fakeLLM
	rec       *fakeRecorder
	patientID uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		cycles:    mockCycles{},
		repo:      &mockRepo{},
		llm:       &fakeLLM{reply: "Assessment: stable response to stimulation."},
		rec:       &fakeRecorder{},
		patientID: uuid.New(),
	}
	f.svc = NewService(mockPatients{f.patientID: true}, f.cycles, f.repo, f.llm, WithRecorder(f.rec))
	return f
}

// addCycle registers a cycle owned by patientID and returns its id.
func (f *fixture) addCycle(patientID uuid.UUID) uuid.UUID {
	id := uuid.New()
	f.cycles[id] = &treatment.Cycle{ID: id, PatientID: patientID, CycleNumber: len(f.cycles) + 1, Status: treatment.StatusStimulation}
	return id
}

func TestConsult_Success(t *testing.T) {
	f := newFixture()
	cycle := f.addCycle(f.patientID)
	cycleStr := cycle.String()

	res, err := f.svc.Consult(context.Background(), Request{
		Message:   "  Day 8 E2 of 1800, 14 follicles. Trigger timing?  ",
		PatientID: f.patientID.String(),
		CycleID:   &cycleStr,
		Context:   json.RawMessage(`{"day":8}`),
	})
	require.NoError(t, err)
	require.Nil(t, res.Fallback)
	require.NotNil(t, res.Reply)

	assert.NotEmpty(t, res.Reply.Response)
	assert.Equal(t, "test-model", res.Reply.Model)
	assert.Equal(t, f.patientID, res.Reply.PatientID)
	assert.Equal(t, &cycle, res.Reply.CycleID)
	require.NotNil(t, res.Reply.PredictionID)
	assert.False(t, res.Reply.Timestamp.IsZero())

	assert.Equal(t, 1, f.llm.calls)
	assert.Equal(t, inference.SystemPrompt, f.llm.prompt)
	assert.Equal(t, "Day 8 E2 of 1800, 14 follicles. Trigger timing?", f.llm.message)

	require.Len(t, f.repo.rows, 1)
	row := f.repo.rows[0]
	assert.Equal(t, *res.Reply.PredictionID, row.ID)
	assert.Equal(t, f.llm.message, row.InputText)
	assert.Equal(t, res.Reply.Response, row.OutputText)
	assert.Equal(t, DefaultConfidence, row.Confidence)
	assert.JSONEq(t, `{"day":8}`, string(row.Context))
	assert.Equal(t, []string{OutcomeSuccess}, f.rec.outcomes)
}

func TestConsult_Validation(t *testing.T) {
	f := newFixture()
	bad := "not-a-uuid"

	tests := []struct {
		name    string
		req     Request
		message string
	}{
		{"missing message", Request{PatientID: f.patientID.String()}, "message is required"},
		{"blank message", Request{Message: "   ", PatientID: f.patientID.String()}, "message is required"},
		{"missing patient", Request{Message: "hello"}, "patientId is required"},
		{"blank patient", Request{Message: "hello", PatientID: "  "}, "patientId is required"},
		{"invalid cycle", Request{Message: "hello", PatientID: f.patientID.String(), CycleID: &bad}, "cycleId is invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Consult(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
	assert.Zero(t, f.llm.calls)
	assert.Empty(t, f.repo.rows)
}

func TestConsult_UnknownPatient(t *testing.T) {
	f := newFixture()
	for _, id := range []string{uuid.NewString(), "MRN-0042"} {
		_, err := f.svc.Consult(context.Background(), Request{Message: "hello", PatientID: id})
		assert.True(t, apperr.Is(err, apperr.KindNotFound), "id %q: got %v", id, err)
	}
	assert.Zero(t, f.llm.calls, "inference must not run for an unknown patient")
}

func TestConsult_UnknownCycle(t *testing.T) {
	f := newFixture()
	missing := uuid.NewString()

	_, err := f.svc.Consult(context.Background(), Request{Message: "hello", PatientID: f.patientID.String(), CycleID: &missing})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Contains(t, err.Error(), "cycle not found")
	assert.Zero(t, f.llm.calls, "inference must not run for an unknown cycle")
	assert.Empty(t, f.repo.rows)
}

func TestConsult_CycleOfAnotherPatient(t *testing.T) {
	f := newFixture()
	other := f.addCycle(uuid.New()).String()

	_, err := f.svc.Consult(context.Background(), Request{Message: "hello", PatientID: f.patientID.String(), CycleID: &other})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "does not belong to this patient")
	assert.Zero(t, f.llm.calls)
	assert.Empty(t, f.repo.rows)
}

func TestConsult_ContextMustBeObject(t *testing.T) {
	f := newFixture()
	for _, raw := range []string{`"just text"`, `42`, `[1,2]`, `true`} {
		_, err := f.svc.Consult(context.Background(), Request{
			Message: "hello", PatientID: f.patientID.String(), Context: json.RawMessage(raw),
		})
		require.Error(t, err, raw)
		assert.True(t, apperr.Is(err, apperr.KindValidation), raw)
		assert.Contains(t, err.Error(), "context must be a JSON object")
	}
	assert.Zero(t, f.llm.calls)
	assert.Empty(t, f.repo.rows)
}

func TestConsult_InferenceFailureFallsBack(t *testing.T) {
	f := newFixture()
	f.llm.err = errors.New("429 insufficient_quota: secret vendor detail")

	res, err := f.svc.Consult(context.Background(), Request{Message: "hello", PatientID: f.patientID.String()})
	require.NoError(t, err)
	require.NotNil(t, res.Fallback)
	assert.True(t, res.Fallback.Fallback)
	assert.Equal(t, FallbackMessage, res.Fallback.Response)
	assert.Equal(t, FallbackError, res.Fallback.Error)
	assert.NotContains(t, res.Fallback.Error, "quota")

	assert.Equal(t, 1, f.llm.calls, "no retry on failure")
	assert.Empty(t, f.repo.rows, "nothing is persisted on fallback")
	assert.Equal(t, []string{OutcomeFallback}, f.rec.outcomes)
}

func TestConsult_EmptyModelOutputFallsBack(t *testing.T) {
	f := newFixture()
	f.llm.reply = "   "

	res, err := f.svc.Consult(context.Background(), Request{Message: "hello", PatientID: f.patientID.String()})
	require.NoError(t, err)
	require.NotNil(t, res.Fallback)
	assert.Empty(t, f.repo.rows)
}

func TestConsult_AuditFailureIsSwallowed(t *testing.T) {
	f := newFixture()
	f.repo.createErr = apperr.Store("insert prediction", errors.New("connection reset"))

	res, err := f.svc.Consult(context.Background(), Request{Message: "hello", PatientID: f.patientID.String()})
	require.NoError(t, err)
	require.NotNil(t, res.Reply)
	assert.Equal(t, f.llm.reply, res.Reply.Response)
	assert.Nil(t, res.Reply.PredictionID)
	assert.Equal(t, []string{OutcomeAuditFailed}, f.rec.outcomes)
}

func TestConsult_NullContextIsDropped(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Consult(context.Background(), Request{
		Message: "hello", PatientID: f.patientID.String(), Context: json.RawMessage(`null`),
	})
	require.NoError(t, err)
	require.Len(t, f.repo.rows, 1)
	assert.Nil(t, f.repo.rows[0].Context)
	assert.Nil(t, f.repo.rows[0].CycleID)
}

func TestConsult_InferenceTimeout(t *testing.T) {
	f := newFixture()
	slow := &blockingLLM{}
	svc := NewService(mockPatients{f.patientID: true}, f.cycles, f.repo, slow, WithTimeout(20*time.Millisecond))

	res, err := svc.Consult(context.Background(), Request{Message: "hello", PatientID: f.patientID.String()})
	require.NoError(t, err)
	require.NotNil(t, res.Fallback)
	assert.Empty(t, f.repo.rows)
}

type blockingLLM struct{}

func (blockingLLM) Generate(ctx context.Context, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingLLM) Model() string { return "slow" }

func TestHistory_OrderAndLimit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		_, err := f.svc.Consult(ctx, Request{Message: "q", PatientID: f.patientID.String()})
		require.NoError(t, err)
	}
	// another patient's rows never leak in
	f.repo.rows = append(f.repo.rows, &Prediction{ID: uuid.New(), PatientID: uuid.New(), CreatedAt: time.Now().Add(time.Hour)})

	tests := []struct {
		limit, want int
	}{
		{0, 10},
		{-3, 10},
		{4, 4},
		{500, 15},
	}
	for _, tt := range tests {
		h, err := f.svc.History(ctx, f.patientID.String(), tt.limit)
		require.NoError(t, err)
		assert.Len(t, h.History, tt.want, "limit %d", tt.limit)
		for i := 1; i < len(h.History); i++ {
			assert.False(t, h.History[i].CreatedAt.After(h.History[i-1].CreatedAt), "not newest first")
			assert.Equal(t, f.patientID, h.History[i].PatientID)
		}
	}

	h, _ := f.svc.History(ctx, f.patientID.String(), 500)
	assert.Equal(t, 50, h.Limit)
}

func TestHistory_UnknownPatient(t *testing.T) {
	f := newFixture()
	_, err := f.svc.History(context.Background(), uuid.NewString(), 5)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestHistory_StoreError(t *testing.T) {
	f := newFixture()
	f.repo.listErr = apperr.Store("list predictions", errors.New("timeout"))
	_, err := f.svc.History(context.Background(), f.patientID.String(), 5)
	assert.Equal(t, 500, apperr.Status(err))
}

func TestMetadata(t *testing.T) {
	f := newFixture()
	m := f.svc.Metadata()
	assert.Equal(t, "test-model", m.Model)
	assert.Equal(t, 10, m.HistoryLimit.Default)
	assert.Equal(t, 50, m.HistoryLimit.Max)
}
