package clinic

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fertility/cds/internal/platform/apperr"
)

// -- Mock Repositories --

type mockClinicRepo struct {
	clinics map[uuid.UUID]*Clinic
}

func newMockClinicRepo() *mockClinicRepo {
	return &mockClinicRepo{clinics: make(map[uuid.UUID]*Clinic)}
}

func (m *mockClinicRepo) Create(_ context.Context, c *Clinic) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.clinics[c.ID] = c
	return nil
}

func (m *mockClinicRepo) GetByID(_ context.Context, id uuid.UUID) (*Clinic, error) {
	c, ok := m.clinics[id]
	if !ok {
		return nil, apperr.NotFound("clinic not found")
	}
	return c, nil
}

func (m *mockClinicRepo) List(_ context.Context) ([]*Clinic, error) {
	var out []*Clinic
	for _, c := range m.clinics {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockClinicRepo) Count(_ context.Context) (int, error) {
	return len(m.clinics), nil
}

type mockUserRepo struct {
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return apperr.Conflict("a user with email %s already exists", u.Email)
		}
	}
	u.ID = uuid.New()
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepo) ListByClinic(_ context.Context, clinicID uuid.UUID) ([]*User, error) {
	var out []*User
	for _, u := range m.users {
		if u.ClinicID == clinicID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) Count(_ context.Context) (int, error) {
	return len(m.users), nil
}

func newTestService() *Service {
	return NewService(newMockClinicRepo(), newMockUserRepo())
}

func TestService_CreateClinic(t *testing.T) {
	svc := newTestService()
	c := &Clinic{Name: "  Northside Fertility  "}
	if err := svc.CreateClinic(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if c.Name != "Northside Fertility" {
		t.Errorf("expected trimmed name, got %q", c.Name)
	}
}

func TestService_CreateClinic_NameRequired(t *testing.T) {
	svc := newTestService()
	err := svc.CreateClinic(context.Background(), &Clinic{Name: "   "})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_CreateUser(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c := &Clinic{Name: "Clinic"}
	svc.CreateClinic(ctx, c)

	u := &User{ClinicID: c.ID, Email: " Dr.Who@Example.org ", Name: "Dr Who"}
	if err := svc.CreateUser(ctx, u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != "nurse" {
		t.Errorf("expected default role nurse, got %q", u.Role)
	}
	if u.Email != "dr.who@example.org" {
		t.Errorf("expected normalized email, got %q", u.Email)
	}
}

func TestService_CreateUser_Errors(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c := &Clinic{Name: "Clinic"}
	svc.CreateClinic(ctx, c)

	tests := []struct {
		name string
		user User
		kind apperr.Kind
	}{
		{"missing email", User{ClinicID: c.ID, Name: "A"}, apperr.KindValidation},
		{"missing name", User{ClinicID: c.ID, Email: "a@x.org"}, apperr.KindValidation},
		{"bad role", User{ClinicID: c.ID, Email: "a@x.org", Name: "A", Role: "janitor"}, apperr.KindValidation},
		{"unknown clinic", User{ClinicID: uuid.New(), Email: "a@x.org", Name: "A"}, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			err := svc.CreateUser(ctx, &u)
			if !apperr.Is(err, tt.kind) {
				t.Errorf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestService_CreateUser_DuplicateEmail(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c := &Clinic{Name: "Clinic"}
	svc.CreateClinic(ctx, c)

	svc.CreateUser(ctx, &User{ClinicID: c.ID, Email: "a@x.org", Name: "A"})
	err := svc.CreateUser(ctx, &User{ClinicID: c.ID, Email: "a@x.org", Name: "B"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
