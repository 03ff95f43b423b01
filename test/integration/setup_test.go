package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/fertility/cds/internal/domain/clinic"
	"github.com/fertility/cds/internal/domain/patient"
	"github.com/fertility/cds/internal/domain/treatment"
	"github.com/fertility/cds/internal/platform/db"
	"github.com/fertility/cds/internal/platform/sandbox"
	"github.com/fertility/cds/migrations"
)

// globalPool is nil when TEST_DATABASE_URL is unset; every test then skips.
var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, url, 5, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect test database: %v\n", err)
		os.Exit(1)
	}
	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		pool.Close()
		fmt.Fprintf(os.Stderr, "migrate test database: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	pool.Close()
	os.Exit(code)
}

// requireDB skips the test without a database and empties every table.
func requireDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if globalPool == nil {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := newSeeder(globalPool).Purge(context.Background()); err != nil {
		t.Fatalf("purge: %v", err)
	}
	return globalPool
}

func newSeeder(pool *pgxpool.Pool) *sandbox.Seeder {
	return sandbox.NewSeeder(pool, sandbox.Stores{
		Clinics:  clinic.NewClinicRepo(pool),
		Users:    clinic.NewUserRepo(pool),
		Patients: patient.NewRepo(pool),
		Cycles:   treatment.NewCycleRepo(pool),
		Labs:     treatment.NewLabResultRepo(pool),
	}, zerolog.Nop())
}

func createClinic(t *testing.T, ctx context.Context, pool *pgxpool.Pool) *clinic.Clinic {
	t.Helper()
	c := &clinic.Clinic{Name: "Integration Fertility"}
	if err := clinic.NewClinicRepo(pool).Create(ctx, c); err != nil {
		t.Fatalf("create clinic: %v", err)
	}
	return c
}

func createPatient(t *testing.T, ctx context.Context, pool *pgxpool.Pool, c *clinic.Clinic, first, last, mrn string) *patient.Patient {
	t.Helper()
	email := strings.ToLower(first) + "@mail.example"
	p := &patient.Patient{ClinicID: c.ID, MRN: mrn, FirstName: first, LastName: last, Email: &email}
	if err := patient.NewRepo(pool).Create(ctx, p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return p
}

func sandboxConfig(patients int) sandbox.SeedConfig {
	cfg := sandbox.DefaultSeedConfig()
	cfg.Patients = patients
	return cfg
}

func countRows(t *testing.T, ctx context.Context, pool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}
