// Package sandbox generates reproducible synthetic clinic data for demos and
// test environments, and wipes it again.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/fertility/cds/internal/domain/clinic"
	"github.com/fertility/cds/internal/domain/patient"
	"github.com/fertility/cds/internal/domain/treatment"
	"github.com/fertility/cds/internal/platform/auth"
	"github.com/fertility/cds/internal/platform/db"
)

// SeedConfig controls the volume of generated data.
type SeedConfig struct {
	Patients         int
	CyclesPerPatient int
	LabsPerCycle     int
	Seed             int64
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Patients:         25,
		CyclesPerPatient: 2,
		LabsPerCycle:     3,
		Seed:             42,
	}
}

// SeedResult reports what Seed inserted.
type SeedResult struct {
	ClinicID   string `json:"clinicId"`
	Users      int    `json:"users"`
	Patients   int    `json:"patients"`
	Cycles     int    `json:"cycles"`
	LabResults int    `json:"labResults"`
}

// Stores are the repositories the seeder writes through.
type Stores struct {
	Clinics  clinic.ClinicRepository
	Users    clinic.UserRepository
	Patients patient.Repository
	Cycles   treatment.CycleRepository
	Labs     treatment.LabResultRepository
}

// purgeOrder deletes children before parents.
var purgeOrder = []string{
	"ai_prediction",
	"document",
	"lab_result",
	"treatment_cycle",
	"patient_profile",
	"patient",
	"app_user",
	"clinic",
}

type Seeder struct {
	stores Stores
	logger zerolog.Logger
	inTx   func(ctx context.Context, fn func(ctx context.Context) error) error
	exec   func(ctx context.Context, sql string) error
}

func NewSeeder(pool *pgxpool.Pool, stores Stores, logger zerolog.Logger) *Seeder {
	return &Seeder{
		stores: stores,
		logger: logger,
		inTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.WithTx(ctx, pool, fn)
		},
		exec: func(ctx context.Context, sql string) error {
			_, err := db.Conn(ctx, pool).Exec(ctx, sql)
			return err
		},
	}
}

// Seed inserts one clinic with a staff member per role, then cfg.Patients
// patients, each with a profile, cycles and lab results. Everything is
// written in a single transaction. Identical seeds yield identical names
// and values; ids are always fresh.
func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	if cfg.Patients < 0 || cfg.CyclesPerPatient < 0 || cfg.LabsPerCycle < 0 {
		return nil, fmt.Errorf("seed counts must not be negative")
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	res := &SeedResult{}

	err := s.inTx(ctx, func(ctx context.Context) error {
		c := &clinic.Clinic{
			Name:    pick(rng, clinicNames),
			Address: strPtr(fmt.Sprintf("%d %s", 10+rng.Intn(990), pick(rng, streets))),
			Phone:   strPtr(phone(rng)),
		}
		if err := s.stores.Clinics.Create(ctx, c); err != nil {
			return fmt.Errorf("create clinic: %w", err)
		}
		res.ClinicID = c.ID.String()
		tag := strings.SplitN(res.ClinicID, "-", 2)[0]

		roles := append([]string{auth.RoleAdmin}, auth.ClinicalRoles...)
		for _, role := range roles {
			first, last := pick(rng, firstNames), pick(rng, lastNames)
			u := &clinic.User{
				ClinicID: c.ID,
				Email:    fmt.Sprintf("%s.%s+%s@clinic.example", strings.ToLower(first), role, tag),
				Name:     first + " " + last,
				Role:     role,
			}
			if err := s.stores.Users.Create(ctx, u); err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			res.Users++
		}

		for i := 0; i < cfg.Patients; i++ {
			if err := s.seedPatient(ctx, rng, c, tag, i, cfg, res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("clinic_id", res.ClinicID).
		Int("patients", res.Patients).
		Int("cycles", res.Cycles).
		Int("lab_results", res.LabResults).
		Msg("sandbox data seeded")
	return res, nil
}

func (s *Seeder) seedPatient(ctx context.Context, rng *rand.Rand, c *clinic.Clinic, tag string, i int, cfg SeedConfig, res *SeedResult) error {
	first, last := pick(rng, firstNames), pick(rng, lastNames)
	dob := time.Date(1978+rng.Intn(20), time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC)
	p := &patient.Patient{
		ClinicID:    c.ID,
		MRN:         fmt.Sprintf("MRN-%s-%04d", tag, i+1),
		FirstName:   first,
		LastName:    last,
		DateOfBirth: &dob,
		Email:       strPtr(fmt.Sprintf("%s.%s%d@mail.example", strings.ToLower(first), strings.ToLower(last), i+1)),
		Phone:       strPtr(phone(rng)),
	}
	if err := s.stores.Patients.Create(ctx, p); err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	res.Patients++

	profile := &patient.Profile{
		PatientID:            p.ID,
		AMH:                  floatPtr(round(0.3+rng.Float64()*5.5, 2)),
		FSH:                  floatPtr(round(3+rng.Float64()*12, 1)),
		BMI:                  floatPtr(round(18.5+rng.Float64()*14, 1)),
		InfertilityDiagnosis: strPtr(pick(rng, diagnoses)),
		PreviousCycles:       rng.Intn(4),
	}
	if err := s.stores.Patients.UpsertProfile(ctx, profile); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}

	start := time.Now().UTC().AddDate(0, -2*cfg.CyclesPerPatient, 0).Truncate(24 * time.Hour)
	for n := 1; n <= cfg.CyclesPerPatient; n++ {
		cycleStart := start.AddDate(0, 2*(n-1), rng.Intn(10))
		status := treatment.Statuses[rng.Intn(len(treatment.Statuses))]
		cy := &treatment.Cycle{
			PatientID:   p.ID,
			CycleNumber: n,
			Protocol:    strPtr(pick(rng, protocols)),
			Status:      status,
			StartDate:   &cycleStart,
		}
		if err := s.stores.Cycles.Create(ctx, cy); err != nil {
			return fmt.Errorf("create cycle: %w", err)
		}
		res.Cycles++

		for l := 0; l < cfg.LabsPerCycle; l++ {
			test := labTests[rng.Intn(len(labTests))]
			values, err := json.Marshal(map[string]interface{}{
				"value": round(test.min+rng.Float64()*(test.max-test.min), 2),
				"unit":  test.unit,
			})
			if err != nil {
				return err
			}
			cycleID := cy.ID
			lab := &treatment.LabResult{
				PatientID:  p.ID,
				CycleID:    &cycleID,
				TestType:   test.name,
				Values:     values,
				ResultDate: cycleStart.AddDate(0, 0, 2*l),
			}
			if err := s.stores.Labs.Create(ctx, lab); err != nil {
				return fmt.Errorf("create lab result: %w", err)
			}
			res.LabResults++
		}
	}
	return nil
}

// Purge deletes every row from every table in one transaction.
func (s *Seeder) Purge(ctx context.Context) error {
	err := s.inTx(ctx, func(ctx context.Context) error {
		for _, table := range purgeOrder {
			if err := s.exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("purge %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Warn().Strs("tables", purgeOrder).Msg("sandbox data purged")
	return nil
}

type labTest struct {
	name     string
	unit     string
	min, max float64
}

var (
	clinicNames = []string{"Northside Fertility Centre", "Harbor Reproductive Health", "Lakeview IVF Clinic", "Summit Fertility Partners"}
	streets     = []string{"Maple Avenue", "Elm Street", "Harbor Road", "Cedar Lane", "Park Boulevard"}
	firstNames  = []string{"Anna", "Maria", "Sofia", "Olivia", "Emma", "Chloe", "Grace", "Leila", "Priya", "Hana", "Nora", "Zoe"}
	lastNames   = []string{"Smith", "Garcia", "Nguyen", "Patel", "Kowalski", "Okafor", "Silva", "Jensen", "Haddad", "Kim"}
	diagnoses   = []string{"Unexplained infertility", "PCOS", "Endometriosis", "Diminished ovarian reserve", "Tubal factor", "Male factor"}
	protocols   = []string{"Antagonist", "Long agonist", "Short agonist", "Mild stimulation", "Natural cycle", "Frozen embryo transfer"}
	labTests    = []labTest{
		{"AMH", "ng/mL", 0.2, 6},
		{"FSH", "IU/L", 2, 15},
		{"ESTRADIOL", "pg/mL", 20, 3000},
		{"LH", "IU/L", 1, 20},
		{"PROGESTERONE", "ng/mL", 0.1, 25},
		{"BETA_HCG", "mIU/mL", 0, 500},
	}
)

func pick(rng *rand.Rand, xs []string) string { return xs[rng.Intn(len(xs))] }

func phone(rng *rand.Rand) string {
	return fmt.Sprintf("+1-555-%03d-%04d", rng.Intn(1000), rng.Intn(10000))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }
