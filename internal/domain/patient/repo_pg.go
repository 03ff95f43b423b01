package patient

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fertility/cds/internal/platform/apperr"
	"github.com/fertility/cds/internal/platform/db"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, clinic_id, mrn, first_name, last_name, date_of_birth, email, phone, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, clinic_id, mrn, first_name, last_name, date_of_birth, email, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		p.ID, p.ClinicID, p.MRN, p.FirstName, p.LastName, p.DateOfBirth, p.Email, p.Phone,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err):
		return apperr.Conflict("a patient with MRN %s already exists", p.MRN)
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("clinic not found")
	case err != nil:
		return apperr.Store("create patient", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("patient not found")
	}
	if err != nil {
		return nil, apperr.Store("get patient", err)
	}
	return p, nil
}

func (r *patientRepoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM patient WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, apperr.Store("check patient", err)
	}
	return ok, nil
}

func (r *patientRepoPG) Search(ctx context.Context, term string, limit int) ([]*Summary, error) {
	sql, args := directoryQuery(term, limit)
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Store("search patients", err)
	}
	defer rows.Close()

	out := []*Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.MRN, &s.FirstName, &s.LastName, &s.Email, &s.Phone,
			&s.DateOfBirth, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, apperr.Store("scan patient", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("search patients", err)
	}
	return out, nil
}

// directoryQuery builds the directory SQL. Without a term no WHERE clause is
// emitted at all.
func directoryQuery(term string, limit int) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(`SELECT id, mrn, first_name, last_name, email, phone, date_of_birth, created_at, updated_at FROM patient`)
	args := []interface{}{}
	if term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		b.WriteString(` WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR email ILIKE $1 OR mrn ILIKE $1`)
	}
	args = append(args, limit)
	b.WriteString(` ORDER BY updated_at DESC, created_at DESC LIMIT $`)
	b.WriteString(strconv.Itoa(len(args)))
	return b.String(), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *patientRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&n); err != nil {
		return 0, apperr.Store("count patients", err)
	}
	return n, nil
}

func (r *patientRepoPG) UpsertProfile(ctx context.Context, pr *Profile) error {
	pr.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_profile (id, patient_id, amh, fsh, bmi, infertility_diagnosis, previous_cycles, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (patient_id) DO UPDATE SET
			amh = EXCLUDED.amh,
			fsh = EXCLUDED.fsh,
			bmi = EXCLUDED.bmi,
			infertility_diagnosis = EXCLUDED.infertility_diagnosis,
			previous_cycles = EXCLUDED.previous_cycles,
			notes = EXCLUDED.notes,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		pr.ID, pr.PatientID, pr.AMH, pr.FSH, pr.BMI, pr.InfertilityDiagnosis, pr.PreviousCycles, pr.Notes,
	).Scan(&pr.ID, &pr.CreatedAt, &pr.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("patient not found")
	}
	if err != nil {
		return apperr.Store("save profile", err)
	}
	return nil
}

func (r *patientRepoPG) GetProfile(ctx context.Context, patientID uuid.UUID) (*Profile, error) {
	var pr Profile
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, amh, fsh, bmi, infertility_diagnosis, previous_cycles, notes, created_at, updated_at
		FROM patient_profile WHERE patient_id = $1`, patientID,
	).Scan(&pr.ID, &pr.PatientID, &pr.AMH, &pr.FSH, &pr.BMI, &pr.InfertilityDiagnosis,
		&pr.PreviousCycles, &pr.Notes, &pr.CreatedAt, &pr.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("profile not found")
	}
	if err != nil {
		return nil, apperr.Store("get profile", err)
	}
	return &pr, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.ClinicID, &p.MRN, &p.FirstName, &p.LastName,
		&p.DateOfBirth, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
