package treatment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fertility/cds/internal/platform/apperr"
	"github.com/fertility/cds/internal/platform/db"
)

// -- Cycle Repository --

type cycleRepoPG struct {
	pool *pgxpool.Pool
}

func NewCycleRepo(pool *pgxpool.Pool) CycleRepository {
	return &cycleRepoPG{pool: pool}
}

const cycleCols = `id, patient_id, cycle_number, protocol, status, start_date, end_date, notes, created_at, updated_at`

func (r *cycleRepoPG) Create(ctx context.Context, c *Cycle) error {
	c.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO treatment_cycle (id, patient_id, cycle_number, protocol, status, start_date, end_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		c.ID, c.PatientID, c.CycleNumber, c.Protocol, string(c.Status), c.StartDate, c.EndDate, c.Notes,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("patient not found")
	}
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("cycle number %d already exists for this patient", c.CycleNumber)
	}
	if err != nil {
		return apperr.Store("create cycle", err)
	}
	return nil
}

func (r *cycleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Cycle, error) {
	c, err := scanCycle(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+cycleCols+` FROM treatment_cycle WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("cycle not found")
	}
	if err != nil {
		return nil, apperr.Store("get cycle", err)
	}
	return c, nil
}

func (r *cycleRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Cycle, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+cycleCols+` FROM treatment_cycle
		WHERE patient_id = $1
		ORDER BY cycle_number DESC
		LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, apperr.Store("list cycles", err)
	}
	defer rows.Close()

	out := []*Cycle{}
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, apperr.Store("scan cycle", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list cycles", err)
	}
	return out, nil
}

// NextCycleNumber is advisory. Two concurrent callers can get the same number;
// the unique index on (patient_id, cycle_number) rejects the second insert.
func (r *cycleRepoPG) NextCycleNumber(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COALESCE(MAX(cycle_number), 0) + 1 FROM treatment_cycle WHERE patient_id = $1`, patientID).Scan(&n)
	if err != nil {
		return 0, apperr.Store("next cycle number", err)
	}
	return n, nil
}

func (r *cycleRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status CycleStatus) (*Cycle, error) {
	c, err := scanCycle(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE treatment_cycle SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+cycleCols, id, string(status)))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("cycle not found")
	}
	if err != nil {
		return nil, apperr.Store("update cycle status", err)
	}
	return c, nil
}

func (r *cycleRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM treatment_cycle`).Scan(&n); err != nil {
		return 0, apperr.Store("count cycles", err)
	}
	return n, nil
}

func scanCycle(row pgx.Row) (*Cycle, error) {
	var c Cycle
	var status string
	err := row.Scan(&c.ID, &c.PatientID, &c.CycleNumber, &c.Protocol, &status,
		&c.StartDate, &c.EndDate, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = CycleStatus(status)
	return &c, nil
}

// -- Lab Result Repository --

type labResultRepoPG struct {
	pool *pgxpool.Pool
}

func NewLabResultRepo(pool *pgxpool.Pool) LabResultRepository {
	return &labResultRepoPG{pool: pool}
}

func (r *labResultRepoPG) Create(ctx context.Context, l *LabResult) error {
	l.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO lab_result (id, patient_id, cycle_id, test_type, test_values, result_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		l.ID, l.PatientID, l.CycleID, l.TestType, []byte(l.Values), l.ResultDate, l.Notes,
	).Scan(&l.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("patient or cycle not found")
	}
	if err != nil {
		return apperr.Store("create lab result", err)
	}
	return nil
}

func (r *labResultRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*LabResult, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, patient_id, cycle_id, test_type, test_values, result_date, notes, created_at
		FROM lab_result
		WHERE patient_id = $1
		ORDER BY result_date DESC, created_at DESC
		LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, apperr.Store("list lab results", err)
	}
	defer rows.Close()

	out := []*LabResult{}
	for rows.Next() {
		var l LabResult
		var values []byte
		if err := rows.Scan(&l.ID, &l.PatientID, &l.CycleID, &l.TestType, &values,
			&l.ResultDate, &l.Notes, &l.CreatedAt); err != nil {
			return nil, apperr.Store("scan lab result", err)
		}
		l.Values = values
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list lab results", err)
	}
	return out, nil
}

func (r *labResultRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM lab_result`).Scan(&n); err != nil {
		return 0, apperr.Store("count lab results", err)
	}
	return n, nil
}

// -- Document Repository --

type documentRepoPG struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) DocumentRepository {
	return &documentRepoPG{pool: pool}
}

func (r *documentRepoPG) Create(ctx context.Context, d *Document) error {
	d.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO document (id, patient_id, cycle_id, title, doc_type, storage_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		d.ID, d.PatientID, d.CycleID, d.Title, d.DocType, d.StorageURL,
	).Scan(&d.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("patient or cycle not found")
	}
	if err != nil {
		return apperr.Store("create document", err)
	}
	return nil
}

func (r *documentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Document, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, patient_id, cycle_id, title, doc_type, storage_url, created_at
		FROM document WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, apperr.Store("list documents", err)
	}
	defer rows.Close()

	out := []*Document{}
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.PatientID, &d.CycleID, &d.Title, &d.DocType, &d.StorageURL, &d.CreatedAt); err != nil {
			return nil, apperr.Store("scan document", err)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list documents", err)
	}
	return out, nil
}

func (r *documentRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM document`).Scan(&n); err != nil {
		return 0, apperr.Store("count documents", err)
	}
	return n, nil
}
