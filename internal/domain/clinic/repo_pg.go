package clinic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fertility/cds/internal/platform/apperr"
	"github.com/fertility/cds/internal/platform/db"
)

// -- Clinic Repository --

type clinicRepoPG struct {
	pool *pgxpool.Pool
}

func NewClinicRepo(pool *pgxpool.Pool) ClinicRepository {
	return &clinicRepoPG{pool: pool}
}

const clinicCols = `id, name, address, phone, email, created_at, updated_at`

func (r *clinicRepoPG) Create(ctx context.Context, c *Clinic) error {
	c.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO clinic (id, name, address, phone, email)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Address, c.Phone, c.Email,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return apperr.Store("create clinic", err)
	}
	return nil
}

func (r *clinicRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	c, err := scanClinic(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+clinicCols+` FROM clinic WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("clinic not found")
	}
	if err != nil {
		return nil, apperr.Store("get clinic", err)
	}
	return c, nil
}

func (r *clinicRepoPG) List(ctx context.Context) ([]*Clinic, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+clinicCols+` FROM clinic ORDER BY name`)
	if err != nil {
		return nil, apperr.Store("list clinics", err)
	}
	defer rows.Close()

	var out []*Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, apperr.Store("scan clinic", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list clinics", err)
	}
	return out, nil
}

func (r *clinicRepoPG) Count(ctx context.Context) (int, error) {
	return countRows(ctx, db.Conn(ctx, r.pool), "clinic")
}

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	if err := row.Scan(&c.ID, &c.Name, &c.Address, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// -- User Repository --

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO app_user (id, clinic_id, email, name, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		u.ID, u.ClinicID, u.Email, u.Name, u.Role,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err):
		return apperr.Conflict("a user with email %s already exists", u.Email)
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("clinic not found")
	case err != nil:
		return apperr.Store("create user", err)
	}
	return nil
}

func (r *userRepoPG) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*User, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, clinic_id, email, name, role, created_at, updated_at
		FROM app_user WHERE clinic_id = $1 ORDER BY name`, clinicID)
	if err != nil {
		return nil, apperr.Store("list users", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.ClinicID, &u.Email, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, apperr.Store("scan user", err)
		}
		out = append(out, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list users", err)
	}
	return out, nil
}

func (r *userRepoPG) Count(ctx context.Context) (int, error) {
	return countRows(ctx, db.Conn(ctx, r.pool), "app_user")
}

// countRows runs an unfiltered COUNT(*). table is always a package constant.
func countRows(ctx context.Context, q db.Querier, table string) (int, error) {
	var n int
	if err := q.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, apperr.Store("count "+table, err)
	}
	return n, nil
}
