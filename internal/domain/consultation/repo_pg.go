package consultation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fertility/cds/internal/platform/apperr"
	"github.com/fertility/cds/internal/platform/db"
	"github.com/fertility/cds/internal/platform/hipaa"
)

type predictionRepoPG struct {
	pool      *pgxpool.Pool
	encryptor hipaa.FieldEncryptor
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &predictionRepoPG{pool: pool}
}

// NewRepoWithEncryption seals input and output text before storage. Pass nil
// to store plaintext.
func NewRepoWithEncryption(pool *pgxpool.Pool, enc hipaa.FieldEncryptor) Repository {
	return &predictionRepoPG{pool: pool, encryptor: enc}
}

func (r *predictionRepoPG) seal(s string) (string, error) {
	if r.encryptor == nil {
		return s, nil
	}
	return r.encryptor.Encrypt(s)
}

func (r *predictionRepoPG) open(s string) (string, error) {
	if r.encryptor == nil {
		return s, nil
	}
	return r.encryptor.Decrypt(s)
}

func (r *predictionRepoPG) Create(ctx context.Context, p *Prediction) error {
	input, err := r.seal(p.InputText)
	if err != nil {
		return apperr.Store("encrypt prediction input", err)
	}
	output, err := r.seal(p.OutputText)
	if err != nil {
		return apperr.Store("encrypt prediction output", err)
	}

	var ctxJSON []byte
	if len(p.Context) > 0 {
		ctxJSON = p.Context
	}

	p.ID = uuid.New()
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO ai_prediction (id, patient_id, cycle_id, input_text, output_text, model_version, confidence, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		p.ID, p.PatientID, p.CycleID, input, output, p.ModelVersion, p.Confidence, ctxJSON,
	).Scan(&p.CreatedAt)
	if err != nil {
		p.ID = uuid.Nil
		return apperr.Store("insert prediction", err)
	}
	return nil
}

func (r *predictionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Prediction, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, patient_id, cycle_id, input_text, output_text, model_version, confidence, context, created_at
		FROM ai_prediction
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, apperr.Store("list predictions", err)
	}
	defer rows.Close()

	out := []*Prediction{}
	for rows.Next() {
		var p Prediction
		var ctxJSON []byte
		if err := rows.Scan(&p.ID, &p.PatientID, &p.CycleID, &p.InputText, &p.OutputText,
			&p.ModelVersion, &p.Confidence, &ctxJSON, &p.CreatedAt); err != nil {
			return nil, apperr.Store("scan prediction", err)
		}
		if p.InputText, err = r.open(p.InputText); err != nil {
			return nil, apperr.Store("decrypt prediction", fmt.Errorf("input of %s: %w", p.ID, err))
		}
		if p.OutputText, err = r.open(p.OutputText); err != nil {
			return nil, apperr.Store("decrypt prediction", fmt.Errorf("output of %s: %w", p.ID, err))
		}
		p.Context = ctxJSON
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list predictions", err)
	}
	return out, nil
}

func (r *predictionRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM ai_prediction`).Scan(&n); err != nil {
		return 0, apperr.Store("count predictions", err)
	}
	return n, nil
}
