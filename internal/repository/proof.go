package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/goalstake/internal/model"
)

var (
	ErrProofNotFound  = errors.New("proof not found")
	ErrProofFinalized = errors.New("proof verdict already recorded")
)

type ProofRepository interface {
	Create(ctx context.Context, proof *model.Proof) error
	ByID(ctx context.Context, id string) (*model.Proof, error)
	ByGoal(ctx context.Context, goalID string) ([]*model.Proof, error)
	// RecordVerdict writes the validator outcome once. A proof whose verdict
	// is no longer pending is immutable.
	RecordVerdict(ctx context.Context, id string, verdict model.Verdict, confidence int, reasoning string, validatedAt time.Time) error
}

type proofRepository struct {
	db *sqlx.DB
}

func NewProofRepository(db *sqlx.DB) ProofRepository {
	return &proofRepository{db: db}
}

func (r *proofRepository) Create(ctx context.Context, proof *model.Proof) error {
	query := `INSERT INTO proofs (id, goal_id, text_description, image_ref, source, verdict, confidence, reasoning, submitted_at, validated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var validatedAt *time.Time
	if proof.ValidatedAt != nil {
		t := dbTime(*proof.ValidatedAt)
		validatedAt = &t
	}

	_, err := r.db.ExecContext(ctx, query,
		proof.ID,
		proof.GoalID,
		proof.Text,
		proof.ImageRef,
		proof.Source,
		proof.Verdict,
		proof.Confidence,
		proof.Reasoning,
		dbTime(proof.SubmittedAt),
		validatedAt,
	)

	return err
}

func (r *proofRepository) ByID(ctx context.Context, id string) (*model.Proof, error) {
	proof := &model.Proof{}
	query := `SELECT * FROM proofs WHERE id = $1`

	err := r.db.GetContext(ctx, proof, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProofNotFound
	}
	if err != nil {
		return nil, err
	}

	return proof, nil
}

func (r *proofRepository) ByGoal(ctx context.Context, goalID string) ([]*model.Proof, error) {
	var proofs []*model.Proof
	query := `SELECT * FROM proofs WHERE goal_id = $1 ORDER BY submitted_at, id`

	err := r.db.SelectContext(ctx, &proofs, query, goalID)
	if err != nil {
		return nil, err
	}

	return proofs, nil
}

func (r *proofRepository) RecordVerdict(ctx context.Context, id string, verdict model.Verdict, confidence int, reasoning string, validatedAt time.Time) error {
	query := `UPDATE proofs
	          SET verdict = $1, confidence = $2, reasoning = $3, validated_at = $4
	          WHERE id = $5 AND verdict = $6`

	result, err := r.db.ExecContext(ctx, query,
		verdict,
		confidence,
		reasoning,
		dbTime(validatedAt),
		id,
		model.VerdictPending,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		_, err := r.ByID(ctx, id)
		if err != nil {
			return err
		}
		return ErrProofFinalized
	}

	return nil
}
