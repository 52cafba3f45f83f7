package repository

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/templui/goalstake/internal/model"
)

var (
	ErrPayoutExists = errors.New("payout already recorded for goal")
)

// PayoutRepository is append-only: payouts are never updated or deleted.
type PayoutRepository interface {
	Create(ctx context.Context, payout *model.Payout) error
	ExistsForGoal(ctx context.Context, goalID string, payoutType model.PayoutType) (bool, error)
	ByCohort(ctx context.Context, cohort model.CohortDate) ([]*model.Payout, error)
	ByGoal(ctx context.Context, goalID string) ([]*model.Payout, error)
}

type payoutRepository struct {
	db *sqlx.DB
}

func NewPayoutRepository(db *sqlx.DB) PayoutRepository {
	return &payoutRepository{db: db}
}

func (r *payoutRepository) Create(ctx context.Context, payout *model.Payout) error {
	query := `INSERT INTO payouts (id, goal_id, recipient, amount, transaction_ref, payout_type, cohort_date, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		payout.ID,
		payout.GoalID,
		payout.Recipient,
		payout.Amount,
		payout.TransactionRef,
		payout.Type,
		payout.CohortDate,
		dbTime(payout.CreatedAt),
	)
	if isUniqueViolation(err) {
		return ErrPayoutExists
	}

	return err
}

func (r *payoutRepository) ExistsForGoal(ctx context.Context, goalID string, payoutType model.PayoutType) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM payouts WHERE goal_id = $1 AND payout_type = $2`

	err := r.db.GetContext(ctx, &count, query, goalID, payoutType)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *payoutRepository) ByCohort(ctx context.Context, cohort model.CohortDate) ([]*model.Payout, error) {
	var payouts []*model.Payout
	query := `SELECT * FROM payouts WHERE cohort_date = $1 ORDER BY created_at, id`

	err := r.db.SelectContext(ctx, &payouts, query, cohort)
	if err != nil {
		return nil, err
	}

	return payouts, nil
}

func (r *payoutRepository) ByGoal(ctx context.Context, goalID string) ([]*model.Payout, error) {
	var payouts []*model.Payout
	query := `SELECT * FROM payouts WHERE goal_id = $1 ORDER BY created_at, id`

	err := r.db.SelectContext(ctx, &payouts, query, goalID)
	if err != nil {
		return nil, err
	}

	return payouts, nil
}
