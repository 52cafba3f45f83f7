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
	ErrGoalNotFound   = errors.New("goal not found")
	ErrStatusConflict = errors.New("goal status changed concurrently")
	ErrStakeRefInUse  = errors.New("stake transaction already funds another goal")
)

// GoalUpdate carries the fields written together with a status change.
// Empty fields are left untouched.
type GoalUpdate struct {
	StakeTransactionRef string
}

type GoalRepository interface {
	Create(ctx context.Context, goal *model.Goal) error
	ByID(ctx context.Context, id string) (*model.Goal, error)
	ByOwner(ctx context.Context, owner string) ([]*model.Goal, error)
	ByDeadlineRange(ctx context.Context, start, end time.Time) ([]*model.Goal, error)
	ByStakeRef(ctx context.Context, ref string) (*model.Goal, error)
	ActiveDeadlineBefore(ctx context.Context, cutoff time.Time) ([]*model.Goal, error)
	// UpdateStatusIfCurrent moves a goal from expected to next only if its
	// stored status is still expected. It returns ErrStatusConflict when
	// another writer got there first.
	UpdateStatusIfCurrent(ctx context.Context, id string, expected, next model.GoalStatus, update GoalUpdate) (*model.Goal, error)
}

type goalRepository struct {
	db *sqlx.DB
}

func NewGoalRepository(db *sqlx.DB) GoalRepository {
	return &goalRepository{db: db}
}

func (r *goalRepository) Create(ctx context.Context, goal *model.Goal) error {
	query := `INSERT INTO goals (id, owner, title, description, category, deadline, stake_amount, stake_transaction_ref, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		goal.ID,
		goal.Owner,
		goal.Title,
		goal.Description,
		goal.Category,
		dbTime(goal.Deadline),
		goal.StakeAmount,
		goal.StakeTransactionRef,
		goal.Status,
		dbTime(goal.CreatedAt),
		dbTime(goal.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return ErrStakeRefInUse
	}

	return err
}

func (r *goalRepository) ByID(ctx context.Context, id string) (*model.Goal, error) {
	goal := &model.Goal{}
	query := `SELECT * FROM goals WHERE id = $1`

	err := r.db.GetContext(ctx, goal, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGoalNotFound
	}
	if err != nil {
		return nil, err
	}

	return goal, nil
}

func (r *goalRepository) ByOwner(ctx context.Context, owner string) ([]*model.Goal, error) {
	var goals []*model.Goal
	query := `SELECT * FROM goals WHERE owner = $1 ORDER BY created_at DESC`

	err := r.db.SelectContext(ctx, &goals, query, owner)
	if err != nil {
		return nil, err
	}

	return goals, nil
}

func (r *goalRepository) ByDeadlineRange(ctx context.Context, start, end time.Time) ([]*model.Goal, error) {
	var goals []*model.Goal
	query := `SELECT * FROM goals WHERE deadline >= $1 AND deadline < $2 ORDER BY deadline, id`

	err := r.db.SelectContext(ctx, &goals, query, dbTime(start), dbTime(end))
	if err != nil {
		return nil, err
	}

	return goals, nil
}

func (r *goalRepository) ByStakeRef(ctx context.Context, ref string) (*model.Goal, error) {
	goal := &model.Goal{}
	query := `SELECT * FROM goals WHERE stake_transaction_ref = $1`

	err := r.db.GetContext(ctx, goal, query, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGoalNotFound
	}
	if err != nil {
		return nil, err
	}

	return goal, nil
}

func (r *goalRepository) ActiveDeadlineBefore(ctx context.Context, cutoff time.Time) ([]*model.Goal, error) {
	var goals []*model.Goal
	query := `SELECT * FROM goals WHERE status = $1 AND deadline < $2 ORDER BY deadline, id`

	err := r.db.SelectContext(ctx, &goals, query, model.GoalStatusActive, dbTime(cutoff))
	if err != nil {
		return nil, err
	}

	return goals, nil
}

func (r *goalRepository) UpdateStatusIfCurrent(ctx context.Context, id string, expected, next model.GoalStatus, update GoalUpdate) (*model.Goal, error) {
	query := `UPDATE goals
	          SET status = $1,
	              stake_transaction_ref = CASE WHEN $2 = '' THEN stake_transaction_ref ELSE $2 END,
	              updated_at = $3
	          WHERE id = $4 AND status = $5`

	result, err := r.db.ExecContext(ctx, query,
		next,
		update.StakeTransactionRef,
		dbTime(time.Now()),
		id,
		expected,
	)
	if isUniqueViolation(err) {
		return nil, ErrStakeRefInUse
	}
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	goal, err := r.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if rows == 0 {
		return goal, ErrStatusConflict
	}

	return goal, nil
}
