package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/goalstake/internal/model"
)

var goalColumns = []string{
	"id", "owner", "title", "description", "category", "deadline", "stake_amount",
	"stake_transaction_ref", "status", "created_at", "updated_at",
}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func goalRow(status model.GoalStatus, ref string) *sqlmock.Rows {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(goalColumns).AddRow(
		"goal-1", "owner", "Run", "Run 5k", "fitness", now.Add(48*time.Hour), "0.5",
		ref, string(status), now, now,
	)
}

func TestGoalRepositoryUpdateStatusIfCurrent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGoalRepository(db)
	ctx := context.Background()

	mock.ExpectExec("UPDATE goals").
		WithArgs("active", "sig-1", sqlmock.AnyArg(), "goal-1", "pending_validation").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM goals WHERE id").
		WithArgs("goal-1").
		WillReturnRows(goalRow(model.GoalStatusActive, "sig-1"))

	goal, err := repo.UpdateStatusIfCurrent(ctx, "goal-1", model.GoalStatusPendingValidation, model.GoalStatusActive, GoalUpdate{StakeTransactionRef: "sig-1"})
	require.NoError(t, err)
	assert.Equal(t, model.GoalStatusActive, goal.Status)
	assert.Equal(t, "sig-1", goal.StakeTransactionRef)
	assert.True(t, decimal.RequireFromString("0.5").Equal(goal.StakeAmount))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGoalRepositoryUpdateStatusConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGoalRepository(db)
	ctx := context.Background()

	mock.ExpectExec("UPDATE goals").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM goals WHERE id").
		WithArgs("goal-1").
		WillReturnRows(goalRow(model.GoalStatusFailed, "sig-1"))

	goal, err := repo.UpdateStatusIfCurrent(ctx, "goal-1", model.GoalStatusActive, model.GoalStatusCompleted, GoalUpdate{})
	assert.ErrorIs(t, err, ErrStatusConflict)
	require.NotNil(t, goal)
	assert.Equal(t, model.GoalStatusFailed, goal.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGoalRepositoryUpdateStatusMissingGoal(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGoalRepository(db)

	mock.ExpectExec("UPDATE goals").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM goals WHERE id").
		WillReturnRows(sqlmock.NewRows(goalColumns))

	_, err := repo.UpdateStatusIfCurrent(context.Background(), "nope", model.GoalStatusActive, model.GoalStatusFailed, GoalUpdate{})
	assert.ErrorIs(t, err, ErrGoalNotFound)
}

func TestGoalRepositoryStakeRefReuse(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGoalRepository(db)

	mock.ExpectExec("UPDATE goals").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.UpdateStatusIfCurrent(context.Background(), "goal-1", model.GoalStatusPendingValidation, model.GoalStatusActive, GoalUpdate{StakeTransactionRef: "sig-1"})
	assert.ErrorIs(t, err, ErrStakeRefInUse)
}

func TestGoalRepositoryByDeadlineRangeNormalizesToUTC(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGoalRepository(db)

	start := time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	berlin := time.FixedZone("CEST", 2*60*60)

	mock.ExpectQuery("SELECT \\* FROM goals WHERE deadline >= \\$1 AND deadline < \\$2").
		WithArgs(start, end).
		WillReturnRows(goalRow(model.GoalStatusCompleted, "sig-1"))

	goals, err := repo.ByDeadlineRange(context.Background(), start.In(berlin), end.In(berlin))
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, model.GoalStatusCompleted, goals[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPayoutRepositoryCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPayoutRepository(db)

	mock.ExpectExec("INSERT INTO payouts").
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: payouts.goal_id, payouts.payout_type (2067)"))

	err := repo.Create(context.Background(), &model.Payout{
		ID:         "p1",
		GoalID:     "goal-1",
		Amount:     decimal.RequireFromString("0.5"),
		Type:       model.PayoutTypeStakeReturn,
		CohortDate: "2026-10-03",
		CreatedAt:  time.Now(),
	})
	assert.ErrorIs(t, err, ErrPayoutExists)
}

func TestPayoutRepositoryExistsForGoal(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPayoutRepository(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM payouts").
		WithArgs("goal-1", "reward").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.ExistsForGoal(context.Background(), "goal-1", model.PayoutTypeReward)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestProofRepositoryRecordVerdictOnce(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProofRepository(db)
	now := time.Now()

	mock.ExpectExec("UPDATE proofs").
		WithArgs("approve", 91, "looks good", sqlmock.AnyArg(), "proof-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM proofs WHERE id").
		WithArgs("proof-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "goal_id", "text_description", "image_ref", "source", "verdict",
			"confidence", "reasoning", "submitted_at", "validated_at",
		}).AddRow("proof-1", "goal-1", "done", "", "validator", "reject", 80, "no", now, now))

	err := repo.RecordVerdict(context.Background(), "proof-1", model.VerdictApprove, 91, "looks good", now)
	assert.ErrorIs(t, err, ErrProofFinalized)
	require.NoError(t, mock.ExpectationsWereMet())
}
