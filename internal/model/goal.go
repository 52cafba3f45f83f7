package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type GoalStatus string

const (
	GoalStatusPendingValidation GoalStatus = "pending_validation"
	GoalStatusActive            GoalStatus = "active"
	GoalStatusCompleted         GoalStatus = "completed"
	GoalStatusFailed            GoalStatus = "failed"
)

// PendingTransactionRef marks a goal whose stake transfer has not been confirmed yet.
const PendingTransactionRef = "pending"

// goalTransitions lists every edge of the goal state machine.
var goalTransitions = map[GoalStatus][]GoalStatus{
	GoalStatusPendingValidation: {GoalStatusActive},
	GoalStatusActive:            {GoalStatusCompleted, GoalStatusFailed},
}

func (s GoalStatus) Valid() bool {
	switch s {
	case GoalStatusPendingValidation, GoalStatusActive, GoalStatusCompleted, GoalStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s GoalStatus) IsTerminal() bool {
	return s == GoalStatusCompleted || s == GoalStatusFailed
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to GoalStatus) bool {
	for _, next := range goalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Goal struct {
	ID                  string          `db:"id" json:"id"`
	Owner               string          `db:"owner" json:"owner"`
	Title               string          `db:"title" json:"title"`
	Description         string          `db:"description" json:"description"`
	Category            string          `db:"category" json:"category"`
	Deadline            time.Time       `db:"deadline" json:"deadline"`
	StakeAmount         decimal.Decimal `db:"stake_amount" json:"stakeAmount"`
	StakeTransactionRef string          `db:"stake_transaction_ref" json:"stakeTransactionRef"`
	Status              GoalStatus      `db:"status" json:"status"`
	CreatedAt           time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updatedAt"`
}

// StakeConfirmed reports whether the stake transfer reference has been committed.
func (g *Goal) StakeConfirmed() bool {
	return g.StakeTransactionRef != "" && g.StakeTransactionRef != PendingTransactionRef
}

// CohortDate returns the deadline cohort this goal belongs to.
func (g *Goal) CohortDate() CohortDate {
	return CohortOf(g.Deadline)
}
