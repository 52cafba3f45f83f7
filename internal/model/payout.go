package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutType string

const (
	PayoutTypeStakeReturn PayoutType = "stake_return"
	PayoutTypeReward      PayoutType = "reward"
)

type Payout struct {
	ID             string          `db:"id" json:"id"`
	GoalID         string          `db:"goal_id" json:"goalId"`
	Recipient      string          `db:"recipient" json:"recipient"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	TransactionRef string          `db:"transaction_ref" json:"transactionRef"`
	Type           PayoutType      `db:"payout_type" json:"payoutType"`
	CohortDate     CohortDate      `db:"cohort_date" json:"cohortDate"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}
