package calculator

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of the staked asset's smallest
// unit. Every amount handled here is a whole number of those units.
const Decimals = 9

var (
	ErrNonPositiveStake = errors.New("stake must be greater than zero")
	ErrTooPrecise       = fmt.Errorf("amount has more than %d decimal places", Decimals)
	ErrTooLarge         = errors.New("amount exceeds the largest transferable value")
)

// Stake is one goal's locked amount as seen by the redistribution math.
type Stake struct {
	GoalID    string
	Recipient string
	Amount    decimal.Decimal
}

// Share is what a single winning goal receives.
type Share struct {
	GoalID    string
	Recipient string
	Stake     decimal.Decimal
	Reward    decimal.Decimal
	Payout    decimal.Decimal
}

// Distribution is the outcome of redistributing a cohort's forfeited stakes.
//
// Rounding policy: every reward is computed exactly as an integer number of
// base units and truncated toward zero. The sum of truncated remainders is
// reported as Residual and stays in escrow; it is never paid twice or lost
// from the books. When the cohort has no winners the whole forfeited total is
// reported as Unassigned.
type Distribution struct {
	TotalWinnerStake decimal.Decimal
	TotalForfeited   decimal.Decimal
	TotalRewarded    decimal.Decimal
	Residual         decimal.Decimal
	Unassigned       decimal.Decimal
	Shares           []Share
}

// TotalPaid is the sum of every winner's payout.
func (d *Distribution) TotalPaid() decimal.Decimal {
	return d.TotalWinnerStake.Add(d.TotalRewarded)
}

// ValidateAmount checks an amount is positive and representable in base units.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveStake
	}
	if !amount.Equal(amount.Truncate(Decimals)) {
		return ErrTooPrecise
	}
	if !amount.Shift(Decimals).BigInt().IsUint64() {
		return ErrTooLarge
	}
	return nil
}

// ToBaseUnits converts an amount to an integer count of base units. The
// amount must pass ValidateAmount.
func ToBaseUnits(amount decimal.Decimal) uint64 {
	return amount.Shift(Decimals).BigInt().Uint64()
}

// FromBaseUnits converts an integer count of base units back to an amount.
func FromBaseUnits(units uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -Decimals)
}

// Distribute computes every winner's stake return and proportional reward:
//
//	reward(g) = stake(g) * totalForfeited / totalWinnerStake
//	payout(g) = stake(g) + reward(g)
//
// Shares are returned ordered by goal ID so repeated runs are deterministic.
func Distribute(winners, losers []Stake) (*Distribution, error) {
	totalWinner := decimal.Zero
	for _, w := range winners {
		if err := ValidateAmount(w.Amount); err != nil {
			return nil, fmt.Errorf("winner %s: %w", w.GoalID, err)
		}
		totalWinner = totalWinner.Add(w.Amount)
	}

	totalForfeited := decimal.Zero
	for _, l := range losers {
		if err := ValidateAmount(l.Amount); err != nil {
			return nil, fmt.Errorf("loser %s: %w", l.GoalID, err)
		}
		totalForfeited = totalForfeited.Add(l.Amount)
	}

	dist := &Distribution{
		TotalWinnerStake: totalWinner,
		TotalForfeited:   totalForfeited,
		TotalRewarded:    decimal.Zero,
		Residual:         decimal.Zero,
		Unassigned:       decimal.Zero,
	}

	// No winners: nothing is distributable, forfeited stake stays in escrow.
	if totalWinner.IsZero() {
		dist.Unassigned = totalForfeited
		return dist, nil
	}

	sorted := make([]Stake, len(winners))
	copy(sorted, winners)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].GoalID < sorted[j].GoalID })

	// Work in base units so the division is exact integer arithmetic.
	winnerUnits := totalWinner.Shift(Decimals)
	forfeitedUnits := totalForfeited.Shift(Decimals)

	for _, w := range sorted {
		stakeUnits := w.Amount.Shift(Decimals)
		rewardUnits, _ := stakeUnits.Mul(forfeitedUnits).QuoRem(winnerUnits, 0)
		reward := rewardUnits.Shift(-Decimals)

		dist.TotalRewarded = dist.TotalRewarded.Add(reward)
		dist.Shares = append(dist.Shares, Share{
			GoalID:    w.GoalID,
			Recipient: w.Recipient,
			Stake:     w.Amount,
			Reward:    reward,
			Payout:    w.Amount.Add(reward),
		})
	}

	dist.Residual = totalForfeited.Sub(dist.TotalRewarded)
	return dist, nil
}
