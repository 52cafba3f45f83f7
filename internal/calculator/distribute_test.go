package calculator

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDistribute(t *testing.T) {
	tests := []struct {
		name           string
		winners        []Stake
		losers         []Stake
		wantPayouts    map[string]string
		wantRewarded   string
		wantResidual   string
		wantUnassigned string
	}{
		{
			name:           "single winner takes the whole pool",
			winners:        []Stake{{GoalID: "w1", Recipient: "alice", Amount: d("0.5")}},
			losers:         []Stake{{GoalID: "l1", Recipient: "bob", Amount: d("0.3")}},
			wantPayouts:    map[string]string{"w1": "0.8"},
			wantRewarded:   "0.3",
			wantResidual:   "0",
			wantUnassigned: "0",
		},
		{
			name: "two winners split by stake weight",
			winners: []Stake{
				{GoalID: "w1", Recipient: "alice", Amount: d("0.5")},
				{GoalID: "w2", Recipient: "carol", Amount: d("1.5")},
			},
			losers:         []Stake{{GoalID: "l1", Recipient: "bob", Amount: d("1.0")}},
			wantPayouts:    map[string]string{"w1": "0.75", "w2": "2.25"},
			wantRewarded:   "1",
			wantResidual:   "0",
			wantUnassigned: "0",
		},
		{
			name:           "no winners leaves pool unassigned",
			losers:         []Stake{{GoalID: "l1", Recipient: "bob", Amount: d("1.25")}},
			wantPayouts:    map[string]string{},
			wantRewarded:   "0",
			wantResidual:   "0",
			wantUnassigned: "1.25",
		},
		{
			name:           "no losers returns stakes only",
			winners:        []Stake{{GoalID: "w1", Recipient: "alice", Amount: d("2")}},
			wantPayouts:    map[string]string{"w1": "2"},
			wantRewarded:   "0",
			wantResidual:   "0",
			wantUnassigned: "0",
		},
		{
			name: "indivisible pool truncates toward zero",
			winners: []Stake{
				{GoalID: "w1", Recipient: "a", Amount: d("1")},
				{GoalID: "w2", Recipient: "b", Amount: d("1")},
				{GoalID: "w3", Recipient: "c", Amount: d("1")},
			},
			losers: []Stake{{GoalID: "l1", Recipient: "x", Amount: d("0.000000001")}},
			wantPayouts: map[string]string{
				"w1": "1",
				"w2": "1",
				"w3": "1",
			},
			wantRewarded:   "0",
			wantResidual:   "0.000000001",
			wantUnassigned: "0",
		},
		{
			name: "thirds leave a one unit residual",
			winners: []Stake{
				{GoalID: "w1", Recipient: "a", Amount: d("1")},
				{GoalID: "w2", Recipient: "b", Amount: d("1")},
				{GoalID: "w3", Recipient: "c", Amount: d("1")},
			},
			losers: []Stake{{GoalID: "l1", Recipient: "x", Amount: d("1")}},
			wantPayouts: map[string]string{
				"w1": "1.333333333",
				"w2": "1.333333333",
				"w3": "1.333333333",
			},
			wantRewarded:   "0.999999999",
			wantResidual:   "0.000000001",
			wantUnassigned: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dist, err := Distribute(tt.winners, tt.losers)
			require.NoError(t, err)

			got := make(map[string]string)
			for _, s := range dist.Shares {
				got[s.GoalID] = s.Payout.String()
			}
			assert.Equal(t, tt.wantPayouts, got)
			assert.True(t, d(tt.wantRewarded).Equal(dist.TotalRewarded), "rewarded %s", dist.TotalRewarded)
			assert.True(t, d(tt.wantResidual).Equal(dist.Residual), "residual %s", dist.Residual)
			assert.True(t, d(tt.wantUnassigned).Equal(dist.Unassigned), "unassigned %s", dist.Unassigned)
		})
	}
}

func TestDistributeRejectsInvalidStakes(t *testing.T) {
	_, err := Distribute([]Stake{{GoalID: "w1", Amount: decimal.Zero}}, nil)
	assert.ErrorIs(t, err, ErrNonPositiveStake)

	_, err = Distribute(nil, []Stake{{GoalID: "l1", Amount: d("0.0000000001")}})
	assert.ErrorIs(t, err, ErrTooPrecise)
}

func TestDistributeIsOrderIndependent(t *testing.T) {
	winners := []Stake{
		{GoalID: "b", Recipient: "2", Amount: d("0.7")},
		{GoalID: "a", Recipient: "1", Amount: d("0.2")},
	}
	losers := []Stake{{GoalID: "l", Recipient: "3", Amount: d("0.4")}}

	first, err := Distribute(winners, losers)
	require.NoError(t, err)
	second, err := Distribute([]Stake{winners[1], winners[0]}, losers)
	require.NoError(t, err)

	require.Len(t, first.Shares, 2)
	assert.Equal(t, "a", first.Shares[0].GoalID)
	for i := range first.Shares {
		assert.True(t, first.Shares[i].Payout.Equal(second.Shares[i].Payout))
	}
}

// Conservation: payouts add up to winner stakes plus forfeited stakes minus the
// residual, rewards never exceed the pool and the residual is below one base
// unit per winner.
func TestDistributeConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	unit := FromBaseUnits(1)

	randomStakes := func(prefix string, n int) []Stake {
		stakes := make([]Stake, n)
		for i := range stakes {
			units := uint64(rng.Int63n(5_000_000_000) + 1)
			stakes[i] = Stake{
				GoalID:    fmt.Sprintf("%s-%d", prefix, i),
				Recipient: fmt.Sprintf("owner-%d", rng.Intn(4)),
				Amount:    FromBaseUnits(units),
			}
		}
		return stakes
	}

	for run := 0; run < 500; run++ {
		winners := randomStakes("w", rng.Intn(8))
		losers := randomStakes("l", rng.Intn(8))

		dist, err := Distribute(winners, losers)
		require.NoError(t, err)

		paid := decimal.Zero
		rewards := decimal.Zero
		for _, s := range dist.Shares {
			assert.False(t, s.Reward.IsNegative())
			assert.True(t, s.Payout.Equal(s.Stake.Add(s.Reward)))
			paid = paid.Add(s.Payout)
			rewards = rewards.Add(s.Reward)
		}

		if len(winners) == 0 {
			assert.True(t, dist.Unassigned.Equal(dist.TotalForfeited))
			assert.Empty(t, dist.Shares)
			continue
		}

		assert.True(t, rewards.LessThanOrEqual(dist.TotalForfeited))
		assert.True(t, paid.Add(dist.Residual).Equal(dist.TotalWinnerStake.Add(dist.TotalForfeited)))
		assert.True(t, dist.Residual.LessThan(unit.Mul(decimal.NewFromInt(int64(len(winners))))))
		assert.True(t, dist.TotalPaid().Equal(paid))
	}
}

func TestBaseUnits(t *testing.T) {
	assert.Equal(t, uint64(1_500_000_000), ToBaseUnits(d("1.5")))
	assert.Equal(t, "0.000000042", FromBaseUnits(42).String())

	assert.NoError(t, ValidateAmount(d("0.000000001")))
	assert.ErrorIs(t, ValidateAmount(d("-1")), ErrNonPositiveStake)
}

func TestValidateAmountUpperBound(t *testing.T) {
	largest := d("18446744073.709551615")
	require.NoError(t, ValidateAmount(largest))
	assert.Equal(t, uint64(math.MaxUint64), ToBaseUnits(largest))

	assert.ErrorIs(t, ValidateAmount(d("18446744073.709551616")), ErrTooLarge)
	assert.ErrorIs(t, ValidateAmount(d("18446744074")), ErrTooLarge)
	assert.ErrorIs(t, ValidateAmount(d("1e30")), ErrTooLarge)
}
