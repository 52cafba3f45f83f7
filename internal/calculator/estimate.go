package calculator

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CompetitorEstimate is the projected payout range for one participant.
type CompetitorEstimate struct {
	Recipient  string          `json:"recipient"`
	TotalStake decimal.Decimal `json:"totalStake"`
	GoalCount  int             `json:"goalCount"`
	MinPayout  decimal.Decimal `json:"minPayout"`
	MaxPayout  decimal.Decimal `json:"maxPayout"`
}

// PoolEstimate summarizes a cohort that may still have open goals.
//
// The payout range is a projection computed from the goals' current status.
// It is not what settlement will pay: goals that are still active can fail
// or complete before the deadline and move both bounds.
type PoolEstimate struct {
	PrizePool         decimal.Decimal      `json:"prizePool"`
	TotalActiveStakes decimal.Decimal      `json:"totalActiveStakes"`
	TotalCompleted    decimal.Decimal      `json:"totalCompletedStakes"`
	TotalPotential    decimal.Decimal      `json:"totalPotential"`
	ActiveCompetitors int                  `json:"activeCompetitors"`
	Competitors       []CompetitorEstimate `json:"competitors"`
	Estimate          bool                 `json:"estimate"`
}

// Estimate projects payouts for the active competitors of a cohort.
//
// minPayout assumes every active competitor succeeds, so nobody else forfeits
// and the competitor only gets their own stake back. maxPayout assumes only
// this competitor succeeds among the active ones, so the failed pool and every
// other active stake are forfeited to them.
func Estimate(active, completed, failed []Stake) *PoolEstimate {
	est := &PoolEstimate{
		PrizePool:         sum(failed),
		TotalActiveStakes: sum(active),
		TotalCompleted:    sum(completed),
		Estimate:          true,
	}
	est.TotalPotential = est.PrizePool.Add(est.TotalActiveStakes)

	byRecipient := make(map[string]*CompetitorEstimate)
	for _, s := range active {
		c, ok := byRecipient[s.Recipient]
		if !ok {
			c = &CompetitorEstimate{Recipient: s.Recipient, TotalStake: decimal.Zero}
			byRecipient[s.Recipient] = c
		}
		c.TotalStake = c.TotalStake.Add(s.Amount)
		c.GoalCount++
	}

	for _, c := range byRecipient {
		c.MinPayout = c.TotalStake
		c.MaxPayout = c.TotalStake.Add(est.PrizePool).Add(est.TotalActiveStakes.Sub(c.TotalStake))
		est.Competitors = append(est.Competitors, *c)
	}
	sort.Slice(est.Competitors, func(i, j int) bool {
		if !est.Competitors[i].TotalStake.Equal(est.Competitors[j].TotalStake) {
			return est.Competitors[i].TotalStake.GreaterThan(est.Competitors[j].TotalStake)
		}
		return est.Competitors[i].Recipient < est.Competitors[j].Recipient
	})
	est.ActiveCompetitors = len(est.Competitors)

	return est
}

func sum(stakes []Stake) decimal.Decimal {
	total := decimal.Zero
	for _, s := range stakes {
		total = total.Add(s.Amount)
	}
	return total
}
