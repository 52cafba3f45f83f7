package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/goalstake/internal/ledger"
	"github.com/templui/goalstake/internal/model"
	"github.com/templui/goalstake/internal/repository/memory"
)

var cohortDeadline = time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC)

const cohort = model.CohortDate("2026-03-09")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedCohort stores two winners and one loser: stakes 0.5 and 1.5 split a
// forfeited 1.0 as 0.25 and 0.75.
func seedCohort(h *harness) {
	h.putGoal("g-a", alice, "0.5", cohortDeadline, model.GoalStatusCompleted)
	h.putGoal("g-b", bob, "1.5", cohortDeadline.Add(time.Hour), model.GoalStatusCompleted)
	h.putGoal("g-c", carol, "1.0", cohortDeadline.Add(-time.Hour), model.GoalStatusFailed)
	// Pending goals and other days never take part.
	h.putGoal("g-d", dave, "5", cohortDeadline, model.GoalStatusPendingValidation)
	h.putGoal("g-e", dave, "7", cohortDeadline.Add(24*time.Hour), model.GoalStatusFailed)
}

func paidTo(transfers []ledger.Transfer, recipient string) decimal.Decimal {
	total := decimal.Zero
	for _, tr := range transfers {
		if tr.To == recipient {
			total = total.Add(tr.Amount)
		}
	}
	return total
}

func TestSettleCohort(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedCohort(h)

	report, err := h.settlement.SettleCohort(ctx, cohort)
	require.NoError(t, err)
	assert.True(t, report.Complete())
	assert.Equal(t, 2, report.Winners)
	assert.Equal(t, 1, report.Losers)
	assert.Equal(t, 1, report.IgnoredPending)
	assert.True(t, dec("1").Equal(report.TotalForfeited))
	assert.True(t, dec("1").Equal(report.TotalRewarded))
	assert.True(t, report.Residual.IsZero())
	assert.Len(t, report.Executed, 4)

	transfers := h.ledger.Transfers()
	assert.True(t, dec("0.75").Equal(paidTo(transfers, alice)))
	assert.True(t, dec("2.25").Equal(paidTo(transfers, bob)))
	assert.True(t, paidTo(transfers, carol).IsZero())

	// Stake return goes out before the reward.
	require.Len(t, transfers, 4)
	assert.True(t, dec("0.5").Equal(transfers[0].Amount))
	assert.True(t, dec("0.25").Equal(transfers[1].Amount))

	payouts, err := h.settlement.ListCohortPayouts(ctx, cohort)
	require.NoError(t, err)
	assert.Len(t, payouts, 4)
	for _, p := range payouts {
		assert.Equal(t, cohort, p.CohortDate)
		assert.NotEmpty(t, p.TransactionRef)
	}

	byGoal, err := h.settlement.GoalPayouts(ctx, "g-b")
	require.NoError(t, err)
	require.Len(t, byGoal, 2)
	assert.True(t, dec("1.5").Equal(byGoal[0].Amount))
	assert.True(t, dec("0.75").Equal(byGoal[1].Amount))

	again, err := h.settlement.SettleCohort(ctx, cohort)
	require.NoError(t, err)
	assert.Empty(t, again.Executed)
	assert.Equal(t, 4, again.Skipped)
	assert.Len(t, h.ledger.Transfers(), 4)
}

func TestSettleCohortNotFinal(t *testing.T) {
	h := newHarness(t)
	seedCohort(h)
	h.putGoal("g-f", dave, "1", cohortDeadline, model.GoalStatusActive)

	_, err := h.settlement.SettleCohort(context.Background(), cohort)
	assert.True(t, IsKind(err, KindCohortNotFinal), "got %v", err)
	assert.Empty(t, h.ledger.Transfers())
}

func TestSettleCohortWaitsForCohortToClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	day := model.CohortDate("2026-03-11")
	deadline := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

	h.putGoal("g-a", alice, "1", deadline, model.GoalStatusCompleted)
	h.putGoal("g-b", bob, "1", deadline, model.GoalStatusFailed)
	late, err := h.lifecycle.CreateGoal(ctx, h.input(carol, "1", time.Date(2026, 3, 11, 19, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	ref := h.ledger.Deposit(carol, late.Goal.StakeAmount, ledger.StatusFinalized)

	for _, c := range []model.CohortDate{model.CohortOf(testStart), day} {
		_, err = h.settlement.SettleCohort(ctx, c)
		assert.True(t, IsKind(err, KindCohortNotFinal), "cohort %s: got %v", c, err)
	}

	// 2026-03-12 00:59, a minute before the grace period ends.
	h.clock.Advance(36*time.Hour + 59*time.Minute)
	_, err = h.settlement.SettleCohort(ctx, day)
	assert.True(t, IsKind(err, KindCohortNotFinal), "got %v", err)
	assert.Empty(t, h.ledger.Transfers())

	h.clock.Advance(time.Minute)
	report, err := h.settlement.SettleCohort(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Winners)
	assert.Equal(t, 1, report.IgnoredPending)
	assert.True(t, dec("1").Equal(report.TotalRewarded))

	// The stake landed too late to join the settled cohort.
	_, err = h.lifecycle.ConfirmStake(ctx, late.Goal.ID, ref)
	assert.True(t, IsKind(err, KindInvalidState), "got %v", err)

	again, err := h.settlement.SettleCohort(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, again.Executed)

	payouts, err := h.settlement.ListCohortPayouts(ctx, day)
	require.NoError(t, err)
	rewarded := decimal.Zero
	for _, p := range payouts {
		if p.Type == model.PayoutTypeReward {
			rewarded = rewarded.Add(p.Amount)
		}
	}
	assert.True(t, rewarded.LessThanOrEqual(report.TotalForfeited), "rewarded %s of %s", rewarded, report.TotalForfeited)
}

func TestSettleCohortWithoutWinners(t *testing.T) {
	h := newHarness(t)
	h.putGoal("g-a", alice, "0.5", cohortDeadline, model.GoalStatusFailed)
	h.putGoal("g-b", bob, "1.5", cohortDeadline, model.GoalStatusFailed)

	report, err := h.settlement.SettleCohort(context.Background(), cohort)
	require.NoError(t, err)
	assert.True(t, dec("2").Equal(report.Unassigned))
	assert.True(t, report.TotalRewarded.IsZero())
	assert.Empty(t, report.Executed)
	assert.Empty(t, h.ledger.Transfers())
}

func TestSettleEmptyCohort(t *testing.T) {
	h := newHarness(t)

	report, err := h.settlement.SettleCohort(context.Background(), cohort)
	require.NoError(t, err)
	assert.Zero(t, report.Winners)
	assert.True(t, report.Complete())

	_, err = h.settlement.SettleCohort(context.Background(), model.CohortDate("March 9"))
	assert.True(t, IsKind(err, KindInvalidInput))
}

func TestSettleCohortResidualStaysInEscrow(t *testing.T) {
	h := newHarness(t)
	h.putGoal("g-a", alice, "1", cohortDeadline, model.GoalStatusCompleted)
	h.putGoal("g-b", bob, "1", cohortDeadline, model.GoalStatusCompleted)
	h.putGoal("g-c", carol, "1", cohortDeadline, model.GoalStatusCompleted)
	h.putGoal("g-d", dave, "0.000000001", cohortDeadline, model.GoalStatusFailed)

	report, err := h.settlement.SettleCohort(context.Background(), cohort)
	require.NoError(t, err)
	assert.True(t, dec("0.000000001").Equal(report.Residual))
	assert.True(t, report.TotalRewarded.IsZero())
	// Zero rewards are not transferred.
	assert.Len(t, h.ledger.Transfers(), 3)
}

func TestSettleCohortPartialFailureThenRetry(t *testing.T) {
	h := newHarness(t)
	h.ledger = ledger.NewDemoGateway("", dec("1"))
	h.settlement = NewSettlementService(h.goals, h.payouts, h.ledger, h.locker, time.Hour)
	ctx := context.Background()
	seedCohort(h)

	report, err := h.settlement.SettleCohort(ctx, cohort)
	require.NoError(t, err)
	assert.False(t, report.Complete())
	assert.Len(t, report.Executed, 2)
	require.Len(t, report.Failures, 1)

	failure := report.Failures[0]
	assert.Equal(t, "g-b", failure.GoalID)
	assert.Equal(t, model.PayoutTypeStakeReturn, failure.Type)
	assert.Equal(t, KindInsufficientFunds, failure.Kind)

	// No reward was attempted for the winner whose stake return failed.
	paid, err := h.payouts.ExistsForGoal(ctx, "g-b", model.PayoutTypeReward)
	require.NoError(t, err)
	assert.False(t, paid)

	h.ledger.Deposit(dave, dec("5"), ledger.StatusFinalized)

	retry, err := h.settlement.SettleCohort(ctx, cohort)
	require.NoError(t, err)
	assert.True(t, retry.Complete())
	assert.Equal(t, 2, retry.Skipped)
	assert.Len(t, retry.Executed, 2)

	transfers := h.ledger.Transfers()
	assert.Len(t, transfers, 4)
	assert.True(t, dec("0.75").Equal(paidTo(transfers, alice)))
	assert.True(t, dec("2.25").Equal(paidTo(transfers, bob)))
}

// flakyPayouts fails the first n inserts.
type flakyPayouts struct {
	*memory.PayoutRepository
	mu    sync.Mutex
	fails int
}

func (f *flakyPayouts) Create(ctx context.Context, payout *model.Payout) error {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return errors.New("database is locked")
	}
	f.mu.Unlock()
	return f.PayoutRepository.Create(ctx, payout)
}

func TestSettleCohortRetriesPayoutRecord(t *testing.T) {
	h := newHarness(t)
	flaky := &flakyPayouts{PayoutRepository: h.payouts, fails: 2}
	h.settlement = NewSettlementService(h.goals, flaky, h.ledger, h.locker, time.Hour)
	h.settlement.recordBackoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
	}
	seedCohort(h)

	report, err := h.settlement.SettleCohort(context.Background(), cohort)
	require.NoError(t, err)
	assert.True(t, report.Complete())
	assert.Len(t, report.Executed, 4)
}

func TestSettleCohortReportsUnrecordedPayout(t *testing.T) {
	h := newHarness(t)
	h.payouts.FailCreate = errors.New("disk full")
	h.settlement.recordBackoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 1)
	}
	h.putGoal("g-a", alice, "1", cohortDeadline, model.GoalStatusCompleted)

	report, err := h.settlement.SettleCohort(context.Background(), cohort)
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, KindInternal, report.Failures[0].Kind)
	assert.NotEmpty(t, report.Failures[0].TransactionRef)
}

func TestSettleCohortLockBusy(t *testing.T) {
	h := newHarness(t)
	seedCohort(h)

	_, release, err := h.locker.TryLock(context.Background(), "settle:"+cohort.String())
	require.NoError(t, err)

	_, err = h.settlement.SettleCohort(context.Background(), cohort)
	assert.True(t, IsKind(err, KindSettlementInProgress), "got %v", err)
	assert.Empty(t, h.ledger.Transfers())

	release()
	_, err = h.settlement.SettleCohort(context.Background(), cohort)
	require.NoError(t, err)
}

// heldLocker always grants the lock and hands out the given held context.
type heldLocker struct {
	held context.Context
}

func (l heldLocker) TryLock(context.Context, string) (context.Context, func(), error) {
	return l.held, func() {}, nil
}

// losingGateway loses the settlement lock right after the first payout.
type losingGateway struct {
	*ledger.DemoGateway
	lose context.CancelFunc
}

func (g losingGateway) SubmitOwnTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	ref, err := g.DemoGateway.SubmitOwnTransfer(ctx, to, amount)
	g.lose()
	return ref, err
}

func TestSettleCohortStopsWhenLockIsLost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedCohort(h)

	held, lose := context.WithCancel(ctx)
	defer lose()
	h.settlement = NewSettlementService(h.goals, h.payouts, losingGateway{h.ledger, lose}, heldLocker{held}, time.Hour)
	h.settlement.now = h.clock.Now

	report, err := h.settlement.SettleCohort(ctx, cohort)
	require.True(t, IsKind(err, KindSettlementInProgress), "got %v", err)
	require.NotNil(t, report)

	// The transfer that was already out is recorded, nothing else is sent.
	assert.Len(t, h.ledger.Transfers(), 1)
	require.Len(t, report.Executed, 1)
	payouts, err := h.settlement.ListCohortPayouts(ctx, cohort)
	require.NoError(t, err)
	assert.Len(t, payouts, 1)
}

func TestSettleCohortConcurrentRunsPayOnce(t *testing.T) {
	h := newHarness(t)
	seedCohort(h)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.settlement.SettleCohort(context.Background(), cohort)
			if err != nil {
				assert.True(t, IsKind(err, KindSettlementInProgress), "got %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, h.ledger.Transfers(), 4)
}

func TestGetCohortStatistics(t *testing.T) {
	h := newHarness(t)
	h.putGoal("g-a", alice, "2", cohortDeadline, model.GoalStatusActive)
	h.putGoal("g-b", alice, "1", cohortDeadline, model.GoalStatusActive)
	h.putGoal("g-c", bob, "1", cohortDeadline, model.GoalStatusActive)
	h.putGoal("g-d", carol, "4", cohortDeadline, model.GoalStatusFailed)
	h.putGoal("g-e", dave, "1", cohortDeadline, model.GoalStatusCompleted)
	h.putGoal("g-f", dave, "9", cohortDeadline, model.GoalStatusPendingValidation)

	stats, err := h.settlement.GetCohortStatistics(context.Background(), cohort)
	require.NoError(t, err)
	assert.False(t, stats.Final)
	assert.Equal(t, 3, stats.ActiveCount)
	assert.Equal(t, 1, stats.PendingCount)
	assert.True(t, dec("4").Equal(stats.PrizePool))
	assert.True(t, dec("4").Equal(stats.TotalActiveStakes))
	assert.Equal(t, 2, stats.ActiveCompetitors)
	assert.True(t, stats.Estimate)

	top := stats.Competitors[0]
	assert.Equal(t, alice, top.Recipient)
	assert.Equal(t, 2, top.GoalCount)
	assert.True(t, dec("3").Equal(top.MinPayout))
	assert.True(t, dec("8").Equal(top.MaxPayout))
}

func TestEscrowStatus(t *testing.T) {
	h := newHarness(t)

	status, err := h.settlement.EscrowStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ledger.ProviderDemo, status.Provider)
	assert.Equal(t, h.ledger.EscrowAddress(), status.Address)
	assert.True(t, dec("100").Equal(status.Balance))
}
