package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/templui/goalstake/internal/calculator"
	"github.com/templui/goalstake/internal/ledger"
	"github.com/templui/goalstake/internal/lock"
	"github.com/templui/goalstake/internal/metrics"
	"github.com/templui/goalstake/internal/model"
	"github.com/templui/goalstake/internal/repository"
)

// SettlementService pays out finished deadline cohorts from the escrow.
type SettlementService struct {
	goals   repository.GoalRepository
	payouts repository.PayoutRepository
	ledger  ledger.Gateway
	locker  lock.Locker
	// grace keeps a cohort open after its last deadline while late proofs
	// can still arrive.
	grace time.Duration
	// recordBackoff bounds the retries of a payout insert after the transfer
	// already landed.
	recordBackoff func() backoff.BackOff
	now           func() time.Time
}

func NewSettlementService(
	goals repository.GoalRepository,
	payouts repository.PayoutRepository,
	gateway ledger.Gateway,
	locker lock.Locker,
	grace time.Duration,
) *SettlementService {
	return &SettlementService{
		goals:   goals,
		payouts: payouts,
		ledger:  gateway,
		locker:  locker,
		grace:   grace,
		recordBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
		now: time.Now,
	}
}

// PayoutFailure is one transfer of a settlement run that did not complete.
type PayoutFailure struct {
	GoalID    string           `json:"goalId"`
	Recipient string           `json:"recipient"`
	Type      model.PayoutType `json:"payoutType"`
	Amount    decimal.Decimal  `json:"amount"`
	Kind      Kind             `json:"kind"`
	Reason    string           `json:"reason"`
	// TransactionRef is set when funds moved but the payout record could not
	// be written. The transfer must not be repeated.
	TransactionRef string `json:"transactionRef,omitempty"`
}

type SettlementReport struct {
	Cohort           model.CohortDate `json:"cohort"`
	Winners          int              `json:"winners"`
	Losers           int              `json:"losers"`
	IgnoredPending   int              `json:"ignoredPending"`
	TotalWinnerStake decimal.Decimal  `json:"totalWinnerStake"`
	TotalForfeited   decimal.Decimal  `json:"totalForfeited"`
	TotalRewarded    decimal.Decimal  `json:"totalRewarded"`
	// Residual is the truncation dust left in escrow.
	Residual decimal.Decimal `json:"residual"`
	// Unassigned is the forfeited total kept in escrow when nobody won.
	Unassigned decimal.Decimal    `json:"unassigned"`
	Executed   []*model.Payout    `json:"executed"`
	Skipped    int                `json:"skipped"`
	Failures   []PayoutFailure    `json:"failures"`
	Shares     []calculator.Share `json:"shares"`
}

// Complete reports whether every payout owed by the cohort has been made.
func (r *SettlementReport) Complete() bool {
	return len(r.Failures) == 0
}

// SettleCohort pays every winner of cohort their stake back plus a
// proportional share of the forfeited stakes. Payouts already on record are
// skipped, so a partial run can be repeated. A failing transfer is reported
// and the run continues with the next one.
func (s *SettlementService) SettleCohort(ctx context.Context, cohort model.CohortDate) (*SettlementReport, error) {
	started := time.Now()

	held, release, err := s.locker.TryLock(ctx, "settle:"+cohort.String())
	if errors.Is(err, lock.ErrHeld) {
		metrics.RecordSettlement("busy", time.Since(started))
		return nil, newError(KindSettlementInProgress, fmt.Sprintf("cohort %s is being settled", cohort), nil)
	}
	if err != nil {
		return nil, newError(KindInternal, "failed to acquire settlement lock", err)
	}
	defer release()

	report, err := s.settle(ctx, held, cohort)

	result := "complete"
	switch {
	case err != nil:
		result = string(KindOf(err))
	case !report.Complete():
		result = "partial"
	}
	metrics.RecordSettlement(result, time.Since(started))

	return report, err
}

// settle runs under the cohort lock. held is done once the lock is lost, and
// no new transfer starts after that.
func (s *SettlementService) settle(ctx, held context.Context, cohort model.CohortDate) (*SettlementReport, error) {
	start, end := cohort.Bounds()
	if start.IsZero() {
		return nil, newError(KindInvalidInput, fmt.Sprintf("invalid cohort date %q", cohort), nil)
	}
	// New goals can still join an open cohort and would share a pool that
	// was already paid out.
	if closes := end.Add(s.grace); s.now().Before(closes) {
		return nil, newError(KindCohortNotFinal, fmt.Sprintf("cohort %s closes at %s", cohort, closes.Format(time.RFC3339)), nil)
	}

	goals, err := s.cohortGoals(ctx, cohort)
	if err != nil {
		return nil, err
	}

	report := &SettlementReport{Cohort: cohort}
	var winners, losers []calculator.Stake
	active := 0
	for _, g := range goals {
		switch g.Status {
		case model.GoalStatusActive:
			active++
		case model.GoalStatusCompleted:
			winners = append(winners, stakeOf(g))
		case model.GoalStatusFailed:
			losers = append(losers, stakeOf(g))
		default:
			// The stake never reached the escrow.
			report.IgnoredPending++
		}
	}
	if active > 0 {
		return nil, newError(KindCohortNotFinal, fmt.Sprintf("cohort %s has %d active goals", cohort, active), nil)
	}

	dist, err := calculator.Distribute(winners, losers)
	if err != nil {
		return nil, newError(KindInternal, "failed to compute distribution", err)
	}

	report.Winners = len(winners)
	report.Losers = len(losers)
	report.TotalWinnerStake = dist.TotalWinnerStake
	report.TotalForfeited = dist.TotalForfeited
	report.TotalRewarded = dist.TotalRewarded
	report.Residual = dist.Residual
	report.Unassigned = dist.Unassigned
	report.Shares = dist.Shares

	for _, share := range dist.Shares {
		if err := lockLost(ctx, held, cohort); err != nil {
			return report, err
		}

		// The stake goes back before any reward is paid on top of it.
		if !s.pay(ctx, held, report, share, model.PayoutTypeStakeReturn, share.Stake) {
			continue
		}
		if share.Reward.IsPositive() {
			s.pay(ctx, held, report, share, model.PayoutTypeReward, share.Reward)
		}
	}

	slog.Info("cohort settled",
		"cohort", cohort,
		"winners", report.Winners,
		"losers", report.Losers,
		"forfeited", report.TotalForfeited.String(),
		"rewarded", report.TotalRewarded.String(),
		"residual", report.Residual.String(),
		"unassigned", report.Unassigned.String(),
		"executed", len(report.Executed),
		"skipped", report.Skipped,
		"failures", len(report.Failures),
	)
	return report, nil
}

// lockLost reports why a run has to stop before its next transfer.
func lockLost(ctx, held context.Context, cohort model.CohortDate) error {
	if held.Err() == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	slog.Error("settlement lock lost, stopping run", "cohort", cohort)
	return newError(KindSettlementInProgress, fmt.Sprintf("lost the settlement lock for cohort %s", cohort), held.Err())
}

// pay makes one payout unless it is already on record and reports whether
// the payout is now settled. The transfer itself runs on ctx, not held: once
// submitted it has to finish and be recorded.
func (s *SettlementService) pay(ctx, held context.Context, report *SettlementReport, share calculator.Share, payoutType model.PayoutType, amount decimal.Decimal) bool {
	fail := func(kind Kind, reason, ref string) bool {
		report.Failures = append(report.Failures, PayoutFailure{
			GoalID:         share.GoalID,
			Recipient:      share.Recipient,
			Type:           payoutType,
			Amount:         amount,
			Kind:           kind,
			Reason:         reason,
			TransactionRef: ref,
		})
		metrics.RecordPayout(string(payoutType), "failed")
		return false
	}

	paid, err := s.payouts.ExistsForGoal(ctx, share.GoalID, payoutType)
	if err != nil {
		return fail(KindInternal, "failed to check payout history: "+err.Error(), "")
	}
	if paid {
		report.Skipped++
		metrics.RecordPayout(string(payoutType), "skipped")
		return true
	}

	if err := lockLost(ctx, held, report.Cohort); err != nil {
		return fail(KindOf(err), err.Error(), "")
	}

	ref, err := s.ledger.SubmitOwnTransfer(ctx, share.Recipient, amount)
	if err != nil {
		lerr := ledgerError("payout transfer failed", err)
		reason := lerr.Error()
		if errors.Is(err, ledger.ErrOutcomeUnknown) {
			reason = "transfer outcome unknown, verify on the ledger before retrying: " + err.Error()
		}
		slog.Error("payout transfer failed",
			"cohort", report.Cohort,
			"goal_id", share.GoalID,
			"recipient", share.Recipient,
			"payout_type", payoutType,
			"amount", amount.String(),
			"kind", lerr.Kind,
			"error", err,
		)
		return fail(lerr.Kind, reason, "")
	}

	payout := &model.Payout{
		ID:             uuid.NewString(),
		GoalID:         share.GoalID,
		Recipient:      share.Recipient,
		Amount:         amount,
		TransactionRef: ref,
		Type:           payoutType,
		CohortDate:     report.Cohort,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.record(ctx, payout); err != nil {
		slog.Error("payout sent but not recorded",
			"cohort", report.Cohort,
			"goal_id", share.GoalID,
			"payout_type", payoutType,
			"transaction_ref", ref,
			"error", err,
		)
		return fail(KindInternal, "payout sent but not recorded: "+err.Error(), ref)
	}

	report.Executed = append(report.Executed, payout)
	metrics.RecordPayout(string(payoutType), "executed")
	slog.Info("payout executed",
		"cohort", report.Cohort,
		"goal_id", share.GoalID,
		"recipient", share.Recipient,
		"payout_type", payoutType,
		"amount", amount.String(),
		"transaction_ref", ref,
	)
	return true
}

// record stores a payout whose transfer already landed, retrying transient
// store failures. Detached from ctx: the funds have moved.
func (s *SettlementService) record(ctx context.Context, payout *model.Payout) error {
	ctx = context.WithoutCancel(ctx)
	op := func() error {
		err := s.payouts.Create(ctx, payout)
		if errors.Is(err, repository.ErrPayoutExists) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, s.recordBackoff())
}

func (s *SettlementService) cohortGoals(ctx context.Context, cohort model.CohortDate) ([]*model.Goal, error) {
	start, end := cohort.Bounds()
	if start.IsZero() {
		return nil, newError(KindInvalidInput, fmt.Sprintf("invalid cohort date %q", cohort), nil)
	}
	goals, err := s.goals.ByDeadlineRange(ctx, start, end)
	if err != nil {
		return nil, newError(KindInternal, "failed to load cohort", err)
	}
	return goals, nil
}

func stakeOf(g *model.Goal) calculator.Stake {
	return calculator.Stake{GoalID: g.ID, Recipient: g.Owner, Amount: g.StakeAmount}
}

type CohortStatistics struct {
	Cohort         model.CohortDate `json:"cohort"`
	PendingCount   int              `json:"pendingCount"`
	ActiveCount    int              `json:"activeCount"`
	CompletedCount int              `json:"completedCount"`
	FailedCount    int              `json:"failedCount"`
	// Final is set once no goal of the cohort is active.
	Final bool `json:"final"`
	*calculator.PoolEstimate
}

// GetCohortStatistics reports the current prize pool of a cohort and the
// payout range each competitor can still expect. MaxPayout is an estimate.
func (s *SettlementService) GetCohortStatistics(ctx context.Context, cohort model.CohortDate) (*CohortStatistics, error) {
	goals, err := s.cohortGoals(ctx, cohort)
	if err != nil {
		return nil, err
	}

	stats := &CohortStatistics{Cohort: cohort}
	var active, completed, failed []calculator.Stake
	for _, g := range goals {
		switch g.Status {
		case model.GoalStatusActive:
			active = append(active, stakeOf(g))
		case model.GoalStatusCompleted:
			completed = append(completed, stakeOf(g))
		case model.GoalStatusFailed:
			failed = append(failed, stakeOf(g))
		default:
			stats.PendingCount++
		}
	}

	stats.ActiveCount = len(active)
	stats.CompletedCount = len(completed)
	stats.FailedCount = len(failed)
	stats.PoolEstimate = calculator.Estimate(active, completed, failed)
	stats.Final = len(active) == 0
	return stats, nil
}

// ListCohortPayouts returns the payouts recorded for cohort.
func (s *SettlementService) ListCohortPayouts(ctx context.Context, cohort model.CohortDate) ([]*model.Payout, error) {
	if start, _ := cohort.Bounds(); start.IsZero() {
		return nil, newError(KindInvalidInput, fmt.Sprintf("invalid cohort date %q", cohort), nil)
	}
	payouts, err := s.payouts.ByCohort(ctx, cohort)
	if err != nil {
		return nil, newError(KindInternal, "failed to list payouts", err)
	}
	return payouts, nil
}

// GoalPayouts lists the payouts made to one goal, oldest first.
func (s *SettlementService) GoalPayouts(ctx context.Context, goalID string) ([]*model.Payout, error) {
	payouts, err := s.payouts.ByGoal(ctx, goalID)
	if err != nil {
		return nil, newError(KindInternal, "failed to list goal payouts", err)
	}
	return payouts, nil
}

type EscrowStatus struct {
	Provider string          `json:"provider"`
	Address  string          `json:"address"`
	Balance  decimal.Decimal `json:"balance"`
}

// EscrowStatus reads the escrow balance from the ledger.
func (s *SettlementService) EscrowStatus(ctx context.Context) (*EscrowStatus, error) {
	balance, err := s.ledger.EscrowBalance(ctx)
	if err != nil {
		return nil, ledgerError("failed to read escrow balance", err)
	}
	return &EscrowStatus{
		Provider: s.ledger.Name(),
		Address:  s.ledger.EscrowAddress(),
		Balance:  balance,
	}, nil
}
