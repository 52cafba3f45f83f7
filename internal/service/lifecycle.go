package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/templui/goalstake/internal/calculator"
	"github.com/templui/goalstake/internal/config"
	"github.com/templui/goalstake/internal/ledger"
	"github.com/templui/goalstake/internal/metrics"
	"github.com/templui/goalstake/internal/model"
	"github.com/templui/goalstake/internal/repository"
	"github.com/templui/goalstake/internal/validation"
	"github.com/templui/goalstake/internal/validator"
)

type LifecycleConfig struct {
	// GracePeriod is how long after its deadline a goal still accepts proof.
	GracePeriod time.Duration
	// ReviewWindow bounds how long past the grace period a parked proof
	// keeps its goal active.
	ReviewWindow   time.Duration
	ConfirmTimeout time.Duration
	StatusTimeout  time.Duration
	PollInterval   time.Duration
	DemoMode       bool
}

func LifecycleConfigFrom(cfg *config.Config) LifecycleConfig {
	return LifecycleConfig{
		GracePeriod:    cfg.DeadlineGracePeriod,
		ReviewWindow:   cfg.ReviewWindow,
		ConfirmTimeout: cfg.LedgerConfirmTimeout,
		StatusTimeout:  cfg.LedgerStatusTimeout,
		PollInterval:   500 * time.Millisecond,
		DemoMode:       cfg.DemoMode,
	}
}

// LifecycleService drives goals through pending_validation -> active ->
// completed | failed. Every transition is a compare-and-set on the stored
// status, so concurrent callers cannot both win.
type LifecycleService struct {
	goals     repository.GoalRepository
	proofs    repository.ProofRepository
	ledger    ledger.Gateway
	validator validator.Validator
	files     *FileService // nil when image proofs are disabled
	cfg       LifecycleConfig
	now       func() time.Time
}

func NewLifecycleService(
	goals repository.GoalRepository,
	proofs repository.ProofRepository,
	gateway ledger.Gateway,
	v validator.Validator,
	files *FileService,
	cfg LifecycleConfig,
) *LifecycleService {
	return &LifecycleService{
		goals:     goals,
		proofs:    proofs,
		ledger:    gateway,
		validator: v,
		files:     files,
		cfg:       cfg,
		now:       time.Now,
	}
}

type CreateGoalInput struct {
	Owner       string
	Title       string
	Description string
	Category    string
	Deadline    time.Time
	StakeAmount decimal.Decimal
}

type CreatedGoal struct {
	Goal     *model.Goal              `json:"goal"`
	Transfer *ledger.UnsignedTransfer `json:"transfer,omitempty"`
}

// CreateGoal records a goal in pending_validation and returns the unsigned
// stake transfer the owner has to sign. The transfer is built before the goal
// is stored, so a ledger outage leaves nothing behind.
func (s *LifecycleService) CreateGoal(ctx context.Context, in CreateGoalInput) (*CreatedGoal, error) {
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	transfer, err := s.ledger.BuildTransfer(ctx, in.Owner, s.ledger.EscrowAddress(), in.StakeAmount)
	if err != nil {
		return nil, ledgerError("failed to build stake transfer", err)
	}

	goal := s.newGoal(in)
	if err := s.goals.Create(ctx, goal); err != nil {
		return nil, newError(KindInternal, "failed to store goal", err)
	}

	slog.Info("goal created",
		"goal_id", goal.ID,
		"owner", goal.Owner,
		"stake", goal.StakeAmount.String(),
		"deadline", goal.Deadline,
	)
	return &CreatedGoal{Goal: goal, Transfer: transfer}, nil
}

// CreateDemoGoal stores a goal that is active immediately with a synthetic
// stake reference. No funds move. Only available in demo mode.
func (s *LifecycleService) CreateDemoGoal(ctx context.Context, in CreateGoalInput) (*CreatedGoal, error) {
	if !s.cfg.DemoMode {
		return nil, newError(KindDemoDisabled, "demo goals are disabled", nil)
	}
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	goal := s.newGoal(in)
	if err := s.goals.Create(ctx, goal); err != nil {
		return nil, newError(KindInternal, "failed to store goal", err)
	}

	ref := ledger.DemoRefPrefix + uuid.NewString()
	active, err := s.transition(ctx, goal, model.GoalStatusActive, repository.GoalUpdate{StakeTransactionRef: ref}, "demo")
	if err != nil {
		return nil, err
	}

	slog.Warn("demo goal activated without a stake transfer", "goal_id", active.ID, "owner", active.Owner)
	return &CreatedGoal{Goal: active}, nil
}

func (s *LifecycleService) validateCreate(in CreateGoalInput) error {
	if err := validation.ValidateGoalText(in.Title, in.Description, in.Category); err != nil {
		return newError(KindInvalidInput, err.Error(), nil)
	}
	if err := s.ledger.ValidateAddress(in.Owner); err != nil {
		return newError(KindInvalidInput, "invalid owner address", err)
	}
	if in.Owner == s.ledger.EscrowAddress() {
		return newError(KindInvalidInput, "owner cannot be the escrow account", nil)
	}
	if err := calculator.ValidateAmount(in.StakeAmount); err != nil {
		return newError(KindInvalidInput, "invalid stake amount", err)
	}
	if !in.Deadline.After(s.now()) {
		return newError(KindInvalidInput, "deadline must be in the future", nil)
	}
	return nil
}

func (s *LifecycleService) newGoal(in CreateGoalInput) *model.Goal {
	now := s.now().UTC()
	return &model.Goal{
		ID:                  uuid.NewString(),
		Owner:               in.Owner,
		Title:               strings.TrimSpace(in.Title),
		Description:         strings.TrimSpace(in.Description),
		Category:            strings.TrimSpace(in.Category),
		Deadline:            in.Deadline.UTC(),
		StakeAmount:         in.StakeAmount,
		StakeTransactionRef: model.PendingTransactionRef,
		Status:              model.GoalStatusPendingValidation,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// ConfirmStake activates a pending goal once the ledger reports ref as
// committed. Repeating a successful confirmation with the same ref returns
// the active goal unchanged.
func (s *LifecycleService) ConfirmStake(ctx context.Context, goalID, ref string) (*model.Goal, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == model.PendingTransactionRef {
		return nil, newError(KindInvalidInput, "transaction reference is required", nil)
	}

	goal, err := s.goal(ctx, goalID)
	if err != nil {
		return nil, err
	}

	if goal.Status != model.GoalStatusPendingValidation {
		if goal.StakeTransactionRef == ref {
			return goal, nil
		}
		return nil, invalidState("stake already confirmed with a different transaction", goal.Status)
	}

	if err := s.confirmableAt(goal); err != nil {
		return nil, err
	}

	other, err := s.goals.ByStakeRef(ctx, ref)
	switch {
	case err == nil && other.ID != goal.ID:
		return nil, newError(KindInvalidInput, "transaction already funds another goal", nil)
	case err != nil && !errors.Is(err, repository.ErrGoalNotFound):
		return nil, newError(KindInternal, "failed to look up transaction reference", err)
	}

	if err := s.awaitCommitted(ctx, ref); err != nil {
		slog.Info("stake not confirmed", "goal_id", goal.ID, "ref", ref, "kind", KindOf(err))
		return nil, err
	}

	err = s.ledger.VerifyTransfer(ctx, ref, goal.Owner, s.ledger.EscrowAddress(), goal.StakeAmount)
	if err != nil {
		slog.Warn("stake transfer rejected", "goal_id", goal.ID, "ref", ref, "error", err)
		return nil, ledgerError("transaction does not fund this stake", err)
	}

	// Polling can outlast the deadline.
	if err := s.confirmableAt(goal); err != nil {
		slog.Warn("stake landed after the deadline", "goal_id", goal.ID, "ref", ref)
		return nil, err
	}

	active, err := s.transition(ctx, goal, model.GoalStatusActive, repository.GoalUpdate{StakeTransactionRef: ref}, "stake confirmed")
	if err != nil {
		// A concurrent confirmation with the same ref already won.
		if active != nil && active.Status == model.GoalStatusActive && active.StakeTransactionRef == ref {
			return active, nil
		}
		return nil, err
	}
	return active, nil
}

// confirmableAt refuses goals whose deadline passed while pending. Their
// cohort may already be settled, so a late stake stays in escrow for an
// operator refund.
func (s *LifecycleService) confirmableAt(goal *model.Goal) error {
	if !s.now().Before(goal.Deadline) {
		return invalidState(fmt.Sprintf("deadline %s passed before the stake was confirmed", goal.Deadline.Format(time.RFC3339)), goal.Status)
	}
	return nil
}

// awaitCommitted polls the ledger until ref is committed, the ledger rejects
// it, or the confirmation timeout runs out.
func (s *LifecycleService) awaitCommitted(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.PollInterval
	b.MaxInterval = 4 * s.cfg.PollInterval
	b.MaxElapsedTime = s.cfg.ConfirmTimeout

	var last *Error
	op := func() error {
		status, err := s.ledger.ConfirmationStatus(ctx, ref, s.cfg.StatusTimeout)
		switch {
		case errors.Is(err, ledger.ErrInvalidReference):
			return backoff.Permanent(newError(KindInvalidInput, "invalid transaction reference", err))
		case err != nil:
			last = ledgerError("failed to read transaction status", err)
			return err
		case status == ledger.StatusFailed:
			return backoff.Permanent(newError(KindInvalidInput, "stake transaction failed on the ledger", nil))
		case !status.Committed():
			last = newError(KindNotConfirmed, fmt.Sprintf("stake transaction is %s", status), nil)
			return last
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) && e.Kind == KindInvalidInput {
		return e
	}
	if last != nil {
		return last
	}
	return newError(KindNotConfirmed, "stake transaction not confirmed", err)
}

type SubmitProofInput struct {
	GoalID string
	// Submitter is the wallet submitting the proof. When set it must own the goal.
	Submitter string
	Text      string
	// ImageRef is the id of an image uploaded for this goal.
	ImageRef string
}

type ProofOutcome struct {
	Proof *model.Proof `json:"proof"`
	Goal  *model.Goal  `json:"goal"`
	// ValidationTimedOut is set when the validator did not answer and the
	// proof was parked for manual review.
	ValidationTimedOut bool `json:"validationTimedOut,omitempty"`
}

// SubmitProof stores the proof, asks the validator for a verdict and applies
// it: approve completes the goal, reject fails it, needs_review leaves it
// active until a reviewer decides.
func (s *LifecycleService) SubmitProof(ctx context.Context, in SubmitProofInput) (*ProofOutcome, error) {
	goal, err := s.ProofTarget(ctx, in.GoalID, in.Submitter)
	if err != nil {
		return nil, err
	}

	if err := validation.ValidateProofText(in.Text); err != nil {
		return nil, newError(KindInvalidInput, err.Error(), nil)
	}

	var imageURL string
	if in.ImageRef != "" {
		imageURL, err = s.resolveImage(ctx, goal.ID, in.ImageRef)
		if err != nil {
			return nil, err
		}
	}

	proof := &model.Proof{
		ID:          uuid.NewString(),
		GoalID:      goal.ID,
		Text:        strings.TrimSpace(in.Text),
		ImageRef:    in.ImageRef,
		Source:      model.ProofSourceValidator,
		Verdict:     model.VerdictPending,
		SubmittedAt: s.now().UTC(),
	}
	if err := s.proofs.Create(ctx, proof); err != nil {
		return nil, newError(KindInternal, "failed to store proof", err)
	}

	// The verdict is recorded even if the caller goes away mid-validation.
	res := s.validate(context.WithoutCancel(ctx), goal, proof, imageURL)

	validatedAt := s.now().UTC()
	if err := s.proofs.RecordVerdict(ctx, proof.ID, res.Verdict, res.Confidence, res.Reasoning, validatedAt); err != nil {
		return nil, newError(KindInternal, "failed to record verdict", err)
	}
	proof.Verdict = res.Verdict
	proof.Confidence = res.Confidence
	proof.Reasoning = res.Reasoning
	proof.ValidatedAt = &validatedAt
	metrics.RecordVerdict(string(res.Verdict), res.TimedOut)

	slog.Info("proof validated",
		"goal_id", goal.ID,
		"proof_id", proof.ID,
		"verdict", res.Verdict,
		"confidence", res.Confidence,
		"timed_out", res.TimedOut,
	)

	goal, err = s.applyVerdict(ctx, goal, proof.Verdict, proof.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return &ProofOutcome{Proof: proof, Goal: goal, ValidationTimedOut: res.TimedOut}, nil
}

// ProofTarget loads the goal a proof or proof image is submitted for and
// checks that it can still take evidence.
func (s *LifecycleService) ProofTarget(ctx context.Context, goalID, submitter string) (*model.Goal, error) {
	goal, err := s.goal(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if submitter != "" && submitter != goal.Owner {
		return nil, newError(KindInvalidInput, "only the goal owner can submit proof", nil)
	}
	if goal.Status != model.GoalStatusActive {
		return nil, invalidState("proof requires an active goal", goal.Status)
	}
	if !s.withinGrace(goal, s.now()) {
		return nil, invalidState("deadline grace period has passed", goal.Status)
	}
	return goal, nil
}

func (s *LifecycleService) resolveImage(ctx context.Context, goalID, ref string) (string, error) {
	if s.files == nil {
		return "", newError(KindInvalidInput, "image proofs are disabled", nil)
	}
	url, err := s.files.ProofImageURL(ctx, goalID, ref)
	if errors.Is(err, repository.ErrFileNotFound) {
		return "", newError(KindInvalidInput, "unknown proof image", nil)
	}
	if err != nil {
		return "", newError(KindInternal, "failed to resolve proof image", err)
	}
	return url, nil
}

func (s *LifecycleService) validate(ctx context.Context, goal *model.Goal, proof *model.Proof, imageURL string) *validator.Result {
	res, err := s.validator.Validate(ctx, validator.Submission{
		ProofID:         proof.ID,
		GoalID:          goal.ID,
		Owner:           goal.Owner,
		GoalTitle:       goal.Title,
		GoalDescription: goal.Description,
		Category:        goal.Category,
		Deadline:        goal.Deadline,
		Text:            proof.Text,
		ImageURL:        imageURL,
	})
	if err != nil || res == nil || !res.Verdict.Valid() {
		return &validator.Result{
			Verdict:   model.VerdictNeedsReview,
			Reasoning: "validator returned no usable verdict",
			TimedOut:  true,
		}
	}
	return res
}

// applyVerdict moves an active goal according to a terminal verdict. Approval
// only counts for proof submitted before the deadline grace period ended.
func (s *LifecycleService) applyVerdict(ctx context.Context, goal *model.Goal, verdict model.Verdict, submittedAt time.Time) (*model.Goal, error) {
	switch verdict {
	case model.VerdictApprove:
		if !s.withinGrace(goal, submittedAt) {
			return nil, invalidState("proof was submitted after the deadline grace period", goal.Status)
		}
		return s.transition(ctx, goal, model.GoalStatusCompleted, repository.GoalUpdate{}, "proof approved")
	case model.VerdictReject:
		return s.transition(ctx, goal, model.GoalStatusFailed, repository.GoalUpdate{}, "proof rejected")
	default:
		return goal, nil
	}
}

type ResolveReviewInput struct {
	ProofID   string
	Verdict   model.Verdict
	Reasoning string
	Reviewer  string
}

// ResolveReview applies a reviewer's decision to a proof parked in
// needs_review. The decision is stored as a new proof row with source
// "review"; the original row keeps its verdict.
func (s *LifecycleService) ResolveReview(ctx context.Context, in ResolveReviewInput) (*ProofOutcome, error) {
	if in.Verdict != model.VerdictApprove && in.Verdict != model.VerdictReject {
		return nil, newError(KindInvalidInput, "review verdict must be approve or reject", nil)
	}

	original, err := s.proofs.ByID(ctx, in.ProofID)
	if errors.Is(err, repository.ErrProofNotFound) {
		return nil, newError(KindNotFound, "proof not found", nil)
	}
	if err != nil {
		return nil, newError(KindInternal, "failed to load proof", err)
	}
	if original.Verdict != model.VerdictNeedsReview {
		return nil, newError(KindInvalidInput, fmt.Sprintf("proof is %s, not awaiting review", original.Verdict), nil)
	}

	goal, err := s.goal(ctx, original.GoalID)
	if err != nil {
		return nil, err
	}
	if goal.Status != model.GoalStatusActive {
		return nil, invalidState("goal is no longer active", goal.Status)
	}

	now := s.now().UTC()
	reasoning := strings.TrimSpace(in.Reasoning)
	if in.Reviewer != "" {
		reasoning = strings.TrimSpace(fmt.Sprintf("%s (reviewer %s)", reasoning, in.Reviewer))
	}
	review := &model.Proof{
		ID:          uuid.NewString(),
		GoalID:      goal.ID,
		Text:        original.Text,
		ImageRef:    original.ImageRef,
		Source:      model.ProofSourceReview,
		Verdict:     in.Verdict,
		Confidence:  100,
		Reasoning:   reasoning,
		SubmittedAt: now,
		ValidatedAt: &now,
	}
	if err := s.proofs.Create(ctx, review); err != nil {
		return nil, newError(KindInternal, "failed to store review", err)
	}
	metrics.RecordVerdict(string(in.Verdict), false)

	slog.Info("proof reviewed",
		"goal_id", goal.ID,
		"proof_id", original.ID,
		"verdict", in.Verdict,
		"reviewer", in.Reviewer,
	)

	goal, err = s.applyVerdict(ctx, goal, in.Verdict, original.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return &ProofOutcome{Proof: review, Goal: goal}, nil
}

type SweepReport struct {
	Examined       int `json:"examined"`
	Failed         int `json:"failed"`
	AwaitingReview int `json:"awaitingReview"`
	// ReviewExpired counts failed goals whose proof was never reviewed.
	ReviewExpired int `json:"reviewExpired"`
	Conflicts     int `json:"conflicts"`
}

// SweepExpired fails every active goal whose deadline grace period has
// passed without an approved proof. Goals with a proof still waiting for
// a reviewer are left alone until the review window closes.
func (s *LifecycleService) SweepExpired(ctx context.Context) (*SweepReport, error) {
	cutoff := s.now().UTC().Add(-s.cfg.GracePeriod)
	goals, err := s.goals.ActiveDeadlineBefore(ctx, cutoff)
	if err != nil {
		return nil, newError(KindInternal, "failed to list expired goals", err)
	}

	report := &SweepReport{Examined: len(goals)}
	for _, goal := range goals {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		waiting, err := s.awaitingReview(ctx, goal)
		if err != nil {
			return report, err
		}
		reason := "deadline expired"
		if waiting {
			if s.now().Before(s.reviewClosesAt(goal)) {
				report.AwaitingReview++
				continue
			}
			slog.Warn("review window closed without a verdict", "goal_id", goal.ID, "closed_at", s.reviewClosesAt(goal))
			reason = "review window expired"
		}

		_, err = s.transition(ctx, goal, model.GoalStatusFailed, repository.GoalUpdate{}, reason)
		switch {
		case IsKind(err, KindInvalidState):
			report.Conflicts++
		case err != nil:
			return report, err
		default:
			report.Failed++
			if waiting {
				report.ReviewExpired++
			}
		}
	}

	if report.Examined > 0 {
		slog.Info("expired goals swept",
			"examined", report.Examined,
			"failed", report.Failed,
			"awaiting_review", report.AwaitingReview,
			"review_expired", report.ReviewExpired,
			"conflicts", report.Conflicts,
		)
	}
	return report, nil
}

// awaitingReview reports whether the latest proof of goal was submitted in
// time and is parked for a reviewer.
func (s *LifecycleService) awaitingReview(ctx context.Context, goal *model.Goal) (bool, error) {
	proofs, err := s.proofs.ByGoal(ctx, goal.ID)
	if err != nil {
		return false, newError(KindInternal, "failed to list proofs", err)
	}
	if len(proofs) == 0 {
		return false, nil
	}
	latest := proofs[len(proofs)-1]
	return latest.Verdict == model.VerdictNeedsReview && s.withinGrace(goal, latest.SubmittedAt), nil
}

func (s *LifecycleService) reviewClosesAt(goal *model.Goal) time.Time {
	return goal.Deadline.Add(s.cfg.GracePeriod + s.cfg.ReviewWindow)
}

func (s *LifecycleService) GetGoal(ctx context.Context, id string) (*model.Goal, error) {
	return s.goal(ctx, id)
}

// ListGoals returns the goals owned by a wallet, newest first.
func (s *LifecycleService) ListGoals(ctx context.Context, owner string) ([]*model.Goal, error) {
	if err := s.ledger.ValidateAddress(owner); err != nil {
		return nil, newError(KindInvalidInput, "invalid owner address", err)
	}
	goals, err := s.goals.ByOwner(ctx, owner)
	if err != nil {
		return nil, newError(KindInternal, "failed to list goals", err)
	}
	return goals, nil
}

// ListProofs returns every proof row of a goal in submission order.
func (s *LifecycleService) ListProofs(ctx context.Context, goalID string) ([]*model.Proof, error) {
	if _, err := s.goal(ctx, goalID); err != nil {
		return nil, err
	}
	proofs, err := s.proofs.ByGoal(ctx, goalID)
	if err != nil {
		return nil, newError(KindInternal, "failed to list proofs", err)
	}
	return proofs, nil
}

func (s *LifecycleService) goal(ctx context.Context, id string) (*model.Goal, error) {
	goal, err := s.goals.ByID(ctx, id)
	if errors.Is(err, repository.ErrGoalNotFound) {
		return nil, newError(KindNotFound, "goal not found", nil)
	}
	if err != nil {
		return nil, newError(KindInternal, "failed to load goal", err)
	}
	return goal, nil
}

func (s *LifecycleService) withinGrace(goal *model.Goal, t time.Time) bool {
	return !t.After(goal.Deadline.Add(s.cfg.GracePeriod))
}

// transition applies from -> to as a compare-and-set. On a lost race it
// returns the goal as currently stored together with an invalid_state error.
func (s *LifecycleService) transition(ctx context.Context, goal *model.Goal, to model.GoalStatus, update repository.GoalUpdate, reason string) (*model.Goal, error) {
	from := goal.Status
	if !model.CanTransition(from, to) {
		return nil, invalidState(fmt.Sprintf("cannot move goal from %s to %s", from, to), from)
	}

	updated, err := s.goals.UpdateStatusIfCurrent(ctx, goal.ID, from, to, update)
	switch {
	case errors.Is(err, repository.ErrStatusConflict):
		metrics.RecordTransitionConflict()
		current := from
		if updated != nil {
			current = updated.Status
		}
		slog.Info("goal transition lost race", "goal_id", goal.ID, "from", from, "to", to, "current", current)
		return updated, invalidState(fmt.Sprintf("goal changed concurrently, cannot move to %s", to), current)
	case errors.Is(err, repository.ErrGoalNotFound):
		return nil, newError(KindNotFound, "goal not found", nil)
	case errors.Is(err, repository.ErrStakeRefInUse):
		return nil, newError(KindInvalidInput, "transaction already funds another goal", nil)
	case err != nil:
		return nil, newError(KindInternal, "failed to update goal status", err)
	}

	metrics.RecordTransition(string(from), string(to))
	slog.Info("goal transitioned", "goal_id", goal.ID, "from", from, "to", to, "reason", reason)
	return updated, nil
}

// ledgerError maps gateway failures onto error kinds.
func ledgerError(detail string, err error) *Error {
	switch {
	case errors.Is(err, ledger.ErrLedgerUnavailable), errors.Is(err, context.DeadlineExceeded):
		return newError(KindLedgerUnavailable, detail, err)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return newError(KindInsufficientFunds, detail, err)
	case errors.Is(err, ledger.ErrInvalidAddress), errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidReference), errors.Is(err, ledger.ErrTransferMismatch):
		return newError(KindInvalidInput, detail, err)
	default:
		return newError(KindInternal, detail, err)
	}
}
