package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/templui/goalstake/internal/config"
	"github.com/templui/goalstake/internal/model"
)

const (
	ProviderOracle = "oracle"
	ProviderManual = "manual"
	ProviderStatic = "static"
)

// Submission is everything a validator sees about a proof.
type Submission struct {
	ProofID         string
	GoalID          string
	Owner           string
	GoalTitle       string
	GoalDescription string
	Category        string
	Deadline        time.Time
	Text            string
	ImageURL        string
}

// Result is a validator verdict. Confidence is a percentage.
type Result struct {
	Verdict    model.Verdict
	Confidence int
	Reasoning  string
	// TimedOut is set when the verdict was forced to needs_review because the
	// validator did not answer in time or failed.
	TimedOut bool
}

// Validator judges proof submissions.
type Validator interface {
	// Name returns the provider name (e.g., "oracle", "manual")
	Name() string

	Validate(ctx context.Context, sub Submission) (*Result, error)
}

// NewValidator creates a validator based on configuration. The returned
// validator is bounded by cfg.ValidatorTimeout and never fails.
func NewValidator(cfg *config.Config) (Validator, error) {
	provider := cfg.ValidatorProvider

	slog.Info("initializing validator", "provider", provider)

	var v Validator
	switch provider {
	case ProviderOracle:
		if cfg.OracleAPIKey == "" {
			return nil, fmt.Errorf("ORACLE_API_KEY is required when using the oracle validator")
		}
		v = NewOracleValidator(OracleConfig{
			URL:           cfg.OracleURL,
			APIKey:        cfg.OracleAPIKey,
			Model:         cfg.OracleModel,
			MinConfidence: cfg.ValidatorMinConfidence,
		})

	case ProviderManual:
		v = ManualValidator{}

	case ProviderStatic:
		if cfg.IsProduction() {
			return nil, fmt.Errorf("static validator is not allowed in production")
		}
		verdict := model.Verdict(cfg.ValidatorStaticVerdict)
		if !verdict.Valid() {
			return nil, fmt.Errorf("invalid VALIDATOR_STATIC_VERDICT: %s", cfg.ValidatorStaticVerdict)
		}
		v = StaticValidator{Verdict: verdict}

	default:
		return nil, fmt.Errorf("unknown validator provider: %s (supported: oracle, manual, static)", provider)
	}

	return Bounded(v, cfg.ValidatorTimeout), nil
}

// ManualValidator defers every proof to a human reviewer.
type ManualValidator struct{}

func (ManualValidator) Name() string { return ProviderManual }

func (ManualValidator) Validate(context.Context, Submission) (*Result, error) {
	return &Result{
		Verdict:   model.VerdictNeedsReview,
		Reasoning: "awaiting manual review",
	}, nil
}

// StaticValidator returns a fixed verdict. Development only.
type StaticValidator struct {
	Verdict model.Verdict
}

func (StaticValidator) Name() string { return ProviderStatic }

func (s StaticValidator) Validate(context.Context, Submission) (*Result, error) {
	return &Result{
		Verdict:    s.Verdict,
		Confidence: 100,
		Reasoning:  "static verdict",
	}, nil
}

type bounded struct {
	next    Validator
	timeout time.Duration
}

// Bounded applies timeout to every call of v and turns failures into
// needs_review. A validator error is never read as approve or reject.
func Bounded(v Validator, timeout time.Duration) Validator {
	return &bounded{next: v, timeout: timeout}
}

func (b *bounded) Name() string { return b.next.Name() }

func (b *bounded) Validate(ctx context.Context, sub Submission) (*Result, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	type answer struct {
		res *Result
		err error
	}
	done := make(chan answer, 1)
	go func() {
		res, err := b.next.Validate(ctx, sub)
		done <- answer{res, err}
	}()

	var a answer
	select {
	case a = <-done:
	case <-ctx.Done():
		a = answer{err: ctx.Err()}
	}

	if a.err == nil && a.res != nil && a.res.Verdict.Valid() {
		return a.res, nil
	}

	err := a.err
	if err == nil {
		err = errors.New("validator returned no usable verdict")
	}
	slog.Warn("validator degraded to manual review",
		"provider", b.next.Name(),
		"goal_id", sub.GoalID,
		"proof_id", sub.ProofID,
		"error", err,
	)

	reason := "validator unavailable: " + err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "validator timed out"
	}
	return &Result{
		Verdict:   model.VerdictNeedsReview,
		Reasoning: reason,
		TimedOut:  true,
	}, nil
}

// normalizeVerdict maps the oracle's wording onto a verdict.
func normalizeVerdict(s string) model.Verdict {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved", "pass", "passed":
		return model.VerdictApprove
	case "reject", "rejected", "fail", "failed":
		return model.VerdictReject
	default:
		return model.VerdictNeedsReview
	}
}
