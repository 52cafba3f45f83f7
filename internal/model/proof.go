package model

import "time"

type Verdict string

const (
	VerdictPending     Verdict = "pending"
	VerdictApprove     Verdict = "approve"
	VerdictReject      Verdict = "reject"
	VerdictNeedsReview Verdict = "needs_review"
)

func (v Verdict) Valid() bool {
	switch v {
	case VerdictApprove, VerdictReject, VerdictNeedsReview:
		return true
	}
	return false
}

const (
	ProofSourceValidator = "validator"
	ProofSourceReview    = "review"
)

type Proof struct {
	ID          string     `db:"id" json:"id"`
	GoalID      string     `db:"goal_id" json:"goalId"`
	Text        string     `db:"text_description" json:"textDescription"`
	ImageRef    string     `db:"image_ref" json:"imageRef,omitempty"`
	Source      string     `db:"source" json:"source"`
	Verdict     Verdict    `db:"verdict" json:"verdict"`
	Confidence  int        `db:"confidence" json:"confidence"`
	Reasoning   string     `db:"reasoning" json:"reasoning"`
	SubmittedAt time.Time  `db:"submitted_at" json:"submittedAt"`
	ValidatedAt *time.Time `db:"validated_at" json:"validatedAt,omitempty"`
}
