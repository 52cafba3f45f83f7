// Package memory provides in-process implementations of the repository
// interfaces with the same conflict semantics as the SQL store. They back the
// service, scheduler and handler tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/templui/goalstake/internal/model"
	"github.com/templui/goalstake/internal/repository"
)

type GoalRepository struct {
	mu    sync.Mutex
	goals map[string]model.Goal
}

func NewGoalRepository() *GoalRepository {
	return &GoalRepository{goals: make(map[string]model.Goal)}
}

func (r *GoalRepository) Create(_ context.Context, goal *model.Goal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if goal.StakeConfirmed() && r.refInUse(goal.StakeTransactionRef, goal.ID) {
		return repository.ErrStakeRefInUse
	}
	r.goals[goal.ID] = *goal
	return nil
}

func (r *GoalRepository) ByID(_ context.Context, id string) (*model.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[id]
	if !ok {
		return nil, repository.ErrGoalNotFound
	}
	return &g, nil
}

func (r *GoalRepository) ByOwner(_ context.Context, owner string) ([]*model.Goal, error) {
	return r.filter(func(g model.Goal) bool { return g.Owner == owner }, func(a, b model.Goal) bool {
		return a.CreatedAt.After(b.CreatedAt)
	}), nil
}

func (r *GoalRepository) ByDeadlineRange(_ context.Context, start, end time.Time) ([]*model.Goal, error) {
	return r.filter(func(g model.Goal) bool {
		return !g.Deadline.Before(start) && g.Deadline.Before(end)
	}, byDeadline), nil
}

func (r *GoalRepository) ByStakeRef(_ context.Context, ref string) (*model.Goal, error) {
	goals := r.filter(func(g model.Goal) bool { return g.StakeTransactionRef == ref }, byDeadline)
	if len(goals) == 0 {
		return nil, repository.ErrGoalNotFound
	}
	return goals[0], nil
}

func (r *GoalRepository) ActiveDeadlineBefore(_ context.Context, cutoff time.Time) ([]*model.Goal, error) {
	return r.filter(func(g model.Goal) bool {
		return g.Status == model.GoalStatusActive && g.Deadline.Before(cutoff)
	}, byDeadline), nil
}

func (r *GoalRepository) UpdateStatusIfCurrent(_ context.Context, id string, expected, next model.GoalStatus, update repository.GoalUpdate) (*model.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[id]
	if !ok {
		return nil, repository.ErrGoalNotFound
	}
	if g.Status != expected {
		return &g, repository.ErrStatusConflict
	}
	if update.StakeTransactionRef != "" {
		if r.refInUse(update.StakeTransactionRef, id) {
			return nil, repository.ErrStakeRefInUse
		}
		g.StakeTransactionRef = update.StakeTransactionRef
	}
	g.Status = next
	g.UpdatedAt = time.Now()
	r.goals[id] = g

	return &g, nil
}

// Put overwrites a goal unconditionally. Test helper.
func (r *GoalRepository) Put(goal model.Goal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.goals[goal.ID] = goal
}

func (r *GoalRepository) refInUse(ref, exceptID string) bool {
	for id, g := range r.goals {
		if id != exceptID && g.StakeTransactionRef == ref {
			return true
		}
	}
	return false
}

func (r *GoalRepository) filter(keep func(model.Goal) bool, less func(a, b model.Goal) bool) []*model.Goal {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Goal
	for _, g := range r.goals {
		if keep(g) {
			g := g
			out = append(out, &g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(*out[i], *out[j]) })
	return out
}

func byDeadline(a, b model.Goal) bool {
	if !a.Deadline.Equal(b.Deadline) {
		return a.Deadline.Before(b.Deadline)
	}
	return a.ID < b.ID
}

type ProofRepository struct {
	mu     sync.Mutex
	proofs map[string]model.Proof
	order  []string
}

func NewProofRepository() *ProofRepository {
	return &ProofRepository{proofs: make(map[string]model.Proof)}
}

func (r *ProofRepository) Create(_ context.Context, proof *model.Proof) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.proofs[proof.ID] = *proof
	r.order = append(r.order, proof.ID)
	return nil
}

func (r *ProofRepository) ByID(_ context.Context, id string) (*model.Proof, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proofs[id]
	if !ok {
		return nil, repository.ErrProofNotFound
	}
	return &p, nil
}

func (r *ProofRepository) ByGoal(_ context.Context, goalID string) ([]*model.Proof, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Proof
	for _, id := range r.order {
		p := r.proofs[id]
		if p.GoalID == goalID {
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r *ProofRepository) RecordVerdict(_ context.Context, id string, verdict model.Verdict, confidence int, reasoning string, validatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proofs[id]
	if !ok {
		return repository.ErrProofNotFound
	}
	if p.Verdict != model.VerdictPending {
		return repository.ErrProofFinalized
	}
	p.Verdict = verdict
	p.Confidence = confidence
	p.Reasoning = reasoning
	p.ValidatedAt = &validatedAt
	r.proofs[id] = p
	return nil
}

type PayoutRepository struct {
	mu      sync.Mutex
	payouts []model.Payout
	// FailCreate, when set, is returned by Create instead of storing the payout.
	FailCreate error
}

func NewPayoutRepository() *PayoutRepository {
	return &PayoutRepository{}
}

func (r *PayoutRepository) Create(_ context.Context, payout *model.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailCreate != nil {
		return r.FailCreate
	}
	for _, p := range r.payouts {
		if p.GoalID == payout.GoalID && p.Type == payout.Type {
			return repository.ErrPayoutExists
		}
	}
	r.payouts = append(r.payouts, *payout)
	return nil
}

func (r *PayoutRepository) ExistsForGoal(_ context.Context, goalID string, payoutType model.PayoutType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.payouts {
		if p.GoalID == goalID && p.Type == payoutType {
			return true, nil
		}
	}
	return false, nil
}

func (r *PayoutRepository) ByCohort(_ context.Context, cohort model.CohortDate) ([]*model.Payout, error) {
	return r.filter(func(p model.Payout) bool { return p.CohortDate == cohort }), nil
}

func (r *PayoutRepository) ByGoal(_ context.Context, goalID string) ([]*model.Payout, error) {
	return r.filter(func(p model.Payout) bool { return p.GoalID == goalID }), nil
}

func (r *PayoutRepository) filter(keep func(model.Payout) bool) []*model.Payout {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Payout
	for _, p := range r.payouts {
		if keep(p) {
			p := p
			out = append(out, &p)
		}
	}
	return out
}

type FileRepository struct {
	mu    sync.Mutex
	files map[string]model.File
}

func NewFileRepository() *FileRepository {
	return &FileRepository{files: make(map[string]model.File)}
}

func (r *FileRepository) Create(_ context.Context, file *model.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[file.ID] = *file
	return nil
}

func (r *FileRepository) ByID(_ context.Context, id string) (*model.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[id]
	if !ok {
		return nil, repository.ErrFileNotFound
	}
	return &f, nil
}

func (r *FileRepository) ByGoal(_ context.Context, goalID string) ([]*model.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.File
	for _, f := range r.files {
		if f.GoalID == goalID {
			f := f
			out = append(out, &f)
		}
	}
	return out, nil
}

var (
	_ repository.GoalRepository   = (*GoalRepository)(nil)
	_ repository.ProofRepository  = (*ProofRepository)(nil)
	_ repository.PayoutRepository = (*PayoutRepository)(nil)
	_ repository.FileRepository   = (*FileRepository)(nil)
)
