package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/templui/goalstake/internal/model"
	"github.com/templui/goalstake/internal/service"
)

type GoalHandler struct {
	lifecycle  *service.LifecycleService
	settlement *service.SettlementService
}

func NewGoalHandler(lifecycle *service.LifecycleService, settlement *service.SettlementService) *GoalHandler {
	return &GoalHandler{
		lifecycle:  lifecycle,
		settlement: settlement,
	}
}

type createGoalRequest struct {
	Owner       string          `json:"owner"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Deadline    time.Time       `json:"deadline"`
	StakeAmount decimal.Decimal `json:"stakeAmount"`
}

func (req createGoalRequest) input() service.CreateGoalInput {
	return service.CreateGoalInput{
		Owner:       req.Owner,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Deadline:    req.Deadline,
		StakeAmount: req.StakeAmount,
	}
}

// Create registers a goal and returns the unsigned stake transfer to sign.
func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.lifecycle.CreateGoal(r.Context(), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *GoalHandler) CreateDemo(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.lifecycle.CreateDemoGoal(r.Context(), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	goals, err := h.lifecycle.ListGoals(r.Context(), r.URL.Query().Get("wallet"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"goals": goals})
}

type goalResponse struct {
	*model.Goal
	Payouts []*model.Payout `json:"payouts"`
}

// Get returns the goal together with the payouts made for it.
func (h *GoalHandler) Get(w http.ResponseWriter, r *http.Request) {
	goal, err := h.lifecycle.GetGoal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	payouts, err := h.settlement.GoalPayouts(r.Context(), goal.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if payouts == nil {
		payouts = []*model.Payout{}
	}

	writeJSON(w, http.StatusOK, goalResponse{Goal: goal, Payouts: payouts})
}

type confirmStakeRequest struct {
	TransactionRef string `json:"transactionRef"`
}

// Confirm activates a goal once its signed stake transfer is committed.
// Safe to repeat with the same reference.
func (h *GoalHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmStakeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	goal, err := h.lifecycle.ConfirmStake(r.Context(), r.PathValue("id"), req.TransactionRef)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, goal)
}
