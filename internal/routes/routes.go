package routes

import (
	"net/http"

	"github.com/templui/goalstake/internal/app"
	"github.com/templui/goalstake/internal/handler"
	"github.com/templui/goalstake/internal/metrics"
	"github.com/templui/goalstake/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	health := handler.NewHealthHandler(app.DB, app.Ledger.Name())
	goal := handler.NewGoalHandler(app.LifecycleService, app.SettlementService)
	proof := handler.NewProofHandler(app.LifecycleService, app.FileService)
	cohort := handler.NewCohortHandler(app.SettlementService)
	operator := handler.NewOperatorHandler(app.LifecycleService, app.SettlementService)
	review := handler.NewReviewHandler(app.LifecycleService, app.Cfg.ReviewWebhookSecret)

	requireOperator := middleware.RequireOperator(app.Operators)

	mux := http.NewServeMux()

	// ============================================================================
	// PROBES
	// ============================================================================

	mux.HandleFunc("GET /healthz", health.Health)
	mux.Handle("GET /metrics", metrics.Handler())

	// ============================================================================
	// GOALS
	// ============================================================================

	mux.HandleFunc("POST /api/goals", goal.Create)
	mux.HandleFunc("POST /api/goals/demo", goal.CreateDemo)
	mux.HandleFunc("GET /api/goals", goal.List)
	mux.HandleFunc("GET /api/goals/{id}", goal.Get)
	mux.HandleFunc("POST /api/goals/{id}/confirm", goal.Confirm)

	// Proofs
	mux.HandleFunc("GET /api/goals/{id}/proofs", proof.List)
	mux.HandleFunc("POST /api/goals/{id}/proofs", proof.Submit)
	mux.HandleFunc("POST /api/goals/{id}/proofs/image", proof.UploadImage)

	// ============================================================================
	// COHORTS
	// ============================================================================

	mux.HandleFunc("GET /api/cohorts/{date}/statistics", cohort.Statistics)
	mux.HandleFunc("GET /api/cohorts/{date}/payouts", cohort.Payouts)

	// ============================================================================
	// OPERATOR ROUTES (bearer token)
	// ============================================================================

	mux.Handle("POST /api/cohorts/{date}/settle", requireOperator(http.HandlerFunc(operator.Settle)))
	mux.Handle("POST /api/sweep", requireOperator(http.HandlerFunc(operator.Sweep)))
	mux.Handle("GET /api/escrow", requireOperator(http.HandlerFunc(operator.Escrow)))

	// ============================================================================
	// WEBHOOKS
	// ============================================================================

	// Manual review decisions (Standard Webhooks signature)
	mux.HandleFunc("POST /webhooks/reviews", review.Webhook)

	// Global middleware - executed in order (top to bottom)
	handler := middleware.Chain(
		mux,
		middleware.RequestID, // Request ID first so every log line carries it
		middleware.RequestLogging,
		metrics.InstrumentHandler,
		app.RateLimiter.Handler,
	)

	return handler
}
