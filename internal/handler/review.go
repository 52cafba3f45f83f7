package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
	"github.com/templui/goalstake/internal/model"
	"github.com/templui/goalstake/internal/service"
)

const reviewEventType = "proof.reviewed"

// ReviewHandler receives reviewer decisions for proofs parked in
// needs_review. Deliveries are signed per the Standard Webhooks scheme.
type ReviewHandler struct {
	lifecycle *service.LifecycleService
	secret    string
}

func NewReviewHandler(lifecycle *service.LifecycleService, secret string) *ReviewHandler {
	return &ReviewHandler{
		lifecycle: lifecycle,
		secret:    secret,
	}
}

type reviewEvent struct {
	Type string `json:"type"`
	Data struct {
		ProofID   string        `json:"proofId"`
		Verdict   model.Verdict `json:"verdict"`
		Reasoning string        `json:"reasoning"`
		Reviewer  string        `json:"reviewer"`
	} `json:"data"`
}

func (h *ReviewHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		slog.Warn("review webhook received but no secret is configured")
		http.Error(w, "Review webhook is not configured", http.StatusServiceUnavailable)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		slog.Error("failed to read webhook payload", "error", err)
		http.Error(w, "Failed to read payload", http.StatusBadRequest)
		return
	}

	wh, err := standardwebhooks.NewWebhookRaw([]byte(h.secret))
	if err != nil {
		slog.Error("failed to create webhook verifier", "error", err)
		http.Error(w, "Webhook misconfigured", http.StatusInternalServerError)
		return
	}
	if err := wh.Verify(payload, r.Header); err != nil {
		slog.Warn("invalid review webhook signature", "error", err, "webhook_id", r.Header.Get("webhook-id"))
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event reviewEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		writeError(w, r, badRequest("failed to parse webhook"))
		return
	}
	if event.Type != reviewEventType {
		slog.Info("ignoring webhook event", "event_type", event.Type)
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "ignored": true})
		return
	}

	outcome, err := h.lifecycle.ResolveReview(r.Context(), service.ResolveReviewInput{
		ProofID:   event.Data.ProofID,
		Verdict:   event.Data.Verdict,
		Reasoning: event.Data.Reasoning,
		Reviewer:  event.Data.Reviewer,
	})
	// A redelivery after the goal already moved is acknowledged so the
	// sender stops retrying.
	if service.IsKind(err, service.KindInvalidState) {
		slog.Info("review for settled goal ignored", "proof_id", event.Data.ProofID, "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "ignored": true})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true, "goal": outcome.Goal})
}
