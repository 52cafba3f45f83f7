package handler

import (
	"log/slog"
	"net/http"

	"github.com/templui/goalstake/internal/ctxkeys"
	"github.com/templui/goalstake/internal/service"
)

// OperatorHandler serves the endpoints behind the operator token.
type OperatorHandler struct {
	lifecycle  *service.LifecycleService
	settlement *service.SettlementService
}

func NewOperatorHandler(lifecycle *service.LifecycleService, settlement *service.SettlementService) *OperatorHandler {
	return &OperatorHandler{
		lifecycle:  lifecycle,
		settlement: settlement,
	}
}

// Settle runs settlement for one cohort. A partial run still answers 200;
// the report lists the failed payouts and a repeat call retries only those.
func (h *OperatorHandler) Settle(w http.ResponseWriter, r *http.Request) {
	cohort, err := cohortParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("manual settlement requested", "cohort", cohort, "operator", operatorName(r))

	report, err := h.settlement.SettleCohort(r.Context(), cohort)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"complete": report.Complete(), "report": report})
}

func (h *OperatorHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	slog.Info("manual sweep requested", "operator", operatorName(r))

	report, err := h.lifecycle.SweepExpired(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *OperatorHandler) Escrow(w http.ResponseWriter, r *http.Request) {
	status, err := h.settlement.EscrowStatus(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func operatorName(r *http.Request) string {
	if claims := ctxkeys.Operator(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}
