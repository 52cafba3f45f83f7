package handler

import (
	"net/http"

	"github.com/templui/goalstake/internal/model"
	"github.com/templui/goalstake/internal/service"
)

type CohortHandler struct {
	settlement *service.SettlementService
}

func NewCohortHandler(settlement *service.SettlementService) *CohortHandler {
	return &CohortHandler{
		settlement: settlement,
	}
}

func cohortParam(r *http.Request) (model.CohortDate, error) {
	cohort, err := model.ParseCohortDate(r.PathValue("date"))
	if err != nil {
		return "", badRequest(err.Error())
	}
	return cohort, nil
}

// Statistics reports the prize pool and payout estimates of a deadline cohort.
func (h *CohortHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	cohort, err := cohortParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	stats, err := h.settlement.GetCohortStatistics(r.Context(), cohort)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *CohortHandler) Payouts(w http.ResponseWriter, r *http.Request) {
	cohort, err := cohortParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payouts, err := h.settlement.ListCohortPayouts(r.Context(), cohort)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"cohort": cohort, "payouts": payouts})
}
