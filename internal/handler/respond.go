package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/templui/goalstake/internal/ctxkeys"
	"github.com/templui/goalstake/internal/service"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Kind    service.Kind `json:"kind"`
	Detail  string       `json:"detail"`
	Current string       `json:"currentStatus,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps an engine error onto an HTTP status and the JSON error
// envelope. Internal details are logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)
	body := errorBody{Kind: kind, Detail: "internal error"}

	var e *service.Error
	if errors.As(err, &e) && kind != service.KindInternal {
		body.Detail = e.Detail
		body.Current = string(e.Current)
	}

	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", kind,
			"error", err,
			"request_id", ctxkeys.RequestID(r.Context()),
		)
	}
	if kind.Retryable() {
		w.Header().Set("Retry-After", "5")
	}

	writeJSON(w, status, map[string]errorBody{"error": body})
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindInvalidInput:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidState, service.KindCohortNotFinal, service.KindSettlementInProgress:
		return http.StatusConflict
	case service.KindNotConfirmed:
		return http.StatusTooEarly
	case service.KindDemoDisabled:
		return http.StatusForbidden
	case service.KindLedgerUnavailable, service.KindInsufficientFunds:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(detail string) error {
	return &service.Error{Kind: service.KindInvalidInput, Detail: detail}
}

// decodeJSON reads a size-limited JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		return badRequest("request body is required")
	}
	if err != nil {
		return badRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}
