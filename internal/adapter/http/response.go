package http

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/simaogato/bountyflow-backend/internal/domain"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: chimw.GetReqID(r.Context()),
	})
}

// writeDomainError reports err with its mapped status. Partial escrow failures carry their progress:
// 207 when some escrows went through, otherwise the status of the ledger cause.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var partial *domain.PartialEscrowError
	if errors.As(err, &partial) {
		if len(partial.Succeeded) > 0 {
			writeJSON(w, http.StatusMultiStatus, partialFromError(partial, "partial_escrow_failure"))
			return
		}
		status, code := http.StatusInternalServerError, "internal_error"
		if partial.Cause != nil {
			status, code = mapDomainError(partial.Cause)
		}
		writeJSON(w, status, partialFromError(partial, code))
		return
	}

	status, code := mapDomainError(err)
	writeError(w, r, status, code, err.Error())
}

func mapDomainError(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrEvidenceRejected):
		return http.StatusBadRequest, "evidence_rejected"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusConflict, "insufficient_funds"
	case errors.Is(err, domain.ErrMissingCredential):
		return http.StatusConflict, "missing_credential"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrPoolMismatch):
		return http.StatusConflict, "pool_mismatch"
	case errors.Is(err, domain.ErrLedgerTransient):
		return http.StatusServiceUnavailable, "ledger_unavailable"
	case errors.Is(err, domain.ErrLedgerRejected):
		return http.StatusBadGateway, "ledger_rejected"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
