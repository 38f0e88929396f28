package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medtrans/qagate/internal/domain/candidate"
	"github.com/medtrans/qagate/internal/domain/expert"
	"github.com/medtrans/qagate/internal/domain/memory"
	"github.com/medtrans/qagate/internal/domain/review"
)

const maxRequestBodySize = 1 << 20 // 1 MB

type errorResponse struct {
	Error string `json:"error"`
}

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// validationErrs are the identity/shape errors surfaced to callers as 400s.
var validationErrs = []error{
	candidate.ErrSourceRequired,
	candidate.ErrTranslationMissing,
	candidate.ErrLangPairRequired,
	candidate.ErrSameLanguage,
	candidate.ErrDomainRequired,
	expert.ErrNameRequired,
	expert.ErrInvalidLevel,
	expert.ErrLanguagesRequired,
	expert.ErrDomainsRequired,
	memory.ErrSourceRequired,
	memory.ErrTargetRequired,
	memory.ErrLangRequired,
	review.ErrNoPolicy,
	review.ErrInvalidDecision,
	review.ErrDeadlinePast,
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	for _, v := range validationErrs {
		if errors.Is(err, v) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	switch {
	case errors.Is(err, review.ErrNotFound), errors.Is(err, review.ErrHardCancelled):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, review.ErrNotAssigned):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, review.ErrDuplicateDecision),
		errors.Is(err, review.ErrAlreadyTerminal),
		errors.Is(err, review.ErrAlreadyAssigned),
		errors.Is(err, review.ErrAlreadyRequeued):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, expert.ErrNoEligibleExpert):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
