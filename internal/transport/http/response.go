package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"recipe-extraction-service/internal/repository/postgresql"
	"recipe-extraction-service/internal/service"
)

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Message: msg})
}

// writeDomainErr maps the core's sentinel errors onto HTTP statuses.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrTooManySources),
		errors.Is(err, service.ErrInvalidSource),
		errors.Is(err, service.ErrInvalidEntry):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, postgresql.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not found")
	case errors.Is(err, postgresql.ErrInvalidTransition):
		writeErr(w, http.StatusConflict, err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}
