package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the domain layer. Services wrap these so the
// boundary can map outcomes to status codes without inspecting text.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("resource not found")
)

// RespondError maps a domain error to a failure envelope.
// Unrecognised errors become a 500 with no internal detail leaked.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		Fail(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrForbidden):
		Fail(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrValidation):
		Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict):
		Fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		Fail(w, http.StatusNotFound, err.Error())
	default:
		Fail(w, http.StatusInternalServerError, "internal error")
	}
}
