package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// envelope is the uniform response body: data on success, a message on
// expected failure. UI code renders the message inline; it never needs to
// catch anything.
type envelope struct {
	Data  any     `json:"data"`
	Error *string `json:"error"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case shared.IsValidation(err):
		status = http.StatusUnprocessableEntity
	case shared.IsConflict(err):
		status = http.StatusConflict
	case shared.IsRemote(err):
		status = http.StatusBadGateway
	case errors.Is(err, shared.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, shared.ErrNotFound):
		status = http.StatusNotFound
	}
	msg := err.Error()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: &msg})
}

func decodeBody(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return shared.NewValidationError("", "malformed request body")
	}
	return nil
}
