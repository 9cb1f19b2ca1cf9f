package api

import (
	// Go Internal Packages
	"encoding/json"
	"net/http"

	// Local Packages
	errors "rwa-stream/errors"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError maps the error kind onto an HTTP status.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := errors.KindOf(err)
	switch kind {
	case errors.Invalid:
		status = http.StatusBadRequest
	case errors.NotFound:
		status = http.StatusNotFound
	case errors.Unavailable:
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, ErrorResponse{Code: kind.String(), Message: err.Error()})
}
