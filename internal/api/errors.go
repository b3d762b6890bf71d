package api

import (
	"encoding/json"
	"net/http"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/log"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		nf *errors.NotFoundError
		se *errors.SchemaError
		ve *errors.ValidationError
	)
	switch {
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &se), errors.As(err, &ve):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v before committing the status, so an unencodable body
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		log.GetLoggerWithName("api").Error("Failed to encode response", err, log.HTTPStatusKey, status)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorBody{Error: "failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", err, log.HTTPPathKey, r.URL.Path)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
