package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jbweber/homelab/hutch/internal/repository"
	"github.com/jbweber/homelab/hutch/internal/scheduler"
	log "github.com/sirupsen/logrus"
)

// ResultResponse carries plain-language status messages
type ResultResponse struct {
	Result []string `json:"result"`
}

// statusFor maps an error to its HTTP status class.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrInvalidEntity):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, repository.ErrInUse),
		errors.Is(err, scheduler.ErrUnavailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusNoContent {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("error", err).Error("failed to encode response")
	}
}

func writeResult(w http.ResponseWriter, status int, messages ...string) {
	writeJSON(w, status, ResultResponse{Result: messages})
}

// writeError reports err with its mapped status. Validation errors carry their
// own message; other classes use message, and internal errors are logged.
func writeError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := statusFor(err)
	switch status {
	case http.StatusBadRequest:
		var verr *ValidationError
		if errors.As(err, &verr) {
			message = verr.Error()
		} else {
			message = "Data validation failed: " + err.Error()
		}
	case http.StatusInternalServerError:
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"error":  err,
		}).Error("request failed")
		message = "Error: " + err.Error()
	}
	writeResult(w, status, message)
}
