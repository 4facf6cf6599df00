package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/ReilBleem13/ChatRelay/internal/logger"
)

type ErrorResponse struct {
	Error ErrorInfo `json:"error"`
}

type ErrorInfo struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Fields  []domain.FieldViolation `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, err *domain.AppError) {
	response := ErrorResponse{
		Error: ErrorInfo{
			Code:    err.Code,
			Message: err.Message,
			Fields:  err.Violations,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	json.NewEncoder(w).Encode(response)
}

// handleError renders domain errors as they are. Anything else becomes
// INTERNAL_SERVER_ERROR so driver and library messages never reach clients.
// Server-side domain errors (persistence failures) are logged by code, their
// cause was logged where it was mapped.
func handleError(w http.ResponseWriter, log *logger.Logger, err error) {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		log.Error("Unhandled error", "error", err)
		writeError(w, domain.ErrInternalServerError)
		return
	}

	if appErr.Status >= http.StatusInternalServerError {
		log.Warn("Request failed", "code", appErr.Code, "status", appErr.Status)
	}
	writeError(w, appErr)
}
