package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_restaurant/internal/service"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.S().Errorw("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func respondValidation(w http.ResponseWriter, fields map[string]string) {
	respondJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:  "validation failed",
		Code:   "validation_error",
		Fields: fields,
	})
}

// handleServiceError converts service errors to HTTP responses. Unknown
// errors are logged and reported without detail.
func handleServiceError(w http.ResponseWriter, r *http.Request, log *zap.SugaredLogger, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		respondValidation(w, verr.Fields)
		return
	}

	var httpStatus int
	var code string
	message := err.Error()

	switch {
	case errors.Is(err, service.ErrNotFound):
		httpStatus = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, service.ErrEmptyCart):
		httpStatus = http.StatusBadRequest
		code = "empty_cart"
		message = service.ErrEmptyCart.Error()
	case errors.Is(err, service.ErrNoActiveSession):
		httpStatus = http.StatusBadRequest
		code = "no_active_session"
		message = service.ErrNoActiveSession.Error()
	case errors.Is(err, service.ErrSessionExpired):
		httpStatus = http.StatusBadRequest
		code = "session_expired"
		message = service.ErrSessionExpired.Error()
	case errors.Is(err, service.ErrInvalidTransition):
		httpStatus = http.StatusConflict
		code = "invalid_transition"
	case errors.Is(err, service.ErrOrderCreationFailed):
		httpStatus = http.StatusInternalServerError
		code = "order_creation_failed"
		message = "order could not be created, please try again"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
		message = "request timed out"
	default:
		log.Errorw("unhandled error", "method", r.Method, "path", r.URL.Path, "error", err)
		httpStatus = http.StatusInternalServerError
		code = "internal_error"
		message = "internal server error"
	}

	respondError(w, httpStatus, code, message)
}
