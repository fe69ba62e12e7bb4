package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	apperrors "github.com/MrRuperto3/TAO-App/internal/errors"
	"github.com/MrRuperto3/TAO-App/internal/logging"
	"github.com/MrRuperto3/TAO-App/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	writeError(w, statusCode, &types.ServiceError{
		Code:    code,
		Message: message,
		Details: details,
	})
}

func writeError(w http.ResponseWriter, statusCode int, body *types.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: *body})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Common error codes
const (
	ErrCodeInvalidParameter   = "INVALID_PARAMETER"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// respondServiceError maps a service error to its status and body.
// Server-side failures are logged and their details hidden from the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)
	body := catErr.ToServiceError()

	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).WithField("code", catErr.Code).Error("request failed")
		if catErr.StatusCode != http.StatusServiceUnavailable {
			body.Message = "An internal error occurred"
		}
		body.Details = nil
	}

	if catErr.StatusCode == http.StatusTooManyRequests && catErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(catErr.RetryAfter.Seconds()))))
	}
	writeError(w, catErr.StatusCode, body)
}
