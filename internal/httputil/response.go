package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "redditscheduler/internal/errors"
)

// WriteJSON writes v as a JSON body with the given status
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a standard error body for a plain status and message
func WriteError(w http.ResponseWriter, status int, message string) {
	var body apperrors.HTTPErrorResponse
	body.Error.Code = codeForStatus(status)
	body.Error.Message = message
	WriteJSON(w, status, body)
}

// WriteAppError maps err to its HTTP status and writes the standard error body
func WriteAppError(w http.ResponseWriter, err error, requestID string) int {
	status := apperrors.HTTPStatusCode(err)
	WriteJSON(w, status, apperrors.ToHTTPResponse(err, requestID))
	return status
}

func codeForStatus(status int) apperrors.ErrorCode {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return apperrors.ErrCodeInvalidInput
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.ErrCodeAuthentication
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperrors.ErrCodeNotFound
	case http.StatusTooManyRequests:
		return apperrors.ErrCodeRateLimit
	default:
		return apperrors.ErrCodeInternalError
	}
}
