package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagnosis/roomlife/pkg/logger"
	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteErrorWithDetails(w, statusCode, message, code, "")
}

// WriteErrorWithDetails writes a structured JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResp := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}

// Common error codes
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidState       = "INVALID_STATE"
	CodeRoomOccupied       = "ROOM_OCCUPIED"
	CodeDepositDenied      = "DEPOSIT_DENIED"
	CodeTooEarly           = "TOO_EARLY"
	CodeTooLate            = "TOO_LATE"
	CodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// errorKinds is checked in order; the first match wins. TooLate precedes InvalidState so a
// booking lost to the no-show timer reports TOO_LATE.
var errorKinds = []struct {
	kind   error
	status int
	code   string
}{
	{domain.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{domain.ErrForbidden, http.StatusForbidden, CodeForbidden},
	{domain.ErrTooEarly, http.StatusConflict, CodeTooEarly},
	{domain.ErrTooLate, http.StatusConflict, CodeTooLate},
	{domain.ErrRoomOccupied, http.StatusConflict, CodeRoomOccupied},
	{domain.ErrDepositDenied, http.StatusPaymentRequired, CodeDepositDenied},
	{domain.ErrGatewayUnavailable, http.StatusBadGateway, CodeGatewayUnavailable},
	{domain.ErrInvalidState, http.StatusUnprocessableEntity, CodeInvalidState},
}

// FromError maps an engine error onto its HTTP status and code.
func FromError(w http.ResponseWriter, err error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			WriteError(w, k.status, err.Error(), k.code)
			return
		}
	}
	InternalError(w, "Internal server error")
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}
