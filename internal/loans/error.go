package loans

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeAlreadyLent      Code = "ALREADY_LENT"
	CodeAlreadyReturned  Code = "ALREADY_RETURNED"
	CodeLockTimeout      Code = "LOCK_TIMEOUT"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeInternal         Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrValidation(msg string) *APIError      { return &APIError{Code: CodeValidationFailed, Message: msg} }
func ErrNotFound(msg string) *APIError        { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrAlreadyLent(msg string) *APIError     { return &APIError{Code: CodeAlreadyLent, Message: msg} }
func ErrAlreadyReturned(msg string) *APIError { return &APIError{Code: CodeAlreadyReturned, Message: msg} }
func ErrLockTimeout(msg string) *APIError     { return &APIError{Code: CodeLockTimeout, Message: msg} }
func ErrUnauthorized(msg string) *APIError    { return &APIError{Code: CodeUnauthorized, Message: msg} }
func ErrInternal(msg string) *APIError        { return &APIError{Code: CodeInternal, Message: msg} }

// ToHTTPStatus maps the error taxonomy onto HTTP statuses. LOCK_TIMEOUT maps
// to 503 so clients can tell "retry later" apart from the definitive 409
// business rejections.
func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeValidationFailed:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeAlreadyLent, CodeAlreadyReturned:
			return http.StatusConflict
		case CodeLockTimeout:
			return http.StatusServiceUnavailable
		case CodeUnauthorized:
			return http.StatusForbidden
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
