package engine

import (
	"errors"
	"fmt"

	"formflow-backend/internal/store"
)

const (
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeInvalidPayload     = "INVALID_PAYLOAD"
	CodeInternal           = "INTERNAL_ERROR"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
	cause   error
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// HTTPStatus is the response status the error renders with.
func (e *AppError) HTTPStatus() int {
	return e.Status
}

func (e *AppError) Unwrap() error {
	return e.cause
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(what string, id any) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s with id %v not found", what, id),
	}
}

func UnknownTableError(name string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Status:  404,
		Message: fmt.Sprintf("Unknown table: %s", name),
	}
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: CodeConflict, Status: 409, Message: msg}
}

// UnauthorizedError is for requests without valid credentials.
func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Status: 401, Message: msg}
}

// ForbiddenError is for authenticated callers lacking the capability or
// admin flag the operation needs.
func ForbiddenError(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Status: 403, Message: msg}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    CodeValidationFailed,
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func InvalidPayloadError(msg string) *AppError {
	return &AppError{Code: CodeInvalidPayload, Status: 400, Message: msg}
}

func StorageUnavailableError(err error) *AppError {
	return &AppError{
		Code:    CodeStorageUnavailable,
		Status:  503,
		Message: "Storage unavailable",
		cause:   err,
	}
}

// TranslateError converts an error from the store layer into an AppError.
// Errors that already are AppErrors pass through.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, store.ErrUniqueViolation):
		e := ConflictError("A record with this value already exists")
		e.cause = err
		return e
	case errors.Is(err, store.ErrForeignKeyViolation):
		e := ValidationError([]ErrorDetail{{Rule: "reference", Message: "referenced user or role does not exist"}})
		e.cause = err
		return e
	default:
		return StorageUnavailableError(err)
	}
}
