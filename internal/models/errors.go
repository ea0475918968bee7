package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Stable error codes returned to clients.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeAlreadyResolved = "ALREADY_RESOLVED"
	CodeNotFriends      = "NOT_FRIENDS"
	CodeAlreadyLinked   = "ALREADY_LINKED"
	CodeCodeExpired     = "CODE_EXPIRED"
	CodeCodeNotFound    = "CODE_NOT_FOUND"
	CodeInternal        = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError by code so callers can use errors.Is with a
// bare sentinel like &AppError{Code: CodeNotFriends}.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ErrorCode returns the AppError code carried by err, or "" if there is none.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
	}
}

// NewAlreadyResolvedError is returned when a moderation decision loses the race
// or targets an item that was already approved or rejected.
func NewAlreadyResolvedError(entity string, id uint) *AppError {
	return &AppError{
		Code:    CodeAlreadyResolved,
		Message: fmt.Sprintf("%s %d has already been reviewed", entity, id),
	}
}

func NewNotFriendsError() *AppError {
	return &AppError{
		Code:    CodeNotFriends,
		Message: "You can only message friends",
	}
}

func NewAlreadyLinkedError(parentID, childID uint) *AppError {
	return &AppError{
		Code:    CodeAlreadyLinked,
		Message: fmt.Sprintf("Parent %d is already linked to child %d", parentID, childID),
	}
}

func NewCodeExpiredError() *AppError {
	return &AppError{
		Code:    CodeCodeExpired,
		Message: "This code has expired or was already used",
	}
}

func NewCodeNotFoundError() *AppError {
	return &AppError{
		Code:    CodeCodeNotFound,
		Message: "Code not found",
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		// Internal details stay in the logs outside development.
		if appErr.Err != nil && appErr.Code != CodeInternal {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
