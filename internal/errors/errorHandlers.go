package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"weekend_planner_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeBadRequest          ErrorType = "BAD_REQUEST"
	ErrorTypeUnauthorized        ErrorType = "UNAUTHORIZED"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeAgentFailed         ErrorType = "AGENT_FAILED"
	ErrorTypeTimeout             ErrorType = "TIMEOUT"
	ErrorTypeServiceUnavailable  ErrorType = "SERVICE_UNAVAILABLE"
	ErrorTypeClientClosed        ErrorType = "CLIENT_CLOSED"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
)

// StatusClientClosedRequest is the non-standard status used when the caller
// went away before the run finished.
const StatusClientClosedRequest = 499

// CustomError represents a custom error with associated HTTP status code and type
type CustomError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Retryable  bool      `json:"retryable"`
	StatusCode int       `json:"-"`
	Internal   error     `json:"-"`
}

// Error implements the error interface
func (e *CustomError) Error() string {
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Internal
}

func newError(errType ErrorType, message string, statusCode int, internal error) *CustomError {
	return &CustomError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// New400Error creates a new bad request error
func New400Error(message string) *CustomError {
	return newError(ErrorTypeBadRequest, message, http.StatusBadRequest, nil)
}

// New401Error creates a new unauthorized error
func New401Error() *CustomError {
	return newError(ErrorTypeUnauthorized, "Unauthorized access", http.StatusUnauthorized, nil)
}

// New404Error creates a new not found error
func New404Error(message string) *CustomError {
	return newError(ErrorTypeNotFound, message, http.StatusNotFound, nil)
}

// New500Error creates a new internal server error
func New500Error(internal error) *CustomError {
	return newError(ErrorTypeInternalServerError, "An unexpected error occurred", http.StatusInternalServerError, internal)
}

// NewValidationError wraps a request binding or validation failure.
func NewValidationError(err error) *CustomError {
	return newError(ErrorTypeBadRequest, err.Error(), http.StatusBadRequest, err)
}

// FromError maps core failures onto their HTTP representation.
func FromError(err error) *CustomError {
	var customErr *CustomError
	if stderrors.As(err, &customErr) {
		return customErr
	}

	var ce *CustomError
	switch {
	case stderrors.Is(err, services.ErrAgentTimeout):
		ce = newError(ErrorTypeTimeout, "Finding activities took too long, please try again", http.StatusGatewayTimeout, err)
	case stderrors.Is(err, services.ErrMalformedAgentOutput),
		stderrors.Is(err, services.ErrAgentLoopExceeded),
		stderrors.Is(err, services.ErrModelProvider):
		ce = newError(ErrorTypeAgentFailed, "We could not put together recommendations, please try again", http.StatusBadGateway, err)
	case stderrors.Is(err, services.ErrStorageUnavailable):
		ce = newError(ErrorTypeServiceUnavailable, "Storage is temporarily unavailable, please try again", http.StatusServiceUnavailable, err)
	case stderrors.Is(err, context.Canceled):
		ce = newError(ErrorTypeClientClosed, "Request cancelled", StatusClientClosedRequest, err)
	default:
		return New500Error(err)
	}
	ce.Retryable = true
	return ce
}

// HandleError handles the custom error and sends an appropriate JSON response
func HandleError(c *gin.Context, err error) {
	customErr := FromError(err)
	logError(c, customErr)

	c.AbortWithStatusJSON(customErr.StatusCode, gin.H{
		"error": customErr,
	})
}

func logError(c *gin.Context, customErr *CustomError) {
	logger := zerolog.Ctx(c.Request.Context())
	switch customErr.Type {
	case ErrorTypeInternalServerError:
		logger.Error().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg("Internal Server Error")
	case ErrorTypeBadRequest, ErrorTypeUnauthorized, ErrorTypeNotFound, ErrorTypeClientClosed:
		logger.Debug().Str("type", string(customErr.Type)).Msg(customErr.Message)
	default:
		logger.Warn().
			Err(customErr.Internal).
			Str("type", string(customErr.Type)).
			Msg("Request failed")
	}
}
