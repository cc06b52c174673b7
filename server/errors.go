// errors.go - Structured error responses for the HTTP API
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xhad/insight/internal/errs"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	Status  int    `json:"-" msgpack:"-"`
	Code    string `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
	Details string `json:"details,omitempty" msgpack:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var kindStatus = map[errs.Kind]int{
	errs.UnsupportedFileType:  http.StatusUnsupportedMediaType,
	errs.UnreadableFile:       http.StatusUnprocessableEntity,
	errs.ColumnNotFound:       http.StatusUnprocessableEntity,
	errs.UnsupportedOperation: http.StatusUnprocessableEntity,
	errs.EmptyDocument:        http.StatusUnprocessableEntity,
	errs.ContextTooLarge:      http.StatusRequestEntityTooLarge,
	errs.LLMTimeout:           http.StatusGatewayTimeout,
	errs.LLMRequestFailed:     http.StatusBadGateway,
	errs.InvalidQuery:         http.StatusBadRequest,
	errs.NotFound:             http.StatusNotFound,
}

// StatusFor returns the HTTP status used for an error kind.
func StatusFor(kind errs.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NewBadRequestError creates a 400 error for a malformed request.
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    string(errs.InvalidQuery),
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewNotFoundError creates a 404 error for a missing upload.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    string(errs.NotFound),
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// FromError converts any error into an APIError. Classified errors keep their
// kind as the code; anything else is an internal error.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return &APIError{
			Status:  httpErr.Code,
			Code:    http.StatusText(httpErr.Code),
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	}

	kind := errs.KindOf(err)
	if kind == errs.Unknown {
		return &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "InternalError",
			Message: "an unexpected error occurred",
			Details: err.Error(),
		}
	}

	out := &APIError{
		Status:  StatusFor(kind),
		Code:    string(kind),
		Message: errs.MessageOf(err),
	}
	var classified *errs.Error
	if errors.As(err, &classified) && classified.Err != nil {
		out.Details = classified.Err.Error()
	}
	return out
}

// errorHandler renders errors returned by handlers and middleware.
func errorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		apiErr := FromError(err)
		if apiErr.Status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("path", c.Path()),
				zap.String("code", apiErr.Code),
				zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(apiErr.Status)
		} else {
			err = respond(c, apiErr.Status, apiErr)
		}
		if err != nil {
			log.Warn("failed to write error response", zap.Error(err))
		}
	}
}
