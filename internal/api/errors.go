package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-dm/internal/apperr"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(statusCode int, message string) *ApiError {
	if message == "" {
		message = lower(http.StatusText(statusCode))
	}
	return &ApiError{StatusCode: statusCode, Message: message}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest, "")
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound, "")
}

func NewInternalServerError(err error) *ApiError {
	e := newApiError(http.StatusInternalServerError, "")
	e.Err = err
	return e
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized, "")
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden, "")
}

func NewTooManyRequestsError() *ApiError {
	return newApiError(http.StatusTooManyRequests, "rate limit exceeded")
}

func NewServiceUnavailableError(message string) *ApiError {
	return newApiError(http.StatusServiceUnavailable, message)
}

func NewUnsupportedMediaTypeError(err error) *ApiError {
	e := newApiError(http.StatusUnsupportedMediaType, err.Error())
	e.Err = err
	return e
}

func NewRequestEntityTooLargeError(err error) *ApiError {
	e := newApiError(http.StatusRequestEntityTooLarge, err.Error())
	e.Err = err
	return e
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindAuth:          http.StatusUnauthorized,
	apperr.KindAuthorization: http.StatusForbidden,
	apperr.KindValidation:    http.StatusUnprocessableEntity,
	apperr.KindNotFound:      http.StatusNotFound,
	apperr.KindConflict:      http.StatusConflict,
	apperr.KindUpstream:      http.StatusBadGateway,
}

// FromError maps err to the response sent to the client. Errors outside
// the apperr taxonomy become 500s.
func FromError(err error) *ApiError {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	status, ok := kindStatus[apperr.KindOf(err)]
	if !ok {
		return NewInternalServerError(err)
	}

	e := newApiError(status, apperr.Reason(err))
	e.Err = err
	return e
}
