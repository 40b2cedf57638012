package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorUnauthorized     = "REDIRECTS_UNAUTHORIZED"
	ErrorAlreadyExists    = "REDIRECTS_ALREADY_EXISTS"
	ErrorRequestFailed    = "REDIRECTS_REQUEST_FAILED"
	ErrorTransportFailure = "REDIRECTS_TRANSPORT_FAILURE"
	ErrorBadInput         = "REDIRECTS_BAD_INPUT"
	ErrorMutationInFlight = "REDIRECTS_MUTATION_IN_FLIGHT"
	ErrorNoWindow         = "REDIRECTS_NO_WINDOW"
	ErrorInternal         = "REDIRECTS_INTERNAL_ERROR"
)

// NewAuthorizationError reports a 401: the credential is no longer valid.
func NewAuthorizationError(operation string) *goerrors.Error {
	err := goerrors.New("Authorization error", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorUnauthorized)
	return withMetadata(err, map[string]any{"operation": operation})
}

// NewNotAuthenticatedError is returned by operations that need a session
// when none is established.
func NewNotAuthenticatedError(operation string) *goerrors.Error {
	err := goerrors.New("Authorization error: no active session", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorUnauthorized)
	return withMetadata(err, map[string]any{"operation": operation, "session": "absent"})
}

// NewSessionClearedError is returned when the session was cleared while an
// identity request was in flight; its late result is discarded.
func NewSessionClearedError(operation string) *goerrors.Error {
	err := goerrors.New("Authorization error: session cleared during request", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorUnauthorized)
	return withMetadata(err, map[string]any{"operation": operation, "session": "cleared"})
}

// NewAlreadyExistsError reports a 409 on create: the key is taken.
func NewAlreadyExistsError(operation string) *goerrors.Error {
	err := goerrors.New("Already exists", goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorAlreadyExists)
	return withMetadata(err, map[string]any{"operation": operation})
}

func NewRequestFailedError(operation string, status int) *goerrors.Error {
	err := goerrors.New(fmt.Sprintf("api call failed with status %d", status), goerrors.CategoryExternal).
		WithCode(status).
		WithTextCode(ErrorRequestFailed)
	return withMetadata(err, map[string]any{"operation": operation, "status_code": status})
}

func NewBadInputError(field string, message string) *goerrors.Error {
	return goerrors.NewValidation("redirects: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
}

func NewMutationInFlightError(recordID string) *goerrors.Error {
	err := goerrors.New("redirects: a mutation is already pending for this record", goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorMutationInFlight)
	return withMetadata(err, map[string]any{"record_id": recordID})
}

func NewNoWindowError(operation string) *goerrors.Error {
	err := goerrors.New("redirects: no page window is loaded", goerrors.CategoryOperation).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorNoWindow)
	return withMetadata(err, map[string]any{"operation": operation})
}

func NewInternalError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorInternal)
}

func withMetadata(err *goerrors.Error, metadata map[string]any) *goerrors.Error {
	if err != nil && len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// IsAuthorization reports whether err is, or wraps, an authorization failure.
func IsAuthorization(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.Category == goerrors.CategoryAuth || rich.TextCode == ErrorUnauthorized
}

// IsAlreadyExists reports whether err is a unique-key collision on create.
func IsAlreadyExists(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == ErrorAlreadyExists
}

func IsMutationInFlight(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == ErrorMutationInFlight
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return 0
	}
	return rich.Code
}

// MapError normalizes any error into the redirects error envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureErrorEnvelope(rich)
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorBadInput))
	}
	return ensureErrorEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryAuth:
		return ErrorUnauthorized
	case goerrors.CategoryExternal, goerrors.CategoryConflict:
		return ErrorRequestFailed
	case goerrors.CategoryOperation:
		return ErrorNoWindow
	default:
		return ErrorInternal
	}
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
