// Package apperror defines the error kinds shared by every layer of the bot.
//
// ERROR KINDS:
// Each failure the job coordinator can observe belongs to exactly one kind.
// The kind decides what the coordinator does with it (all of them end the
// current cycle, none of them stop the process), and lets the admin API pick
// an HTTP status without knowing which layer failed.
//
//	ErrDataSource       → the flight search call failed or returned garbage
//	ErrInsufficientData → widening search hit its floor without enough flights
//	ErrAuthorization    → OAuth callback/exchange failed
//	ErrPublish          → posting the announcement failed
//	ErrPersistence      → reading or writing leaders/sessions failed
//
// An *AppError carries both the kind and the underlying cause, so
// errors.Is(err, ErrPublish) and errors.Is(err, context.DeadlineExceeded)
// can both be true for the same value.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation error")
	ErrConflict         = errors.New("conflict")
	ErrConfig           = errors.New("configuration error")
	ErrDataSource       = errors.New("data source error")
	ErrInsufficientData = errors.New("insufficient data")
	ErrAuthorization    = errors.New("authorization error")
	ErrPublish          = errors.New("publish error")
	ErrPersistence      = errors.New("persistence error")
)

type AppError struct {
	Err     error  // kind sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying transport/decode/sql error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Config reports a missing or malformed configuration value.
func Config(field, message string) *AppError {
	return &AppError{
		Err:     ErrConfig,
		Message: message,
		Field:   field,
	}
}

// DataSource wraps a transport or decode failure from the flight search API.
func DataSource(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrDataSource,
		Message: "data source: " + op,
		Cause:   cause,
	}
}

// InsufficientData reports that the widening search reached its floor
// (or attempt cap) with fewer results than required.
func InsufficientData(want, got, floor int) *AppError {
	return &AppError{
		Err:     ErrInsufficientData,
		Message: fmt.Sprintf("found %d of %d flights before reaching threshold floor %d", got, want, floor),
	}
}

func Authorization(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrAuthorization,
		Message: "authorization: " + message,
		Cause:   cause,
	}
}

func Publish(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrPublish,
		Message: "publish: " + message,
		Cause:   cause,
	}
}

func Persistence(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrPersistence,
		Message: "persistence: " + op,
		Cause:   cause,
	}
}

// KindOf returns a short machine-readable name for err's kind, used as a
// log attribute. Unknown errors report "internal".
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDataSource):
		return "data_source"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrPublish):
		return "publish"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrConfig):
		return "config"
	default:
		return "internal"
	}
}
