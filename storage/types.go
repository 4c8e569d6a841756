package storage

import (
	"errors"
	"fmt"
)

// Error types
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
	ErrBackend       ErrorType = "backend"
)

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsType reports whether err wraps a storage *Error of type t.
func IsType(err error, t ErrorType) bool {
	var serr *Error
	return errors.As(err, &serr) && serr.Type == t
}

func IsNotFound(err error) bool {
	return IsType(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return IsType(err, ErrAlreadyExists)
}

// NotFound builds the error backends return for a missing record.
func NotFound(kind, id string) error {
	return &Error{Type: ErrNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

// AlreadyExists builds the error backends return for a duplicate id.
func AlreadyExists(kind, id string) error {
	return &Error{Type: ErrAlreadyExists, Message: fmt.Sprintf("%s %s already exists", kind, id)}
}

// InvalidInput builds the error backends return for records they refuse.
func InvalidInput(message string) error {
	return &Error{Type: ErrInvalidInput, Message: message}
}
