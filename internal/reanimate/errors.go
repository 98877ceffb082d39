package reanimate

import (
	"errors"
	"fmt"
)

// ReplayError represents a failure at the reanimation boundary.
//
// The three codes are distinct by contract and never merged:
//   - Function not found: the resolver could not locate a live callable
//   - Signature mismatch: the reconstructed arguments do not fit the
//     callable's current parameters
//   - Execution error: the callable itself failed
type ReplayError struct {
	// Code identifies the failure category.
	Code ReplayErrorCode

	// Message is a human-readable description.
	Message string

	// CallID identifies the call being replayed.
	CallID string

	// Function is the function identity involved.
	Function string

	// Err is the underlying error, if any.
	Err error
}

// ReplayErrorCode categorizes replay failures.
type ReplayErrorCode string

const (
	// ErrCodeFunctionNotFound indicates the resolver failed to locate a
	// currently-live callable for the recorded function identity.
	ErrCodeFunctionNotFound ReplayErrorCode = "FUNCTION_NOT_FOUND"

	// ErrCodeSignatureMismatch indicates the reconstructed argument shape
	// does not fit the callable's current parameters.
	ErrCodeSignatureMismatch ReplayErrorCode = "SIGNATURE_MISMATCH"

	// ErrCodeExecutionError indicates the re-invoked callable failed.
	ErrCodeExecutionError ReplayErrorCode = "EXECUTION_ERROR"
)

// Error implements the error interface.
func (e *ReplayError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("%s: %s (call=%s, function=%s)", e.Code, e.Message, e.CallID, e.Function)
	}
	return fmt.Sprintf("%s: %s (call=%s)", e.Code, e.Message, e.CallID)
}

// Unwrap exposes the underlying error for errors.Is/As chains.
func (e *ReplayError) Unwrap() error {
	return e.Err
}

// IsFunctionNotFound reports whether err is a FUNCTION_NOT_FOUND replay
// error. Uses errors.As to handle wrapped errors.
func IsFunctionNotFound(err error) bool {
	var re *ReplayError
	return errors.As(err, &re) && re.Code == ErrCodeFunctionNotFound
}

// IsSignatureMismatch reports whether err is a SIGNATURE_MISMATCH replay error.
func IsSignatureMismatch(err error) bool {
	var re *ReplayError
	return errors.As(err, &re) && re.Code == ErrCodeSignatureMismatch
}

// IsExecutionError reports whether err is an EXECUTION_ERROR replay error.
func IsExecutionError(err error) bool {
	var re *ReplayError
	return errors.As(err, &re) && re.Code == ErrCodeExecutionError
}
