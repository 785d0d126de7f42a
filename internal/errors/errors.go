// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidOrderValue       = errors.New("invalid order value")
	ErrUnknownInstrument       = errors.New("unknown instrument")
	ErrUnsortedSeries          = errors.New("time series is not sorted")
	ErrInsufficientData        = errors.New("insufficient data")
	ErrDegenerateDistribution  = errors.New("degenerate return distribution")
	ErrReferenceNotFound       = errors.New("reference result not found")
	ErrReferenceConflict       = errors.New("reference result already exists")
	ErrInvalidConfig           = errors.New("invalid configuration")
	ErrEmptyParameterGrid      = errors.New("empty parameter grid")
	ErrUnknownStrategy         = errors.New("unknown strategy")
	ErrUnknownObjective        = errors.New("unknown optimization objective")
	ErrSeriesSignalMismatch    = errors.New("signal sequence does not align with bar series")
	ErrInsufficientWindowSpan  = errors.New("history shorter than one train/test window")
	ErrDatabaseError           = errors.New("database error")
)

// OrderError represents a synchronous order rejection.
type OrderError struct {
	OrderID    string
	Instrument string
	Reason     string
	Err        error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order rejected [%s] %s: %s: %v", e.OrderID, e.Instrument, e.Reason, e.Err)
	}
	return fmt.Sprintf("order rejected [%s] %s: %s", e.OrderID, e.Instrument, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, instrument, reason string, err error) *OrderError {
	return &OrderError{
		OrderID:    orderID,
		Instrument: instrument,
		Reason:     reason,
		Err:        err,
	}
}

// DataError represents a problem with an input series.
type DataError struct {
	Instrument string
	Index      int
	Message    string
	Err        error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error %s at %d: %s: %v", e.Instrument, e.Index, e.Message, e.Err)
	}
	return fmt.Sprintf("data error %s at %d: %s", e.Instrument, e.Index, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(instrument string, index int, message string, err error) *DataError {
	return &DataError{
		Instrument: instrument,
		Index:      index,
		Message:    message,
		Err:        err,
	}
}

// ReferenceError represents a reference-store operation failure.
type ReferenceError struct {
	Name string
	Err  error
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("reference %q: %v", e.Name, e.Err)
}

func (e *ReferenceError) Unwrap() error {
	return e.Err
}

// NewReferenceError creates a new ReferenceError.
func NewReferenceError(name string, err error) *ReferenceError {
	return &ReferenceError{Name: name, Err: err}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
