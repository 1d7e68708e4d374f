package services

import (
	"errors"
	"fmt"

	"escrowdesk/internal/models"
)

var (
	ErrTradeCodeExhausted = errors.New("could not allocate a unique trade code")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// ValidationError reports malformed or out-of-range input. Stored state is untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// InvalidTransitionError is returned when action is not allowed from the deal's current status.
type InvalidTransitionError struct {
	TradeCode string
	Current   models.DealStatus
	Action    Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("deal %s: cannot %s while %s", e.TradeCode, e.Action, e.Current)
}

type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// classify keeps domain errors as they are and wraps everything else in an InternalError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		validation *ValidationError
		notFound   *NotFoundError
		transition *InvalidTransitionError
		internal   *InternalError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &notFound), errors.As(err, &transition), errors.As(err, &internal):
		return err
	}
	return &InternalError{Op: op, Err: err}
}
