package service

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-survey-service/internal/auth"
	"github.com/goliatone/go-survey-service/internal/store"
)

var (
	// ErrValidation reports malformed input.
	ErrValidation = errors.New("service: validation failed")
	// ErrUnauthenticated reports a missing or rejected principal.
	ErrUnauthenticated = auth.ErrUnauthenticated
	// ErrForbidden reports a principal acting on something it does not own.
	ErrForbidden = errors.New("service: forbidden")

	ErrNotFound = store.ErrNotFound
	ErrConflict = store.ErrConflict
)

// ValidationError carries the field errors of a rejected request.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("service: validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

type validatable interface {
	Validate() error
}

func validate(v validatable) error {
	if err := v.Validate(); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func notFound(err error, entity string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return err
}
