// Package apperrors holds the small typed-error taxonomy referenced
// throughout the core (spec §7): NotFound, ScopeMismatch, and Contract.
// Most call sites still follow the teacher's plain fmt.Errorf wrapping and
// the "nil, nil means not found" convention; these types exist for the
// handful of places — scope checks and save-time validation — where a
// caller (in particular internal/api) needs to distinguish error classes
// rather than just log-and-500.
package apperrors

import (
	"errors"
	"fmt"
)

// NotFoundError reports that an entity id does not exist in the given
// scope. Most of the codebase prefers returning (nil, nil) for this case
// (matching the teacher's convention); this type exists for callers that
// need to distinguish "not found" from "lookup failed" across a boundary,
// such as an HTTP handler translating to a 404.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// NewNotFound builds a NotFoundError for the given entity kind and id.
func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ScopeMismatchError reports a cross-scope edge or a query missing a
// required scope.
type ScopeMismatchError struct {
	Msg string
}

func (e *ScopeMismatchError) Error() string { return e.Msg }

// NewScopeMismatch builds a ScopeMismatchError with the given message.
func NewScopeMismatch(format string, args ...interface{}) error {
	return &ScopeMismatchError{Msg: fmt.Sprintf(format, args...)}
}

// ContractError reports invalid arguments: a dimension mismatch, a
// negative weight, empty content. No write happens once this is returned.
type ContractError struct {
	Msg string
}

func (e *ContractError) Error() string { return e.Msg }

// NewContract builds a ContractError with the given message.
func NewContract(format string, args ...interface{}) error {
	return &ContractError{Msg: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err (or a wrapped cause) is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return asError(err, &e)
}

// IsScopeMismatch reports whether err (or a wrapped cause) is a ScopeMismatchError.
func IsScopeMismatch(err error) bool {
	var e *ScopeMismatchError
	return asError(err, &e)
}

// IsContract reports whether err (or a wrapped cause) is a ContractError.
func IsContract(err error) bool {
	var e *ContractError
	return asError(err, &e)
}

func asError[T error](err error, target *T) bool {
	return errors.As(err, target)
}
