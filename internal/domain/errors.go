package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates the quiz does not exist, is inactive, or is
	// not visible to the caller.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound indicates the attempt does not exist or is not owned
	// by the caller.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAccountNotFound indicates the account is absent or inactive.
	ErrAccountNotFound = errors.New("account not found")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidState indicates a state-machine transition from the wrong
	// state, e.g. completing an attempt twice.
	ErrInvalidState = errors.New("invalid attempt state")
	// ErrInvalidArgument indicates a malformed input such as a non-positive amount.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInsufficientBalance indicates a spend exceeding the available points.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// InsufficientBalanceError carries the available vs requested amounts so the
// caller can act on the failure. It matches ErrInsufficientBalance under errors.Is.
type InsufficientBalanceError struct {
	Available int
	Requested int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %d, available %d", e.Requested, e.Available)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
