package procurement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates a referenced entity or line does not exist.
	ErrNotFound = errors.New("procurement: not found")
	// ErrConflict indicates the target is in a terminal or incompatible status.
	ErrConflict = errors.New("procurement: conflict")
	// ErrInvalidState indicates the operation is not allowed in the current status.
	ErrInvalidState = errors.New("procurement: invalid state transition")
	// ErrInsufficientQuantity indicates an allocation exceeds what is left.
	ErrInsufficientQuantity = errors.New("procurement: insufficient quantity")
	// ErrInsufficientStock indicates the stock counter cannot cover a request.
	ErrInsufficientStock = errors.New("procurement: insufficient stock")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
	// ErrUnexpected marks every failure outside the known kinds.
	ErrUnexpected = errors.New("procurement: unexpected error")
)

// QuantityViolation describes one line that could not be allocated.
type QuantityViolation struct {
	ItemID    uuid.UUID `json:"item_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// InsufficientQuantityError reports every violation found while validating a
// batch of lines.
type InsufficientQuantityError struct {
	Violations []QuantityViolation
}

func (e *InsufficientQuantityError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("item %s requested %d available %d", v.ItemID, v.Requested, v.Available))
	}
	return ErrInsufficientQuantity.Error() + ": " + strings.Join(parts, "; ")
}

// Is matches ErrInsufficientQuantity.
func (e *InsufficientQuantityError) Is(target error) bool {
	return target == ErrInsufficientQuantity
}

// UnexpectedError hides the cause from the message while keeping it reachable
// through errors.Unwrap for logging.
type UnexpectedError struct {
	Op  string
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnexpected.Error(), e.Op)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

// Is matches ErrUnexpected.
func (e *UnexpectedError) Is(target error) bool {
	return target == ErrUnexpected
}

var knownErrors = []error{
	ErrNotFound,
	ErrConflict,
	ErrInvalidState,
	ErrInsufficientQuantity,
	ErrInsufficientStock,
	ErrValidation,
	ErrUnexpected,
}

// classify passes known error kinds through and wraps everything else.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return &UnexpectedError{Op: op, Err: err}
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
