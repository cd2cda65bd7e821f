// Package apperr defines the error values shared by the hold store, the
// booking engine and the HTTP layer.  Lower layers wrap these sentinels
// with fmt.Errorf("...: %w", err) and handlers translate them into status
// codes with errors.Is and errors.As.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrConflict is matched by *ConflictError.
	ErrConflict = errors.New("seats unavailable")

	// ErrNotOwner is returned when a session touches seats it does not hold.
	ErrNotOwner = errors.New("not owner")

	// ErrNotFound covers unknown showings and sales.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a sale is not in a state that
	// allows the requested change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnavailable wraps infrastructure failures (Redis, database).
	ErrUnavailable = errors.New("service unavailable")

	// ErrHoldExpired is returned by Extend when a hold has lapsed.
	ErrHoldExpired = errors.New("hold expired")

	// ErrExtendLimit is returned when an extension would push a hold past
	// its maximum lifetime.
	ErrExtendLimit = errors.New("hold extension limit reached")

	ErrInvalidSeat    = errors.New("seat not in showing layout")
	ErrInvalidVoucher = errors.New("invalid voucher code")
	ErrValidation     = errors.New("validation failed")
)

// ConflictError lists the seats that blocked an acquisition or a sale.
type ConflictError struct {
	SeatIDs []uint64
}

// NewConflict returns a ConflictError with sorted, de-duplicated ids.
func NewConflict(ids []uint64) *ConflictError {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return &ConflictError{SeatIDs: out}
}

func (e *ConflictError) Error() string {
	parts := make([]string, len(e.SeatIDs))
	for i, id := range e.SeatIDs {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return fmt.Sprintf("%s: %s", ErrConflict.Error(), strings.Join(parts, ","))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Validation wraps ErrValidation with a field-level message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
