/*
errors.go - Error types for the daily list engine

ERROR KINDS:
  NotFound               No daily list exists for the date
  AlreadyLocked          Mutation on a frozen list, including a lost lock race
  InvalidItem            A receiving entry references a line of another list
  UnconvertiblePriceUnit Price unit cannot be converted to the order unit
  MalformedInput         Bad date or empty batch (quantities are normalized, not rejected)

USAGE:
  The HTTP layer maps kinds to status codes with errors.Is():

    if errors.Is(err, purchasing.ErrAlreadyLocked) {
        // 409
    }

SEE ALSO:
  - api/handlers.go: statusFor()
*/
package purchasing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when the date has no daily list, or a referenced
	// row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyLocked is returned when a locked list would be mutated.
	ErrAlreadyLocked = errors.New("daily list is locked")

	// ErrInvalidItem is returned when a receiving entry does not belong to the list.
	ErrInvalidItem = errors.New("invalid daily list item")

	// ErrUnconvertiblePriceUnit is returned when an entered price unit has no
	// conversion to the line's order unit.
	ErrUnconvertiblePriceUnit = errors.New("invalid price unit conversion")

	// ErrMalformedInput is returned for input that cannot be interpreted.
	ErrMalformedInput = errors.New("malformed input")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InvalidItemError names the offending line.
type InvalidItemError struct {
	Date            string
	DailyListItemID int64
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("daily list item %d does not belong to %s", e.DailyListItemID, e.Date)
}

func (e *InvalidItemError) Unwrap() error {
	return ErrInvalidItem
}

// UnconvertiblePriceUnitError names the line and the unit pair.
type UnconvertiblePriceUnitError struct {
	DailyListItemID int64
	PriceUnit       string
	OrderUnit       string
}

func (e *UnconvertiblePriceUnitError) Error() string {
	return fmt.Sprintf("cannot convert price per %q to %q for item %d",
		e.PriceUnit, e.OrderUnit, e.DailyListItemID)
}

func (e *UnconvertiblePriceUnitError) Unwrap() error {
	return ErrUnconvertiblePriceUnit
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidItem) ||
		errors.Is(err, ErrUnconvertiblePriceUnit) ||
		errors.Is(err, ErrMalformedInput)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error is a lock conflict. Callers may retry
// after re-reading the list.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyLocked)
}
