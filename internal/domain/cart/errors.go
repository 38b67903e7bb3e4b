package cart

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// ErrEmptyCart is returned when an order is placed with no lines in the cart.
var ErrEmptyCart = errors.New("cart is empty")

// InvalidQuantityError indicates a requested quantity below 1. The engine
// never clamps; a non-positive quantity is a caller contract violation.
type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1, got %d", e.Quantity)
}

// LineNotFoundError indicates the referenced line is not in the cart.
type LineNotFoundError struct {
	ID LineID
}

func (e *LineNotFoundError) Error() string {
	return fmt.Sprintf("cart line %s not found", e.ID)
}

// InvalidPriorityError indicates a substitute priority outside {1, 2}.
type InvalidPriorityError struct {
	Priority int
}

func (e *InvalidPriorityError) Error() string {
	return fmt.Sprintf("substitute priority must be 1 or 2, got %d", e.Priority)
}

// PriorityTakenError indicates the requested priority slot is already
// occupied on the line. Distinct from MaxSubstitutesError so the UI can
// offer "replace" instead of "remove one first".
type PriorityTakenError struct {
	ID       LineID
	Priority int
}

func (e *PriorityTakenError) Error() string {
	return fmt.Sprintf("priority %d already assigned on line %s", e.Priority, e.ID)
}

// MaxSubstitutesError indicates the line already carries the maximum number
// of substitutes.
type MaxSubstitutesError struct {
	ID LineID
}

func (e *MaxSubstitutesError) Error() string {
	return fmt.Sprintf("line %s already has %d substitutes", e.ID, MaxSubstitutes)
}

// DuplicateSubstituteError indicates the substitute product equals the
// line's own product or its other substitute.
type DuplicateSubstituteError struct {
	ID          LineID
	ProductCode string
}

func (e *DuplicateSubstituteError) Error() string {
	return fmt.Sprintf("product %s already present on line %s", e.ProductCode, e.ID)
}

// SubstituteNotFoundError indicates no substitute occupies the given
// priority slot on the line.
type SubstituteNotFoundError struct {
	ID       LineID
	Priority int
}

func (e *SubstituteNotFoundError) Error() string {
	return fmt.Sprintf("no substitute with priority %d on line %s", e.Priority, e.ID)
}

// EditInProgressError indicates another substitute-edit sequence is in
// flight for the same product. Edits are serialized per product code
// because the underlying remove+re-add pair is not atomic.
type EditInProgressError struct {
	ProductCode string
}

func (e *EditInProgressError) Error() string {
	return fmt.Sprintf("substitute edit already in progress for product %s", e.ProductCode)
}

// DeliveryDateError indicates a delivery date on or before the order date.
type DeliveryDateError struct {
	Date time.Time
}

func (e *DeliveryDateError) Error() string {
	return fmt.Sprintf("delivery date %s must be at least one day after order placement", e.Date.Format("2006-01-02"))
}

// DeliveryWindowError indicates a malformed or inverted delivery window.
type DeliveryWindowError struct {
	Start string
	End   string
}

func (e *DeliveryWindowError) Error() string {
	return fmt.Sprintf("delivery window start %q must be before end %q", e.Start, e.End)
}

// ValidateSubstitutes checks a substitute set against the line invariants:
// at most MaxSubstitutes entries, priorities a subset of {1, 2} with no
// duplicates, and product codes distinct from each other and from the
// line's own product.
func ValidateSubstitutes(productCode string, subs []Substitute) error {
	if len(subs) > MaxSubstitutes {
		return &MaxSubstitutesError{}
	}
	seenPriority := map[int]bool{}
	seenCode := map[string]bool{}
	for _, s := range subs {
		if s.Priority != 1 && s.Priority != 2 {
			return &InvalidPriorityError{Priority: s.Priority}
		}
		if seenPriority[s.Priority] {
			return &PriorityTakenError{Priority: s.Priority}
		}
		if s.ProductCode == productCode || seenCode[s.ProductCode] {
			return &DuplicateSubstituteError{ProductCode: s.ProductCode}
		}
		seenPriority[s.Priority] = true
		seenCode[s.ProductCode] = true
	}
	return nil
}

// IsValidation reports whether err is a local validation error, detected
// before any network call and therefore never accompanied by a rollback.
func IsValidation(err error) bool {
	if errors.Is(err, ErrEmptyCart) {
		return true
	}
	for _, target := range []any{
		new(*InvalidQuantityError),
		new(*LineNotFoundError),
		new(*InvalidPriorityError),
		new(*PriorityTakenError),
		new(*MaxSubstitutesError),
		new(*DuplicateSubstituteError),
		new(*SubstituteNotFoundError),
		new(*EditInProgressError),
		new(*DeliveryDateError),
		new(*DeliveryWindowError),
	} {
		if errors.As(err, target) {
			return true
		}
	}
	return false
}
