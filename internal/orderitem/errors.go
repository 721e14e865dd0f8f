package orderitem

import (
	"errors"
	"fmt"

	"github.com/noah-isme/toko-orderlines/internal/basket"
)

// Kind classifies aggregate conversion failures.
type Kind string

// KindNotEnoughStock is raised when at least one line failed the stock check.
const KindNotEnoughStock Kind = "NOT_ENOUGH_STOCK"

// ErrNotEnoughStock matches any *StockShortageError via errors.Is.
var ErrNotEnoughStock = errors.New("orderitem: not enough stock")

// StockShortageError aborts a conversion after the basket has been corrected
// to the available stock. Err holds the reconciliation failure, if any.
type StockShortageError struct {
	Kind      Kind
	Shortages []basket.Shortage
	Err       error
}

func (e *StockShortageError) Error() string {
	msg := fmt.Sprintf("orderitem: %s: %d line(s) short", e.Kind, len(e.Shortages))
	if e.Err != nil {
		msg += ": reconcile: " + e.Err.Error()
	}
	return msg
}

// Is reports ErrNotEnoughStock as a match.
func (e *StockShortageError) Is(target error) bool {
	return target == ErrNotEnoughStock
}

func (e *StockShortageError) Unwrap() error { return e.Err }
