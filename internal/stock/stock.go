// Package stock checks basket lines against the net stock of their variation.
package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CheckItem is the minimal projection of a basket line needed for a stock check.
type CheckItem struct {
	BasketItemID int64 `json:"basketItemId"`
	ItemID       int64 `json:"itemId"`
	VariationID  int64 `json:"variationId"`
	OrderRowID   int64 `json:"orderRowId"`
	Quantity     int   `json:"quantity"`
}

// InsufficientStockError reports that a line asks for more than is available.
type InsufficientStockError struct {
	VariationID int64
	Requested   int
	// NetQuantity is the net stock available; it may be zero or negative.
	NetQuantity int
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variation %d: requested %d, net %d", e.VariationID, e.Requested, e.NetQuantity)
}

// Checker validates a single basket line against current stock.
type Checker interface {
	Check(ctx context.Context, item CheckItem) error
}

// CheckerFunc adapts a function into a Checker.
type CheckerFunc func(ctx context.Context, item CheckItem) error

// Check implements Checker.
func (f CheckerFunc) Check(ctx context.Context, item CheckItem) error {
	return f(ctx, item)
}

// Querier is the subset of pgxpool.Pool used by PostgresChecker.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const netStockSQL = `SELECT COALESCE(SUM(stock_net), 0)::bigint
FROM variation_stock
WHERE variation_id = $1`

const unlimitedSQL = `SELECT COALESCE((SELECT unlimited_stock FROM item_variations WHERE id = $1), false)`

// PostgresChecker reads net stock per variation from the variation_stock table.
// Variations flagged as unlimited in item_variations are never short.
type PostgresChecker struct {
	DB Querier
}

// Check implements Checker.
func (c PostgresChecker) Check(ctx context.Context, item CheckItem) error {
	if c.DB == nil {
		return errors.New("stock: checker not configured")
	}
	var unlimited bool
	if err := c.DB.QueryRow(ctx, unlimitedSQL, item.VariationID).Scan(&unlimited); err != nil {
		return fmt.Errorf("stock: load variation %d: %w", item.VariationID, err)
	}
	if unlimited {
		return nil
	}
	var net int64
	if err := c.DB.QueryRow(ctx, netStockSQL, item.VariationID).Scan(&net); err != nil {
		return fmt.Errorf("stock: load net stock of variation %d: %w", item.VariationID, err)
	}
	if int64(item.Quantity) > net {
		return &InsufficientStockError{VariationID: item.VariationID, Requested: item.Quantity, NetQuantity: int(net)}
	}
	return nil
}
