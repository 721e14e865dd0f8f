// Package payment looks up the surcharge charged for a payment method.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrMethodNotFound is returned for unknown or inactive payment methods.
var ErrMethodNotFound = errors.New("payment: method not found")

// Querier is the subset of pgxpool.Pool used by FeeStore.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const feeSQL = `SELECT COALESCE(fee, 0)::text FROM payment_methods WHERE id = $1 AND active`

// FeeStore reads payment method fees from Postgres.
type FeeStore struct {
	DB Querier
}

// FeeForMethod returns the gross surcharge of methodID. Method 0 means no
// method was selected and costs nothing.
func (s FeeStore) FeeForMethod(ctx context.Context, methodID int64) (decimal.Decimal, error) {
	if methodID == 0 {
		return decimal.Zero, nil
	}
	if s.DB == nil {
		return decimal.Zero, errors.New("payment: store not configured")
	}
	var raw string
	if err := s.DB.QueryRow(ctx, feeSQL, methodID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: %d", ErrMethodNotFound, methodID)
		}
		return decimal.Zero, fmt.Errorf("payment: load fee for method %d: %w", methodID, err)
	}
	fee, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("payment: parse fee %q: %w", raw, err)
	}
	return fee, nil
}
