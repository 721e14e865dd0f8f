package payment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-orderlines/internal/payment"
)

type feeRow struct {
	value string
	err   error
}

func (r feeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.value
	return nil
}

type feeDB struct {
	row   feeRow
	calls int
	args  []any
}

func (f *feeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.calls++
	f.args = args
	return f.row
}

func TestFeeForMethod(t *testing.T) {
	db := &feeDB{row: feeRow{value: "1.50"}}
	fee, err := payment.FeeStore{DB: db}.FeeForMethod(context.Background(), 6000)
	require.NoError(t, err)
	require.True(t, fee.Equal(decimal.RequireFromString("1.5")))
	require.Equal(t, []any{int64(6000)}, db.args)
}

func TestFeeForMethodZeroSkipsLookup(t *testing.T) {
	db := &feeDB{}
	fee, err := payment.FeeStore{DB: db}.FeeForMethod(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, fee.IsZero())
	require.Zero(t, db.calls)
}

func TestFeeForMethodNotFound(t *testing.T) {
	db := &feeDB{row: feeRow{err: pgx.ErrNoRows}}
	_, err := payment.FeeStore{DB: db}.FeeForMethod(context.Background(), 1)
	require.ErrorIs(t, err, payment.ErrMethodNotFound)
}

func TestFeeForMethodQueryError(t *testing.T) {
	cause := errors.New("conn reset")
	db := &feeDB{row: feeRow{err: cause}}
	_, err := payment.FeeStore{DB: db}.FeeForMethod(context.Background(), 1)
	require.ErrorIs(t, err, cause)
}

func TestFeeForMethodBadValue(t *testing.T) {
	db := &feeDB{row: feeRow{value: "abc"}}
	_, err := payment.FeeStore{DB: db}.FeeForMethod(context.Background(), 1)
	require.Error(t, err)
}
