package vat_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-orderlines/internal/vat"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: want %d destinations, got %d", len(r.values), len(dest))
	}
	for i, d := range dest {
		switch target := d.(type) {
		case *int64:
			*target = r.values[i].(int64)
		case *string:
			*target = r.values[i].(string)
		case *bool:
			*target = r.values[i].(bool)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

type fakeDB struct {
	row      fakeRow
	lastSQL  string
	lastArgs []any
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL = sql
	f.lastArgs = args
	return f.row
}

func TestPostgresStandardTable(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{int64(4), int64(1), int64(10), int64(2), "19.00", "7.00", "0", "0", true}}}
	store := vat.PostgresStore{DB: db}

	table, err := store.StandardTable(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(4), table.ID)
	require.Equal(t, int64(2), table.StoreID)
	require.True(t, table.Standard)
	require.True(t, table.Rates[0].Equal(dec("19")))
	require.True(t, table.Rates[1].Equal(dec("7")))
	require.Equal(t, []any{int64(1)}, db.lastArgs)
	require.Contains(t, db.lastSQL, "is_standard")
}

func TestPostgresStandardTableNotFound(t *testing.T) {
	store := vat.PostgresStore{DB: &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}}
	_, err := store.StandardTable(context.Background(), 7)
	require.ErrorIs(t, err, vat.ErrTableNotFound)
}

func TestPostgresStandardTableRejectsBadRate(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{int64(4), int64(1), int64(10), int64(2), "abc", "7", "0", "0", true}}}
	_, err := vat.PostgresStore{DB: db}.StandardTable(context.Background(), 1)
	require.Error(t, err)
}

func TestPostgresActiveTable(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{int64(5), int64(1), int64(1), int64(2), "19", "7", "0", "0", false}}}
	table, err := vat.PostgresStore{DB: db}.ActiveTable(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Equal(t, int64(5), table.ID)
	require.False(t, table.Standard)
	require.Equal(t, []any{int64(1), int64(1)}, db.lastArgs)
}

func TestPostgresActiveTableNotFound(t *testing.T) {
	_, err := vat.PostgresStore{DB: &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}}.ActiveTable(context.Background(), 1, 12)
	var lookupErr *vat.LookupError
	require.ErrorAs(t, err, &lookupErr)
	require.ErrorIs(t, err, vat.ErrTableNotFound)
}

func TestPostgresStoreOwnerChannelID(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{int64(1001)}}}
	channelID, err := vat.PostgresStore{DB: db}.StoreOwnerChannelID(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, int64(1001), channelID)

	_, err = vat.PostgresStore{DB: &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}}.StoreOwnerChannelID(context.Background(), 3)
	require.ErrorIs(t, err, vat.ErrStoreNotFound)
}

func TestPostgresStoreNotConfigured(t *testing.T) {
	_, err := vat.PostgresStore{}.StandardTable(context.Background(), 1)
	require.Error(t, err)
}
