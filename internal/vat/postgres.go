package vat

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Querier is the subset of pgxpool.Pool used by the store.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads VAT configuration and store ownership from Postgres.
type PostgresStore struct {
	DB Querier
}

const tableColumns = `id, channel_id, country_id, store_id,
	rate_0::text, rate_1::text, rate_2::text, rate_3::text, is_standard`

const standardTableSQL = `SELECT ` + tableColumns + `
FROM vat_configs
WHERE channel_id = $1 AND is_standard
ORDER BY id
LIMIT 1`

const activeTableSQL = `SELECT ` + tableColumns + `
FROM vat_configs
WHERE channel_id = $1 AND country_id = $2 AND started_at <= now()
ORDER BY started_at DESC, id DESC
LIMIT 1`

const storeChannelSQL = `SELECT store_identifier FROM webstores WHERE id = $1`

// StandardTable returns the standard VAT table of channelID.
func (s PostgresStore) StandardTable(ctx context.Context, channelID int64) (Table, error) {
	if s.DB == nil {
		return Table{}, errors.New("vat: store not configured")
	}
	t, err := scanTable(s.DB.QueryRow(ctx, standardTableSQL, channelID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Table{}, fmt.Errorf("standard table for channel %d: %w", channelID, ErrTableNotFound)
		}
		return Table{}, err
	}
	return t, nil
}

// ActiveTable returns the VAT table currently in force for a channel and country.
func (s PostgresStore) ActiveTable(ctx context.Context, channelID, countryID int64) (Table, error) {
	if s.DB == nil {
		return Table{}, errors.New("vat: store not configured")
	}
	t, err := scanTable(s.DB.QueryRow(ctx, activeTableSQL, channelID, countryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Table{}, &LookupError{
				Op:        "load active table",
				ChannelID: channelID,
				Err:       fmt.Errorf("country %d: %w", countryID, ErrTableNotFound),
			}
		}
		return Table{}, err
	}
	return t, nil
}

// StoreOwnerChannelID returns the channel identifier of storeID.
func (s PostgresStore) StoreOwnerChannelID(ctx context.Context, storeID int64) (int64, error) {
	if s.DB == nil {
		return 0, errors.New("vat: store not configured")
	}
	var channelID int64
	if err := s.DB.QueryRow(ctx, storeChannelSQL, storeID).Scan(&channelID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("store %d: %w", storeID, ErrStoreNotFound)
		}
		return 0, err
	}
	return channelID, nil
}

func scanTable(row pgx.Row) (Table, error) {
	var (
		t     Table
		rates [SlotCount]string
	)
	if err := row.Scan(&t.ID, &t.ChannelID, &t.CountryID, &t.StoreID,
		&rates[0], &rates[1], &rates[2], &rates[3], &t.Standard); err != nil {
		return Table{}, err
	}
	for i, raw := range rates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return Table{}, fmt.Errorf("parse rate_%d of table %d: %w", i, t.ID, err)
		}
		t.Rates[i] = rate
	}
	return t, nil
}
