package basket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the requested basket could not be located.
	ErrNotFound = errors.New("basket not found")
	// ErrLineNotFound indicates the basket line to mutate no longer exists.
	ErrLineNotFound = errors.New("basket line not found")
)

// Querier is the subset of pgxpool.Pool used by PostgresStore.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists baskets and their lines.
type PostgresStore struct {
	DB Querier
}

const basketSQL = `SELECT id, shipping_amount::text, coupon_discount::text, shipping_delete_by_coupon,
	basket_rebate::text, currency, payment_method_id, channel_id, shipping_country_id
FROM baskets
WHERE id = $1`

const linesSQL = `SELECT bi.id, bi.item_id, bi.variation_id, bi.order_row_id, bi.quantity,
	bi.price::text, v.default_base_price::text, v.special_offer_base_price::text,
	bi.attribute_total_markup::text, bi.rebate::text, bi.shipping_profile_id, bi.referrer_id,
	bi.vat_rate::text, bi.order_params, v.name1, v.name2, v.name3, v.variation_name
FROM basket_items bi
JOIN item_variations v ON v.id = bi.variation_id
WHERE bi.basket_id = $1
ORDER BY bi.id`

const deleteLineSQL = `DELETE FROM basket_items WHERE id = $1`

const updateQuantitySQL = `UPDATE basket_items SET quantity = $2, updated_at = now() WHERE id = $1`

// Load reads the basket and its lines in storage order.
func (s PostgresStore) Load(ctx context.Context, basketID int64) (Basket, error) {
	if s.DB == nil {
		return Basket{}, errors.New("basket: store not configured")
	}
	var (
		b                        Basket
		shipping, coupon, rebate string
	)
	err := s.DB.QueryRow(ctx, basketSQL, basketID).Scan(&b.ID, &shipping, &coupon, &b.ShippingDeleteByCoupon,
		&rebate, &b.Currency, &b.PaymentMethodID, &b.ChannelID, &b.ShippingCountryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Basket{}, fmt.Errorf("basket %d: %w", basketID, ErrNotFound)
		}
		return Basket{}, err
	}
	if err := parseDecimals([]string{shipping, coupon, rebate},
		&b.ShippingAmount, &b.CouponDiscount, &b.BasketRebate); err != nil {
		return Basket{}, fmt.Errorf("basket %d: %w", basketID, err)
	}

	rows, err := s.DB.Query(ctx, linesSQL, basketID)
	if err != nil {
		return Basket{}, err
	}
	defer rows.Close()
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return Basket{}, fmt.Errorf("basket %d: %w", basketID, err)
		}
		b.Lines = append(b.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return Basket{}, err
	}
	return b, nil
}

// DeleteLine removes a persisted basket line.
func (s PostgresStore) DeleteLine(ctx context.Context, lineID int64) error {
	return s.exec(ctx, deleteLineSQL, lineID)
}

// UpdateLineQuantity overwrites the quantity of a persisted basket line.
func (s PostgresStore) UpdateLineQuantity(ctx context.Context, lineID int64, quantity int) error {
	return s.exec(ctx, updateQuantitySQL, lineID, quantity)
}

func (s PostgresStore) exec(ctx context.Context, sql string, lineID int64, args ...any) error {
	if s.DB == nil {
		return errors.New("basket: store not configured")
	}
	tag, err := s.DB.Exec(ctx, sql, append([]any{lineID}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("line %d: %w", lineID, ErrLineNotFound)
	}
	return nil
}

func scanLine(row pgx.Row) (Line, error) {
	var (
		l                                    Line
		price, base, markup, rebate, vatRate string
		special                              *string
		params                               []byte
	)
	if err := row.Scan(&l.ID, &l.ItemID, &l.VariationID, &l.OrderRowID, &l.Quantity,
		&price, &base, &special, &markup, &rebate, &l.ShippingProfileID, &l.ReferrerID,
		&vatRate, &params, &l.Texts.Name1, &l.Texts.Name2, &l.Texts.Name3, &l.Texts.VariationName); err != nil {
		return Line{}, err
	}
	if err := parseDecimals([]string{price, base, markup, rebate, vatRate},
		&l.Price, &l.DefaultBasePrice, &l.AttributeTotalMarkup, &l.Rebate, &l.VatRate); err != nil {
		return Line{}, fmt.Errorf("line %d: %w", l.ID, err)
	}
	if special != nil {
		sp, err := decimal.NewFromString(*special)
		if err != nil {
			return Line{}, fmt.Errorf("line %d special offer price: %w", l.ID, err)
		}
		l.SpecialOfferBasePrice = &sp
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &l.Properties); err != nil {
			return Line{}, fmt.Errorf("line %d order params: %w", l.ID, err)
		}
	}
	return l, nil
}

func parseDecimals(raw []string, dst ...*decimal.Decimal) error {
	for i, value := range raw {
		if value == "" {
			*dst[i] = decimal.Zero
			continue
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("parse decimal %q: %w", value, err)
		}
		*dst[i] = d
	}
	return nil
}
