package orderitem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-orderlines/internal/basket"
	"github.com/noah-isme/toko-orderlines/internal/events"
	"github.com/noah-isme/toko-orderlines/internal/obs"
	"github.com/noah-isme/toko-orderlines/internal/stock"
	"github.com/noah-isme/toko-orderlines/internal/vat"
)

// TaxService returns the VAT table active for a channel and delivery country.
type TaxService interface {
	ActiveTable(ctx context.Context, channelID, countryID int64) (vat.Table, error)
}

// SlotResolver maps a VAT rate onto a slot of a table.
type SlotResolver interface {
	ResolveSlot(ctx context.Context, table vat.Table, rate decimal.Decimal) (vat.Slot, error)
}

// PaymentFees looks up the surcharge of a payment method.
type PaymentFees interface {
	FeeForMethod(ctx context.Context, methodID int64) (decimal.Decimal, error)
}

// FileCopier copies an uploaded file into the order scope.
type FileCopier interface {
	CopyToOrderScope(ctx context.Context, ref string) (string, error)
}

// NameResolver derives the display name of a variation.
type NameResolver interface {
	DisplayName(texts basket.VariationTexts) string
}

// Notifier publishes domain events without reporting delivery failures.
type Notifier interface {
	Publish(ctx context.Context, ev events.Event)
}

// Reconciler corrects basket storage after a stock shortage.
type Reconciler interface {
	Reconcile(ctx context.Context, shortages []basket.Shortage, submitted []basket.Line) error
}

// Assembler converts baskets into order lines. Notifier is optional; every
// other collaborator is required.
type Assembler struct {
	Tax        TaxService
	Slots      SlotResolver
	Stock      stock.Checker
	Fees       PaymentFees
	Files      FileCopier
	Names      NameResolver
	Notifier   Notifier
	Reconciler Reconciler
	Logger     *zerolog.Logger
}

// ErrNotConfigured is returned when a required collaborator is missing.
var ErrNotConfigured = errors.New("orderitem: assembler not configured")

// FromBasket builds the order lines for lines, which are the lines submitted
// for conversion out of b. The result holds every variation line in input
// order followed by the shipping costs and the payment surcharge.
//
// When any line is short of stock the basket is reconciled and a
// *StockShortageError is returned without lines. Every other collaborator
// failure aborts the conversion and is returned wrapped.
func (a *Assembler) FromBasket(ctx context.Context, b basket.Basket, lines []basket.Line) (out []Line, err error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	ctx, span := obs.Tracer("orderitem").Start(ctx, "orderitem.from_basket")
	defer span.End()
	span.SetAttributes(attribute.Int64("basket.id", b.ID), attribute.Int("basket.lines", len(lines)))

	started := time.Now()
	logger := obs.LoggerFor(ctx, a.Logger)
	defer func() {
		result := "ok"
		var shortage *StockShortageError
		switch {
		case errors.As(err, &shortage):
			result = "shortage"
		case err != nil:
			result = "error"
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		obs.RecordConversion(result, obs.DurationMillis(time.Since(started)))
	}()

	table, err := a.Tax.ActiveTable(ctx, b.ChannelID, b.ShippingCountryID)
	if err != nil {
		return nil, fmt.Errorf("orderitem: load active vat table: %w", err)
	}

	var (
		shortages []basket.Shortage
		maxVat    = decimal.Zero
	)
	out = make([]Line, 0, len(lines)+2)
	for _, line := range lines {
		a.publish(ctx, events.TopicBeforeLineConversion, line.CheckItem())

		if err := a.Stock.Check(ctx, line.CheckItem()); err != nil {
			var insufficient *stock.InsufficientStockError
			if !errors.As(err, &insufficient) {
				return nil, fmt.Errorf("orderitem: stock check line %d: %w", line.ID, err)
			}
			obs.RecordStockShortage()
			logger.Info().
				Int64("basket_item_id", line.ID).
				Int64("variation_id", line.VariationID).
				Int("requested", line.Quantity).
				Int("net", insufficient.NetQuantity).
				Msg("stock_shortage")
			shortages = append(shortages, basket.Shortage{Line: line, NetQuantity: insufficient.NetQuantity})
			continue
		}

		converted, err := a.variationLine(ctx, b, table, line)
		if err != nil {
			return nil, err
		}
		if converted.VatRate.GreaterThan(maxVat) {
			maxVat = converted.VatRate
		}
		out = append(out, converted)
	}

	if len(shortages) > 0 {
		reconcileErr := a.Reconciler.Reconcile(ctx, shortages, lines)
		if reconcileErr != nil {
			logger.Error().Err(reconcileErr).Int64("basket_id", b.ID).Msg("basket_reconcile_failed")
		}
		return nil, &StockShortageError{Kind: KindNotEnoughStock, Shortages: shortages, Err: reconcileErr}
	}

	slot, err := a.Slots.ResolveSlot(ctx, table, maxVat)
	if err != nil {
		return nil, fmt.Errorf("orderitem: resolve slot for rate %s: %w", maxVat, err)
	}
	fee, err := a.Fees.FeeForMethod(ctx, b.PaymentMethodID)
	if err != nil {
		return nil, fmt.Errorf("orderitem: payment fee for method %d: %w", b.PaymentMethodID, err)
	}

	shipping := b.ShippingAmount
	if b.ShippingDeleteByCoupon {
		shipping = shipping.Sub(b.CouponDiscount)
	}
	referrer := firstReferrer(b, lines)
	out = append(out,
		a.syntheticLine(TypeShippingCosts, ShippingCostsName, referrer, table, maxVat, slot, b.Currency, shipping),
		a.syntheticLine(TypePaymentSurcharge, PaymentSurchargeName, referrer, table, maxVat, slot, b.Currency, fee),
	)

	logger.Debug().
		Int64("basket_id", b.ID).
		Int("order_lines", len(out)).
		Str("max_vat", maxVat.String()).
		Msg("order_lines_built")
	return out, nil
}

func (a *Assembler) variationLine(ctx context.Context, b basket.Basket, table vat.Table, line basket.Line) (Line, error) {
	props, err := a.properties(ctx, line)
	if err != nil {
		return Line{}, err
	}

	discount := line.Rebate
	if b.BasketRebate.IsPositive() {
		discount = discount.Add(b.BasketRebate)
	}

	slot, err := a.Slots.ResolveSlot(ctx, table, line.VatRate)
	if err != nil {
		return Line{}, fmt.Errorf("orderitem: resolve slot for line %d: %w", line.ID, err)
	}

	return Line{
		Type:              TypeVariation,
		ReferrerID:        line.ReferrerID,
		ItemVariationID:   line.VariationID,
		Quantity:          line.Quantity,
		Name:              a.Names.DisplayName(line.Texts),
		ShippingProfileID: line.ShippingProfileID,
		CountryVatID:      table.ID,
		VatRate:           line.VatRate,
		VatField:          slot,
		Properties:        props,
		Amounts: []Amount{{
			Currency:           b.Currency,
			PriceOriginalGross: line.OriginalGrossPrice(),
			Surcharge:          line.AttributeTotalMarkup,
			Discount:           discount,
			IsPercentage:       true,
		}},
	}, nil
}

func (a *Assembler) properties(ctx context.Context, line basket.Line) ([]Property, error) {
	if len(line.Properties) == 0 {
		return nil, nil
	}
	props := make([]Property, 0, len(line.Properties))
	for _, p := range line.Properties {
		value := p.Value
		if p.IsFile() {
			copied, err := a.Files.CopyToOrderScope(ctx, p.Value)
			if err != nil {
				return nil, fmt.Errorf("orderitem: copy file of property %d: %w", p.PropertyID, err)
			}
			value = copied
		}
		props = append(props, Property{PropertyID: p.PropertyID, Value: value})
	}
	return props, nil
}

func (a *Assembler) syntheticLine(typ Type, name string, referrer int64, table vat.Table, rate decimal.Decimal, slot vat.Slot, currency string, gross decimal.Decimal) Line {
	return Line{
		Type:         typ,
		ReferrerID:   referrer,
		Quantity:     1,
		Name:         name,
		CountryVatID: table.ID,
		VatRate:      rate,
		VatField:     slot,
		Amounts: []Amount{{
			Currency:           currency,
			PriceOriginalGross: gross,
		}},
	}
}

func (a *Assembler) publish(ctx context.Context, topic string, payload any) {
	if a.Notifier == nil {
		return
	}
	a.Notifier.Publish(ctx, events.Event{Topic: topic, Payload: payload})
}

func (a *Assembler) validate() error {
	if a == nil {
		return ErrNotConfigured
	}
	missing := ""
	switch {
	case a.Tax == nil:
		missing = "tax service"
	case a.Slots == nil:
		missing = "slot resolver"
	case a.Stock == nil:
		missing = "stock checker"
	case a.Fees == nil:
		missing = "payment fees"
	case a.Files == nil:
		missing = "file copier"
	case a.Names == nil:
		missing = "name resolver"
	case a.Reconciler == nil:
		missing = "reconciler"
	}
	if missing != "" {
		return fmt.Errorf("%w: %s", ErrNotConfigured, missing)
	}
	return nil
}

// firstReferrer is the referrer of the basket's first line. Baskets loaded
// without lines fall back to the first submitted line.
func firstReferrer(b basket.Basket, submitted []basket.Line) int64 {
	if len(b.Lines) > 0 {
		return b.Lines[0].ReferrerID
	}
	if len(submitted) > 0 {
		return submitted[0].ReferrerID
	}
	return 0
}
