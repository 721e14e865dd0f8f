package vat

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-orderlines/internal/obs"
)

// DefaultMaxHops bounds the standard-table fallback. Providers guarantee
// termination after one hop; the bound covers inconsistent provider data.
const DefaultMaxHops = 5

// TaxRateProvider supplies the standard VAT table of a sales channel.
type TaxRateProvider interface {
	StandardTable(ctx context.Context, channelID int64) (Table, error)
}

// ChannelResolver maps a store to the numeric identifier of its sales channel.
type ChannelResolver interface {
	StoreOwnerChannelID(ctx context.Context, storeID int64) (int64, error)
}

// Classifier resolves the slot of a VAT rate, falling back to the owning
// channel's standard table when the given table has no matching slot.
type Classifier struct {
	Rates    TaxRateProvider
	Channels ChannelResolver
	MaxHops  int
	Logger   *zerolog.Logger
}

// ResolveSlot returns the index of the first slot in table whose rate equals
// rate. Unmatched rates map to slot 0 on standard tables; other tables defer
// to the standard table of the store's channel.
func (c *Classifier) ResolveSlot(ctx context.Context, table Table, rate decimal.Decimal) (Slot, error) {
	if slot, ok := table.Match(rate); ok {
		return slot, nil
	}
	if table.Standard {
		return 0, nil
	}
	if c == nil || c.Rates == nil || c.Channels == nil {
		return 0, &LookupError{Op: "resolve slot", StoreID: table.StoreID, Err: errors.New("fallback lookups not configured")}
	}

	ctx, span := obs.Tracer("vat").Start(ctx, "vat.fallback")
	defer span.End()
	span.SetAttributes(attribute.String("vat.rate", rate.String()), attribute.Int64("vat.table_id", table.ID))

	slot, err := c.fallback(ctx, table, rate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		obs.RecordVatFallback("error")
		return 0, err
	}
	obs.RecordVatFallback("resolved")
	return slot, nil
}

func (c *Classifier) fallback(ctx context.Context, table Table, rate decimal.Decimal) (Slot, error) {
	maxHops := c.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	logger := obs.LoggerFor(ctx, c.Logger)
	visited := make(map[int64]struct{}, 2)
	current := table
	for hop := 1; hop <= maxHops; hop++ {
		channelID, err := c.Channels.StoreOwnerChannelID(ctx, current.StoreID)
		if err != nil {
			return 0, &LookupError{Op: "resolve store channel", StoreID: current.StoreID, Err: err}
		}
		if _, seen := visited[channelID]; seen {
			return 0, &LookupError{
				Op:        "resolve standard table",
				StoreID:   current.StoreID,
				ChannelID: channelID,
				Err:       fmt.Errorf("%w: channel revisited", ErrFallbackExhausted),
			}
		}
		visited[channelID] = struct{}{}

		obs.RecordVatFallbackHop()
		next, err := c.Rates.StandardTable(ctx, channelID)
		if err != nil {
			return 0, &LookupError{Op: "load standard table", StoreID: current.StoreID, ChannelID: channelID, Err: err}
		}
		logger.Debug().
			Int64("from_table", current.ID).
			Int64("to_table", next.ID).
			Int64("channel_id", channelID).
			Int("hop", hop).
			Str("rate", rate.String()).
			Msg("vat_fallback")

		if slot, ok := next.Match(rate); ok {
			return slot, nil
		}
		if next.Standard {
			return 0, nil
		}
		current = next
	}
	return 0, &LookupError{
		Op:      "resolve standard table",
		StoreID: current.StoreID,
		Err:     fmt.Errorf("%w: more than %d hops", ErrFallbackExhausted, maxHops),
	}
}
