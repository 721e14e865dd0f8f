// Package checkout drives the conversion of a basket into order lines for the
// order-creation workflow.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-orderlines/internal/basket"
	"github.com/noah-isme/toko-orderlines/internal/common"
	"github.com/noah-isme/toko-orderlines/internal/events"
	"github.com/noah-isme/toko-orderlines/internal/lock"
	"github.com/noah-isme/toko-orderlines/internal/obs"
	"github.com/noah-isme/toko-orderlines/internal/orderitem"
)

type BasketLoader interface {
	Load(ctx context.Context, basketID int64) (basket.Basket, error)
}

type LineBuilder interface {
	FromBasket(ctx context.Context, b basket.Basket, lines []basket.Line) ([]orderitem.Line, error)
}

type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, ev events.Event)
}

// Result is the outcome of a successful conversion.
type Result struct {
	BasketID int64            `json:"basketId"`
	Currency string           `json:"currency"`
	Lines    []orderitem.Line `json:"lines"`
}

// AdjustedLine describes one basket line corrected to the available stock.
type AdjustedLine struct {
	BasketItemID int64 `json:"basketItemId"`
	VariationID  int64 `json:"variationId"`
	Requested    int   `json:"requested"`
	NetQuantity  int   `json:"netQuantity"`
}

// BasketAdjusted is the payload of events.TopicBasketAdjusted.
type BasketAdjusted struct {
	BasketID int64          `json:"basketId"`
	Lines    []AdjustedLine `json:"lines"`
}

// Service converts one basket at a time. Events and Locks are optional.
type Service struct {
	Baskets BasketLoader
	Builder LineBuilder
	Locks   Locker
	LockTTL time.Duration
	Events  Publisher
	Logger  *zerolog.Logger
}

// BuildOrderLines loads the basket and converts all of its lines.
//
// A stock shortage comes back as a non-retryable *common.AppError with code
// BASKET_ADJUSTED whose chain still holds the *orderitem.StockShortageError.
func (s *Service) BuildOrderLines(ctx context.Context, basketID int64) (Result, error) {
	if s == nil || s.Baskets == nil || s.Builder == nil {
		return Result{}, errors.New("checkout service not configured")
	}
	if basketID <= 0 {
		return Result{}, common.NewAppError(common.CodeInvalidPayload, "basket id must be positive", false, nil)
	}

	var res Result
	run := func(ctx context.Context) error {
		var err error
		res, err = s.build(ctx, basketID)
		return err
	}
	if s.Locks == nil {
		return res, run(ctx)
	}
	err := s.Locks.WithLock(ctx, lock.BasketKey(basketID), s.LockTTL, run)
	if errors.Is(err, lock.ErrNotAcquired) {
		return Result{}, common.NewAppError(common.CodeBasketBusy, "basket is being converted", true, err)
	}
	return res, err
}

func (s *Service) build(ctx context.Context, basketID int64) (Result, error) {
	logger := obs.LoggerFor(ctx, s.Logger).With().Int64("basket_id", basketID).Logger()

	b, err := s.Baskets.Load(ctx, basketID)
	if err != nil {
		if errors.Is(err, basket.ErrNotFound) {
			return Result{}, common.NewAppError(common.CodeBasketNotFound, "basket not found", false, err)
		}
		return Result{}, fmt.Errorf("checkout: load basket %d: %w", basketID, err)
	}

	lines, err := s.Builder.FromBasket(ctx, b, b.Lines)
	if err != nil {
		var shortage *orderitem.StockShortageError
		if errors.As(err, &shortage) {
			s.publish(ctx, events.TopicBasketAdjusted, adjustedPayload(basketID, shortage))
			logger.Info().Int("short_lines", len(shortage.Shortages)).Msg("basket_adjusted")
			return Result{}, common.NewAppError(common.CodeBasketAdjusted, common.MessageBasketAdjusted, false, err)
		}
		return Result{}, fmt.Errorf("checkout: build order lines for basket %d: %w", basketID, err)
	}

	res := Result{BasketID: basketID, Currency: b.Currency, Lines: lines}
	s.publish(ctx, events.TopicOrderLinesBuilt, res)
	logger.Info().Int("order_lines", len(lines)).Msg("order_lines_built")
	return res, nil
}

func (s *Service) publish(ctx context.Context, topic string, payload any) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(ctx, events.Event{Topic: topic, Payload: payload})
}

func adjustedPayload(basketID int64, shortage *orderitem.StockShortageError) BasketAdjusted {
	out := BasketAdjusted{BasketID: basketID, Lines: make([]AdjustedLine, 0, len(shortage.Shortages))}
	for _, sh := range shortage.Shortages {
		out.Lines = append(out.Lines, AdjustedLine{
			BasketItemID: sh.Line.ID,
			VariationID:  sh.Line.VariationID,
			Requested:    sh.Line.Quantity,
			NetQuantity:  sh.NetQuantity,
		})
	}
	return out
}
