package basket

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-orderlines/internal/obs"
)

// Mutator is the write side of basket storage used after a stock shortage.
type Mutator interface {
	DeleteLine(ctx context.Context, lineID int64) error
	UpdateLineQuantity(ctx context.Context, lineID int64, quantity int) error
}

// Reconciler corrects persisted basket lines to the stock that is available.
// It is the only component that mutates basket storage during a conversion.
type Reconciler struct {
	Store  Mutator
	Logger *zerolog.Logger
}

// Reconcile deletes persisted lines left without stock and lowers the quantity
// of persisted lines that are partially available. Lines that are not
// persisted are left alone, including those with no stock left. A failed
// mutation does not stop the remaining lines; all failures are joined. A nil
// error only means storage accepted the changes; the conversion must still fail.
func (r Reconciler) Reconcile(ctx context.Context, shortages []Shortage, submitted []Line) error {
	if len(shortages) == 0 {
		return nil
	}
	if r.Store == nil {
		return errors.New("basket: reconciler store not configured")
	}
	logger := obs.LoggerFor(ctx, r.Logger)
	byID := make(map[int64]Line, len(submitted))
	for _, line := range submitted {
		if _, dup := byID[line.ID]; !dup {
			byID[line.ID] = line
		}
	}

	var errs []error
	for _, shortage := range shortages {
		line, ok := byID[shortage.Line.ID]
		if !ok {
			logger.Warn().Int64("basket_item_id", shortage.Line.ID).Msg("shortage_line_not_submitted")
			continue
		}
		if !line.Persisted() {
			continue
		}
		if shortage.NetQuantity <= 0 {
			if err := r.Store.DeleteLine(ctx, line.ID); err != nil {
				logger.Error().Err(err).Int64("basket_item_id", line.ID).Msg("basket_line_delete_failed")
				errs = append(errs, fmt.Errorf("basket: delete line %d: %w", line.ID, err))
				continue
			}
			obs.RecordReconcileAction("delete")
			logger.Info().
				Int64("basket_item_id", line.ID).
				Int64("variation_id", line.VariationID).
				Int("requested", line.Quantity).
				Int("net_quantity", shortage.NetQuantity).
				Msg("basket_line_deleted")
			continue
		}
		if err := r.Store.UpdateLineQuantity(ctx, line.ID, shortage.NetQuantity); err != nil {
			logger.Error().Err(err).Int64("basket_item_id", line.ID).Msg("basket_line_update_failed")
			errs = append(errs, fmt.Errorf("basket: update line %d quantity: %w", line.ID, err))
			continue
		}
		obs.RecordReconcileAction("update")
		logger.Info().
			Int64("basket_item_id", line.ID).
			Int64("variation_id", line.VariationID).
			Int("requested", line.Quantity).
			Int("net_quantity", shortage.NetQuantity).
			Msg("basket_line_reduced")
	}
	return errors.Join(errs...)
}
