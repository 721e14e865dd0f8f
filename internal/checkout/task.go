package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-orderlines/internal/common"
	"github.com/noah-isme/toko-orderlines/internal/obs"
	"github.com/noah-isme/toko-orderlines/internal/queue"
)

// Queue kinds consumed and produced by the worker.
const (
	TaskBuildOrderLines = "checkout:build-order-lines"
	TaskPersistOrder    = "order:persist"
)

// BuildPayload is the body of a TaskBuildOrderLines task.
type BuildPayload struct {
	BasketID int64 `json:"basketId"`
}

// OrderLineBuilder is satisfied by *Service.
type OrderLineBuilder interface {
	BuildOrderLines(ctx context.Context, basketID int64) (Result, error)
}

// TaskEnqueuer is satisfied by queue.Enqueuer.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

// TaskHandler adapts the service to the queue worker. Successful results
// are handed to TaskPersistOrder. Non-retryable failures are logged and
// acked so the queue does not retry them; everything else is returned.
type TaskHandler struct {
	Service OrderLineBuilder
	Persist TaskEnqueuer
	Logger  *zerolog.Logger
}

// Handle processes one task.
func (h TaskHandler) Handle(ctx context.Context, task queue.Task) error {
	logger := obs.LoggerFor(ctx, h.Logger)

	var payload BuildPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil || payload.BasketID <= 0 {
		logger.Error().Err(err).Bytes("payload", task.Payload).Msg("checkout_task_invalid")
		return nil
	}

	res, err := h.Service.BuildOrderLines(ctx, payload.BasketID)
	if err != nil {
		if appErr, ok := common.AsAppError(err); ok && !appErr.Retryable {
			logger.Info().
				Int64("basket_id", payload.BasketID).
				Str("code", appErr.Code).
				Int("attempt", task.Attempt).
				Msg("checkout_task_rejected")
			return nil
		}
		return err
	}

	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("checkout: encode result: %w", err)
	}
	// a redelivered build task must not persist the order twice
	key := ""
	if task.IdempotencyKey != "" {
		key = strconv.FormatInt(payload.BasketID, 10) + ":" + task.IdempotencyKey
	}
	if err := h.Persist.Enqueue(ctx, queue.Task{
		Kind:           TaskPersistOrder,
		Payload:        body,
		IdempotencyKey: key,
	}); err != nil {
		return fmt.Errorf("checkout: enqueue persist: %w", err)
	}
	return nil
}
