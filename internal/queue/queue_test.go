package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-orderlines/internal/queue"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestEnqueueDequeue(t *testing.T) {
	client := newClient(t)
	enq := queue.Enqueuer{R: client, Prefix: "test"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := enq.Enqueue(ctx, queue.Task{Kind: "checkout:build-order-lines", Payload: []byte(`{"basketId":1}`), IdempotencyKey: "1"})
	require.NoError(t, err)

	processed := make(chan queue.Task, 1)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "test",
		Kind:              "checkout:build-order-lines",
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         10 * time.Millisecond,
		PollInterval:      5 * time.Millisecond,
		Handler: func(ctx context.Context, task queue.Task) error {
			processed <- task
			cancel()
			return nil
		},
	}

	go func() {
		_ = worker.Run(ctx)
	}()

	select {
	case task := <-processed:
		require.Equal(t, []byte(`{"basketId":1}`), task.Payload)
		require.Equal(t, 1, task.Attempt)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for payload")
	}
}

func TestEnqueueDeduplicates(t *testing.T) {
	client := newClient(t)
	enq := queue.Enqueuer{R: client, Prefix: "dedup"}
	ctx := context.Background()

	require.NoError(t, enq.Enqueue(ctx, queue.Task{Kind: "demo", Payload: []byte("a"), IdempotencyKey: "k"}))
	require.NoError(t, enq.Enqueue(ctx, queue.Task{Kind: "demo", Payload: []byte("b"), IdempotencyKey: "k"}))

	count, err := client.ZCard(ctx, "dedup:queue:demo").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestEnqueueRejectsInvalidKind(t *testing.T) {
	client := newClient(t)
	err := queue.Enqueuer{R: client}.Enqueue(context.Background(), queue.Task{Kind: "Bad Kind"})
	require.Error(t, err)

	err = queue.Enqueuer{}.Enqueue(context.Background(), queue.Task{Kind: "demo"})
	require.Error(t, err)
}

func TestWorkerRetries(t *testing.T) {
	client := newClient(t)
	enq := queue.Enqueuer{R: client, Prefix: "retry"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, enq.Enqueue(ctx, queue.Task{Kind: "demo", Payload: []byte("retry"), IdempotencyKey: "r1", MaxAttempts: 3}))

	var attempts atomic.Int32
	worker := queue.Worker{
		R:                 client,
		Prefix:            "retry",
		Kind:              "demo",
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         5 * time.Millisecond,
		RetryJitter:       0.1,
		PollInterval:      5 * time.Millisecond,
		Handler: func(ctx context.Context, task queue.Task) error {
			if attempts.Add(1) == 1 {
				return errors.New("fail first")
			}
			cancel()
			return nil
		},
	}

	go func() { _ = worker.Run(ctx) }()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not retry in time")
	}

	require.GreaterOrEqual(t, attempts.Load(), int32(2))
}

func TestWorkerDeadLettersAfterMaxAttempts(t *testing.T) {
	client := newClient(t)
	enq := queue.Enqueuer{R: client, Prefix: "dlq"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, enq.Enqueue(ctx, queue.Task{Kind: "demo", Payload: []byte("poison"), MaxAttempts: 2}))

	var attempts atomic.Int32
	worker := queue.Worker{
		R:                 client,
		Prefix:            "dlq",
		Kind:              "demo",
		VisibilityTimeout: time.Second,
		RetryBase:         time.Millisecond,
		PollInterval:      5 * time.Millisecond,
		Handler: func(context.Context, queue.Task) error {
			attempts.Add(1)
			return errors.New("always fails")
		},
	}
	go func() { _ = worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		dead, err := queue.DeadLetters(context.Background(), client, "dlq", "demo")
		return err == nil && len(dead) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	dead, err := queue.DeadLetters(context.Background(), client, "dlq", "demo")
	require.NoError(t, err)
	require.Equal(t, []byte("poison"), dead[0])
	require.Equal(t, int32(2), attempts.Load())
}
