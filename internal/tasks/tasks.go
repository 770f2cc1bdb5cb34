// Package tasks defines the background jobs run by cmd/worker.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-smartprice/internal/catalog"
)

const (
	// TypeRecompute re-derives one product's final price.
	TypeRecompute = "pricing:recompute"
	// QueuePricing is the asynq queue carrying pricing jobs.
	QueuePricing = "pricing"
)

// RecomputePayload is the body of a TypeRecompute task.
type RecomputePayload struct {
	ProductID string `json:"productId"`
}

// NewRecomputeTask builds a task for productID.
func NewRecomputeTask(productID string) (*asynq.Task, error) {
	if productID == "" {
		return nil, errors.New("tasks: product id is required")
	}
	raw, err := json.Marshal(RecomputePayload{ProductID: productID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRecompute, raw), nil
}

type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer schedules recompute jobs. A product already waiting in the queue
// is not scheduled twice within DedupWindow.
type Enqueuer struct {
	Client      taskClient
	MaxRetry    int
	DedupWindow time.Duration
}

var _ catalog.Enqueuer = (*Enqueuer)(nil)

// NewEnqueuer wraps an asynq client.
func NewEnqueuer(client *asynq.Client, maxRetry int, dedup time.Duration) *Enqueuer {
	return &Enqueuer{Client: client, MaxRetry: maxRetry, DedupWindow: dedup}
}

// EnqueueRecompute implements catalog.Enqueuer.
func (e *Enqueuer) EnqueueRecompute(ctx context.Context, productID string) error {
	if e == nil || e.Client == nil {
		return errors.New("tasks: client not configured")
	}
	task, err := NewRecomputeTask(productID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.Queue(QueuePricing)}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	if e.DedupWindow > 0 {
		opts = append(opts, asynq.Unique(e.DedupWindow))
	}
	_, err = e.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeRecompute, err)
	}
	return nil
}

// Handler processes pricing tasks on the worker.
type Handler struct {
	Repricer catalog.Repricer
	Logger   zerolog.Logger
}

// Register mounts the handler's task types on mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeRecompute, h.HandleRecompute)
}

// HandleRecompute runs a recompute for the product named in the payload.
// Malformed payloads and deleted products are not retried.
func (h *Handler) HandleRecompute(ctx context.Context, t *asynq.Task) error {
	start := time.Now()
	var payload RecomputePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		processed.WithLabelValues(TypeRecompute, "invalid").Inc()
		return fmt.Errorf("decode %s payload: %v: %w", TypeRecompute, err, asynq.SkipRetry)
	}
	if payload.ProductID == "" {
		processed.WithLabelValues(TypeRecompute, "invalid").Inc()
		return fmt.Errorf("%s payload without productId: %w", TypeRecompute, asynq.SkipRetry)
	}
	logger := h.Logger.With().Str("task", TypeRecompute).Str("product_id", payload.ProductID).Logger()

	_, err := h.Repricer.Recompute(ctx, payload.ProductID)
	switch {
	case err == nil:
		processed.WithLabelValues(TypeRecompute, "success").Inc()
		logger.Debug().Dur("duration", time.Since(start)).Msg("task_done")
		return nil
	case errors.Is(err, catalog.ErrNotFound):
		processed.WithLabelValues(TypeRecompute, "skipped").Inc()
		logger.Info().Msg("product gone, skipping recompute")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		processed.WithLabelValues(TypeRecompute, "error").Inc()
		logger.Warn().Err(err).Msg("recompute task failed")
		return err
	}
}
