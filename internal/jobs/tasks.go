package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TypeCouponSweep retires expired and exhausted coupons.
const TypeCouponSweep = "coupon:sweep"

// QueueMaintenance carries low priority housekeeping tasks.
const QueueMaintenance = "maintenance"

// sweepUniqueTTL bounds how long a pending sweep blocks new ones.
const sweepUniqueTTL = 5 * time.Minute

// NewSweepTask builds a coupon sweep task. The task carries no payload so every
// sweep shares one uniqueness key: only one sweep may be pending at a time.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeCouponSweep, nil,
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
		asynq.Unique(sweepUniqueTTL),
	)
}

// Sweeper deactivates coupons that can no longer be redeemed.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Handlers processes background tasks.
type Handlers struct {
	Coupons Sweeper
	Logger  zerolog.Logger
}

// HandleCouponSweep runs one sweep.
func (h Handlers) HandleCouponSweep(ctx context.Context, t *asynq.Task) error {
	if h.Coupons == nil {
		return fmt.Errorf("coupon sweeper not configured: %w", asynq.SkipRetry)
	}
	start := time.Now()
	n, err := h.Coupons.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep coupons: %w", err)
	}
	taskID, _ := asynq.GetTaskID(ctx)
	h.Logger.Info().
		Str("task_id", taskID).
		Int("deactivated", n).
		Dur("took", time.Since(start)).
		Msg("coupon sweep complete")
	return nil
}

// NewMux registers every task handler.
func NewMux(h Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCouponSweep, h.HandleCouponSweep)
	return mux
}
