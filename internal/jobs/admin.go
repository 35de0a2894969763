package jobs

import (
	"context"
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-pricing/internal/common"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AdminHandler lets operators trigger maintenance tasks on demand.
type AdminHandler struct {
	Client Enqueuer
	Logger zerolog.Logger
}

// SweepCoupons enqueues a coupon sweep and responds 202. A sweep that is
// already pending is reported as accepted.
func (h AdminHandler) SweepCoupons(w http.ResponseWriter, r *http.Request) {
	if h.Client == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "task queue unavailable", nil)
		return
	}
	info, err := h.Client.EnqueueContext(r.Context(), NewSweepTask())
	switch {
	case errors.Is(err, asynq.ErrDuplicateTask):
		common.Data(w, http.StatusAccepted, map[string]any{"task": TypeCouponSweep, "status": "pending"})
		return
	case err != nil:
		h.Logger.Error().Err(err).Msg("enqueue coupon sweep")
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "failed to enqueue task", nil)
		return
	}
	common.Data(w, http.StatusAccepted, map[string]any{"task": TypeCouponSweep, "status": "enqueued", "id": info.ID})
}
