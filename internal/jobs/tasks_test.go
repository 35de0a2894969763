package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubSweeper struct {
	n     int
	err   error
	calls int
}

func (s *stubSweeper) Sweep(context.Context) (int, error) {
	s.calls++
	return s.n, s.err
}

func TestNewSweepTask(t *testing.T) {
	task := NewSweepTask()
	require.Equal(t, TypeCouponSweep, task.Type())
	require.Empty(t, task.Payload())
}

func TestSweepTaskIsUniqueWhilePending(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	info, err := client.EnqueueContext(context.Background(), NewSweepTask())
	require.NoError(t, err)
	require.Equal(t, QueueMaintenance, info.Queue)

	_, err = client.EnqueueContext(context.Background(), NewSweepTask())
	require.ErrorIs(t, err, asynq.ErrDuplicateTask)

	rr := httptest.NewRecorder()
	AdminHandler{Client: client, Logger: zerolog.Nop()}.SweepCoupons(rr, httptest.NewRequest(http.MethodPost, "/admin/coupons/sweep", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "pending", body.Data["status"])
}

func TestHandleCouponSweep(t *testing.T) {
	sweeper := &stubSweeper{n: 4}
	h := Handlers{Coupons: sweeper, Logger: zerolog.Nop()}

	require.NoError(t, h.HandleCouponSweep(context.Background(), NewSweepTask()))
	require.Equal(t, 1, sweeper.calls)
}

func TestHandleCouponSweepErrors(t *testing.T) {
	boom := errors.New("db down")
	h := Handlers{Coupons: &stubSweeper{err: boom}, Logger: zerolog.Nop()}
	require.ErrorIs(t, h.HandleCouponSweep(context.Background(), NewSweepTask()), boom)

	require.ErrorIs(t, Handlers{}.HandleCouponSweep(context.Background(), NewSweepTask()), asynq.SkipRetry)
}

func TestMuxRoutesSweep(t *testing.T) {
	sweeper := &stubSweeper{}
	mux := NewMux(Handlers{Coupons: sweeper, Logger: zerolog.Nop()})
	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(TypeCouponSweep, nil)))
	require.Equal(t, 1, sweeper.calls)
}

type stubEnqueuer struct {
	err  error
	task *asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.task = task
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func TestAdminSweepCoupons(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		want   string
	}{
		{"enqueued", nil, http.StatusAccepted, "enqueued"},
		{"duplicate", asynq.ErrDuplicateTask, http.StatusAccepted, "pending"},
		{"redis down", errors.New("dial tcp"), http.StatusServiceUnavailable, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enq := &stubEnqueuer{err: tc.err}
			h := AdminHandler{Client: enq, Logger: zerolog.Nop()}
			rr := httptest.NewRecorder()
			h.SweepCoupons(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/coupons/sweep", nil))

			require.Equal(t, tc.status, rr.Code)
			require.Equal(t, TypeCouponSweep, enq.task.Type())
			if tc.want != "" {
				var body struct {
					Data map[string]string `json:"data"`
				}
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				require.Equal(t, tc.want, body.Data["status"])
			}
		})
	}
}
