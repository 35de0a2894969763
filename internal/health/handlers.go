package health

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/storefront-pricing/internal/common"
)

const defaultProbeTimeout = 500 * time.Millisecond

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles readiness. The API flips it off when draining for shutdown.
func SetReady(v bool) { ready.Store(v) }

// Probe checks a single dependency.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// PostgresProbe pings the connection pool.
func PostgresProbe(pool *pgxpool.Pool) Probe {
	return Probe{Name: "db", Check: func(ctx context.Context) error {
		if pool == nil {
			return errors.New("pool not configured")
		}
		return pool.Ping(ctx)
	}}
}

// RedisProbe pings the Redis client.
func RedisProbe(client *redis.Client) Probe {
	return Probe{Name: "redis", Timeout: 300 * time.Millisecond, Check: func(ctx context.Context) error {
		if client == nil {
			return errors.New("client not configured")
		}
		return client.Ping(ctx).Err()
	}}
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Probes []Probe
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every probe concurrently and reports 503 when any fails or the
// process is draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, readiness{Status: "draining", Checks: map[string]string{}})
		return
	}
	checks := make(map[string]string, len(h.Probes))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, p := range h.Probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			result := "ok"
			if err := p.run(r.Context()); err != nil {
				result = err.Error()
			}
			mu.Lock()
			checks[p.Name] = result
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	body := readiness{Status: "ok", Checks: checks}
	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			body.Status = "degraded"
			status = http.StatusServiceUnavailable
			break
		}
	}
	common.JSON(w, status, body)
}

func (p Probe) run(ctx context.Context) error {
	if p.Check == nil {
		return errors.New("no check configured")
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Check(ctx)
}
