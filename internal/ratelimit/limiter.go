package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/storefront-pricing/internal/common"
)

// New builds a Redis-backed fixed-window limiter from a formatted rate such as
// "10-M" (ten requests per minute).
func New(client *redis.Client, rate, prefix string) (*limiter.Limiter, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", rate, err)
	}
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	return limiter.New(store, parsed), nil
}

// UserOrIP keys authenticated requests by user and anonymous ones by client IP.
func UserOrIP(r *http.Request) string {
	if id, ok := common.UserID(r.Context()); ok {
		return "user:" + id
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the host part of RemoteAddr. Forwarding headers are trusted
// only through chi's RealIP middleware, which rewrites RemoteAddr upstream.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
