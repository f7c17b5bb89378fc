package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/guidely/guidely/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyPublicEvent = "guide:public:%s:%s"

// One bucket per client address and endpoint. The rate is generous for
// a human following a guide and tight enough to blunt scripted event
// flooding.
const (
	publicEventRate  = 5.0
	publicEventBurst = 20
)

// PublicLimiter throttles the public scan/completion/question calls. A
// nil or disabled limiter allows every request.
type PublicLimiter struct {
	enabled bool
	bucket  *TokenBucket
}

func NewPublicLimiter(cfg config.Config) *PublicLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return &PublicLimiter{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})
	return &PublicLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
	}
}

func (l *PublicLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow reports whether the caller may record another public event on
// the given endpoint. Redis failures allow the request; availability of
// the guide surface outranks strict throttling.
func (l *PublicLimiter) Allow(ctx context.Context, clientIP, endpoint string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	key := fmt.Sprintf(keyPublicEvent, strings.TrimSpace(clientIP), strings.TrimSpace(endpoint))
	return l.bucket.Allow(ctx, key, publicEventRate, publicEventBurst)
}
