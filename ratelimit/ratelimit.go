// Package ratelimit implements the sliding-window request gate applied per
// client address before the session state machine runs. The hit counters
// live in the same key-value store as the protocol state, so any number of
// service instances share one window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/routerlabs/device-cert-backend/interfaces"
	"github.com/routerlabs/device-cert-backend/metrics"
)

// Config holds the limiter settings.
type Config struct {
	// WindowTime is the sliding window within which hits are counted.
	WindowTime time.Duration

	// BanTime replaces the counter's expiry once MaxHits is exceeded.
	BanTime time.Duration

	// MaxHits is the number of admitted hits per window. Zero disables
	// the limiter entirely: every request is admitted and nothing is
	// counted.
	MaxHits int64
}

// Limiter decides admit/deny per client address.
type Limiter struct {
	store interfaces.KeyValueStore
	cfg   Config
	log   *slog.Logger
}

// New creates a limiter backed by the given store.
func New(store interfaces.KeyValueStore, cfg Config, log *slog.Logger) *Limiter {
	return &Limiter{store: store, cfg: cfg, log: log}
}

func hitsKey(remoteAddr string) string {
	return fmt.Sprintf("rate-limit:%s", remoteAddr)
}

// Check admits or denies a request from remoteAddr. Denials are process
// errors: the client is expected to back off and retry after the window.
func (l *Limiter) Check(ctx context.Context, remoteAddr string) error {
	if l.cfg.MaxHits == 0 {
		return nil
	}

	key := hitsKey(remoteAddr)
	hits, err := l.currentHits(ctx, key)
	if err != nil {
		return err
	}
	if hits > l.cfg.MaxHits {
		// already banned, do not touch the counter so the ban expiry holds
		return l.deny(remoteAddr)
	}

	hits, err = l.store.IncrementWindow(ctx, key, l.cfg.WindowTime)
	if err != nil {
		return interfaces.SystemWrap(err, "rate-limit increment failed for %s", remoteAddr)
	}
	if hits > l.cfg.MaxHits {
		if err := l.store.Expire(ctx, key, l.cfg.BanTime); err != nil {
			return interfaces.SystemWrap(err, "rate-limit ban failed for %s", remoteAddr)
		}
		return l.deny(remoteAddr)
	}
	return nil
}

func (l *Limiter) currentHits(ctx context.Context, key string) (int64, error) {
	raw, err := l.store.Get(ctx, key)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, interfaces.SystemWrap(err, "rate-limit read failed for %s", key)
	}

	hits, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, interfaces.SystemWrap(err, "rate-limit counter broken for %s", key)
	}
	return hits, nil
}

func (l *Limiter) deny(remoteAddr string) error {
	l.log.Debug("rate limit hit", "remoteAddr", remoteAddr)
	metrics.RateLimitedTotal.Inc()
	return interfaces.Processf("You hit the rate limit")
}
