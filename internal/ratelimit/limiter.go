package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"blog-platform/internal/web"
)

const recordTimeout = 3 * time.Second

// Store is the slice of the request repository the limiter needs.
type Store interface {
	CountSince(ctx context.Context, ip, route string, since time.Time) (int, error)
	Record(ctx context.Context, ip, route string, at time.Time) error
}

// Limiter is a sliding-window counter keyed by (ip, route). It knows nothing
// about auth semantics; it is applied per endpoint so unrelated traffic is
// unaffected. The count-then-insert pair is not atomic: a truly simultaneous
// burst can exceed the threshold by a few requests, which is accepted slack.
type Limiter struct {
	store  Store
	max    int
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewLimiter(store Store, max int, window time.Duration, logger *zap.Logger) *Limiter {
	if max <= 0 {
		max = 4
	}
	if window <= 0 {
		window = 10 * time.Second
	}

	return &Limiter{
		store:  store,
		max:    max,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := web.ClientIP(r)
		route := r.URL.Path
		now := l.now().UTC()

		count, err := l.store.CountSince(r.Context(), ip, route, now.Add(-l.window))
		if err != nil {
			// Fail open: a broken limiter store must not take the auth
			// endpoints down with it.
			l.logger.Warn("rate limit count failed", zap.String("route", route), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		if count >= l.max {
			// The rejected attempt is not recorded, so a blocked client's
			// retries never extend its own block.
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			web.Error(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		go l.record(ip, route, now)

		next.ServeHTTP(w, r)
	})
}

// record persists the request off the hot path. A failed write is logged and
// dropped; it must never block or fail the request it belongs to.
func (l *Limiter) record(ip, route string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := l.store.Record(ctx, ip, route, at); err != nil {
		l.logger.Warn("rate limit record failed", zap.String("route", route), zap.Error(err))
	}
}
