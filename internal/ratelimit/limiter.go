// Package ratelimit enforces per-client request quotas across three
// fixed windows (minute, hour, day) with lazy expiry and periodic
// eviction of idle client state.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/avolkov/admitgw/internal/observability"
)

// Window names reported in results and headers.
const (
	WindowMinute = "per_minute"
	WindowHour   = "per_hour"
	WindowDay    = "per_day"
)

// Window durations.
const (
	minuteDuration = time.Minute
	hourDuration   = time.Hour
	dayDuration    = 24 * time.Hour
)

// DefaultRetention is how long an idle, empty client record is kept
// before the sweep removes it.
const DefaultRetention = 24 * time.Hour

// UnlimitedRemaining is the sentinel remaining value reported when no
// limit is configured for the reporting window.
const UnlimitedRemaining = 1<<31 - 1

// Limits holds the per-client limits for one call site. A value of
// zero or less means unbounded for that granularity.
type Limits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// Unbounded reports whether no positive limit is configured.
func (l Limits) Unbounded() bool {
	return l.PerMinute <= 0 && l.PerHour <= 0 && l.PerDay <= 0
}

// Result represents the outcome of a rate limit check. Terminal value,
// never mutated after construction.
type Result struct {
	// Allowed indicates whether the request is admitted.
	Allowed bool `json:"allowed"`

	// Limit is the limit of the reported window.
	Limit int `json:"limit"`

	// Remaining is the number of requests remaining in the reported
	// window, or UnlimitedRemaining when it has no limit.
	Remaining int `json:"remaining"`

	// ResetAt is when the reported window resets, in epoch seconds.
	ResetAt int64 `json:"resetAt"`

	// Window names the reported window.
	Window string `json:"window"`
}

// window is one fixed accounting period. count reflects admitted
// requests since windowStart; windowStart advances only when the
// window is observed expired.
type window struct {
	count       int64
	windowStart time.Time
}

// expireIfNeeded resets the window when its duration has fully elapsed.
func (w *window) expireIfNeeded(now time.Time, duration time.Duration) {
	if now.Sub(w.windowStart) >= duration {
		w.count = 0
		w.windowStart = now
	}
}

// resetAt returns the epoch second at which the window resets.
func (w *window) resetAt(now time.Time, duration time.Duration) int64 {
	remaining := duration - now.Sub(w.windowStart)
	if remaining < 0 {
		remaining = 0
	}
	return now.Add(remaining).Unix()
}

// clientRecord holds the three windows for one client key. All reads
// and mutations of the windows happen under mu, so concurrent requests
// for the same key are linearized while different keys never contend.
type clientRecord struct {
	mu       sync.Mutex
	minute   window
	hour     window
	day      window
	lastSeen time.Time
}

// Limiter maintains per-client window counters. The zero value is not
// usable; use NewLimiter.
type Limiter struct {
	clients sync.Map // string -> *clientRecord
	logger  observability.Logger
	metrics *Metrics

	stopOnce sync.Once
	stopCh   chan struct{}
}

// LimiterOption is a functional option for the limiter.
type LimiterOption func(*Limiter)

// WithLimiterLogger sets the logger.
func WithLimiterLogger(logger observability.Logger) LimiterOption {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithLimiterMetrics sets the metrics.
func WithLimiterMetrics(metrics *Metrics) LimiterOption {
	return func(l *Limiter) {
		l.metrics = metrics
	}
}

// NewLimiter creates a new multi-window rate limiter.
func NewLimiter(opts ...LimiterOption) *Limiter {
	l := &Limiter{
		logger: observability.NopLogger(),
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.metrics == nil {
		l.metrics = NewMetrics("admitgw")
	}

	return l
}

// Check decides admission for one request from the given client key
// and, when admitted, charges all three windows. Accounting is
// pessimistic: the charge is committed at admission time and is not
// rolled back if the caller later aborts the request.
//
// Limits are evaluated most-restrictive-first (minute, hour, day); the
// first exceeded limit terminates the check and names its window.
func (l *Limiter) Check(ctx context.Context, key string, limits Limits) *Result {
	now := time.Now()

	value, loaded := l.clients.LoadOrStore(key, &clientRecord{
		minute:   window{windowStart: now},
		hour:     window{windowStart: now},
		day:      window{windowStart: now},
		lastSeen: now,
	})
	rec := value.(*clientRecord)
	if !loaded {
		l.metrics.SetClients(l.countClients())
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.lastSeen = now
	rec.minute.expireIfNeeded(now, minuteDuration)
	rec.hour.expireIfNeeded(now, hourDuration)
	rec.day.expireIfNeeded(now, dayDuration)

	checks := []struct {
		name     string
		limit    int
		win      *window
		duration time.Duration
	}{
		{WindowMinute, limits.PerMinute, &rec.minute, minuteDuration},
		{WindowHour, limits.PerHour, &rec.hour, hourDuration},
		{WindowDay, limits.PerDay, &rec.day, dayDuration},
	}

	for _, c := range checks {
		if c.limit > 0 && c.win.count >= int64(c.limit) {
			l.metrics.RecordCheck("rejected")
			l.metrics.RecordReject(c.name)
			l.logger.Debug("rate limit exceeded",
				observability.String("key", key),
				observability.String("window", c.name),
				observability.Int("limit", c.limit),
			)
			return &Result{
				Allowed:   false,
				Limit:     c.limit,
				Remaining: 0,
				ResetAt:   c.win.resetAt(now, c.duration),
				Window:    c.name,
			}
		}
	}

	rec.minute.count++
	rec.hour.count++
	rec.day.count++

	remaining := UnlimitedRemaining
	limit := 0
	if limits.PerMinute > 0 {
		limit = limits.PerMinute
		remaining = limits.PerMinute - int(rec.minute.count)
		if remaining < 0 {
			remaining = 0
		}
	}

	l.metrics.RecordCheck("allowed")
	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   rec.minute.resetAt(now, minuteDuration),
		Window:    WindowMinute,
	}
}

// Sweep removes client records that have been idle beyond retention
// and whose day window holds no accumulated count. Records with a
// nonzero pending count are retained so a client's history is never
// silently reset mid-window. Returns the number of removed records.
func (l *Limiter) Sweep(retention time.Duration) int {
	now := time.Now()
	removed := 0

	l.clients.Range(func(key, value interface{}) bool {
		rec := value.(*clientRecord)
		rec.mu.Lock()
		stale := now.Sub(rec.lastSeen) > retention
		empty := rec.day.count == 0
		rec.mu.Unlock()

		if stale && empty {
			l.clients.Delete(key)
			removed++
		}
		return true
	})

	if removed > 0 {
		l.metrics.RecordSwept(removed)
		l.metrics.SetClients(l.countClients())
		l.logger.Debug("swept idle rate limit records",
			observability.Int("removed", removed),
		)
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until Stop is called.
// A non-positive interval disables sweeping.
func (l *Limiter) StartSweeper(interval, retention time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Sweep(retention)
			case <-l.stopCh:
				return
			}
		}
	}()
}

// Stop stops the sweeper goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

// countClients returns the number of tracked client records.
func (l *Limiter) countClients() int {
	count := 0
	l.clients.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}
