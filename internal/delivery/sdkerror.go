package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/roach88/beacon/internal/clock"
	"github.com/roach88/beacon/internal/payload"
	"github.com/roach88/beacon/internal/transport"
)

// ErrorRejected is the sdk_error type for a host event that failed
// validation.
const ErrorRejected = "rejected"

const maxReportedMessage = 256

// ErrorReporter sends sdk_error events straight to the collector,
// bypassing the store. Each distinct message gets its own token bucket of
// limit reports refilled over one hour.
type ErrorReporter struct {
	transport transport.Transport
	session   Session
	clock     clock.Clock
	limit     int
	logger    *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newErrorReporter(tr transport.Transport, session Session, c clock.Clock, limit int, logger *slog.Logger) *ErrorReporter {
	return &ErrorReporter{
		transport: tr,
		session:   session,
		clock:     c,
		limit:     limit,
		logger:    logger,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Report sends one sdk_error unless message has hit its hourly limit.
// Returns whether the event was sent.
func (r *ErrorReporter) Report(ctx context.Context, kind, message string) bool {
	if r.limit <= 0 {
		return false
	}
	if !r.allow(kind + "|" + message) {
		r.logger.Debug("sdk_error suppressed by rate limit", "type", kind, "message", message)
		return false
	}

	ev := r.session.SDKErrorAnnotations()
	ev["type"] = kind
	if message != "" {
		ev["message"] = truncate(message, maxReportedMessage)
	}

	outcome, _ := r.transport.PostEvents(ctx, []payload.Object{ev})
	if !outcome.Success() {
		r.logger.Debug("sdk_error not delivered", "outcome", outcome.String())
	}
	return true
}

func (r *ErrorReporter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Hour/time.Duration(r.limit)), r.limit)
		r.limiters[key] = l
	}
	return l.AllowN(r.clock.Now(), 1)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
