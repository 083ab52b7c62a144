package persistence

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-auth-service/logging"
)

const (
	// DefaultSlowThreshold applies when SQL_SLOW_MS is unset.
	DefaultSlowThreshold = 300 * time.Millisecond
	// MaxStatementLength bounds the statement copied into a record.
	MaxStatementLength = 500
	// MessageSlowQuery is the message of every slow query record.
	MessageSlowQuery = "slow_query"
)

// SlowQueryHook logs statements that take at least Threshold on the
// "sql.slow" logger. It never alters query results.
type SlowQueryHook struct {
	Threshold time.Duration
	Logger    logging.Logger
	Now       func() time.Time
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func NewSlowQueryHook(threshold time.Duration) *SlowQueryHook {
	if threshold <= 0 {
		threshold = DefaultSlowThreshold
	}
	return &SlowQueryHook{
		Threshold: threshold,
		Logger:    logging.GetLogger("sql.slow"),
		Now:       time.Now,
	}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	defer func() { _ = recover() }()

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	elapsed := now().Sub(event.StartTime)
	if elapsed < h.Threshold {
		return
	}

	args := []any{
		"duration_ms", float64(elapsed.Microseconds()) / 1000,
		"statement", truncate(event.Query, MaxStatementLength),
		"operation", event.Operation(),
	}
	if event.Err != nil {
		args = append(args, "error", event.Err)
	}

	h.Logger.WithContext(ctx).Warn(MessageSlowQuery, args...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
