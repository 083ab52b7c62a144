package activitymap

import (
	"context"
	"sort"

	auth "github.com/goliatone/go-auth-service"
	"github.com/goliatone/go-auth-service/logging"
	"github.com/goliatone/go-auth-service/metrics"
)

// AuditLoggerName is the logger every audit record is written to.
const AuditLoggerName = "audit"

// LogSink writes one audit record per event. Rejections are written at warn
// level, everything else at info.
type LogSink struct {
	logger logging.Logger
	opts   []Option
}

var _ auth.ActivitySink = (*LogSink)(nil)

// NewLogSink returns a sink writing to logger, or to the "audit" logger
// when logger is nil.
func NewLogSink(logger logging.Logger, opts ...Option) *LogSink {
	if logger == nil {
		logger = logging.GetLogger(AuditLoggerName)
	}
	return &LogSink{logger: logger, opts: opts}
}

func (s *LogSink) Record(ctx context.Context, event auth.ActivityEvent) error {
	n := Normalize(event, s.opts...)

	args := []any{
		"actor_id", n.ActorID,
		"object_type", n.ObjectType,
		"object_id", n.ObjectID,
		"channel", n.Channel,
		"occurred_at", n.OccurredAt,
	}

	// stable field order keeps records diffable
	keys := make([]string, 0, len(n.Metadata))
	for k := range n.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, n.Metadata[k])
	}

	logger := s.logger.WithContext(ctx)
	if event.IsFailure() {
		logger.Warn(n.Verb, args...)
	} else {
		logger.Info(n.Verb, args...)
	}
	return nil
}

// MetricsSink counts events by type and reason.
type MetricsSink struct {
	metrics *metrics.Metrics
}

var _ auth.ActivitySink = (*MetricsSink)(nil)

func NewMetricsSink(m *metrics.Metrics) *MetricsSink {
	return &MetricsSink{metrics: m}
}

func (s *MetricsSink) Record(_ context.Context, event auth.ActivityEvent) error {
	if s == nil || s.metrics == nil {
		return nil
	}

	s.metrics.ObserveEvent(string(event.EventType), event.Reason)
	if event.EventType == auth.ActivityEventAPIKeyRejected {
		s.metrics.ObserveGateRejection(event.Reason)
	}
	return nil
}
