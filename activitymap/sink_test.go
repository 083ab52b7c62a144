package activitymap_test

import (
	"context"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-service"
	"github.com/goliatone/go-auth-service/activitymap"
	"github.com/goliatone/go-auth-service/logging"
	"github.com/goliatone/go-auth-service/metrics"
)

func newAuditLogger(t *testing.T) (logging.Logger, *test.Hook) {
	t.Helper()
	hook := new(test.Hook)
	p, err := logging.NewProvider(logging.Options{Level: "debug", Output: io.Discard, Hooks: []logrus.Hook{hook}})
	require.NoError(t, err)
	return p.GetLogger(activitymap.AuditLoggerName), hook
}

func TestLogSink_LevelsByOutcome(t *testing.T) {
	logger, hook := newAuditLogger(t)
	sink := activitymap.NewLogSink(logger)
	ctx := logging.WithRequestID(context.Background(), "rid-1")

	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{
		EventType: auth.ActivityEventLoginSuccess,
		Actor:     auth.ActorRef{ID: "u-1", Type: auth.ActorTypeUser},
		UserID:    "u-1",
		Metadata:  map[string]any{"username": "alice"},
	}))

	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{
		EventType: auth.ActivityEventLoginFailure,
		Reason:    auth.ReasonUserNotFound,
		Metadata:  map[string]any{"username": "ghost"},
	}))

	entries := hook.AllEntries()
	require.Len(t, entries, 2)

	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, "auth.login.success", entries[0].Message)
	assert.Equal(t, "audit", entries[0].Data["logger"])
	assert.Equal(t, "u-1", entries[0].Data["actor_id"])
	assert.Equal(t, "alice", entries[0].Data["username"])
	assert.Equal(t, "success", entries[0].Data["outcome"])

	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
	assert.Equal(t, "auth.login.failure", entries[1].Message)
	assert.Equal(t, "user_not_found", entries[1].Data["reason"])
	assert.Equal(t, "anonymous", entries[1].Data["actor_id"])
	assert.Equal(t, "failure", entries[1].Data["outcome"])
}

func TestMetricsSink_CountsEvents(t *testing.T) {
	m := metrics.New(nil)
	sink := activitymap.NewMetricsSink(m)
	ctx := context.Background()

	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventAPIKeyRejected, Reason: auth.ReasonInvalidAPIKey}))
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventAPIKeyRejected, Reason: auth.ReasonInvalidAPIKey}))
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventLoginSuccess}))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GateRejectionTotal.WithLabelValues(auth.ReasonInvalidAPIKey)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthEventsTotal.WithLabelValues("gate.apikey.rejected", "invalid_api_key")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthEventsTotal.WithLabelValues("auth.login.success", "")))
}

func TestSinksFanOut(t *testing.T) {
	logger, hook := newAuditLogger(t)
	m := metrics.New(nil)

	sink := auth.MultiActivitySink{activitymap.NewLogSink(logger), activitymap.NewMetricsSink(m)}
	require.NoError(t, sink.Record(context.Background(), auth.ActivityEvent{EventType: auth.ActivityEventRegisterSuccess}))

	assert.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthEventsTotal.WithLabelValues("auth.register.success", "")))
}
