package auth

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-auth-service/logging"
)

// HeaderAPIKey carries the service API key.
const HeaderAPIKey = "x-api-key"

// MessageAPIKeyRejected is logged at warn level for every refused key.
const MessageAPIKeyRejected = "api key rejected"

// Gate admits requests presenting a known service API key. It holds no
// cache; every call reads the store.
type Gate struct {
	repo         RepositoryManager
	logger       Logger
	activitySink ActivitySink
}

var _ APIKeyValidator = (*Gate)(nil)

func NewGate(repo RepositoryManager) *Gate {
	return &Gate{
		repo:         repo,
		logger:       defaultLoggerProvider().GetLogger("auth.gate"),
		activitySink: noopActivitySink{},
	}
}

func (g *Gate) WithLogger(logger Logger) *Gate {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithActivitySink sets the sink receiving rejection events.
func (g *Gate) WithActivitySink(sink ActivitySink) *Gate {
	g.activitySink = normalizeActivitySink(sink)
	return g
}

// Admit resolves rawKey to the calling service. An empty key fails with
// ErrMissingAPIKey, an unknown one with ErrInvalidAPIKey.
func (g *Gate) Admit(ctx context.Context, rawKey string) (*ServiceCaller, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		g.reject(ctx, ReasonMissingAPIKey, "")
		return nil, ErrMissingAPIKey
	}

	key, err := g.repo.ServiceKeys().GetByKey(ctx, rawKey)
	if err != nil {
		if isRecordNotFound(err) {
			g.reject(ctx, ReasonInvalidAPIKey, rawKey)
			return nil, ErrInvalidAPIKey
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up service key")
	}

	return key.Caller(), nil
}

// AdmitContext admits rawKey and returns ctx carrying the caller.
func (g *Gate) AdmitContext(ctx context.Context, rawKey string) (context.Context, error) {
	caller, err := g.Admit(ctx, rawKey)
	if err != nil {
		return ctx, err
	}
	return WithCaller(ctx, caller), nil
}

func (g *Gate) reject(ctx context.Context, reason, rawKey string) {
	suffix := ""
	if rawKey != "" {
		suffix = logging.MaskKey(rawKey)
	}

	g.logger.WithContext(ctx).Warn(MessageAPIKeyRejected, "reason", reason, "key_suffix", suffix)

	recordActivity(ctx, g.activitySink, g.logger, ActivityEvent{
		EventType: ActivityEventAPIKeyRejected,
		Actor:     ActorRef{Type: ActorTypeAnonymous},
		Reason:    reason,
		Metadata: map[string]any{
			"key_suffix": suffix,
		},
	})
}
