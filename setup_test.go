package auth_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-auth-service"
	"github.com/goliatone/go-auth-service/logging"
	"github.com/goliatone/go-auth-service/persistence"
)

var testSecret = []byte("test-secret-key")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Events() []auth.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) ByType(eventType auth.ActivityEventType) []auth.ActivityEvent {
	var out []auth.ActivityEvent
	for _, e := range s.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (s *recordingSink) Last() auth.ActivityEvent {
	events := s.Events()
	if len(events) == 0 {
		return auth.ActivityEvent{}
	}
	return events[len(events)-1]
}

// captureLogs returns a provider whose records are only visible through the
// returned hook.
func captureLogs(t *testing.T) (*logging.Provider, *test.Hook) {
	t.Helper()
	hook := new(test.Hook)
	p, err := logging.NewProvider(logging.Options{
		Level:  "debug",
		Output: io.Discard,
		Hooks:  []logrus.Hook{hook},
	})
	require.NoError(t, err)
	return p, hook
}

func entriesWithMessage(hook *test.Hook, msg string) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			out = append(out, e)
		}
	}
	return out
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := persistence.Open(fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, auth.Migrate(context.Background(), db))
	return db
}

type testEnv struct {
	db      *bun.DB
	repo    auth.RepositoryManager
	clock   *fakeClock
	hasher  auth.PasswordAuthenticator
	tokens  *auth.JWTTokenService
	admins  *auth.JWTTokenService
	resets  *auth.ResetTokenCodec
	sink    *recordingSink
	service *auth.Service
	gate    *auth.Gate
	admin   *auth.AdminService
	apiKey  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	repo := auth.NewRepositoryManager(db)
	clock := newFakeClock()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	sink := &recordingSink{}

	tokens := auth.NewTokenService(testSecret, auth.DefaultTokenTTL, auth.AudienceAPI, auth.WithClock(clock.Now))
	admins := auth.NewTokenService(testSecret, auth.DefaultTokenTTL, auth.AudienceAdmin, auth.WithClock(clock.Now))
	resets, err := auth.NewResetTokenService(testSecret, auth.DefaultResetTokenMaxAge, auth.WithClock(clock.Now))
	require.NoError(t, err)

	service := auth.NewService(repo, tokens).
		WithPasswordHasher(hasher).
		WithActivitySink(sink)

	gate := auth.NewGate(repo).WithActivitySink(sink)

	admin := auth.NewAdminService(repo, service, admins, resets).
		WithPasswordHasher(hasher).
		WithActivitySink(sink).
		WithResetURLBuilder(func(token string) string {
			return "http://auth.test/admin/reset/" + token
		})

	key, err := repo.ServiceKeys().Generate(context.Background(), "test suite")
	require.NoError(t, err)

	return &testEnv{
		db:      db,
		repo:    repo,
		clock:   clock,
		hasher:  hasher,
		tokens:  tokens,
		admins:  admins,
		resets:  resets,
		sink:    sink,
		service: service,
		gate:    gate,
		admin:   admin,
		apiKey:  key.Key,
	}
}

func (e *testEnv) register(t *testing.T, username, email, password string) *auth.User {
	t.Helper()
	user, err := e.service.Register(context.Background(), auth.RegisterUserMessage{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	require.NotNil(t, user)
	return user
}

func (e *testEnv) registerAdmin(t *testing.T, username, password string) *auth.User {
	t.Helper()
	user, err := e.service.Register(context.Background(), auth.RegisterUserMessage{
		Username: username,
		Password: password,
		IsAdmin:  true,
	})
	require.NoError(t, err)
	return user
}
