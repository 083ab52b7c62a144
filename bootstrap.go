package auth

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-auth-service/persistence"
)

// DefaultServiceKeyDescription labels the key generated on first start.
const DefaultServiceKeyDescription = "Default service key"

// Models returns every model owned by the service, in creation order.
func Models() []any {
	return []any{
		(*User)(nil),
		(*ServiceAPIKey)(nil),
	}
}

// Migrate creates missing tables.
func Migrate(ctx context.Context, db bun.IDB) error {
	return persistence.CreateTables(ctx, db, Models()...)
}

// BootstrapConfig describes the state guaranteed at start up.
type BootstrapConfig struct {
	AdminUsername string
	AdminPassword string
	// APIKeys are inserted when missing.
	APIKeys []string
}

// BootstrapResult reports what Bootstrap created.
type BootstrapResult struct {
	AdminCreated bool
	KeysInserted int
	// GeneratedKey is set when no key existed and one was generated. It is
	// the only time the raw key is available.
	GeneratedKey *ServiceAPIKey
}

// Bootstrap ensures the default administrator exists, every configured
// API key is stored, and at least one service key exists.
func Bootstrap(ctx context.Context, repo RepositoryManager, cfg BootstrapConfig, hasher PasswordAuthenticator, logger Logger) (*BootstrapResult, error) {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	if logger == nil {
		logger = defaultLoggerProvider().GetLogger("bootstrap")
	}
	logger = logger.WithContext(ctx)

	res := &BootstrapResult{}

	if username := strings.TrimSpace(cfg.AdminUsername); username != "" {
		created, err := ensureAdmin(ctx, repo, username, cfg.AdminPassword, hasher)
		if err != nil {
			return nil, err
		}
		if created {
			res.AdminCreated = true
			logger.Info("created default admin user", "username", username)
		}
	}

	for _, raw := range cfg.APIKeys {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		_, err := repo.ServiceKeys().GetByKey(ctx, raw)
		if err == nil {
			continue
		}
		if !isRecordNotFound(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up configured service key")
		}

		key, err := repo.ServiceKeys().Insert(ctx, &ServiceAPIKey{Key: raw, Description: "Configured service key"})
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store configured service key")
		}
		res.KeysInserted++
		logger.Info("stored configured service key", "key_id", key.ID.String(), "key_suffix", key.Suffix())
	}

	count, err := repo.ServiceKeys().Count(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count service keys")
	}

	if count == 0 {
		key, err := repo.ServiceKeys().Generate(ctx, DefaultServiceKeyDescription)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate default service key")
		}
		res.GeneratedKey = key
		logger.Warn("generated default service key", "key_id", key.ID.String(), "key_suffix", key.Suffix())
	}

	return res, nil
}

func ensureAdmin(ctx context.Context, repo RepositoryManager, username, password string, hasher PasswordAuthenticator) (bool, error) {
	_, err := repo.Users().GetByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !isRecordNotFound(err) {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up admin user")
	}

	hash, err := hasher.HashPassword(password)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid default admin password")
	}

	_, err = repo.Users().Register(ctx, &User{
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      true,
	})
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create admin user")
	}
	return true, nil
}
