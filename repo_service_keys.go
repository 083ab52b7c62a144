package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/hashicorp/go-secure-stdlib/base62"
	"github.com/uptrace/bun"
)

// ServiceKeyLength is the number of base62 characters in a generated key.
const ServiceKeyLength = 48

// ServiceKeys is the service API key store. Lookups always hit the store.
type ServiceKeys interface {
	repository.Repository[*ServiceAPIKey]

	GetByKey(ctx context.Context, key string) (*ServiceAPIKey, error)
	ListAll(ctx context.Context) ([]*ServiceAPIKey, error)
	Generate(ctx context.Context, description string) (*ServiceAPIKey, error)
	Insert(ctx context.Context, record *ServiceAPIKey) (*ServiceAPIKey, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

type serviceKeys struct {
	repository.Repository[*ServiceAPIKey]
	db *bun.DB
}

var _ ServiceKeys = (*serviceKeys)(nil)

func NewServiceKeysRepository(db *bun.DB) ServiceKeys {
	repo := repository.NewRepository[*ServiceAPIKey](db, repository.ModelHandlers[*ServiceAPIKey]{
		NewRecord: func() *ServiceAPIKey { return &ServiceAPIKey{} },
		GetID: func(k *ServiceAPIKey) uuid.UUID {
			if k == nil {
				return uuid.Nil
			}
			return k.ID
		},
		SetID: func(k *ServiceAPIKey, id uuid.UUID) {
			if k != nil {
				k.ID = id
			}
		},
		GetIdentifier: func() string {
			return "key"
		},
	})

	return &serviceKeys{
		Repository: repo,
		db:         db,
	}
}

func (s *serviceKeys) GetByKey(ctx context.Context, key string) (*ServiceAPIKey, error) {
	if key == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &ServiceAPIKey{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident("key"), key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}
	return record, nil
}

func (s *serviceKeys) ListAll(ctx context.Context) ([]*ServiceAPIKey, error) {
	records := make([]*ServiceAPIKey, 0)
	err := s.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.created_at DESC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return records, nil
}

// Generate creates a key with fresh random material.
func (s *serviceKeys) Generate(ctx context.Context, description string) (*ServiceAPIKey, error) {
	key, err := GenerateServiceKey()
	if err != nil {
		return nil, err
	}
	return s.Insert(ctx, &ServiceAPIKey{
		Key:         key,
		Description: strings.TrimSpace(description),
	})
}

func (s *serviceKeys) Insert(ctx context.Context, record *ServiceAPIKey) (*ServiceAPIKey, error) {
	prepareServiceKeyDefaults(record)
	return s.Repository.CreateTx(ctx, s.db, record)
}

func (s *serviceKeys) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewDelete().
		Model(&ServiceAPIKey{ID: id}).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "id", id.String())
}

// GenerateServiceKey returns ServiceKeyLength random base62 characters.
func GenerateServiceKey() (string, error) {
	key, err := base62.Random(ServiceKeyLength)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate service key")
	}
	return key, nil
}
