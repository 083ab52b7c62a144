// Package persistence opens the bun database described by a DSN and
// prepares its schema.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Dialect names accepted by Open.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// DefaultDSN is an in memory sqlite database.
const DefaultDSN = "file::memory:?cache=shared"

// Open returns a bun database for dsn. Recognised schemes are sqlite://,
// file:, postgres://, postgresql:// and mysql:// (optionally mysql+<driver>://).
func Open(dsn string, hooks ...bun.QueryHook) (*bun.DB, error) {
	dialect, driverDSN, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	var db *bun.DB
	switch dialect {
	case DialectPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(driverDSN)))
		db = bun.NewDB(sqldb, pgdialect.New())
	case DialectMySQL:
		sqldb, err := sql.Open("mysql", driverDSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open mysql database")
		}
		db = bun.NewDB(sqldb, mysqldialect.New())
	default:
		sqldb, err := sql.Open(sqliteshim.ShimName, driverDSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
		}
		if strings.Contains(driverDSN, ":memory:") || strings.Contains(driverDSN, "mode=memory") {
			sqldb.SetMaxOpenConns(1)
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	for _, hook := range hooks {
		if hook != nil {
			db.AddQueryHook(hook)
		}
	}

	return db, nil
}

// ParseDSN returns the dialect and the driver specific DSN for dsn.
func ParseDSN(dsn string) (dialect, driverDSN string, err error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return DialectSQLite, DefaultDSN, nil
	}

	switch {
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return DialectSQLite, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return DialectSQLite, "file:" + strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, dsn, nil
	case strings.HasPrefix(dsn, "mysql://"), strings.HasPrefix(dsn, "mysql+"):
		driverDSN, err := mysqlDSN(dsn)
		if err != nil {
			return "", "", err
		}
		return DialectMySQL, driverDSN, nil
	}

	return "", "", goerrors.New("unsupported database url", goerrors.CategoryBadInput).
		WithMetadata(map[string]any{"scheme": schemeOf(dsn)})
}

func mysqlDSN(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid mysql database url")
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Host + ":3306"
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	for k, vs := range u.Query() {
		if len(vs) > 0 && k != "charset" {
			if cfg.Params == nil {
				cfg.Params = map[string]string{}
			}
			cfg.Params[k] = vs[0]
		}
	}

	return cfg.FormatDSN(), nil
}

func schemeOf(dsn string) string {
	if i := strings.Index(dsn, "://"); i > 0 {
		return dsn[:i]
	}
	return ""
}

// CreateTables creates the table of every model that does not exist yet.
func CreateTables(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create table").
				WithMetadata(map[string]any{"model": fmt.Sprintf("%T", model)})
		}
	}
	return nil
}
