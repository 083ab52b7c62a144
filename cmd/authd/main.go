package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	auth "github.com/goliatone/go-auth-service"
	"github.com/goliatone/go-auth-service/activitymap"
	"github.com/goliatone/go-auth-service/config"
	"github.com/goliatone/go-auth-service/logging"
	"github.com/goliatone/go-auth-service/metrics"
	"github.com/goliatone/go-auth-service/persistence"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "authd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	provider, err := logging.Setup(logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer provider.Close()

	lgr := provider.GetLogger("app")
	lgr.Debug("configuration loaded", "config", cfg.Dump())

	if cfg.UsesDefaultSecret() {
		lgr.Warn("SECRET_KEY is using the development default")
	}

	ctx := context.Background()

	db, err := persistence.Open(cfg.DatabaseURL, persistence.NewSlowQueryHook(cfg.GetSlowQueryThreshold()))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := auth.Migrate(ctx, db); err != nil {
		return err
	}

	repo := auth.NewRepositoryManager(db)

	secret := []byte(cfg.SecretKey)
	tokens := auth.NewTokenService(secret, cfg.TokenTTL, auth.AudienceAPI,
		auth.WithTokenLogger(provider.GetLogger("token")),
	)
	sessions := auth.NewTokenService(secret, cfg.TokenTTL, auth.AudienceAdmin,
		auth.WithTokenLogger(provider.GetLogger("token")),
	)
	resets, err := auth.NewResetTokenService(secret, cfg.ResetTokenMaxAge,
		auth.WithTokenLogger(provider.GetLogger("token")),
	)
	if err != nil {
		return err
	}

	csrfKey, err := auth.DeriveCSRFKey(secret)
	if err != nil {
		return err
	}

	m := metrics.New(nil)

	sink := auth.MultiActivitySink{
		activitymap.NewLogSink(provider.GetLogger("audit"), activitymap.WithDefaultChannel(cfg.AuditChannel)),
		activitymap.NewMetricsSink(m),
	}

	service := auth.NewService(repo, tokens).
		WithLogger(provider.GetLogger("auth")).
		WithActivitySink(sink)

	gate := auth.NewGate(repo).
		WithLogger(provider.GetLogger("gate")).
		WithActivitySink(sink)

	admin := auth.NewAdminService(repo, service, sessions, resets).
		WithLogger(provider.GetLogger("admin")).
		WithActivitySink(sink).
		WithResetURLBuilder(cfg.ResetURL)

	if err := bootstrap(ctx, cfg, repo, provider); err != nil {
		return err
	}

	app := auth.NewHTTPApp(auth.HTTPConfig{
		APIPrefix:     cfg.APIPrefix,
		AdminPrefix:   cfg.AdminPrefix,
		SecureCookies: cfg.SecureCookies,
		CSRFKey:       csrfKey,
		Metrics:       m,
		AccessLogger:  provider.GetLogger("access"),
		AppLogger:     lgr,
	}, service, gate, admin)

	errc := make(chan error, 1)
	go func() {
		lgr.Info("listening", "addr", cfg.ListenAddr)
		errc <- app.Listen(cfg.ListenAddr)
	}()

	select {
	case err := <-errc:
		return err
	case sig := <-waitExitSignal():
		lgr.Info("shutting down", "signal", sig.String())
	}

	return app.ShutdownWithTimeout(shutdownTimeout)
}

func bootstrap(ctx context.Context, cfg *config.Config, repo auth.RepositoryManager, provider *logging.Provider) error {
	res, err := auth.Bootstrap(ctx, repo, auth.BootstrapConfig{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		APIKeys:       cfg.APIKeys,
	}, nil, provider.GetLogger("bootstrap"))
	if err != nil {
		return err
	}

	// the raw key is shown once, on the terminal only
	if res.GeneratedKey != nil {
		fmt.Fprintf(os.Stdout, "generated service API key: %s\n", res.GeneratedKey.Key)
	}

	return nil
}

func waitExitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return ch
}
