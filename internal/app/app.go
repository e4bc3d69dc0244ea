package app

import (
	"context"
	"fmt"
	"log/slog"

	grpcapp "shopauth/internal/app/grpc"
	httpapp "shopauth/internal/app/http"
	"shopauth/internal/config"
	"shopauth/internal/lib/jwt"
	"shopauth/internal/lib/password"
	"shopauth/internal/services/auth"
	"shopauth/internal/storage/mongodb"
	"shopauth/internal/storage/postgres"
	"shopauth/internal/storage/sqlite"
)

type App struct {
	GRPCSrv *grpcapp.App
	HTTPSrv *httpapp.App
	Auth    *auth.Auth

	closeStorage func(context.Context) error
}

type userStore interface {
	auth.UserSaver
	auth.UserProvider
}

func New(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
) (*App, error) {
	const op = "app.New"

	store, closeStorage, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tokens := jwt.New(cfg.JWT, cfg.AccessTokenTTL)
	authService := auth.New(
		logger,
		store,
		store,
		tokens,
		password.New(cfg.PasswordCost),
		cfg.RefreshTokenTTL,
		auth.WithRefreshCoalescing(cfg.CoalesceRefresh),
	)

	return &App{
		GRPCSrv:      grpcapp.New(logger, authService, tokens, cfg.GRPC.Port, cfg.GRPC.Timeout),
		HTTPSrv:      httpapp.New(logger, authService, tokens, cfg.HTTP),
		Auth:         authService,
		closeStorage: closeStorage,
	}, nil
}

// Close releases the storage connection.
func (a *App) Close(ctx context.Context) error {
	return a.closeStorage(ctx)
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (userStore, func(context.Context) error, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case config.DriverMongo:
		s, err := mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Driver)
	}
}
