package grpcapp

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"

	authgrpc "shopauth/internal/grpc/auth"
)

type App struct {
	logger     *slog.Logger
	gRPCServer *grpc.Server
	port       int
}

func New(
	logger *slog.Logger,
	authService authgrpc.Auth,
	tokens authgrpc.TokenValidator,
	port int,
	timeout time.Duration,
) *App {
	gRPCServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		authgrpc.Timeout(timeout),
		authgrpc.BearerAuth(logger, tokens, authgrpc.MethodRevoke, authgrpc.MethodMe),
	))
	authgrpc.Register(gRPCServer, logger, authService)

	return &App{
		logger:     logger,
		gRPCServer: gRPCServer,
		port:       port,
	}
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "grpcapp.Run"

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.port))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return a.Serve(listener)
}

// Serve accepts connections on listener until Stop is called.
func (a *App) Serve(listener net.Listener) error {
	const op = "grpcapp.Serve"

	log := a.logger.With(slog.String("op", op))
	log.Info("gRPC server is running", slog.String("address", listener.Addr().String()))

	if err := a.gRPCServer.Serve(listener); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *App) Stop() {
	const op = "grpcapp.Stop"
	log := a.logger.With(slog.String("op", op))
	log.Info("stopping gRPC server", slog.Int("port", a.port))

	a.gRPCServer.GracefulStop()
}
