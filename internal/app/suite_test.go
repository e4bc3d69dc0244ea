package app_test

import (
	"context"
	"net"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"shopauth/internal/app"
	"shopauth/internal/config"
	authgrpc "shopauth/internal/grpc/auth"
	"shopauth/internal/lib/handlers/slogdiscard"
	"shopauth/internal/storage/migrator"
	"shopauth/migrations"
)

type Suite struct {
	*testing.T
	Cfg        *config.Config
	AuthClient *authgrpc.Client
	HTTPURL    string
}

// newSuite boots the whole application on a fresh SQLite file, serving gRPC
// over an in-memory listener and HTTP through httptest.
func newSuite(t *testing.T) (context.Context, *Suite) {
	t.Helper()
	t.Parallel()

	cfg := config.MustLoadPath("../../config/test.yaml")
	cfg.Storage.Path = filepath.Join(t.TempDir(), "auth.db")

	_, err := migrator.Up(migrations.SQLiteDir, migrator.SQLiteURL(cfg.Storage.Path, ""))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	application, err := app.New(ctx, slogdiscard.NewDiscardLogger(), cfg)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = application.GRPCSrv.Serve(lis) }()

	httpSrv := httptest.NewServer(application.HTTPSrv.Handler())

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		t.Helper()
		_ = cc.Close()
		httpSrv.Close()
		application.GRPCSrv.Stop()
		_ = application.Close(context.Background())
		cancel()
	})

	return ctx, &Suite{
		T:          t,
		Cfg:        cfg,
		AuthClient: authgrpc.NewClient(cc),
		HTTPURL:    httpSrv.URL,
	}
}
