package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"shopauth/internal/lib/jwt"
	"shopauth/internal/lib/sl"
)

type ctxKey string

const userIDKey ctxKey = "userID"

type TokenValidator interface {
	ValidateAccessToken(token string) (*jwt.Claims, error)
}

// UserIDFromContext returns the id of the caller authenticated by
// BearerAuth.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// BearerAuth requires a valid "authorization: Bearer <access token>"
// metadata entry on the listed methods and stores the caller id in the
// context. Other methods pass through untouched.
func BearerAuth(logger *slog.Logger, validator TokenValidator, methods ...string) grpc.UnaryServerInterceptor {
	protected := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		protected[m] = struct{}{}
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := protected[info.FullMethod]; !ok {
			return handler(ctx, req)
		}

		const op = "grpc.auth.BearerAuth"
		log := logger.With(slog.String("op", op), slog.String("method", info.FullMethod))

		token := bearerToken(ctx)
		if token == "" {
			log.Warn("missing bearer token")
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		claims, err := validator.ValidateAccessToken(token)
		if err != nil {
			log.Warn("invalid access token", sl.Err(err))
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		userID, err := claims.UserID()
		if err != nil {
			log.Warn("invalid subject claim", sl.Err(err))
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		return handler(context.WithValue(ctx, userIDKey, userID), req)
	}
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}

	scheme, token, found := strings.Cut(strings.TrimSpace(values[0]), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}

// Timeout bounds every unary call by d.
func Timeout(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if d <= 0 {
			return handler(ctx, req)
		}

		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		return handler(ctx, req)
	}
}
