package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"shopauth/internal/domain/models"
	"shopauth/internal/lib/password"
	"shopauth/internal/lib/sl"
	"shopauth/internal/lib/validation"
	"shopauth/internal/services/auth"
)

type Auth interface {
	Login(
		ctx context.Context,
		userName string,
		password string,
	) (*models.AuthResponse, error)
	Register(
		ctx context.Context,
		userName string,
		password string,
		email string,
	) (*models.AuthResponse, error)
	Refresh(
		ctx context.Context,
		refreshToken string,
		accessToken string,
	) (*models.AuthResponse, error)
	Revoke(
		ctx context.Context,
		refreshToken string,
	) (bool, error)
	Me(
		ctx context.Context,
		userID int64,
	) (*models.UserView, error)
}

type serverAPI struct {
	logger *slog.Logger
	auth   Auth
}

func Register(gRPC *grpc.Server, logger *slog.Logger, auth Auth) {
	gRPC.RegisterService(&serviceDesc, &serverAPI{logger: logger, auth: auth})
}

func (s *serverAPI) Login(
	ctx context.Context,
	req *models.LoginRequest,
) (*models.AuthResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	resp, err := s.auth.Login(ctx, req.UserName, req.Password)
	if err != nil {
		return nil, s.toStatus("grpc.auth.Login", err)
	}

	return resp, nil
}

func (s *serverAPI) Register(
	ctx context.Context,
	req *models.RegisterRequest,
) (*models.AuthResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	resp, err := s.auth.Register(ctx, req.UserName, req.Password, req.Email)
	if err != nil {
		return nil, s.toStatus("grpc.auth.Register", err)
	}

	return resp, nil
}

func (s *serverAPI) Refresh(
	ctx context.Context,
	req *models.RefreshRequest,
) (*models.AuthResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	resp, err := s.auth.Refresh(ctx, req.RefreshToken, req.AccessToken)
	if err != nil {
		return nil, s.toStatus("grpc.auth.Refresh", err)
	}

	return resp, nil
}

func (s *serverAPI) Revoke(
	ctx context.Context,
	req *models.RevokeRequest,
) (*models.RevokeResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	revoked, err := s.auth.Revoke(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus("grpc.auth.Revoke", err)
	}
	if !revoked {
		return nil, status.Error(codes.InvalidArgument, "failed to revoke token")
	}

	return &models.RevokeResponse{Revoked: true}, nil
}

func (s *serverAPI) Me(
	ctx context.Context,
	_ *MeRequest,
) (*models.UserView, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	view, err := s.auth.Me(ctx, userID)
	if err != nil {
		return nil, s.toStatus("grpc.auth.Me", err)
	}

	return view, nil
}

func validate(req any) error {
	if err := validation.Struct(req); err != nil {
		return status.Error(codes.InvalidArgument, strings.Join(validation.Messages(err), "; "))
	}

	return nil
}

// toStatus maps service errors to gRPC statuses. Unexpected errors are
// logged and reported without detail.
func (s *serverAPI) toStatus(op string, err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		return status.Error(codes.Unauthenticated, auth.ErrInvalidOrExpiredToken.Error())
	case errors.Is(err, auth.ErrDuplicateUserName):
		return status.Error(codes.AlreadyExists, auth.ErrDuplicateUserName.Error())
	case errors.Is(err, auth.ErrDuplicateEmail):
		return status.Error(codes.AlreadyExists, auth.ErrDuplicateEmail.Error())
	case errors.Is(err, auth.ErrUserNotFound):
		return status.Error(codes.NotFound, auth.ErrUserNotFound.Error())
	case errors.Is(err, password.ErrTooLong):
		return status.Error(codes.InvalidArgument, password.ErrTooLong.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}

	s.logger.Error("request failed", slog.String("op", op), sl.Err(err))

	return status.Error(codes.Internal, "internal server error")
}
