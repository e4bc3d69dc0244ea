package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"shopauth/internal/domain/models"
	"shopauth/internal/lib/password"
	"shopauth/internal/lib/sl"
	"shopauth/internal/lib/validation"
	"shopauth/internal/services/auth"
)

type Auth interface {
	Login(ctx context.Context, userName string, password string) (*models.AuthResponse, error)
	Register(ctx context.Context, userName string, password string, email string) (*models.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string, accessToken string) (*models.AuthResponse, error)
	Revoke(ctx context.Context, refreshToken string) (bool, error)
	Me(ctx context.Context, userID int64) (*models.UserView, error)
}

type handler struct {
	logger *slog.Logger
	auth   Auth
}

// Register mounts the auth endpoints under /api/auth.
func Register(r gin.IRouter, logger *slog.Logger, auth Auth, validator TokenValidator) {
	h := &handler{logger: logger, auth: auth}

	g := r.Group("/api/auth")
	g.POST("/login", h.login)
	g.POST("/register", h.register)
	g.POST("/refresh", h.refresh)

	protected := g.Group("", Bearer(logger, validator))
	protected.POST("/revoke", h.revoke)
	protected.GET("/me", h.me)
}

func (h *handler) login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Failure(validation.Messages(err)...))
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), req.UserName, req.Password)
	if err != nil {
		h.fail(c, "http.auth.login", err)
		return
	}

	c.JSON(http.StatusOK, success(resp))
}

func (h *handler) register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Failure(validation.Messages(err)...))
		return
	}

	resp, err := h.auth.Register(c.Request.Context(), req.UserName, req.Password, req.Email)
	if err != nil {
		h.fail(c, "http.auth.register", err)
		return
	}

	c.JSON(http.StatusOK, success(resp))
}

func (h *handler) refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Failure(validation.Messages(err)...))
		return
	}

	resp, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, req.AccessToken)
	if err != nil {
		h.fail(c, "http.auth.refresh", err)
		return
	}

	c.JSON(http.StatusOK, success(resp))
}

func (h *handler) revoke(c *gin.Context) {
	var req models.RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Failure("Failed to revoke token"))
		return
	}

	revoked, err := h.auth.Revoke(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, "http.auth.revoke", err)
		return
	}
	if !revoked {
		c.JSON(http.StatusBadRequest, Failure("Failed to revoke token"))
		return
	}

	c.JSON(http.StatusOK, success(&models.RevokeResponse{Revoked: true}))
}

func (h *handler) me(c *gin.Context) {
	userID := c.GetInt64(userIDKey)

	view, err := h.auth.Me(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "http.auth.me", err)
		return
	}

	c.JSON(http.StatusOK, success(view))
}

// fail maps service errors to status codes. Unexpected errors are logged
// and answered with a generic message.
func (h *handler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, Failure(auth.ErrInvalidCredentials.Error()))
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		c.JSON(http.StatusUnauthorized, Failure(auth.ErrInvalidOrExpiredToken.Error()))
	case errors.Is(err, auth.ErrDuplicateUserName):
		c.JSON(http.StatusBadRequest, Failure(auth.ErrDuplicateUserName.Error()))
	case errors.Is(err, auth.ErrDuplicateEmail):
		c.JSON(http.StatusBadRequest, Failure(auth.ErrDuplicateEmail.Error()))
	case errors.Is(err, password.ErrTooLong):
		c.JSON(http.StatusBadRequest, Failure(password.ErrTooLong.Error()))
	case errors.Is(err, auth.ErrUserNotFound):
		c.JSON(http.StatusNotFound, Failure("Resource not found"))
	default:
		h.logger.Error("request failed", slog.String("op", op), sl.Err(err))
		c.JSON(http.StatusInternalServerError, Failure(InternalError))
	}
}
