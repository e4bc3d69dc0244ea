package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"shopauth/internal/domain/models"
	"shopauth/internal/lib/jwt"
	"shopauth/internal/lib/sl"
	"shopauth/internal/storage"
)

type Auth struct {
	logger       *slog.Logger
	userSaver    UserSaver
	userProvider UserProvider
	tokens       TokenManager
	hasher       PasswordHasher
	refreshTTL   time.Duration
	now          func() time.Time

	coalesce  bool
	refreshes singleflight.Group

	dummyOnce sync.Once
	dummyHash []byte
}

type UserSaver interface {
	SaveUser(ctx context.Context, user *models.User) (uid int64, err error)
	UpdateUser(ctx context.Context, user *models.User) error
}

type UserProvider interface {
	UserByName(ctx context.Context, userName string) (*models.User, error)
	UserByID(ctx context.Context, userID int64) (*models.User, error)
	UserByRefreshToken(ctx context.Context, refreshToken string) (*models.User, error)
	UserNameExists(ctx context.Context, userName string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type TokenManager interface {
	IssueAccessToken(user *models.User) (token string, expiresAt time.Time, err error)
	IssueRefreshToken() (string, error)
	ValidatePossiblyExpired(token string) (*jwt.Claims, error)
}

type PasswordHasher interface {
	Hash(password string) ([]byte, error)
	Verify(password string, hash []byte) (bool, error)
}

var (
	ErrInvalidCredentials    = errors.New("invalid username or password")
	ErrDuplicateUserName     = errors.New("username is already taken")
	ErrDuplicateEmail        = errors.New("email is already taken")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired refresh token")
	ErrUserNotFound          = errors.New("user not found")
)

// sharedRefreshTimeout bounds a coalesced rotation, which runs detached from
// the callers' contexts.
const sharedRefreshTimeout = 10 * time.Second

type Option func(*Auth)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Auth) {
		a.now = now
	}
}

// WithRefreshCoalescing makes concurrent Refresh calls presenting the same
// refresh token share a single rotation.
func WithRefreshCoalescing(enabled bool) Option {
	return func(a *Auth) {
		a.coalesce = enabled
	}
}

// New returns a new instance of the Auth service.
func New(
	logger *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokens TokenManager,
	hasher PasswordHasher,
	refreshTTL time.Duration,
	opts ...Option,
) *Auth {
	a := &Auth{
		logger:       logger,
		userSaver:    userSaver,
		userProvider: userProvider,
		tokens:       tokens,
		hasher:       hasher,
		refreshTTL:   refreshTTL,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Login checks credentials and starts a new session, replacing any session
// the user had on another device.
func (a *Auth) Login(
	ctx context.Context,
	userName string,
	password string,
) (*models.AuthResponse, error) {
	const op = "auth.Login"
	log := a.logger.With(slog.String("op", op), slog.String("userName", userName))
	log.Info("login request")

	user, err := a.userProvider.UserByName(ctx, userName)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// Burn one bcrypt evaluation so unknown users cost the same as
			// wrong passwords.
			_, _ = a.hasher.Verify(password, a.dummy())
			log.Warn("user not found")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ok, err := a.hasher.Verify(password, user.PassHash)
	if err != nil {
		log.Error("failed to verify password", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		log.Warn("invalid password")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	now := a.now().UTC()
	user.LastLoginTime = &now

	resp, err := a.startSession(ctx, user, now)
	if err != nil {
		log.Error("failed to start session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.Int64("userID", user.ID))

	return resp, nil
}

// Register creates a user and logs them in. If the access token cannot be
// issued after the user was saved, the account is kept without a session
// and the caller gets the error; a later Login succeeds for it, Register
// reports the name as taken.
func (a *Auth) Register(
	ctx context.Context,
	userName string,
	password string,
	email string,
) (*models.AuthResponse, error) {
	const op = "auth.Register"
	log := a.logger.With(slog.String("op", op), slog.String("userName", userName))
	log.Info("register request")

	exists, err := a.userProvider.UserNameExists(ctx, userName)
	if err != nil {
		log.Error("failed to check user name", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		log.Warn("user name already taken")
		return nil, fmt.Errorf("%s: %w", op, ErrDuplicateUserName)
	}

	exists, err = a.userProvider.EmailExists(ctx, email)
	if err != nil {
		log.Error("failed to check email", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		log.Warn("email already taken")
		return nil, fmt.Errorf("%s: %w", op, ErrDuplicateEmail)
	}

	passHash, err := a.hasher.Hash(password)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := a.tokens.IssueRefreshToken()
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := a.now().UTC()
	user := &models.User{
		UserName:  userName,
		Email:     email,
		PassHash:  passHash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	user.SetSession(refreshToken, now.Add(a.refreshTTL))

	user.ID, err = a.userSaver.SaveUser(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrUserNameExists):
			log.Warn("user name already taken", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrDuplicateUserName)
		case errors.Is(err, storage.ErrEmailExists):
			log.Warn("email already taken", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrDuplicateEmail)
		}
		log.Error("failed to save user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, expires, err := a.tokens.IssueAccessToken(user)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))

		user.ClearSession()
		if uerr := a.userSaver.UpdateUser(ctx, user); uerr != nil {
			log.Error("failed to clear session of new user", sl.Err(uerr))
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("userID", user.ID))

	return &models.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expires:      expires,
		User:         user.View(),
	}, nil
}

// Refresh rotates the refresh token. When accessToken is not empty it must
// be a token signed by us for the owner of refreshToken; its expiry is not
// checked.
func (a *Auth) Refresh(
	ctx context.Context,
	refreshToken string,
	accessToken string,
) (*models.AuthResponse, error) {
	if !a.coalesce {
		return a.refresh(ctx, refreshToken, accessToken)
	}

	// The shared rotation outlives any single caller; each caller stops
	// waiting on its own context.
	key := refreshToken + "\x00" + accessToken
	ch := a.refreshes.DoChan(key, func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedRefreshTimeout)
		defer cancel()

		return a.refresh(sharedCtx, refreshToken, accessToken)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("auth.Refresh: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		resp := *res.Val.(*models.AuthResponse)

		return &resp, nil
	}
}

func (a *Auth) refresh(
	ctx context.Context,
	refreshToken string,
	accessToken string,
) (*models.AuthResponse, error) {
	const op = "auth.Refresh"
	log := a.logger.With(slog.String("op", op))
	log.Info("refresh request")

	if refreshToken == "" {
		log.Warn("empty refresh token")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidOrExpiredToken)
	}

	user, err := a.userProvider.UserByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("refresh token not found")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidOrExpiredToken)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.Int64("userID", user.ID))

	now := a.now().UTC()
	if user.RefreshTokenExpiry == nil || user.RefreshTokenExpiry.Before(now) {
		log.Warn("refresh token expired")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidOrExpiredToken)
	}

	if accessToken != "" {
		if err := a.checkOwner(accessToken, user.ID); err != nil {
			log.Warn("access token does not match refresh token", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidOrExpiredToken)
		}
	}

	resp, err := a.startSession(ctx, user, now)
	if err != nil {
		log.Error("failed to rotate session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("tokens refreshed")

	return resp, nil
}

// Revoke ends the session holding refreshToken. It reports false when no
// user holds that token.
func (a *Auth) Revoke(ctx context.Context, refreshToken string) (bool, error) {
	const op = "auth.Revoke"
	log := a.logger.With(slog.String("op", op))
	log.Info("revoke request")

	if refreshToken == "" {
		return false, nil
	}

	user, err := a.userProvider.UserByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("refresh token not found")
			return false, nil
		}
		log.Error("failed to get user", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	user.ClearSession()
	user.UpdatedAt = a.now().UTC()

	if err := a.userSaver.UpdateUser(ctx, user); err != nil {
		log.Error("failed to clear session", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("session revoked", slog.Int64("userID", user.ID))

	return true, nil
}

// Me returns the public view of the user.
func (a *Auth) Me(ctx context.Context, userID int64) (*models.UserView, error) {
	const op = "auth.Me"
	log := a.logger.With(slog.String("op", op), slog.Int64("userID", userID))

	user, err := a.userProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	view := user.View()

	return &view, nil
}

// startSession puts a fresh refresh token into the user's single slot,
// issues an access token and persists the user.
func (a *Auth) startSession(ctx context.Context, user *models.User, now time.Time) (*models.AuthResponse, error) {
	refreshToken, err := a.tokens.IssueRefreshToken()
	if err != nil {
		return nil, err
	}

	user.SetSession(refreshToken, now.Add(a.refreshTTL))
	user.UpdatedAt = now

	accessToken, expires, err := a.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	if err := a.userSaver.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expires:      expires,
		User:         user.View(),
	}, nil
}

func (a *Auth) checkOwner(accessToken string, userID int64) error {
	claims, err := a.tokens.ValidatePossiblyExpired(accessToken)
	if err != nil {
		return err
	}

	if claims.NameIdentifier != strconv.FormatInt(userID, 10) {
		return errors.New("subject mismatch")
	}

	return nil
}

func (a *Auth) dummy() []byte {
	a.dummyOnce.Do(func() {
		a.dummyHash, _ = a.hasher.Hash("not-a-real-password")
	})

	return a.dummyHash
}
