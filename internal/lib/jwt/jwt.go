package jwt

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"shopauth/internal/config"
	"shopauth/internal/domain/models"
)

// RefreshTokenBytes is the amount of randomness behind every refresh token.
const RefreshTokenBytes = 64

var (
	ErrInvalidUser       = errors.New("invalid user for token issuance")
	ErrMissingSigningKey = errors.New("signing key is not configured")
	ErrMalformedToken    = errors.New("malformed token")
	ErrAlgorithmMismatch = errors.New("unexpected signing algorithm")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
)

// Claims is the access token payload.
type Claims struct {
	NameIdentifier string `json:"nameidentifier"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	jwt.RegisteredClaims
}

// UserID parses the nameidentifier claim.
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.NameIdentifier, 10, 64)
}

// Manager issues and validates access tokens and mints refresh tokens.
// It holds no mutable state and is safe for concurrent use.
type Manager struct {
	settings  config.JWTSettings
	accessTTL time.Duration
	now       func() time.Time
	random    io.Reader
}

type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithRandom overrides the randomness used for refresh tokens.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) {
		m.random = r
	}
}

func New(settings config.JWTSettings, accessTTL time.Duration, opts ...Option) *Manager {
	m := &Manager{
		settings:  settings,
		accessTTL: accessTTL,
		now:       time.Now,
		random:    rand.Reader,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// AccessTTL returns the lifetime of issued access tokens.
func (m *Manager) AccessTTL() time.Duration {
	return m.accessTTL
}

// IssueAccessToken signs an HS256 access token for user and returns it along
// with its expiry.
func (m *Manager) IssueAccessToken(user *models.User) (string, time.Time, error) {
	const op = "jwt.IssueAccessToken"

	if user == nil || user.ID <= 0 ||
		strings.TrimSpace(user.UserName) == "" ||
		strings.TrimSpace(user.Email) == "" {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrInvalidUser)
	}

	if strings.TrimSpace(m.settings.Key) == "" {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrMissingSigningKey)
	}

	jti, err := uuid.NewRandom()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: jti: %w", op, err)
	}

	issuedAt := m.now().UTC().Truncate(jwt.TimePrecision)
	expiresAt := issuedAt.Add(m.accessTTL)

	claims := Claims{
		NameIdentifier: strconv.FormatInt(user.ID, 10),
		Name:           user.UserName,
		Email:          user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Issuer:    m.settings.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if m.settings.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.settings.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.settings.Key))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, expiresAt, nil
}

// IssueRefreshToken returns the standard base64 encoding of 64 random bytes.
func (m *Manager) IssueRefreshToken() (string, error) {
	const op = "jwt.IssueRefreshToken"

	b := make([]byte, RefreshTokenBytes)
	if _, err := io.ReadFull(m.random, b); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

// ValidatePossiblyExpired checks signature, algorithm, issuer and audience
// but ignores exp, so identity can still be read from an expired token.
func (m *Manager) ValidatePossiblyExpired(tokenString string) (*Claims, error) {
	const op = "jwt.ValidatePossiblyExpired"

	claims, err := m.parse(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return claims, nil
}

// ValidateAccessToken performs the same checks as ValidatePossiblyExpired and
// additionally requires exp to be present and in the future.
func (m *Manager) ValidateAccessToken(tokenString string) (*Claims, error) {
	const op = "jwt.ValidateAccessToken"

	claims, err := m.parse(tokenString, jwt.WithExpirationRequired(), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return claims, nil
}

func (m *Manager) parse(tokenString string, opts ...jwt.ParserOption) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMalformedToken
	}

	if strings.TrimSpace(m.settings.Key) == "" {
		return nil, ErrMissingSigningKey
	}

	key := []byte(m.settings.Key)
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		// Only HS256 is accepted; an HS512 token signed with the same key
		// must not verify.
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrAlgorithmMismatch
		}
		return key, nil
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}

	if claims.Issuer != m.settings.Issuer {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}

	if !m.audienceMatches(claims.Audience) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}

	return claims, nil
}

func (m *Manager) audienceMatches(aud jwt.ClaimStrings) bool {
	if m.settings.Audience == "" {
		return len(aud) == 0
	}

	return slices.Contains(aud, m.settings.Audience)
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrAlgorithmMismatch):
		return ErrAlgorithmMismatch
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// alg header names a method the library does not know.
		return ErrAlgorithmMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}
