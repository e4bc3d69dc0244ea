package jwt

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopauth/internal/config"
	"shopauth/internal/domain/models"
)

var testSettings = config.JWTSettings{
	Key:      "test-signing-key-for-shopauth-0123456789abcdef",
	Issuer:   "shopauth-test",
	Audience: "shop-clients-test",
}

func testUser() *models.User {
	return &models.User{
		ID:       42,
		UserName: "alice",
		Email:    "alice@x.com",
	}
}

func TestIssueAccessToken_Claims(t *testing.T) {
	m := New(testSettings, time.Hour)

	issuedAt := time.Now()
	token, expiresAt, err := m.IssueAccessToken(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.InDelta(t, issuedAt.Add(time.Hour).Unix(), expiresAt.Unix(), 60)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))

	assert.Equal(t, "42", raw["nameidentifier"])
	assert.Equal(t, "alice", raw["name"])
	assert.Equal(t, "alice@x.com", raw["email"])
	assert.Equal(t, "shopauth-test", raw["iss"])
	assert.NotEmpty(t, raw["jti"])
	assert.Contains(t, raw, "aud")
	assert.InDelta(t, issuedAt.Add(time.Hour).Unix(), raw["exp"].(float64), 60)

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Contains(t, string(header), `"alg":"HS256"`)
}

func TestIssueAccessToken_UniqueJTI(t *testing.T) {
	m := New(testSettings, time.Hour)

	first, _, err := m.IssueAccessToken(testUser())
	require.NoError(t, err)
	second, _, err := m.IssueAccessToken(testUser())
	require.NoError(t, err)

	c1, err := m.ValidateAccessToken(first)
	require.NoError(t, err)
	c2, err := m.ValidateAccessToken(second)
	require.NoError(t, err)

	assert.NotEqual(t, c1.ID, c2.ID)
}

func TestIssueAccessToken_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		user     *models.User
		settings config.JWTSettings
		wantErr  error
	}{
		{
			name:     "nil user",
			user:     nil,
			settings: testSettings,
			wantErr:  ErrInvalidUser,
		},
		{
			name:     "zero id",
			user:     &models.User{ID: 0, UserName: "alice", Email: "alice@x.com"},
			settings: testSettings,
			wantErr:  ErrInvalidUser,
		},
		{
			name:     "negative id",
			user:     &models.User{ID: -1, UserName: "alice", Email: "alice@x.com"},
			settings: testSettings,
			wantErr:  ErrInvalidUser,
		},
		{
			name:     "blank username",
			user:     &models.User{ID: 1, UserName: "  ", Email: "alice@x.com"},
			settings: testSettings,
			wantErr:  ErrInvalidUser,
		},
		{
			name:     "empty email",
			user:     &models.User{ID: 1, UserName: "alice", Email: ""},
			settings: testSettings,
			wantErr:  ErrInvalidUser,
		},
		{
			name:     "missing key",
			user:     testUser(),
			settings: config.JWTSettings{Issuer: "shopauth-test", Audience: "shop-clients-test"},
			wantErr:  ErrMissingSigningKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.settings, time.Hour)

			token, _, err := m.IssueAccessToken(tt.user)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, token)
		})
	}
}

func TestIssueRefreshToken_Shape(t *testing.T) {
	m := New(testSettings, time.Hour)

	token, err := m.IssueRefreshToken()
	require.NoError(t, err)
	assert.Len(t, token, 88)

	raw, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, RefreshTokenBytes)
}

func TestIssueRefreshToken_Distinct(t *testing.T) {
	m := New(testSettings, time.Hour)

	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		token, err := m.IssueRefreshToken()
		require.NoError(t, err)
		seen[token] = struct{}{}
	}

	assert.Len(t, seen, n)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestIssueRefreshToken_RandomFailure(t *testing.T) {
	m := New(testSettings, time.Hour, WithRandom(failingReader{}))

	token, err := m.IssueRefreshToken()
	require.Error(t, err)
	assert.Empty(t, token)
}

func TestValidatePossiblyExpired_ExpiredTokenStillReturnsClaims(t *testing.T) {
	past := time.Now().Add(-3 * time.Hour)
	issuer := New(testSettings, time.Hour, WithClock(func() time.Time { return past }))

	token, _, err := issuer.IssueAccessToken(testUser())
	require.NoError(t, err)

	m := New(testSettings, time.Hour)

	_, err = m.ValidateAccessToken(token)
	require.ErrorIs(t, err, ErrTokenExpired)

	claims, err := m.ValidatePossiblyExpired(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Name)
	assert.Equal(t, "alice@x.com", claims.Email)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)
}

func signWith(t *testing.T, method jwtlib.SigningMethod, key any, claims jwtlib.Claims) string {
	t.Helper()

	token, err := jwtlib.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)

	return token
}

func validClaims() *Claims {
	return &Claims{
		NameIdentifier: "42",
		Name:           "alice",
		Email:          "alice@x.com",
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        "jti-1",
			Issuer:    testSettings.Issuer,
			Audience:  jwtlib.ClaimStrings{testSettings.Audience},
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestValidatePossiblyExpired_Rejects(t *testing.T) {
	key := []byte(testSettings.Key)

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"

	wrongAudience := validClaims()
	wrongAudience.Audience = jwtlib.ClaimStrings{"other-clients"}

	good := signWith(t, jwtlib.SigningMethodHS256, key, validClaims())
	tampered := good[:len(good)-4] + "AAAA"
	if tampered == good {
		tampered = good[:len(good)-4] + "BBBB"
	}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty", token: "", wantErr: ErrMalformedToken},
		{name: "whitespace", token: "   ", wantErr: ErrMalformedToken},
		{name: "not a jwt", token: "invalid.token.format", wantErr: ErrMalformedToken},
		{name: "garbage", token: "definitely-not-a-token", wantErr: ErrMalformedToken},
		{
			name:    "hs512 with the same key",
			token:   signWith(t, jwtlib.SigningMethodHS512, key, validClaims()),
			wantErr: ErrAlgorithmMismatch,
		},
		{
			name:    "hs384 with the same key",
			token:   signWith(t, jwtlib.SigningMethodHS384, key, validClaims()),
			wantErr: ErrAlgorithmMismatch,
		},
		{
			name:    "alg none",
			token:   signWith(t, jwtlib.SigningMethodNone, jwtlib.UnsafeAllowNoneSignatureType, validClaims()),
			wantErr: ErrAlgorithmMismatch,
		},
		{
			name:    "wrong key",
			token:   signWith(t, jwtlib.SigningMethodHS256, []byte("another-key-another-key-another-key!"), validClaims()),
			wantErr: ErrInvalidToken,
		},
		{name: "tampered signature", token: tampered, wantErr: ErrInvalidToken},
		{
			name:    "wrong issuer",
			token:   signWith(t, jwtlib.SigningMethodHS256, key, wrongIssuer),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "wrong audience",
			token:   signWith(t, jwtlib.SigningMethodHS256, key, wrongAudience),
			wantErr: ErrInvalidToken,
		},
	}

	m := New(testSettings, time.Hour)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := m.ValidatePossiblyExpired(tt.token)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, claims)
		})
	}
}

func TestValidatePossiblyExpired_MissingKey(t *testing.T) {
	token, _, err := New(testSettings, time.Hour).IssueAccessToken(testUser())
	require.NoError(t, err)

	m := New(config.JWTSettings{Issuer: testSettings.Issuer, Audience: testSettings.Audience}, time.Hour)

	claims, err := m.ValidatePossiblyExpired(token)
	require.ErrorIs(t, err, ErrMissingSigningKey)
	assert.Nil(t, claims)
}

func TestValidateAccessToken_RequiresExpiry(t *testing.T) {
	noExp := validClaims()
	noExp.ExpiresAt = nil

	token := signWith(t, jwtlib.SigningMethodHS256, []byte(testSettings.Key), noExp)
	m := New(testSettings, time.Hour)

	_, err := m.ValidateAccessToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	claims, err := m.ValidatePossiblyExpired(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.NameIdentifier)
}

func TestValidate_NoAudienceConfigured(t *testing.T) {
	settings := config.JWTSettings{Key: testSettings.Key, Issuer: testSettings.Issuer}
	m := New(settings, time.Hour)

	token, _, err := m.IssueAccessToken(testUser())
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(token)
	require.NoError(t, err)

	withAudience := signWith(t, jwtlib.SigningMethodHS256, []byte(testSettings.Key), validClaims())
	_, err = m.ValidateAccessToken(withAudience)
	require.ErrorIs(t, err, ErrInvalidToken)
}
