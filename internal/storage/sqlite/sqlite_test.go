package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopauth/internal/domain/models"
	"shopauth/internal/storage"
	"shopauth/internal/storage/migrator"
	"shopauth/migrations"
)

func newStorage(t *testing.T) *Storage {
	t.Helper()

	path := filepath.Join(t.TempDir(), "auth.db")

	_, err := migrator.Up(migrations.SQLiteDir, migrator.SQLiteURL(path, ""))
	require.NoError(t, err)

	s, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func fakeUser() *models.User {
	now := time.Now().UTC().Truncate(time.Second)

	return &models.User{
		UserName:  gofakeit.Username(),
		Email:     gofakeit.Email(),
		PassHash:  []byte("$2a$04$fakehashfakehashfakehashfakehashfakehashfakehashfake"),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSaveUser_AndLookups(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	user := fakeUser()
	user.SetSession("refresh-1", user.CreatedAt.Add(7*24*time.Hour))

	id, err := s.SaveUser(ctx, user)
	require.NoError(t, err)
	require.Positive(t, id)

	byName, err := s.UserByName(ctx, user.UserName)
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)
	assert.Equal(t, user.Email, byName.Email)
	assert.Equal(t, user.PassHash, byName.PassHash)
	require.True(t, byName.HasSession())
	assert.Equal(t, "refresh-1", *byName.RefreshToken)
	assert.True(t, user.RefreshTokenExpiry.Equal(*byName.RefreshTokenExpiry))
	assert.Nil(t, byName.LastLoginTime)

	byID, err := s.UserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, user.UserName, byID.UserName)

	byToken, err := s.UserByRefreshToken(ctx, "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, id, byToken.ID)

	exists, err := s.UserNameExists(ctx, user.UserName)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.EmailExists(ctx, user.Email)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.EmailExists(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLookups_CaseSensitive(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	user := fakeUser()
	user.UserName = "Alice"
	user.SetSession("AbC", user.CreatedAt.Add(time.Hour))
	_, err := s.SaveUser(ctx, user)
	require.NoError(t, err)

	_, err = s.UserByName(ctx, "alice")
	require.ErrorIs(t, err, storage.ErrUserNotFound)

	_, err = s.UserByRefreshToken(ctx, "abc")
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestSaveUser_Duplicates(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	user := fakeUser()
	_, err := s.SaveUser(ctx, user)
	require.NoError(t, err)

	sameName := fakeUser()
	sameName.UserName = user.UserName
	_, err = s.SaveUser(ctx, sameName)
	require.ErrorIs(t, err, storage.ErrUserNameExists)

	sameEmail := fakeUser()
	sameEmail.Email = user.Email
	_, err = s.SaveUser(ctx, sameEmail)
	require.ErrorIs(t, err, storage.ErrEmailExists)
}

func TestUpdateUser_ClearsSessionAtomically(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	user := fakeUser()
	user.SetSession("refresh-1", user.CreatedAt.Add(time.Hour))
	id, err := s.SaveUser(ctx, user)
	require.NoError(t, err)
	user.ID = id

	login := time.Now().UTC().Truncate(time.Second)
	user.LastLoginTime = &login
	user.SetSession("refresh-2", login.Add(7*24*time.Hour))
	user.UpdatedAt = login
	require.NoError(t, s.UpdateUser(ctx, user))

	_, err = s.UserByRefreshToken(ctx, "refresh-1")
	require.ErrorIs(t, err, storage.ErrUserNotFound)

	got, err := s.UserByRefreshToken(ctx, "refresh-2")
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginTime)
	assert.True(t, login.Equal(*got.LastLoginTime))

	user.ClearSession()
	require.NoError(t, s.UpdateUser(ctx, user))

	got, err = s.UserByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.RefreshToken)
	assert.Nil(t, got.RefreshTokenExpiry)
}

func TestUpdateUser_NotFound(t *testing.T) {
	s := newStorage(t)

	user := fakeUser()
	user.ID = 999

	err := s.UpdateUser(context.Background(), user)
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestUserByID_NotFound(t *testing.T) {
	s := newStorage(t)

	_, err := s.UserByID(context.Background(), 12345)
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}
