package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"shopauth/internal/domain/models"
	"shopauth/internal/storage"
)

type Storage struct {
	db *sql.DB
}

// New returns a new instance of the Storage.
func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"

	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

const userColumns = `id, user_name, email, pass_hash, refresh_token, refresh_token_expiry,
	last_login_time, created_at, updated_at`

// SaveUser inserts a new user and returns its id.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) (int64, error) {
	const op = "storage.sqlite.SaveUser"

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO users (user_name, email, pass_hash, refresh_token, refresh_token_expiry,
			last_login_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx,
		user.UserName,
		user.Email,
		user.PassHash,
		nullString(user.RefreshToken),
		nullTime(user.RefreshTokenExpiry),
		nullTime(user.LastLoginTime),
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
	)
	if err != nil {
		if uerr := uniqueViolation(err); uerr != nil {
			return 0, fmt.Errorf("%s: %w", op, uerr)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// UpdateUser writes every mutable column of user in a single statement, so
// the refresh token and its expiry always change together.
func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	const op = "storage.sqlite.UpdateUser"

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET user_name = ?, email = ?, pass_hash = ?, refresh_token = ?, refresh_token_expiry = ?,
			last_login_time = ?, updated_at = ?
		WHERE id = ?`,
		user.UserName,
		user.Email,
		user.PassHash,
		nullString(user.RefreshToken),
		nullTime(user.RefreshTokenExpiry),
		nullTime(user.LastLoginTime),
		user.UpdatedAt.UTC(),
		user.ID,
	)
	if err != nil {
		if uerr := uniqueViolation(err); uerr != nil {
			return fmt.Errorf("%s: %w", op, uerr)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

func (s *Storage) UserByName(ctx context.Context, userName string) (*models.User, error) {
	const op = "storage.sqlite.UserByName"

	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE user_name = ?", userName)

	return scanUser(op, row)
}

func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.sqlite.UserByID"

	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", userID)

	return scanUser(op, row)
}

func (s *Storage) UserByRefreshToken(ctx context.Context, refreshToken string) (*models.User, error) {
	const op = "storage.sqlite.UserByRefreshToken"

	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE refresh_token = ?", refreshToken)

	return scanUser(op, row)
}

func (s *Storage) UserNameExists(ctx context.Context, userName string) (bool, error) {
	const op = "storage.sqlite.UserNameExists"

	return s.exists(ctx, op, "SELECT EXISTS(SELECT 1 FROM users WHERE user_name = ?)", userName)
}

func (s *Storage) EmailExists(ctx context.Context, email string) (bool, error) {
	const op = "storage.sqlite.EmailExists"

	return s.exists(ctx, op, "SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)", email)
}

func (s *Storage) exists(ctx context.Context, op, query string, arg any) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

func scanUser(op string, row *sql.Row) (*models.User, error) {
	var (
		user          models.User
		refreshToken  sql.NullString
		refreshExpiry sql.NullTime
		lastLogin     sql.NullTime
	)

	err := row.Scan(
		&user.ID,
		&user.UserName,
		&user.Email,
		&user.PassHash,
		&refreshToken,
		&refreshExpiry,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if refreshToken.Valid && refreshExpiry.Valid {
		user.SetSession(refreshToken.String, refreshExpiry.Time)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginTime = &t
	}

	return &user, nil
}

func uniqueViolation(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return nil
	}

	// "UNIQUE constraint failed: users.email"
	if strings.Contains(sqliteErr.Error(), "users.email") {
		return storage.ErrEmailExists
	}

	return storage.ErrUserNameExists
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t.UTC(), Valid: true}
}
