// Package postgres is a PostgreSQL-backed user store, talking to the
// database through database/sql with the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"shopauth/internal/domain/models"
	"shopauth/internal/storage"
)

const (
	uniqueViolationCode = "23505"
	emailConstraint     = "users_email_key"
)

type Storage struct {
	db *sql.DB
}

// New opens a pool for dsn and checks that the server answers.
func New(ctx context.Context, dsn string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", op, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return &Storage{db: db}, nil
}

// NewWithDB wraps an existing handle.
func NewWithDB(db *sql.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Close() error {
	return s.db.Close()
}

const userColumns = `id, user_name, email, pass_hash, refresh_token, refresh_token_expiry,
	last_login_time, created_at, updated_at`

func (s *Storage) SaveUser(ctx context.Context, user *models.User) (int64, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (user_name, email, pass_hash, refresh_token, refresh_token_expiry,
			last_login_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		user.UserName,
		user.Email,
		user.PassHash,
		nullString(user.RefreshToken),
		nullTime(user.RefreshTokenExpiry),
		nullTime(user.LastLoginTime),
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		if uerr := uniqueViolation(err); uerr != nil {
			return 0, fmt.Errorf("%s: %w", op, uerr)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.UpdateUser"

	query := `
		UPDATE users
		SET user_name = $1, email = $2, pass_hash = $3, refresh_token = $4, refresh_token_expiry = $5,
			last_login_time = $6, updated_at = $7
		WHERE id = $8`

	res, err := s.db.ExecContext(ctx, query,
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
	const op = "storage.postgres.UserByName"

	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE user_name = $1", userName)

	return scanUser(op, row)
}

func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.postgres.UserByID"

	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", userID)

	return scanUser(op, row)
}

func (s *Storage) UserByRefreshToken(ctx context.Context, refreshToken string) (*models.User, error) {
	const op = "storage.postgres.UserByRefreshToken"

	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE refresh_token = $1", refreshToken)

	return scanUser(op, row)
}

func (s *Storage) UserNameExists(ctx context.Context, userName string) (bool, error) {
	const op = "storage.postgres.UserNameExists"

	return s.exists(ctx, op, "SELECT EXISTS(SELECT 1 FROM users WHERE user_name = $1)", userName)
}

func (s *Storage) EmailExists(ctx context.Context, email string) (bool, error) {
	const op = "storage.postgres.EmailExists"

	return s.exists(ctx, op, "SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)", email)
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
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return nil
	}

	if pgErr.ConstraintName == emailConstraint {
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
