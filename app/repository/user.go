package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/soundvault/ms-go-auth/app/entity"
)

const userColumns = `id, username, email, password_hash, role, confirmed, refresh_token_hash, token_version, photo_name, created_at, updated_at`

// UserRepository is the sole mutation path for the User record.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, role, confirmed, photo_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Confirmed,
		user.PhotoName,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return err
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user := &entity.User{}
		if err := scanUser(rows, user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateProfile overwrites the mutable profile fields. Identity fields
// (email, role) and session state are untouched.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *entity.User) error {
	query := `
		UPDATE users SET
			username = ?,
			password_hash = ?,
			photo_name = ?,
			updated_at = ?
		WHERE id = ?
	`
	user.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.PasswordHash,
		user.PhotoName,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrUserNotFound)
}

// RotateRefreshTokenHash overwrites the stored refresh-token hash only if
// token_version still matches what the caller read. A concurrent rotation
// that got there first surfaces as ErrStaleRotation instead of a silent
// last-writer-wins overwrite.
func (r *UserRepository) RotateRefreshTokenHash(ctx context.Context, id, hash string, expectedVersion uint64) error {
	query := `
		UPDATE users SET
			refresh_token_hash = ?,
			token_version = token_version + 1,
			updated_at = ?
		WHERE id = ? AND token_version = ?
	`
	result, err := r.db.ExecContext(ctx, query, hash, time.Now(), id, expectedVersion)
	if err != nil {
		return err
	}
	return requireRow(result, ErrStaleRotation)
}

// ClearRefreshTokenHash nulls the stored hash. Unconditional: clearing an
// already-cleared session is not an error, which keeps logout idempotent.
func (r *UserRepository) ClearRefreshTokenHash(ctx context.Context, id string) error {
	query := `
		UPDATE users SET
			refresh_token_hash = NULL,
			token_version = token_version + 1,
			updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query, time.Now(), id)
	return err
}

func (r *UserRepository) SetConfirmed(ctx context.Context, id string) error {
	query := `UPDATE users SET confirmed = true, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrUserNotFound)
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrUserNotFound)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrUserNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepository) scanOne(row *sql.Row) (*entity.User, error) {
	user := &entity.User{}
	err := scanUser(row, user)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func scanUser(row rowScanner, user *entity.User) error {
	return row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Confirmed,
		&user.RefreshTokenHash,
		&user.TokenVersion,
		&user.PhotoName,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
}

func requireRow(result sql.Result, absent error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return absent
	}
	return nil
}
