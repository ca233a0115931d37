package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bluerise/auth-service/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository   = (*PostgresUserRepo)(nil)
	_ APIKeyRepository = (*PostgresAPIKeyRepo)(nil)
	_ AuditRepository  = (*PostgresAuditRepo)(nil)
)

// IsUniqueViolation reports whether err is a Postgres duplicate-key error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const userColumns = `id, email, name, password_hash, roles, status, email_verified, email_verified_at,
verify_token_hash, verify_token_expires, login_attempts, last_login_at, last_login_ip, created_at, updated_at`

// PostgresUserRepo implements UserRepository over pgx.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByVerifyTokenHash(ctx context.Context, hash string, now time.Time) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE verify_token_hash = $1 AND verify_token_expires > $2`
	user, err := scanUser(r.db.QueryRow(ctx, query, hash, now))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by verify token: %w", err)
	}
	return user, nil
}

const insertUserSQL = `INSERT INTO users (id, email, name, password_hash, roles, status, email_verified,
verify_token_hash, verify_token_expires)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + userColumns

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, insertUserSQL,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Roles,
		user.Status,
		user.EmailVerified,
		nullString(user.VerifyTokenHash),
		user.VerifyTokenExpires,
	)
	inserted, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return inserted, nil
}

const updateUserSQL = `UPDATE users SET
email = $2, name = $3, password_hash = $4, roles = $5, status = $6,
email_verified = $7, email_verified_at = $8, verify_token_hash = $9, verify_token_expires = $10,
login_attempts = $11, last_login_at = $12, last_login_ip = $13, updated_at = NOW()
WHERE id = $1`

func (r *PostgresUserRepo) Update(ctx context.Context, user domain.User) error {
	_, err := r.db.Exec(ctx, updateUserSQL,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Roles,
		user.Status,
		user.EmailVerified,
		user.EmailVerifiedAt,
		nullString(user.VerifyTokenHash),
		user.VerifyTokenExpires,
		user.LoginAttempts,
		user.LastLoginAt,
		nullString(user.LastLoginIP),
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		user         domain.User
		verifyHash   *string
		lastLoginIP  *string
		passwordHash string
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&passwordHash,
		&user.Roles,
		&user.Status,
		&user.EmailVerified,
		&user.EmailVerifiedAt,
		&verifyHash,
		&user.VerifyTokenExpires,
		&user.LoginAttempts,
		&user.LastLoginAt,
		&lastLoginIP,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return domain.User{}, err
	}
	user.PasswordHash = passwordHash
	if verifyHash != nil {
		user.VerifyTokenHash = *verifyHash
	}
	if lastLoginIP != nil {
		user.LastLoginIP = *lastLoginIP
	}
	return user, nil
}

func nullString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// PostgresAPIKeyRepo implements APIKeyRepository.
type PostgresAPIKeyRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAPIKeyRepo(pool *pgxpool.Pool) *PostgresAPIKeyRepo {
	return &PostgresAPIKeyRepo{db: pool}
}

const insertAPIKeySQL = `INSERT INTO api_keys (id, user_id, name, key_hash, permissions, is_active, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, user_id, name, key_hash, permissions, is_active, expires_at, last_used_at, created_at`

func (r *PostgresAPIKeyRepo) Create(ctx context.Context, key domain.APIKey) (domain.APIKey, error) {
	row := r.db.QueryRow(ctx, insertAPIKeySQL,
		key.ID,
		key.UserID,
		key.Name,
		key.KeyHash,
		key.Permissions,
		key.IsActive,
		key.ExpiresAt,
	)
	inserted, err := scanAPIKey(row)
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("create api key: %w", err)
	}
	return inserted, nil
}

func (r *PostgresAPIKeyRepo) ListActive(ctx context.Context) ([]domain.APIKey, error) {
	const query = `SELECT id, user_id, name, key_hash, permissions, is_active, expires_at, last_used_at, created_at
FROM api_keys
WHERE is_active AND (expires_at IS NULL OR expires_at > NOW())`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

func (r *PostgresAPIKeyRepo) TouchLastUsed(ctx context.Context, keyID int64, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, keyID, at); err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

func scanAPIKey(row rowScanner) (domain.APIKey, error) {
	var key domain.APIKey
	if err := row.Scan(
		&key.ID,
		&key.UserID,
		&key.Name,
		&key.KeyHash,
		&key.Permissions,
		&key.IsActive,
		&key.ExpiresAt,
		&key.LastUsedAt,
		&key.CreatedAt,
	); err != nil {
		return domain.APIKey{}, err
	}
	return key, nil
}

// PostgresAuditRepo implements AuditRepository.
type PostgresAuditRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAuditRepo(pool *pgxpool.Pool) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: pool}
}

const insertAuditSQL = `INSERT INTO audit_events (id, user_id, email, ip, status, reason)
VALUES ($1, $2, $3, $4, $5, $6)`

func (r *PostgresAuditRepo) Record(ctx context.Context, event domain.AuditEvent) error {
	var userID *int64
	if event.UserID != 0 {
		userID = &event.UserID
	}
	if _, err := r.db.Exec(ctx, insertAuditSQL,
		event.ID,
		userID,
		event.Email,
		event.IP,
		event.Status,
		event.Reason,
	); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}
