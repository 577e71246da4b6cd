// Package accounts はユーザーアカウントの保存と登録を扱います。
package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/yourusername/debt-tracer/internal/auth"
	"github.com/yourusername/debt-tracer/internal/database"
)

// ErrUsernameTaken は同じユーザー名が既に登録されているときに返ります。
var ErrUsernameTaken = errors.New("username already taken")

// Account は新規登録するアカウントです。PasswordHash は PHC 形式です。
type Account struct {
	UserID       uuid.UUID
	Username     string
	PasswordHash string
	Email        string
}

// Repository は users テーブルへのアクセスです。
type Repository struct {
	db database.DBTX
}

var _ auth.CredentialLookup = (*Repository)(nil)

// NewRepository は Repository を作成します。
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// GetStoredCredentials はユーザー名で資格情報を引きます。該当がなければ (nil, nil) です。
func (r *Repository) GetStoredCredentials(ctx context.Context, username string) (*auth.StoredCredentials, error) {
	var rawID, name, hash string
	err := r.db.QueryRow(ctx,
		`SELECT user_id::text, username, password_hash FROM users WHERE username = $1`,
		username,
	).Scan(&rawID, &name, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "select stored credentials").
			Wrap(err)
	}

	userID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT_ROW").Wrap(err)
	}
	return &auth.StoredCredentials{
		UserID:       userID,
		Username:     name,
		PasswordHash: auth.NewSecret(hash),
	}, nil
}

// Create はアカウントを登録します。ユーザー名が重複していれば ErrUsernameTaken です。
func (r *Repository) Create(ctx context.Context, a Account) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (user_id, username, password_hash, email) VALUES ($1, $2, $3, $4)`,
		a.UserID, a.Username, a.PasswordHash, a.Email,
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrUsernameTaken
	}
	return oops.Code("ACCOUNT_INSERT_FAILED").
		With("operation", "insert user").
		Wrap(err)
}
