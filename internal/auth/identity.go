package auth

import (
	"context"

	"github.com/google/uuid"
)

// Credentials はログインリクエストごとに組み立てる認証情報です。永続化もログ出力もしません。
type Credentials struct {
	Username string
	Password Secret
}

// StoredCredentials は資格情報ストアに保存されているアカウント情報です。
type StoredCredentials struct {
	UserID       uuid.UUID
	Username     string
	PasswordHash Secret // PHC 形式
}

// Identity は検証済みのユーザーです。UserID と Username は常に両方そろっています。
type Identity struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

// CredentialLookup はユーザー名から保存済みの資格情報を引きます。
// 該当がなければ (nil, nil) を返します。
type CredentialLookup interface {
	GetStoredCredentials(ctx context.Context, username string) (*StoredCredentials, error)
}

type userIDKey struct{}

type usernameKey struct{}

// ContextWithIdentity は id の2つの値をそれぞれ独立したキーで ctx に載せます。
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, userIDKey{}, id.UserID)
	return context.WithValue(ctx, usernameKey{}, id.Username)
}

// UserIDFrom はミドルウェアが注入したユーザーIDを返します。
func UserIDFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok
}

// UsernameFrom はミドルウェアが注入したユーザー名を返します。
func UsernameFrom(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(usernameKey{}).(string)
	return name, ok
}

// IdentityFrom は両方の値がそろっている場合に限り Identity を返します。
func IdentityFrom(ctx context.Context) (Identity, bool) {
	userID, ok := UserIDFrom(ctx)
	if !ok {
		return Identity{}, false
	}
	username, ok := UsernameFrom(ctx)
	if !ok {
		return Identity{}, false
	}
	return Identity{UserID: userID, Username: username}, true
}
