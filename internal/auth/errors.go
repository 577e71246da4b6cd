package auth

import "errors"

var (
	// ErrInvalidCredentials はユーザー名不明・パスワード不一致のどちらでも返ります。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnexpected はストア障害やハッシュ破損など、利用者に原因を見せない内部エラーです。
	ErrUnexpected = errors.New("unexpected authentication failure")
)

// AuthError は認証失敗の種別と内部原因をまとめます。
// errors.Is で種別 (ErrInvalidCredentials / ErrUnexpected) と原因の両方を辿れます。
type AuthError struct {
	Kind  error
	Cause error
}

func (e *AuthError) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Cause.Error()
}

func (e *AuthError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func invalidCredentials(cause error) error {
	return &AuthError{Kind: ErrInvalidCredentials, Cause: cause}
}

func unexpected(cause error) error {
	return &AuthError{Kind: ErrUnexpected, Cause: cause}
}
