package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yourusername/debt-tracer/internal/blocking"
)

var tracer = otel.Tracer("github.com/yourusername/debt-tracer/internal/auth")

// PasswordVerifier はパスワードとハッシュ文字列を照合します。
type PasswordVerifier interface {
	Verify(password Secret, encoded string) (bool, error)
}

// VerifyObserver は照合にかかった時間を受け取ります。nil でも構いません。
type VerifyObserver interface {
	ObserveVerify(d time.Duration)
}

// Verifier はユーザー名とパスワードを検証し、Identity を返します。
type Verifier struct {
	lookup    CredentialLookup
	hasher    PasswordVerifier
	pool      *blocking.Pool
	dummyHash string
	observer  VerifyObserver
}

// NewVerifier は Verifier を作成します。dummyHash は NewDummyHash で起動時に作ったものを渡します。
func NewVerifier(lookup CredentialLookup, hasher PasswordVerifier, pool *blocking.Pool, dummyHash string, observer VerifyObserver) (*Verifier, error) {
	if lookup == nil {
		return nil, errors.New("credential lookup is required")
	}
	if hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	if pool == nil {
		return nil, errors.New("worker pool is required")
	}
	if dummyHash == "" {
		return nil, errors.New("dummy hash is required")
	}
	return &Verifier{
		lookup:    lookup,
		hasher:    hasher,
		pool:      pool,
		dummyHash: dummyHash,
		observer:  observer,
	}, nil
}

// Verify は資格情報を検証します。
//
// ユーザーが存在しない場合もダミーハッシュとの照合を必ず行い、
// 「ユーザー不明」と「パスワード不一致」を応答時間で区別できないようにします。
// 照合はワーカープール上で実行します。
func (v *Verifier) Verify(ctx context.Context, creds Credentials) (Identity, error) {
	stored, err := v.getStoredCredentials(ctx, creds.Username)
	if err != nil {
		return Identity{}, unexpected(err)
	}

	expected := v.dummyHash
	if stored != nil {
		expected = stored.PasswordHash.Expose()
	}

	ok, err := v.verifyPasswordHash(ctx, expected, creds.Password)
	if err != nil {
		return Identity{}, unexpected(err)
	}

	if stored == nil {
		return Identity{}, invalidCredentials(errors.New("unknown username"))
	}
	if !ok {
		return Identity{}, invalidCredentials(errors.New("invalid password"))
	}

	return Identity{UserID: stored.UserID, Username: stored.Username}, nil
}

func (v *Verifier) getStoredCredentials(ctx context.Context, username string) (*StoredCredentials, error) {
	ctx, span := tracer.Start(ctx, "auth.get_stored_credentials")
	defer span.End()

	stored, err := v.lookup.GetStoredCredentials(ctx, username)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get stored credentials").
			Wrap(err)
	}
	span.SetAttributes(attribute.Bool("auth.account_found", stored != nil))
	return stored, nil
}

func (v *Verifier) verifyPasswordHash(ctx context.Context, expected string, candidate Secret) (bool, error) {
	ctx, span := tracer.Start(ctx, "auth.verify_password_hash")
	defer span.End()

	ok, err := blocking.Do(ctx, v.pool, func() (bool, error) {
		start := time.Now()
		defer func() {
			if v.observer != nil {
				v.observer.ObserveVerify(time.Since(start))
			}
		}()
		return v.hasher.Verify(candidate, expected)
	})
	if err == nil {
		return ok, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "verification failed")
	if errors.Is(err, ErrMalformedHash) {
		return false, oops.Code("AUTH_INVALID_HASH").
			With("operation", "parse stored password hash").
			Wrap(err)
	}
	return false, oops.Code("AUTH_WORKER_DISPATCH_FAILED").
		With("operation", "verify password hash").
		Wrap(err)
}
