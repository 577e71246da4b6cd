package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/debt-tracer/internal/logging"
)

// CredentialVerifier はログイン時の資格情報検証です。*Verifier が満たします。
type CredentialVerifier interface {
	Verify(ctx context.Context, creds Credentials) (Identity, error)
}

// TypedSession はこのサービスが使うセッション項目への型付きアクセスです。
// *session.Handle が満たします。
type TypedSession interface {
	UserID() (uuid.UUID, bool, error)
	Username() (string, bool, error)
	InsertUserID(id uuid.UUID) error
	InsertUsername(name string) error
	// ClearIdentity は user_id と username を取り除きます。次の保存 (Renew など) で反映されます。
	ClearIdentity() error
	Renew() error
	Purge() error
}

// SessionResolver はリクエストに対応する TypedSession を返します。
type SessionResolver func(c *gin.Context) TypedSession

// Recorder は認証結果のメトリクスを受け取ります。
type Recorder interface {
	LoginAttempt(outcome string)
	AuthRejected(reason string)
}

// ログイン結果のラベル
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeError              = "error"
)

// 保護ルートで拒否した理由のラベル
const (
	RejectAnonymous    = "anonymous"
	RejectSessionError = "session_error"
)

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	verifier CredentialVerifier
	sessions SessionResolver
	logger   *slog.Logger
	recorder Recorder
}

// Option は Manager の任意設定です。
type Option func(*Manager)

// WithLogger はロガーを設定します。
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithRecorder はメトリクスの記録先を設定します。
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// NewManager は認証マネージャーを作成します。
func NewManager(verifier CredentialVerifier, sessions SessionResolver, opts ...Option) *Manager {
	m := &Manager{
		verifier: verifier,
		sessions: sessions,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) loginAttempt(outcome string) {
	if m.recorder != nil {
		m.recorder.LoginAttempt(outcome)
	}
}

func (m *Manager) rejected(reason string) {
	if m.recorder != nil {
		m.recorder.AuthRejected(reason)
	}
}

// internalError は詳細をログにだけ残し、クライアントには汎用的な 500 を返します。
func (m *Manager) internalError(c *gin.Context, code, msg string, err error) {
	logging.LogError(c.Request.Context(), m.logger, msg, err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"code":    code,
		"message": "サーバー内部でエラーが発生しました",
	})
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    "UNAUTHORIZED",
		"message": "ログインが必要です",
	})
}
