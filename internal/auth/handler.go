package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password Secret `json:"password"`
}

// Login は POST /login のハンドラーです。
//
// 照合 → セッションID再発行 → user_id 書き込み → username 書き込み の順で進め、
// 前の段階が完了するまで次に進みません。
// 再発行の前に既存の識別情報を消すため、途中で失敗しても別ユーザーの値と混ざりません。
func (m *Manager) Login(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "auth.login")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Password.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "username と password を JSON で送ってください",
		})
		return
	}

	id, err := m.verifier.Verify(ctx, Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrInvalidCredentials) {
			m.loginAttempt(OutcomeInvalidCredentials)
			m.logger.InfoContext(ctx, "login rejected", "reason", err.Error())
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    "INVALID_CREDENTIALS",
				"message": "ユーザー名またはパスワードが正しくありません",
			})
			return
		}
		span.SetStatus(codes.Error, "verification failed")
		m.loginAttempt(OutcomeError)
		m.internalError(c, "INTERNAL_ERROR", "credential verification failed", err)
		return
	}

	sess := m.sessions(c)
	if err := sess.ClearIdentity(); err != nil {
		m.loginAttempt(OutcomeError)
		m.internalError(c, "SESSION_LOAD_FAILED", "failed to load session", err)
		return
	}
	if err := sess.Renew(); err != nil {
		m.sessionSaveFailed(c, "failed to renew session", err)
		return
	}
	if err := sess.InsertUserID(id.UserID); err != nil {
		m.sessionSaveFailed(c, "failed to store user id in session", err)
		return
	}
	if err := sess.InsertUsername(id.Username); err != nil {
		m.sessionSaveFailed(c, "failed to store username in session", err)
		return
	}

	m.loginAttempt(OutcomeSuccess)
	m.logger.InfoContext(ctx, "login succeeded", "user_id", id.UserID)
	c.Status(http.StatusOK)
}

func (m *Manager) sessionSaveFailed(c *gin.Context, msg string, err error) {
	m.loginAttempt(OutcomeError)
	m.internalError(c, "SESSION_SAVE_FAILED", msg, err)
}

// Logout は POST /logout のハンドラーです。セッションを破棄します。
func (m *Manager) Logout(c *gin.Context, id Identity) {
	if err := m.sessions(c).Purge(); err != nil {
		m.internalError(c, "SESSION_SAVE_FAILED", "failed to purge session", err)
		return
	}
	m.logger.InfoContext(c.Request.Context(), "logout", "user_id", id.UserID)
	c.Status(http.StatusNoContent)
}

// Me は GET /users/me のハンドラーです。
func Me(c *gin.Context, id Identity) {
	c.JSON(http.StatusOK, id)
}
