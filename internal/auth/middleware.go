// Package auth は認証・認可機能を提供します。
package auth

import (
	"github.com/gin-gonic/gin"
)

// IdentityHandler は検証済みの Identity を引数で受け取るハンドラーです。
type IdentityHandler func(c *gin.Context, id Identity)

// RequireLogin はセッションを検証するミドルウェアを返します。
//
// user_id と username の両方がそろっている場合だけ後続を呼び、
// 2つの値をそれぞれ独立した型付きの値としてリクエストのコンテキストに載せます。
// どちらかが欠けていれば 401、セッションの読み込みに失敗した場合は 500 です。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := m.sessions(c)

		userID, hasUserID, err := sess.UserID()
		if err != nil {
			m.rejected(RejectSessionError)
			m.internalError(c, "SESSION_LOAD_FAILED", "failed to resolve session user id", err)
			return
		}
		username, hasUsername, err := sess.Username()
		if err != nil {
			m.rejected(RejectSessionError)
			m.internalError(c, "SESSION_LOAD_FAILED", "failed to resolve session username", err)
			return
		}

		if !hasUserID || !hasUsername {
			m.rejected(RejectAnonymous)
			unauthorized(c)
			return
		}

		id := Identity{UserID: userID, Username: username}
		c.Request = c.Request.WithContext(ContextWithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// WithIdentity は RequireLogin が注入した Identity を h に引数として渡します。
// Identity がそろっていなければ h を呼ばずに 401 を返します。
func WithIdentity(h IdentityHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c.Request.Context())
		if !ok {
			unauthorized(c)
			return
		}
		h(c, id)
	}
}
