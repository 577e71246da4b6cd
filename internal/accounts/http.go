package accounts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/debt-tracer/internal/auth"
	"github.com/yourusername/debt-tracer/internal/blocking"
	"github.com/yourusername/debt-tracer/internal/logging"
)

// AccountCreator はアカウントを保存します。*Repository が満たします。
type AccountCreator interface {
	Create(ctx context.Context, a Account) error
}

// PasswordHasher はパスワードを PHC 形式にハッシュ化します。*auth.Hasher が満たします。
type PasswordHasher interface {
	Hash(password auth.Secret) (string, error)
}

// Handler は /signup のハンドラーです。
type Handler struct {
	accounts AccountCreator
	hasher   PasswordHasher
	pool     *blocking.Pool
	logger   *slog.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(accounts AccountCreator, hasher PasswordHasher, pool *blocking.Pool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{accounts: accounts, hasher: hasher, pool: pool, logger: logger}
}

type signUpRequest struct {
	Username string      `json:"username" binding:"required,max=64"`
	Password auth.Secret `json:"password"`
	Email    string      `json:"email" binding:"required,email"`
}

// SignUp は POST /signup のハンドラーです。ハッシュ化はワーカープール上で行います。
func (h *Handler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Password.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "username, password, email を JSON で送ってください",
		})
		return
	}

	ctx := c.Request.Context()
	hash, err := blocking.Do(ctx, h.pool, func() (string, error) {
		return h.hasher.Hash(req.Password)
	})
	if err != nil {
		h.internalError(c, "failed to hash password", err)
		return
	}

	account := Account{
		UserID:       uuid.New(),
		Username:     req.Username,
		PasswordHash: hash,
		Email:        req.Email,
	}
	if err := h.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{
				"code":    "USERNAME_TAKEN",
				"message": "このユーザー名は既に使われています",
			})
			return
		}
		h.internalError(c, "failed to create account", err)
		return
	}

	h.logger.InfoContext(ctx, "account created", "user_id", account.UserID)
	c.JSON(http.StatusOK, gin.H{"user_id": account.UserID})
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	logging.LogError(c.Request.Context(), h.logger, msg, err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": "サーバー内部でエラーが発生しました",
	})
}
