package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/debt-tracer/internal/auth"
	"github.com/yourusername/debt-tracer/internal/logging"
)

// Store は debt の保存先です。*Repository が満たします。
type Store interface {
	Create(ctx context.Context, d NewDebt) (uuid.UUID, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Debt, error)
}

// Handler は /debt, /debts のハンドラーです。どちらもログイン必須です。
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(store Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Create は POST /debt のハンドラーです。ログイン中のユーザーは貸し手か借り手でなければなりません。
func (h *Handler) Create(c *gin.Context, id auth.Identity) {
	var in DebtInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "リクエストボディを JSON で送ってください",
		})
		return
	}

	debt, err := in.Parse()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_DEBT",
			"message": err.Error(),
		})
		return
	}
	if !debt.Involves(id.UserID) {
		c.JSON(http.StatusForbidden, gin.H{
			"code":    "NOT_A_PARTY",
			"message": "自分が貸し手か借り手である debt のみ登録できます",
		})
		return
	}

	ctx := c.Request.Context()
	debtID, err := h.store.Create(ctx, debt)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "UNKNOWN_USER",
				"message": "指定されたユーザーが存在しません",
			})
			return
		}
		h.internalError(c, "failed to create debt", err)
		return
	}

	h.logger.InfoContext(ctx, "debt created",
		"debt_id", debtID,
		"creditor_id", debt.CreditorID,
		"debtor_id", debt.DebtorID,
		"currency", debt.Currency,
	)
	c.JSON(http.StatusOK, gin.H{"debt_id": debtID})
}

// List は GET /debts のハンドラーです。
func (h *Handler) List(c *gin.Context, id auth.Identity) {
	debts, err := h.store.ListByUser(c.Request.Context(), id.UserID)
	if err != nil {
		h.internalError(c, "failed to list debts", err)
		return
	}
	c.JSON(http.StatusOK, debts)
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	logging.LogError(c.Request.Context(), h.logger, msg, err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": "サーバー内部でエラーが発生しました",
	})
}
