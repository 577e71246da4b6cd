package main

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/debt-tracer/internal/accounts"
	"github.com/yourusername/debt-tracer/internal/auth"
	"github.com/yourusername/debt-tracer/internal/ledger"
	"github.com/yourusername/debt-tracer/internal/logging"
	"github.com/yourusername/debt-tracer/internal/session"
)

// server はルーティングに必要な依存をまとめたものです。
type server struct {
	logger       *slog.Logger
	sessionStore *session.Store
	authManager  *auth.Manager
	signUp       *accounts.Handler
	debts        *ledger.Handler
	metrics      http.Handler
}

// resolveSession は Sessions ミドルウェアが載せた Handle を返します。
func resolveSession(c *gin.Context) auth.TypedSession {
	return session.Default(c)
}

// newRouter はミドルウェアを設定したルーターを返します。
func newRouter(s *server, corsAllowedOrigins string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware(s.logger))

	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitOrigins(corsAllowedOrigins)
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	router.Use(session.Sessions(session.DefaultCookieName, s.sessionStore))

	setupRoutes(router, s)
	return router
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.Status(http.StatusOK)
}

// setupRoutes は公開ルートとログイン必須ルートを登録します。
func setupRoutes(router *gin.Engine, s *server) {
	router.GET("/health_check", handleHealth)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}

	router.POST("/signup", s.signUp.SignUp)
	router.POST("/login", s.authManager.Login)

	protected := router.Group("")
	protected.Use(s.authManager.RequireLogin())
	{
		protected.POST("/logout", auth.WithIdentity(s.authManager.Logout))
		protected.GET("/users/me", auth.WithIdentity(auth.Me))
		protected.POST("/debt", auth.WithIdentity(s.debts.Create))
		protected.GET("/debts", auth.WithIdentity(s.debts.List))
	}
}
