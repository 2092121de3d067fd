package handler

import (
	"wallet-service/internal/adapter/http/middleware"
	redisStore "wallet-service/internal/adapter/storage/redis"
	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc         ports.AuthService
	WalletSvc       ports.WalletService
	DepositSvc      ports.DepositService
	TransferSvc     ports.TransferService
	KeySvc          ports.APIKeyService
	TokenSvc        ports.TokenService
	WebhookVerifier WebhookVerifier
	RateLimitStore  *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers  []ports.HealthChecker
	MetricsRegistry *prometheus.Registry // nil = /metrics disabled
	Logger          zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	if deps.MetricsRegistry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{})))
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.GET("/google", rl("auth"), authHandler.GoogleAuthURL)
		auth.GET("/google/callback", rl("auth"), authHandler.GoogleCallback)
	}

	// Gateway webhook (signature-authenticated, not user-authenticated)
	webhookHandler := NewWebhookHandler(deps.DepositSvc, deps.WebhookVerifier, deps.Logger)
	v1.POST("/webhook/paystack", rl("webhook"), webhookHandler.HandlePaystack)

	// --- Authenticated routes (session JWT or API key) ---
	authn := middleware.Auth(deps.TokenSvc, deps.KeySvc, deps.Logger)
	walletHandler := NewWalletHandler(deps.WalletSvc, deps.DepositSvc, deps.TransferSvc)

	wallet := v1.Group("/wallet", authn)
	{
		wallet.GET("/balance", rl("wallet"), middleware.RequirePermission(deps.KeySvc, domain.PermissionRead), walletHandler.GetBalance)
		wallet.GET("/transactions", rl("wallet"), middleware.RequirePermission(deps.KeySvc, domain.PermissionRead), walletHandler.ListTransactions)
		wallet.POST("/deposit", rl("deposit"), middleware.RequirePermission(deps.KeySvc, domain.PermissionDeposit), walletHandler.InitiateDeposit)
		wallet.GET("/deposit/:reference", rl("wallet"), middleware.RequirePermission(deps.KeySvc, domain.PermissionRead), walletHandler.GetDepositStatus)
		wallet.POST("/transfer", rl("transfer"), middleware.RequirePermission(deps.KeySvc, domain.PermissionTransfer), walletHandler.Transfer)
	}

	// --- Key management (session JWT only) ---
	keyHandler := NewKeyHandler(deps.KeySvc)
	keys := v1.Group("/keys", authn, middleware.SessionOnly())
	{
		keys.POST("", rl("keys"), keyHandler.Create)
		keys.GET("", rl("keys"), keyHandler.List)
		keys.POST("/:id/rollover", rl("keys"), keyHandler.Rollover)
		keys.DELETE("/:id", rl("keys"), keyHandler.Revoke)
	}

	return r
}
