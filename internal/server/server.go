package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"cashstore/internal/auth"
	"cashstore/internal/config"
	"cashstore/internal/gamification"
	"cashstore/internal/jobs"
	"cashstore/internal/ledger"
	"cashstore/internal/logger"
	"cashstore/internal/notify"
	"cashstore/internal/reservation"
	"cashstore/internal/streak"
	"cashstore/internal/wallet"
	"cashstore/internal/webhook"
)

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *sqlx.DB
	config *config.Config
}

func New(db *sqlx.DB, cfg *config.Config, notifier *notify.Service, runner *jobs.Runner) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(RateLimitMiddleware(float64(cfg.RateLimitRPS), cfg.RateLimitBurst))

	ledgerRepo := ledger.NewRepository(db)
	walletRepo := wallet.NewRepository(db)
	walletSvc := wallet.NewService(walletRepo, ledgerRepo, cfg.WalletFreshness, cfg.SweepItemTimeout)
	walletHandler := wallet.NewHandler(walletSvc, ledgerRepo)

	webhookRepo := webhook.NewRepository(db, cfg.WebhookRetention)
	webhookSvc := webhook.NewService(webhookRepo, ledgerRepo, cfg.WebhookSecret)
	webhookHandler := webhook.NewHandler(webhookSvc)

	streakRepo := streak.NewRepository(db)
	gamRepo := gamification.NewRepository(db, ledgerRepo)
	gamSvc := gamification.NewService(gamRepo, streakRepo, rewardNotifier{notifier}, cfg.StreakFreeze)
	gamHandler := gamification.NewHandler(gamSvc)

	reservationRepo := reservation.NewRepository(db, ledgerRepo)
	reservationHandler := reservation.NewHandler(reservationRepo, cfg.ReservationTTL)

	router.POST("/webhooks/payment", webhookHandler.HandlePayment)
	router.POST("/auth/refresh", AuthRefresh(cfg.JWTSecret))

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/wallet/balance", walletHandler.GetBalance)
		protected.GET("/wallet/transactions", walletHandler.ListTransactions)
		protected.POST("/wallet/reserve", reservationHandler.Reserve)
		protected.POST("/reservations/:reservationID/capture", reservationHandler.Capture)
		protected.POST("/reservations/:reservationID/release", reservationHandler.Release)
		protected.POST("/events/trigger", gamHandler.TriggerEvent)
		protected.GET("/achievements", gamHandler.ListAchievements)
		protected.POST("/achievements/:code/claim", gamHandler.Claim)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole("admin"))
	{
		admin.POST("/wallets/:userID/reconcile", walletHandler.ReconcileUser)
		admin.POST("/users/:userID/recalculate", gamHandler.Recalculate)
	}

	// Jobs surface is keyed, not user-authenticated, so schedulers can call it.
	adminJobs := router.Group("/admin/jobs")
	adminJobs.Use(auth.RequireAPIKey(cfg.AdminKeyHash))
	{
		adminJobs.GET("", ListJobs(runner))
		adminJobs.POST("/:name/run", TriggerJob(runner))
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())
	SetupSwagger(router)

	registerJobs(runner, cfg, walletSvc, streakRepo, reservationRepo, webhookRepo, ledgerRepo)

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

// registerJobs binds every periodic sweep to the shared single-flight runner.
func registerJobs(
	runner *jobs.Runner,
	cfg *config.Config,
	walletSvc wallet.Service,
	streakRepo *streak.Repository,
	reservationRepo *reservation.Repository,
	webhookRepo *webhook.Repository,
	ledgerRepo *ledger.Repository,
) {
	if runner == nil {
		return
	}

	runner.Register("streak_reset", cfg.StreakResetEvery, func(ctx context.Context) (int, error) {
		n, err := streakRepo.ResetExpired(ctx, time.Now())
		return int(n), err
	})
	runner.Register("reservation_cleanup", cfg.ReservationSweep, func(ctx context.Context) (int, error) {
		return reservationRepo.ReleaseExpired(ctx, time.Now())
	})
	runner.Register("webhook_purge", cfg.WebhookPurgeEvery, func(ctx context.Context) (int, error) {
		n, err := webhookRepo.PurgeExpired(ctx, time.Now())
		return int(n), err
	})
	runner.Register("wallet_sweep", cfg.WalletSweepEvery, func(ctx context.Context) (int, error) {
		stats, err := walletSvc.SweepAll(ctx)
		if stats == nil {
			return 0, err
		}
		return stats.Corrected, err
	})
	runner.Register("coin_expiry", cfg.CoinExpiryEvery, func(ctx context.Context) (int, error) {
		stats, err := ledgerRepo.ExpireCoins(ctx, time.Now())
		if stats == nil {
			return 0, err
		}
		return stats.EntriesMarked, err
	})
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:    ":" + port,
		Handler: s.router,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// rewardNotifier bridges unlock events onto the notification queue.
type rewardNotifier struct {
	svc *notify.Service
}

func (n rewardNotifier) RewardUnlocked(ctx context.Context, userID int, code string, coins int64) {
	if n.svc == nil {
		return
	}
	if err := n.svc.RewardUnlocked(ctx, userID, code, coins); err != nil {
		logger.Error("failed to queue unlock notification", "user_id", userID, "code", code, "error", err)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
