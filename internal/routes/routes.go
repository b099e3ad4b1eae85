package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gigpay/gigpay/internal/config"
	"github.com/gigpay/gigpay/internal/escrow"
	"github.com/gigpay/gigpay/internal/ledger"
	"github.com/gigpay/gigpay/internal/middleware"
	"github.com/gigpay/gigpay/internal/notification"
	"github.com/gigpay/gigpay/internal/referral"
	"github.com/gigpay/gigpay/internal/rewards"
	"github.com/gigpay/gigpay/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Storage backends: Postgres when configured, in-memory otherwise.
	var ledgerStore ledger.Store
	var escrowRepo escrow.Repository
	var referralRepo referral.Repository
	var rewardStore rewards.Store
	if d.DB != nil {
		ledgerStore = ledger.NewPostgres(d.DB)
		escrowRepo = escrow.NewPostgresRepository(d.DB)
		referralRepo = referral.NewPostgresRepository(d.DB)
		rewardStore = rewards.NewPostgresStore(d.DB)
	} else {
		ledgerStore = ledger.NewInMemory()
		escrowRepo = escrow.NewMemoryRepository()
		referralRepo = referral.NewMemoryRepository()
		rewardStore = rewards.NewMemoryStore(rewards.DefaultConfigs)
	}

	notifier := notification.NewLoggerNotifier(d.Logger)

	walletSvc := wallet.NewService(ledgerStore, d.Cfg.DefaultCurrency)
	escrowSvc := escrow.NewService(escrowRepo, ledgerStore, notifier, d.Logger, d.Cfg.DefaultCurrency)
	referralEngine := referral.NewEngine(referralRepo, ledgerStore, notifier, d.Logger, d.Cfg.BaseReward, d.Cfg.DefaultCurrency)
	rewardSvc := rewards.NewService(rewardStore, ledgerStore, notifier, d.Logger, d.Cfg.DefaultCurrency)

	walletHandler := wallet.NewHandler(walletSvc)
	escrowHandler := escrow.NewHandler(escrowSvc)
	referralHandler := referral.NewHandler(referralEngine)
	rewardHandler := rewards.NewHandler(rewardSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterJobRoutes(api, escrowHandler)
	RegisterReferralRoutes(api, referralHandler)
	RegisterWalletRoutes(api, walletHandler)
	RegisterRewardRoutes(api, rewardHandler)

	return nil
}
