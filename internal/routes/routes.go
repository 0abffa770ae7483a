package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/billpay/internal/auth"
	"github.com/congo-pay/billpay/internal/config"
	"github.com/congo-pay/billpay/internal/funding"
	"github.com/congo-pay/billpay/internal/ledger"
	"github.com/congo-pay/billpay/internal/locker"
	"github.com/congo-pay/billpay/internal/logging"
	"github.com/congo-pay/billpay/internal/middleware"
	"github.com/congo-pay/billpay/internal/notification"
	"github.com/congo-pay/billpay/internal/payments"
	"github.com/congo-pay/billpay/internal/pin"
	"github.com/congo-pay/billpay/internal/provider"
	"github.com/congo-pay/billpay/internal/transaction"
	"github.com/congo-pay/billpay/internal/wallet"
)

const tokenTTL = time.Hour

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Events notification.Channel
	Logger *slog.Logger

	// Gateway and Partner replace the configured provider clients when set.
	Gateway provider.Gateway
	Partner provider.Partner
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(logging.Component(d.Logger, "http")))

	// Backends
	var (
		ledgerBackend ledger.Ledger
		pinStore      pin.Store
		walletRepo    wallet.Repository
		txRepo        transaction.Repository
	)
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		pinStore = pin.NewPostgresStore(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		txRepo = transaction.NewPostgresRepository(d.DB)
	} else {
		d.Logger.Warn("DATABASE_URL not set, using in-memory stores")
		ledgerBackend = ledger.NewInMemory()
		pinStore = pin.NewMemoryStore()
		walletRepo = wallet.NewMemoryRepository()
		txRepo = transaction.NewMemoryRepository()
	}

	var sagaLock locker.Locker = locker.NewLocal()
	if d.Cache != nil {
		opts := locker.DefaultRedisOptions()
		opts.Expiry = d.Cfg.SagaLockTTL
		sagaLock = locker.NewRedis(d.Cache, opts, logging.Component(d.Logger, "locker"))
	}

	notifier := notification.Multi{notification.NewLoggerNotifier(logging.Component(d.Logger, "notification"))}
	if d.Events != nil {
		notifier = append(notifier, notification.NewAMQPNotifier(d.Events, d.Cfg.ReviewExchange))
	}

	catalog := provider.DefaultCatalog()
	gateway := d.Gateway
	if gateway == nil {
		if d.Cfg.ProviderBaseURL != "" {
			gateway = provider.NewHTTPGateway(catalog, provider.HTTPConfig{
				BaseURL: d.Cfg.ProviderBaseURL,
				Token:   d.Cfg.ProviderToken,
				Timeout: d.Cfg.ProviderTimeout,
			}, logging.Component(d.Logger, "provider"))
		} else {
			d.Logger.Warn("PROVIDER_BASE_URL not set, using the fake provider")
			gateway = provider.NewFakeGateway(nil)
		}
	}
	breaker := provider.NewBreakerGateway(gateway, provider.DefaultBreakerConfig(), logging.Component(d.Logger, "provider"))

	partner := d.Partner
	if partner == nil {
		switch {
		case d.Cfg.PartnerBaseURL != "":
			partner = provider.NewHTTPPartner(provider.PartnerConfig{
				BaseURL:      d.Cfg.PartnerBaseURL,
				Token:        d.Cfg.PartnerToken,
				ContractCode: d.Cfg.PartnerContractCode,
				Timeout:      d.Cfg.ProviderTimeout,
			}, logging.Component(d.Logger, "partner"))
		case d.Cfg.IsDevelopment():
			partner = provider.NewFakePartner()
		}
	}

	// Services and handlers
	pinSvc := pin.NewService(pinStore, pin.Policy{MaxAttempts: d.Cfg.PinMaxAttempts, Lockout: d.Cfg.PinLockout})
	walletSvc := wallet.NewService(walletRepo, ledgerBackend, pinSvc)
	paymentSvc := payments.NewService(payments.Dependencies{
		Ledger:          ledgerBackend,
		Pins:            pinSvc,
		Gateway:         breaker,
		Transactions:    txRepo,
		Accounts:        walletSvc,
		Locker:          sagaLock,
		Notifier:        notifier,
		Logger:          logging.Component(d.Logger, "payments"),
		ProviderTimeout: d.Cfg.ProviderTimeout,
	})
	fundingSvc, err := funding.NewService(funding.Dependencies{
		Ledger:       ledgerBackend,
		Transactions: txRepo,
		Wallets:      walletSvc,
		Partner:      partner,
		Locker:       sagaLock,
		Notifier:     notifier,
		Logger:       logging.Component(d.Logger, "funding"),
	})
	if err != nil {
		return err
	}

	secret := d.Cfg.JWTSecret
	if secret == "" {
		d.Logger.Warn("JWT_SECRET not set, tokens will not survive a restart")
		secret = uuid.NewString()
	}
	authSvc := auth.NewService(secret, d.Cfg.AppName, tokenTTL, walletSvc)

	// Health
	RegisterHealthRoutes(app, d, breaker)

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

	// Protected routes
	protected := api.Group("",
		middleware.JWTAuth(authSvc, walletSvc),
		middleware.Idempotency(d.Cache, middleware.IdempotencyConfig{TTL: d.Cfg.IdempotencyTTL}, d.Logger),
	)
	admin := protected.Group("/admin", middleware.RequireRole(auth.RoleAdmin))
	pinLimiter := middleware.PinAttemptRateLimit(d.Cache, d.Cfg.PinRateLimitPerMin, d.Logger)

	RegisterWalletRoutes(protected, admin, wallet.NewHandler(walletSvc), pin.NewHandler(pinSvc), catalog, pinLimiter)
	RegisterPaymentRoutes(protected, admin, payments.NewHandler(paymentSvc), pinLimiter)
	RegisterFundingRoutes(protected, admin, funding.NewHandler(fundingSvc))
	RegisterAuthRoutes(admin, auth.NewHandler(authSvc))

	return nil
}
