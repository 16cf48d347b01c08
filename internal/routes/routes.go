package routes

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/smartdustbin/ecorewards/internal/balance"
	"github.com/smartdustbin/ecorewards/internal/bins"
	"github.com/smartdustbin/ecorewards/internal/config"
	"github.com/smartdustbin/ecorewards/internal/deposit"
	"github.com/smartdustbin/ecorewards/internal/impact"
	"github.com/smartdustbin/ecorewards/internal/logging"
	"github.com/smartdustbin/ecorewards/internal/metrics"
	"github.com/smartdustbin/ecorewards/internal/middleware"
	"github.com/smartdustbin/ecorewards/internal/notification"
	"github.com/smartdustbin/ecorewards/internal/offers"
	"github.com/smartdustbin/ecorewards/internal/redemption"
	"github.com/smartdustbin/ecorewards/internal/retry"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Notifier overrides the logger-backed notifier when set.
	Notifier notification.Notifier
}

// handlers groups the HTTP handlers built from the services.
type handlers struct {
	balance     *balance.Handler
	bins        *bins.Handler
	deposits    *deposit.Handler
	offers      *offers.Handler
	redemptions *redemption.Handler
	impact      *impact.Handler
}

// AppConfig is the Fiber configuration the routes are written against.
// Handlers keep caller ids, request ids and path values in stores that outlive
// the request, so Fiber must hand out immutable strings.
func AppConfig(appName string, logger *slog.Logger) fiber.Config {
	if logger == nil {
		logger = logging.Discard()
	}
	return fiber.Config{
		AppName:      appName,
		Immutable:    true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: middleware.ErrorHandler(logger),
	}
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
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

	h, err := build(d)
	if err != nil {
		return err
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(metrics.Middleware())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1", middleware.OperationTimeout(d.Cfg.OperationTimeout))
	api.Get("/ping", ping)

	// Admin routes are registered before the caller group: Fiber runs
	// group middleware in registration order and the caller group is
	// mounted on the whole /api/v1 prefix.
	admin := api.Group("/admin", middleware.APIKey(d.Cfg.AdminAPIKeyHash))
	if d.Cache != nil {
		admin.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterAdminRoutes(admin, h)

	user := api.Group("", middleware.Caller())
	if d.Cache != nil {
		user.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterDepositRoutes(user, h.deposits, middleware.DepositRateLimit(d.Cache, d.Cfg.DepositRateLimit))
	RegisterAccountRoutes(user, h.balance, h.impact)
	RegisterBinRoutes(user, h.bins)
	RegisterRewardRoutes(user, h.offers, h.redemptions)

	return nil
}

// build wires stores and services. Without a database the in-memory stores
// are used, which Setup only allows in dev.
func build(d Deps) (handlers, error) {
	var (
		balanceStore    balance.Store
		binRepo         bins.Repository
		depositStore    deposit.Store
		redemptionStore redemption.Store
	)
	if d.DB != nil {
		balanceStore = balance.NewPostgresStore(d.DB)
		binRepo = bins.NewPostgresRepository(d.DB)
		depositStore = deposit.NewPostgresStore(d.DB)
		redemptionStore = redemption.NewPostgresStore(d.DB)
	} else {
		balanceStore = balance.NewInMemory()
		binRepo = bins.NewMemoryRepository()
		depositStore = deposit.NewMemoryStore()
		redemptionStore = redemption.NewMemoryStore()
	}

	catalog, err := offerCatalog(d)
	if err != nil {
		return handlers{}, err
	}

	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(logging.Component(d.Logger, "notification"))
	}

	stepPolicy := retry.DefaultPolicy()
	if d.Cfg.SagaAttempts > 0 {
		stepPolicy.MaxAttempts = d.Cfg.SagaAttempts
	}

	balanceSvc := balance.NewService(balanceStore, d.Cfg.BalanceAttempts, logging.Component(d.Logger, "balance"))
	binSvc := bins.NewService(binRepo, d.Cfg.BalanceAttempts, logging.Component(d.Logger, "bins"))
	depositSvc := deposit.NewService(depositStore, balanceSvc, binSvc, notifier, stepPolicy, logging.Component(d.Logger, "deposit"))
	redemptionSvc := redemption.NewService(redemptionStore, balanceSvc, catalog, notifier, d.Cfg.RedemptionTTL, logging.Component(d.Logger, "redemption"))
	impactSvc := impact.NewService(balanceSvc, depositSvc, binSvc)

	return handlers{
		balance:     balance.NewHandler(balanceSvc),
		bins:        bins.NewHandler(binSvc),
		deposits:    deposit.NewHandler(depositSvc),
		offers:      offers.NewHandler(catalog),
		redemptions: redemption.NewHandler(redemptionSvc),
		impact:      impact.NewHandler(impactSvc),
	}, nil
}

func offerCatalog(d Deps) (offers.Catalog, error) {
	switch {
	case d.Cfg.OfferCatalogPath != "":
		catalog, err := offers.LoadFile(d.Cfg.OfferCatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load offer catalog: %w", err)
		}
		return catalog, nil
	case d.DB != nil:
		return offers.NewPostgresCatalog(d.DB), nil
	default:
		d.Logger.Warn("no offer catalog configured, redemptions will fail")
		return offers.NewMemoryCatalog()
	}
}

func ping(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":     "ok",
		"request_id": middleware.RequestIDFrom(c),
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
}
