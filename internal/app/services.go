package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/fulfillment/internal/integration"
	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/procurement"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Services is the wired domain layer shared by the API server and the worker.
type Services struct {
	Inventory   *inventory.Service
	Procurement *procurement.Service
	Audit       *shared.AuditLogger
	Idempotency *shared.IdempotencyStore
}

// ServiceDeps carries the infrastructure the domain layer runs on. Redis,
// Queue and Metrics may be nil.
type ServiceDeps struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Queue   integration.AuditQueue
	Metrics procurement.Recorder
}

// BuildServices wires repositories, caches and hooks into the services.
func BuildServices(deps ServiceDeps) *Services {
	cfg := deps.Config
	auditLogger := shared.NewAuditLogger(deps.Pool)
	idempotency := shared.NewIdempotencyStore(deps.Pool)

	inventoryRepo := inventory.NewRepository(deps.Pool, cfg.AllowNegativeStock)
	catalogCache := inventory.NewCache(deps.Redis, cfg.CatalogCacheTTL)
	inventoryService := inventory.NewService(inventoryRepo, catalogCache, auditLogger, deps.Logger)

	hooks := integration.NewHooks(inventoryService, deps.Queue)

	procurementRepo := procurement.NewRepository(deps.Pool, cfg.AllowNegativeStock)
	procurementService := procurement.NewService(procurementRepo, procurement.ServiceConfig{
		ReserveStockOnRequest: cfg.ReserveStockOnRequest,
		CheckStockOnRequest:   cfg.CheckStockOnRequest,
		LockCompletedRequests: cfg.LockCompletedRequests,
	}, auditLogger, idempotency, hooks, deps.Metrics, deps.Logger)

	return &Services{
		Inventory:   inventoryService,
		Procurement: procurementService,
		Audit:       auditLogger,
		Idempotency: idempotency,
	}
}
