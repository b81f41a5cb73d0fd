package procurement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRequest(ctx context.Context, id uuid.UUID) (PurchaseRequest, error)
	ListRequests(ctx context.Context, filter ListFilter) ([]PurchaseRequest, int, error)
	GetOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
	GetReceived(ctx context.Context, id uuid.UUID) (GoodsReceived, error)
	ListReceived(ctx context.Context, filter ListFilter) ([]GoodsReceived, int, error)
}

// TxRepository exposes the reads and writes of one unit of work. Lock* reads
// take row locks that are held until the transaction ends.
type TxRepository interface {
	LockRequest(ctx context.Context, id uuid.UUID) (PurchaseRequest, error)
	InsertRequest(ctx context.Context, pr PurchaseRequest) error
	UpdateRequest(ctx context.Context, pr PurchaseRequest) error
	UpdateRequestLine(ctx context.Context, line RequestLine) error
	ReplaceRequestLines(ctx context.Context, requestID uuid.UUID, lines []RequestLine) error
	CountOrders(ctx context.Context, requestID uuid.UUID) (int, error)
	DeleteRequest(ctx context.Context, id uuid.UUID) error

	LockOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	OrderLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error)
	InsertOrder(ctx context.Context, po PurchaseOrder) error
	UpdateOrder(ctx context.Context, po PurchaseOrder) error
	UpdateOrderLine(ctx context.Context, line OrderLine) error
	ReplaceOrderLines(ctx context.Context, orderID uuid.UUID, lines []OrderLine) error
	CountReceived(ctx context.Context, orderID uuid.UUID) (int, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error

	LockReceived(ctx context.Context, id uuid.UUID) (GoodsReceived, error)
	InsertReceived(ctx context.Context, gr GoodsReceived) error
	UpdateReceived(ctx context.Context, gr GoodsReceived) error
	InsertReceivedLine(ctx context.Context, line ReceivedLine) error
	UpdateReceivedLine(ctx context.Context, line ReceivedLine) error
	DeleteReceivedLine(ctx context.Context, id uuid.UUID) error
	DeleteReceived(ctx context.Context, id uuid.UUID) error

	GetItem(ctx context.Context, itemID uuid.UUID) (CatalogItem, error)
	AdjustStock(ctx context.Context, adj StockAdjustment) error
}

// AuditPort records best-effort audit entries after commits.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort reserves client supplied keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Recorder receives operation metrics.
type Recorder interface {
	ObserveOperation(op string, err error, took time.Duration)
	OverReceived(lines int)
}

// ServiceConfig groups the engine policies.
type ServiceConfig struct {
	// ReserveStockOnRequest decrements stock when a request is created and
	// releases it when the request's lines are replaced or removed. When false
	// stock only moves on goods received.
	ReserveStockOnRequest bool
	// CheckStockOnRequest rejects request lines exceeding current stock.
	// Always enforced under ReserveStockOnRequest.
	CheckStockOnRequest bool
	// LockCompletedRequests rejects line replacement on COMPLETE requests.
	LockCompletedRequests bool
}

// Service runs the quantity-reconciliation engines.
type Service struct {
	repo        RepositoryPort
	cfg         ServiceConfig
	audit       AuditPort
	idempotency IdempotencyPort
	integration IntegrationHandler
	metrics     Recorder
	logger      *slog.Logger
	clock       func() time.Time
}

// NewService constructs the procurement service. audit, idem, integration and
// metrics are optional.
func NewService(repo RepositoryPort, cfg ServiceConfig, audit AuditPort, idem IdempotencyPort, integration IntegrationHandler, metrics Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		cfg:         cfg,
		audit:       audit,
		idempotency: idem,
		integration: integration,
		metrics:     metrics,
		logger:      logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// run executes fn as one unit of work and normalises the resulting error.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context, TxRepository) error) error {
	start := time.Now()
	err := classify(op, s.repo.WithTx(ctx, fn))
	s.observe(op, err, start)
	return err
}

func (s *Service) observe(op string, err error, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, err, time.Since(start))
	}
	var unexpected *UnexpectedError
	if errors.As(err, &unexpected) {
		s.logger.Error("procurement operation failed", slog.String("op", op), slog.Any("error", unexpected.Err))
	}
}

func (s *Service) read(op string, err error) error {
	err = classify(op, err)
	var unexpected *UnexpectedError
	if errors.As(err, &unexpected) {
		s.logger.Error("procurement read failed", slog.String("op", op), slog.Any("error", unexpected.Err))
	}
	return err
}

func (s *Service) now() time.Time {
	return s.clock()
}

func (s *Service) recordAudit(ctx context.Context, action string, entity string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: entity, EntityID: id.String(), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

// validateLines rejects empty batches, non-positive quantities and repeated items.
func validateLines(items []LineInput) error {
	if len(items) == 0 {
		return invalid("at least one item is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if item.ItemID == uuid.Nil {
			return invalid("item id is required")
		}
		if item.Quantity < 1 {
			return invalid("quantity for item %s must be at least 1", item.ItemID)
		}
		if _, dup := seen[item.ItemID]; dup {
			return invalid("item %s listed more than once", item.ItemID)
		}
		seen[item.ItemID] = struct{}{}
	}
	return nil
}

func normaliseFilter(filter ListFilter) ListFilter {
	if filter.Limit <= 0 {
		filter.Limit = shared.DefaultPageSize
	}
	if filter.Limit > shared.MaxPageSize {
		filter.Limit = shared.MaxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return filter
}
