package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	GetItem(ctx context.Context, id uuid.UUID) (Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error)
	CreateItem(ctx context.Context, item Item) (Item, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ItemPage is a cached catalog listing.
type ItemPage struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

// Service coordinates cached catalog reads. Stock itself only moves through
// the procurement engine's transactions.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service. cache and audit may be nil.
func NewService(repo RepositoryPort, cache *Cache, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// GetItem returns one item through the cache.
func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (Item, error) {
	key, err := s.cache.BuildKey(ctx, "item", id.String())
	if err != nil {
		s.logger.Warn("catalog cache key", slog.Any("error", err))
		return s.repo.GetItem(ctx, id)
	}
	var item Item
	err = s.cache.FetchJSON(ctx, key, &item, func(ctx context.Context) (any, error) {
		return s.repo.GetItem(ctx, id)
	})
	return item, err
}

// ListItems returns a catalog page through the cache.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	if filter.Limit <= 0 || filter.Limit > shared.MaxPageSize {
		filter.Limit = shared.DefaultPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Search = strings.TrimSpace(filter.Search)
	key, err := s.cache.BuildKey(ctx, "items", filter.Search, strconv.Itoa(filter.Limit), strconv.Itoa(filter.Offset))
	if err != nil {
		s.logger.Warn("catalog cache key", slog.Any("error", err))
		return s.repo.ListItems(ctx, filter)
	}
	var page ItemPage
	err = s.cache.FetchJSON(ctx, key, &page, func(ctx context.Context) (any, error) {
		items, total, err := s.repo.ListItems(ctx, filter)
		if err != nil {
			return nil, err
		}
		return ItemPage{Items: items, Total: total}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return page.Items, page.Total, nil
}

// ListMovements returns the stock card of one item.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ItemID == uuid.Nil {
		return nil, ErrItemNotFound
	}
	if filter.Limit <= 0 || filter.Limit > shared.MaxPageSize {
		filter.Limit = shared.MaxPageSize
	}
	if _, err := s.repo.GetItem(ctx, filter.ItemID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, filter)
}

// CreateItem adds a catalog item with its opening stock. Used by seed
// tooling; the HTTP API does not expose it.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Item{}, ErrInvalidName
	}
	if input.Price.IsNegative() {
		return Item{}, ErrInvalidPrice
	}
	if input.Quantity < 0 {
		return Item{}, ErrNegativeStock
	}
	if input.Unit == "" {
		input.Unit = "pcs"
	}
	item, err := s.repo.CreateItem(ctx, Item{
		ID:       uuid.New(),
		Name:     input.Name,
		Unit:     input.Unit,
		Price:    input.Price,
		Quantity: input.Quantity,
	})
	if err != nil {
		return Item{}, err
	}
	s.Invalidate(ctx)
	s.record(ctx, "ITEM_CREATE", item.ID, map[string]any{"name": item.Name, "quantity": item.Quantity})
	return item, nil
}

// Invalidate drops every cached catalog read.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("catalog cache bump", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "item", EntityID: id.String(), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", fmt.Errorf("inventory: %w", err)))
	}
}
