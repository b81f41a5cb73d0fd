package procurement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateRequest registers a purchase request with price snapshots taken from
// the catalog. Every line starts fully orderable.
func (s *Service) CreateRequest(ctx context.Context, items []LineInput) (PurchaseRequest, error) {
	if err := validateLines(items); err != nil {
		return PurchaseRequest{}, err
	}
	now := s.now()
	pr := PurchaseRequest{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	err := s.run(ctx, "create request", func(ctx context.Context, tx TxRepository) error {
		lines, err := s.buildRequestLines(ctx, tx, pr.ID, items)
		if err != nil {
			return err
		}
		pr.Lines = lines
		applyRequestTotals(&pr)
		if err := tx.InsertRequest(ctx, pr); err != nil {
			return err
		}
		return s.reserve(ctx, tx, pr.ID, lines, -1)
	})
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.recordAudit(ctx, "PR_CREATE", "purchase_request", pr.ID, map[string]any{"total_qty": pr.TotalQty, "total_price": pr.TotalPrice.String()})
	s.publishRequest(ctx, RequestChangedEvent{RequestID: pr.ID, Op: OpCreated, Status: pr.Status, LeftQty: pr.LeftQty, StockItems: s.reservedItems(pr.Lines)})
	return pr, nil
}

// UpdateRequest replaces the request's item set while no order references it.
// A nil items slice leaves the request untouched.
func (s *Service) UpdateRequest(ctx context.Context, id uuid.UUID, items []LineInput) (PurchaseRequest, error) {
	if items == nil {
		return s.FindRequest(ctx, id)
	}
	if err := validateLines(items); err != nil {
		return PurchaseRequest{}, err
	}
	var (
		updated  PurchaseRequest
		released []RequestLine
	)
	err := s.run(ctx, "update request", func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockRequest(ctx, id)
		if err != nil {
			return err
		}
		if s.cfg.LockCompletedRequests && current.Status == RequestComplete {
			return fmt.Errorf("%w: purchase request %s is complete", ErrInvalidState, id)
		}
		orders, err := tx.CountOrders(ctx, id)
		if err != nil {
			return err
		}
		if orders > 0 {
			return conflict("purchase request %s is referenced by %d purchase order(s)", id, orders)
		}
		released = current.Lines
		if err := s.reserve(ctx, tx, id, current.Lines, 1); err != nil {
			return err
		}
		next, err := s.buildRequestLines(ctx, tx, id, items)
		if err != nil {
			return err
		}
		current.Lines = next
		applyRequestTotals(&current)
		current.UpdatedAt = s.now()
		if err := tx.ReplaceRequestLines(ctx, id, next); err != nil {
			return err
		}
		if err := tx.UpdateRequest(ctx, current); err != nil {
			return err
		}
		if err := s.reserve(ctx, tx, id, next, -1); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.recordAudit(ctx, "PR_UPDATE", "purchase_request", id, map[string]any{"total_qty": updated.TotalQty, "lines": len(updated.Lines)})
	s.publishRequest(ctx, RequestChangedEvent{RequestID: id, Op: OpUpdated, Status: updated.Status, LeftQty: updated.LeftQty, StockItems: s.reservedItems(append(released, updated.Lines...))})
	return updated, nil
}

// RemoveRequest deletes a request that no order references.
func (s *Service) RemoveRequest(ctx context.Context, id uuid.UUID) (PurchaseRequest, error) {
	var removed PurchaseRequest
	err := s.run(ctx, "remove request", func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockRequest(ctx, id)
		if err != nil {
			return err
		}
		orders, err := tx.CountOrders(ctx, id)
		if err != nil {
			return err
		}
		if orders > 0 {
			return conflict("purchase request %s is referenced by %d purchase order(s)", id, orders)
		}
		if err := s.reserve(ctx, tx, id, current.Lines, 1); err != nil {
			return err
		}
		if err := tx.DeleteRequest(ctx, id); err != nil {
			return err
		}
		removed = current
		return nil
	})
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.recordAudit(ctx, "PR_DELETE", "purchase_request", id, nil)
	s.publishRequest(ctx, RequestChangedEvent{RequestID: id, Op: OpRemoved, Status: removed.Status, LeftQty: removed.LeftQty, StockItems: s.reservedItems(removed.Lines)})
	return removed, nil
}

// FindRequest loads a request with its lines.
func (s *Service) FindRequest(ctx context.Context, id uuid.UUID) (PurchaseRequest, error) {
	pr, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return PurchaseRequest{}, s.read("find request", err)
	}
	return pr, nil
}

// ListRequests returns a page of requests and the total match count.
func (s *Service) ListRequests(ctx context.Context, filter ListFilter) ([]PurchaseRequest, int, error) {
	if filter.Status != "" && !RequestStatus(filter.Status).Valid() {
		return nil, 0, invalid("unknown request status %q", filter.Status)
	}
	items, total, err := s.repo.ListRequests(ctx, normaliseFilter(filter))
	if err != nil {
		return nil, 0, s.read("list requests", err)
	}
	return items, total, nil
}

func (s *Service) buildRequestLines(ctx context.Context, tx TxRepository, requestID uuid.UUID, items []LineInput) ([]RequestLine, error) {
	checkStock := s.cfg.CheckStockOnRequest || s.cfg.ReserveStockOnRequest
	lines := make([]RequestLine, 0, len(items))
	for _, item := range items {
		catalog, err := tx.GetItem(ctx, item.ItemID)
		if err != nil {
			return nil, err
		}
		if checkStock && catalog.StockQuantity < item.Quantity {
			return nil, fmt.Errorf("%w: item %s has %d in stock, %d requested", ErrInsufficientStock, item.ItemID, catalog.StockQuantity, item.Quantity)
		}
		lines = append(lines, RequestLine{
			ID:           uuid.New(),
			RequestID:    requestID,
			ItemID:       item.ItemID,
			Quantity:     item.Quantity,
			LeftQuantity: item.Quantity,
			Price:        catalog.Price,
		})
	}
	return lines, nil
}

// reserve moves sign*quantity of stock for every line when reservation is on.
func (s *Service) reserve(ctx context.Context, tx TxRepository, requestID uuid.UUID, lines []RequestLine, sign int) error {
	if !s.cfg.ReserveStockOnRequest {
		return nil
	}
	note := "reserve"
	if sign > 0 {
		note = "release"
	}
	for _, line := range lines {
		adj := StockAdjustment{
			ItemID:    line.ItemID,
			Delta:     sign * line.Quantity,
			RefModule: RefRequest,
			RefID:     requestID,
			Note:      note,
		}
		if err := tx.AdjustStock(ctx, adj); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) reservedItems(lines []RequestLine) []uuid.UUID {
	if !s.cfg.ReserveStockOnRequest {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ItemID]; ok {
			continue
		}
		seen[line.ItemID] = struct{}{}
		ids = append(ids, line.ItemID)
	}
	return ids
}
