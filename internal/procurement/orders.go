package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateOrder allocates quantities from a request's remaining lines into a new
// purchase order. Every violation is reported together and nothing is written
// when any line cannot be covered.
func (s *Service) CreateOrder(ctx context.Context, requestID uuid.UUID, items []LineInput) (PurchaseOrder, error) {
	if err := validateLines(items); err != nil {
		return PurchaseOrder{}, err
	}
	now := s.now()
	po := PurchaseOrder{
		ID:                uuid.New(),
		PurchaseRequestID: requestID,
		Status:            OrderWaiting,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	var request PurchaseRequest
	err := s.run(ctx, "create order", func(ctx context.Context, tx TxRepository) error {
		pr, err := tx.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if pr.Status == RequestComplete {
			return conflict("purchase request %s is already fulfilled", requestID)
		}

		var violations []QuantityViolation
		lines := make([]OrderLine, 0, len(items))
		for _, item := range items {
			prLine, ok := pr.Line(item.ItemID)
			if !ok {
				return notFound("item %s is not on purchase request %s", item.ItemID, requestID)
			}
			if item.Quantity > prLine.LeftQuantity {
				violations = append(violations, QuantityViolation{ItemID: item.ItemID, Requested: item.Quantity, Available: prLine.LeftQuantity})
				continue
			}
			prLine.LeftQuantity -= item.Quantity
			lines = append(lines, OrderLine{
				ID:           uuid.New(),
				OrderID:      po.ID,
				ItemID:       item.ItemID,
				Quantity:     item.Quantity,
				RemainingQty: item.Quantity,
				Price:        prLine.Price,
			})
		}
		if len(violations) > 0 {
			return &InsufficientQuantityError{Violations: violations}
		}

		for _, item := range items {
			prLine, _ := pr.Line(item.ItemID)
			if err := tx.UpdateRequestLine(ctx, *prLine); err != nil {
				return err
			}
		}
		refreshRequestLeft(&pr)
		pr.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, pr); err != nil {
			return err
		}

		po.Lines = lines
		applyOrderTotals(&po)
		if err := tx.InsertOrder(ctx, po); err != nil {
			return err
		}
		request = pr
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "PO_CREATE", "purchase_order", po.ID, map[string]any{"purchase_request_id": requestID.String(), "total_qty": po.TotalQty})
	s.publishRequest(ctx, RequestChangedEvent{RequestID: request.ID, Op: OpUpdated, Status: request.Status, LeftQty: request.LeftQty})
	s.publishOrder(ctx, OrderChangedEvent{OrderID: po.ID, RequestID: requestID, Op: OpCreated, Status: po.Status})
	return po, nil
}

// UpdateOrder replaces a WAITING order's lines, crediting and debiting the
// parent request's remaining quantities by the difference.
func (s *Service) UpdateOrder(ctx context.Context, id uuid.UUID, items []LineInput) (PurchaseOrder, error) {
	if err := validateLines(items); err != nil {
		return PurchaseOrder{}, err
	}
	var (
		updated PurchaseOrder
		request PurchaseRequest
	)
	err := s.run(ctx, "update order", func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if po.Status != OrderWaiting {
			return fmt.Errorf("%w: purchase order %s is %s", ErrInvalidState, id, po.Status)
		}
		pr, err := tx.LockRequest(ctx, po.PurchaseRequestID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return notFound("purchase request %s of order %s", po.PurchaseRequestID, id)
			}
			return err
		}

		wanted := make(map[uuid.UUID]int, len(items))
		for _, item := range items {
			wanted[item.ItemID] = item.Quantity
		}
		touched := make(map[uuid.UUID]struct{})
		var violations []QuantityViolation

		for _, existing := range po.Lines {
			newQty, keep := wanted[existing.ItemID]
			prLine, ok := pr.Line(existing.ItemID)
			if !ok {
				if keep && newQty != existing.Quantity {
					return notFound("item %s is no longer on purchase request %s", existing.ItemID, pr.ID)
				}
				continue
			}
			switch {
			case !keep:
				prLine.LeftQuantity += existing.Quantity
			case newQty < existing.Quantity:
				prLine.LeftQuantity += existing.Quantity - newQty
			case newQty > existing.Quantity:
				diff := newQty - existing.Quantity
				if diff > prLine.LeftQuantity {
					violations = append(violations, QuantityViolation{ItemID: existing.ItemID, Requested: diff, Available: prLine.LeftQuantity})
					continue
				}
				prLine.LeftQuantity -= diff
			default:
				continue
			}
			touched[existing.ItemID] = struct{}{}
		}

		for _, item := range items {
			if _, exists := po.Line(item.ItemID); exists {
				continue
			}
			prLine, ok := pr.Line(item.ItemID)
			if !ok {
				return notFound("item %s is not on purchase request %s", item.ItemID, pr.ID)
			}
			if item.Quantity > prLine.LeftQuantity {
				violations = append(violations, QuantityViolation{ItemID: item.ItemID, Requested: item.Quantity, Available: prLine.LeftQuantity})
				continue
			}
			prLine.LeftQuantity -= item.Quantity
			touched[item.ItemID] = struct{}{}
		}
		if len(violations) > 0 {
			return &InsufficientQuantityError{Violations: violations}
		}

		lines := make([]OrderLine, 0, len(items))
		for _, item := range items {
			line := OrderLine{
				ID:           uuid.New(),
				OrderID:      id,
				ItemID:       item.ItemID,
				Quantity:     item.Quantity,
				RemainingQty: item.Quantity,
			}
			if existing, ok := po.Line(item.ItemID); ok {
				line.Price = existing.Price
			} else {
				prLine, _ := pr.Line(item.ItemID)
				line.Price = prLine.Price
			}
			lines = append(lines, line)
		}

		for i := range pr.Lines {
			if _, ok := touched[pr.Lines[i].ItemID]; !ok {
				continue
			}
			if err := tx.UpdateRequestLine(ctx, pr.Lines[i]); err != nil {
				return err
			}
		}
		now := s.now()
		refreshRequestLeft(&pr)
		pr.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, pr); err != nil {
			return err
		}

		po.Lines = lines
		applyOrderTotals(&po)
		po.UpdatedAt = now
		if err := tx.ReplaceOrderLines(ctx, id, lines); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, po); err != nil {
			return err
		}
		updated = po
		request = pr
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "PO_UPDATE", "purchase_order", id, map[string]any{"total_qty": updated.TotalQty, "lines": len(updated.Lines)})
	s.publishRequest(ctx, RequestChangedEvent{RequestID: request.ID, Op: OpUpdated, Status: request.Status, LeftQty: request.LeftQty})
	s.publishOrder(ctx, OrderChangedEvent{OrderID: id, RequestID: request.ID, Op: OpUpdated, Status: updated.Status})
	return updated, nil
}

// RemoveOrder deletes an order without receipts. Request quantities are not
// restored.
func (s *Service) RemoveOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	var removed PurchaseOrder
	err := s.run(ctx, "remove order", func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		receipts, err := tx.CountReceived(ctx, id)
		if err != nil {
			return err
		}
		if receipts > 0 {
			return conflict("purchase order %s has %d goods received record(s)", id, receipts)
		}
		if err := tx.DeleteOrder(ctx, id); err != nil {
			return err
		}
		removed = po
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "PO_DELETE", "purchase_order", id, map[string]any{"purchase_request_id": removed.PurchaseRequestID.String()})
	s.publishOrder(ctx, OrderChangedEvent{OrderID: id, RequestID: removed.PurchaseRequestID, Op: OpRemoved, Status: removed.Status})
	return removed, nil
}

// FindOrder loads an order with its lines.
func (s *Service) FindOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	po, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return PurchaseOrder{}, s.read("find order", err)
	}
	return po, nil
}

// ListOrders returns a page of orders, optionally scoped to one request.
func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	if filter.Status != "" && !OrderStatus(filter.Status).Valid() {
		return nil, 0, invalid("unknown order status %q", filter.Status)
	}
	orders, total, err := s.repo.ListOrders(ctx, normaliseFilter(filter))
	if err != nil {
		return nil, 0, s.read("list orders", err)
	}
	return orders, total, nil
}
