package procurement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

const idempotencyModule = "goods_received"

// CreateReceivedInput carries a receiving event.
type CreateReceivedInput struct {
	PurchaseOrderID uuid.UUID
	Items           []LineInput
	IdempotencyKey  string
}

// CreateReceived consumes order remainders, derives the order status and
// increments stock for every received line.
func (s *Service) CreateReceived(ctx context.Context, input CreateReceivedInput) (GoodsReceived, error) {
	if err := validateLines(input.Items); err != nil {
		return GoodsReceived{}, err
	}
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return GoodsReceived{}, conflict("idempotency key %q already used", input.IdempotencyKey)
			}
			return GoodsReceived{}, s.read("reserve idempotency key", err)
		}
	}

	now := s.now()
	gr := GoodsReceived{
		ID:              uuid.New(),
		PurchaseOrderID: input.PurchaseOrderID,
		TotalQty:        sumInputs(input.Items),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	var (
		order     PurchaseOrder
		overLines int
	)
	err := s.run(ctx, "create goods received", func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockOrder(ctx, input.PurchaseOrderID)
		if err != nil {
			return err
		}
		if po.Status.Closed() {
			return conflict("purchase order %s is %s", po.ID, po.Status)
		}

		overLines = 0
		for _, item := range input.Items {
			line, ok := po.Line(item.ItemID)
			if !ok {
				return notFound("item %s is not on purchase order %s", item.ItemID, po.ID)
			}
			var over bool
			line.RemainingQty, over = Consume(line.RemainingQty, item.Quantity)
			if over {
				overLines++
			}
		}
		for _, item := range input.Items {
			line, _ := po.Line(item.ItemID)
			if err := tx.UpdateOrderLine(ctx, *line); err != nil {
				return err
			}
		}
		if err := s.settleOrder(ctx, tx, &po, overLines > 0, now); err != nil {
			return err
		}

		gr.Lines = make([]ReceivedLine, 0, len(input.Items))
		for _, item := range input.Items {
			gr.Lines = append(gr.Lines, ReceivedLine{ID: uuid.New(), ReceivedID: gr.ID, ItemID: item.ItemID, Quantity: item.Quantity})
		}
		if err := tx.InsertReceived(ctx, gr); err != nil {
			return err
		}
		for _, line := range gr.Lines {
			if err := tx.AdjustStock(ctx, StockAdjustment{ItemID: line.ItemID, Delta: line.Quantity, RefModule: RefReceived, RefID: gr.ID, Note: "receive"}); err != nil {
				return err
			}
		}
		order = po
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, input.IdempotencyKey, idempotencyModule); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", input.IdempotencyKey), slog.Any("error", delErr))
			}
		}
		return GoodsReceived{}, err
	}

	s.noteOverReceipt(order, gr.ID, overLines)
	s.recordAudit(ctx, "GR_CREATE", "goods_received", gr.ID, map[string]any{"purchase_order_id": order.ID.String(), "total_qty": gr.TotalQty, "order_status": string(order.Status)})
	stock := make([]StockLineEvent, 0, len(gr.Lines))
	for _, line := range gr.Lines {
		stock = append(stock, StockLineEvent{ItemID: line.ItemID, Delta: line.Quantity})
	}
	s.publishReceipt(ctx, ReceiptPostedEvent{ReceivedID: gr.ID, OrderID: order.ID, Op: OpCreated, OrderStatus: order.Status, OverReceived: overLines > 0, Lines: stock})
	return gr, nil
}

// UpdateReceived corrects a receipt by applying the per-line difference to the
// order remainders and to stock.
func (s *Service) UpdateReceived(ctx context.Context, id uuid.UUID, items []LineInput) (GoodsReceived, error) {
	if err := validateLines(items); err != nil {
		return GoodsReceived{}, err
	}
	var (
		updated   GoodsReceived
		order     PurchaseOrder
		overLines int
		stock     []StockLineEvent
	)
	err := s.run(ctx, "update goods received", func(ctx context.Context, tx TxRepository) error {
		gr, err := tx.LockReceived(ctx, id)
		if err != nil {
			return err
		}
		po, err := tx.LockOrder(ctx, gr.PurchaseOrderID)
		if err != nil {
			return err
		}
		if po.Status.Closed() {
			return conflict("purchase order %s is %s", po.ID, po.Status)
		}
		for _, item := range items {
			if _, ok := po.Line(item.ItemID); !ok {
				return notFound("item %s is not on purchase order %s", item.ItemID, po.ID)
			}
		}

		wanted := make(map[uuid.UUID]int, len(items))
		for _, item := range items {
			wanted[item.ItemID] = item.Quantity
		}
		existing := make(map[uuid.UUID]ReceivedLine, len(gr.Lines))
		touched := make(map[uuid.UUID]struct{})
		overLines = 0
		stock = stock[:0]

		for _, line := range gr.Lines {
			orderLine, ok := po.Line(line.ItemID)
			if !ok {
				return notFound("item %s is not on purchase order %s", line.ItemID, po.ID)
			}
			newQty, keep := wanted[line.ItemID]
			switch {
			case !keep:
				orderLine.RemainingQty += line.Quantity
				if err := tx.DeleteReceivedLine(ctx, line.ID); err != nil {
					return err
				}
				stock = append(stock, StockLineEvent{ItemID: line.ItemID, Delta: -line.Quantity})
			case newQty != line.Quantity:
				delta := newQty - line.Quantity
				var over bool
				orderLine.RemainingQty, over = Consume(orderLine.RemainingQty, delta)
				if over {
					overLines++
				}
				line.Quantity = newQty
				if err := tx.UpdateReceivedLine(ctx, line); err != nil {
					return err
				}
				stock = append(stock, StockLineEvent{ItemID: line.ItemID, Delta: delta})
			}
			if keep {
				existing[line.ItemID] = line
			}
			touched[line.ItemID] = struct{}{}
		}

		lines := make([]ReceivedLine, 0, len(items))
		for _, item := range items {
			if line, ok := existing[item.ItemID]; ok {
				lines = append(lines, line)
				continue
			}
			orderLine, _ := po.Line(item.ItemID)
			var over bool
			orderLine.RemainingQty, over = Consume(orderLine.RemainingQty, item.Quantity)
			if over {
				overLines++
			}
			line := ReceivedLine{ID: uuid.New(), ReceivedID: id, ItemID: item.ItemID, Quantity: item.Quantity}
			if err := tx.InsertReceivedLine(ctx, line); err != nil {
				return err
			}
			lines = append(lines, line)
			touched[item.ItemID] = struct{}{}
			stock = append(stock, StockLineEvent{ItemID: item.ItemID, Delta: item.Quantity})
		}

		for i := range po.Lines {
			if _, ok := touched[po.Lines[i].ItemID]; !ok {
				continue
			}
			if err := tx.UpdateOrderLine(ctx, po.Lines[i]); err != nil {
				return err
			}
		}
		for _, move := range stock {
			if err := tx.AdjustStock(ctx, StockAdjustment{ItemID: move.ItemID, Delta: move.Delta, RefModule: RefReceived, RefID: id, Note: "correction"}); err != nil {
				return err
			}
		}

		now := s.now()
		if err := s.settleOrder(ctx, tx, &po, overLines > 0, now); err != nil {
			return err
		}
		gr.Lines = lines
		gr.TotalQty = sumInputs(items)
		gr.UpdatedAt = now
		if err := tx.UpdateReceived(ctx, gr); err != nil {
			return err
		}
		updated = gr
		order = po
		return nil
	})
	if err != nil {
		return GoodsReceived{}, err
	}

	s.noteOverReceipt(order, id, overLines)
	s.recordAudit(ctx, "GR_UPDATE", "goods_received", id, map[string]any{"purchase_order_id": order.ID.String(), "total_qty": updated.TotalQty, "order_status": string(order.Status)})
	s.publishReceipt(ctx, ReceiptPostedEvent{ReceivedID: id, OrderID: order.ID, Op: OpUpdated, OrderStatus: order.Status, OverReceived: overLines > 0, Lines: stock})
	return updated, nil
}

// RemoveReceived deletes a receipt. Order remainders and stock are left as is.
func (s *Service) RemoveReceived(ctx context.Context, id uuid.UUID) (GoodsReceived, error) {
	var removed GoodsReceived
	err := s.run(ctx, "remove goods received", func(ctx context.Context, tx TxRepository) error {
		gr, err := tx.LockReceived(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteReceived(ctx, id); err != nil {
			return err
		}
		removed = gr
		return nil
	})
	if err != nil {
		return GoodsReceived{}, err
	}
	s.recordAudit(ctx, "GR_DELETE", "goods_received", id, map[string]any{"purchase_order_id": removed.PurchaseOrderID.String()})
	return removed, nil
}

// FindReceived loads a receipt with its lines.
func (s *Service) FindReceived(ctx context.Context, id uuid.UUID) (GoodsReceived, error) {
	gr, err := s.repo.GetReceived(ctx, id)
	if err != nil {
		return GoodsReceived{}, s.read("find goods received", err)
	}
	return gr, nil
}

// ListReceived returns a page of receipts, optionally scoped to one order.
// Receipts carry no status, so a status filter is rejected.
func (s *Service) ListReceived(ctx context.Context, filter ListFilter) ([]GoodsReceived, int, error) {
	if filter.Status != "" {
		return nil, 0, invalid("goods received cannot be filtered by status %q", filter.Status)
	}
	records, total, err := s.repo.ListReceived(ctx, normaliseFilter(filter))
	if err != nil {
		return nil, 0, s.read("list goods received", err)
	}
	return records, total, nil
}

// settleOrder reloads the order lines, recomputes the remaining total and
// persists the derived status.
func (s *Service) settleOrder(ctx context.Context, tx TxRepository, po *PurchaseOrder, over bool, now time.Time) error {
	lines, err := tx.OrderLines(ctx, po.ID)
	if err != nil {
		return err
	}
	po.Lines = lines
	po.RemainingQty = SumOrderRemaining(lines)
	po.Status = DeriveOrderStatus(po.RemainingQty, over)
	po.UpdatedAt = now
	return tx.UpdateOrder(ctx, *po)
}

func (s *Service) noteOverReceipt(po PurchaseOrder, receivedID uuid.UUID, lines int) {
	if lines == 0 {
		return
	}
	if s.metrics != nil {
		s.metrics.OverReceived(lines)
	}
	s.logger.Warn("over-receipt recorded",
		slog.String("order_id", po.ID.String()),
		slog.String("received_id", receivedID.String()),
		slog.Int("lines", lines),
	)
}
