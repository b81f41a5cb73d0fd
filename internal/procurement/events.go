package procurement

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Change operations reported in events.
const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpRemoved = "removed"
)

// RequestChangedEvent is emitted after a request or its allocation changed.
type RequestChangedEvent struct {
	RequestID uuid.UUID
	Op        string
	Status    RequestStatus
	LeftQty   int
	// StockItems lists items whose stock moved in the same transaction.
	StockItems []uuid.UUID
	At         time.Time
}

// OrderChangedEvent is emitted after an order was created, edited or removed.
type OrderChangedEvent struct {
	OrderID   uuid.UUID
	RequestID uuid.UUID
	Op        string
	Status    OrderStatus
	At        time.Time
}

// StockLineEvent describes one stock movement caused by a receipt.
type StockLineEvent struct {
	ItemID uuid.UUID
	Delta  int
}

// ReceiptPostedEvent is emitted after a goods-received record changed order
// remainders and stock.
type ReceiptPostedEvent struct {
	ReceivedID   uuid.UUID
	OrderID      uuid.UUID
	Op           string
	OrderStatus  OrderStatus
	OverReceived bool
	Lines        []StockLineEvent
	At           time.Time
}

// IntegrationHandler receives procurement events after commit.
type IntegrationHandler interface {
	HandleRequestChanged(ctx context.Context, evt RequestChangedEvent) error
	HandleOrderChanged(ctx context.Context, evt OrderChangedEvent) error
	HandleReceiptPosted(ctx context.Context, evt ReceiptPostedEvent) error
}

func (s *Service) publishRequest(ctx context.Context, evt RequestChangedEvent) {
	if s.integration == nil {
		return
	}
	evt.At = s.now()
	if err := s.integration.HandleRequestChanged(ctx, evt); err != nil {
		s.logger.Warn("request event", slog.String("request_id", evt.RequestID.String()), slog.Any("error", err))
	}
}

func (s *Service) publishOrder(ctx context.Context, evt OrderChangedEvent) {
	if s.integration == nil {
		return
	}
	evt.At = s.now()
	if err := s.integration.HandleOrderChanged(ctx, evt); err != nil {
		s.logger.Warn("order event", slog.String("order_id", evt.OrderID.String()), slog.Any("error", err))
	}
}

func (s *Service) publishReceipt(ctx context.Context, evt ReceiptPostedEvent) {
	if s.integration == nil {
		return
	}
	evt.At = s.now()
	if err := s.integration.HandleReceiptPosted(ctx, evt); err != nil {
		s.logger.Warn("receipt event", slog.String("received_id", evt.ReceivedID.String()), slog.Any("error", err))
	}
}
