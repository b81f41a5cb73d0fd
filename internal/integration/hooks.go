package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fulfillment/internal/procurement"
)

// CatalogCache drops cached catalog reads after stock moved.
type CatalogCache interface {
	Invalidate(ctx context.Context)
}

// AuditQueue schedules reconciliation checks.
type AuditQueue interface {
	EnqueueReconcileOrder(ctx context.Context, id uuid.UUID) error
	EnqueueReconcileRequest(ctx context.Context, id uuid.UUID) error
}

// Hooks fans committed procurement changes out to the catalog cache and the
// reconciliation queue.
type Hooks struct {
	catalog CatalogCache
	queue   AuditQueue
}

var _ procurement.IntegrationHandler = (*Hooks)(nil)

// NewHooks constructs integration hooks. Either dependency may be nil.
func NewHooks(catalog CatalogCache, queue AuditQueue) *Hooks {
	return &Hooks{catalog: catalog, queue: queue}
}

// HandleRequestChanged invalidates the catalog when a reservation moved stock
// and schedules a check of the request.
func (h *Hooks) HandleRequestChanged(ctx context.Context, evt procurement.RequestChangedEvent) error {
	if h == nil {
		return nil
	}
	if len(evt.StockItems) > 0 {
		h.invalidate(ctx)
	}
	if evt.Op == procurement.OpRemoved {
		return nil
	}
	return h.enqueueRequest(ctx, evt.RequestID)
}

// HandleOrderChanged schedules checks of the order and of the request whose
// left quantities it consumed.
func (h *Hooks) HandleOrderChanged(ctx context.Context, evt procurement.OrderChangedEvent) error {
	if h == nil {
		return nil
	}
	var errs []error
	if evt.Op != procurement.OpRemoved {
		errs = append(errs, h.enqueueOrder(ctx, evt.OrderID))
	}
	errs = append(errs, h.enqueueRequest(ctx, evt.RequestID))
	return errors.Join(errs...)
}

// HandleReceiptPosted invalidates the catalog for moved stock and schedules a
// check of the order.
func (h *Hooks) HandleReceiptPosted(ctx context.Context, evt procurement.ReceiptPostedEvent) error {
	if h == nil {
		return nil
	}
	if len(movedItems(evt.Lines)) > 0 {
		h.invalidate(ctx)
	}
	return h.enqueueOrder(ctx, evt.OrderID)
}

func (h *Hooks) invalidate(ctx context.Context) {
	if h.catalog != nil {
		h.catalog.Invalidate(ctx)
	}
}

func (h *Hooks) enqueueOrder(ctx context.Context, id uuid.UUID) error {
	if h.queue == nil || id == uuid.Nil {
		return nil
	}
	if err := h.queue.EnqueueReconcileOrder(ctx, id); err != nil {
		return fmt.Errorf("integration: enqueue order check %s: %w", id, err)
	}
	return nil
}

func (h *Hooks) enqueueRequest(ctx context.Context, id uuid.UUID) error {
	if h.queue == nil || id == uuid.Nil {
		return nil
	}
	if err := h.queue.EnqueueReconcileRequest(ctx, id); err != nil {
		return fmt.Errorf("integration: enqueue request check %s: %w", id, err)
	}
	return nil
}
