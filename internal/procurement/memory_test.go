package procurement

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memoryState struct {
	requests     map[uuid.UUID]PurchaseRequest
	requestLines map[uuid.UUID][]RequestLine
	orders       map[uuid.UUID]PurchaseOrder
	orderLines   map[uuid.UUID][]OrderLine
	receipts     map[uuid.UUID]GoodsReceived
	receiptLines map[uuid.UUID][]ReceivedLine
	items        map[uuid.UUID]CatalogItem
	movements    []StockAdjustment
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		requests:     make(map[uuid.UUID]PurchaseRequest, len(s.requests)),
		requestLines: make(map[uuid.UUID][]RequestLine, len(s.requestLines)),
		orders:       make(map[uuid.UUID]PurchaseOrder, len(s.orders)),
		orderLines:   make(map[uuid.UUID][]OrderLine, len(s.orderLines)),
		receipts:     make(map[uuid.UUID]GoodsReceived, len(s.receipts)),
		receiptLines: make(map[uuid.UUID][]ReceivedLine, len(s.receiptLines)),
		items:        make(map[uuid.UUID]CatalogItem, len(s.items)),
		movements:    append([]StockAdjustment(nil), s.movements...),
	}
	for k, v := range s.requests {
		out.requests[k] = v
	}
	for k, v := range s.requestLines {
		out.requestLines[k] = append([]RequestLine(nil), v...)
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	for k, v := range s.orderLines {
		out.orderLines[k] = append([]OrderLine(nil), v...)
	}
	for k, v := range s.receipts {
		out.receipts[k] = v
	}
	for k, v := range s.receiptLines {
		out.receiptLines[k] = append([]ReceivedLine(nil), v...)
	}
	for k, v := range s.items {
		out.items[k] = v
	}
	return out
}

// memoryProcRepo keeps state in maps. WithTx restores a snapshot when the
// callback fails, mirroring a rolled back transaction.
type memoryProcRepo struct {
	mu       sync.Mutex
	state    memoryState
	allowNeg bool
	// failOn makes the named tx method return errInjected.
	failOn string
}

type memoryProcTx struct {
	repo *memoryProcRepo
}

var errInjected = errors.New("injected failure")

func newMemoryProcRepo() *memoryProcRepo {
	return &memoryProcRepo{state: memoryState{}.clone()}
}

func (r *memoryProcRepo) addItem(stock int, price string) uuid.UUID {
	id := uuid.New()
	r.state.items[id] = CatalogItem{ID: id, Price: decimal.RequireFromString(price), StockQuantity: stock}
	return id
}

func (r *memoryProcRepo) stock(id uuid.UUID) int {
	return r.state.items[id].StockQuantity
}

func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	if err := fn(ctx, &memoryProcTx{repo: r}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *memoryProcRepo) GetRequest(ctx context.Context, id uuid.UUID) (PurchaseRequest, error) {
	return r.request(id)
}

func (r *memoryProcRepo) request(id uuid.UUID) (PurchaseRequest, error) {
	pr, ok := r.state.requests[id]
	if !ok {
		return PurchaseRequest{}, notFound("purchase request %s", id)
	}
	pr.Lines = append([]RequestLine(nil), r.state.requestLines[id]...)
	return pr, nil
}

func (r *memoryProcRepo) order(id uuid.UUID) (PurchaseOrder, error) {
	po, ok := r.state.orders[id]
	if !ok {
		return PurchaseOrder{}, notFound("purchase order %s", id)
	}
	po.Lines = append([]OrderLine(nil), r.state.orderLines[id]...)
	return po, nil
}

func (r *memoryProcRepo) received(id uuid.UUID) (GoodsReceived, error) {
	gr, ok := r.state.receipts[id]
	if !ok {
		return GoodsReceived{}, notFound("goods received %s", id)
	}
	gr.Lines = append([]ReceivedLine(nil), r.state.receiptLines[id]...)
	return gr, nil
}

func (r *memoryProcRepo) ListRequests(ctx context.Context, filter ListFilter) ([]PurchaseRequest, int, error) {
	var out []PurchaseRequest
	for id, pr := range r.state.requests {
		if filter.Status != "" && string(pr.Status) != filter.Status {
			continue
		}
		full, _ := r.request(id)
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return page(out, filter), len(out), nil
}

func (r *memoryProcRepo) GetOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return r.order(id)
}

func (r *memoryProcRepo) ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for id, po := range r.state.orders {
		if filter.Status != "" && string(po.Status) != filter.Status {
			continue
		}
		if filter.ParentID != uuid.Nil && po.PurchaseRequestID != filter.ParentID {
			continue
		}
		full, _ := r.order(id)
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return page(out, filter), len(out), nil
}

func (r *memoryProcRepo) GetReceived(ctx context.Context, id uuid.UUID) (GoodsReceived, error) {
	return r.received(id)
}

func (r *memoryProcRepo) ListReceived(ctx context.Context, filter ListFilter) ([]GoodsReceived, int, error) {
	var out []GoodsReceived
	for id, gr := range r.state.receipts {
		if filter.ParentID != uuid.Nil && gr.PurchaseOrderID != filter.ParentID {
			continue
		}
		full, _ := r.received(id)
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return page(out, filter), len(out), nil
}

func page[T any](items []T, filter ListFilter) []T {
	if filter.Offset >= len(items) {
		return nil
	}
	items = items[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(items) {
		items = items[:filter.Limit]
	}
	return items
}

func (tx *memoryProcTx) fail(method string) error {
	if tx.repo.failOn == method {
		return errInjected
	}
	return nil
}

func (tx *memoryProcTx) LockRequest(ctx context.Context, id uuid.UUID) (PurchaseRequest, error) {
	return tx.repo.request(id)
}

func (tx *memoryProcTx) InsertRequest(ctx context.Context, pr PurchaseRequest) error {
	if err := tx.fail("InsertRequest"); err != nil {
		return err
	}
	tx.repo.state.requestLines[pr.ID] = append([]RequestLine(nil), pr.Lines...)
	pr.Lines = nil
	tx.repo.state.requests[pr.ID] = pr
	return nil
}

func (tx *memoryProcTx) UpdateRequest(ctx context.Context, pr PurchaseRequest) error {
	if err := tx.fail("UpdateRequest"); err != nil {
		return err
	}
	pr.Lines = nil
	tx.repo.state.requests[pr.ID] = pr
	return nil
}

func (tx *memoryProcTx) UpdateRequestLine(ctx context.Context, line RequestLine) error {
	lines := tx.repo.state.requestLines[line.RequestID]
	for i := range lines {
		if lines[i].ID == line.ID {
			lines[i].LeftQuantity = line.LeftQuantity
			return nil
		}
	}
	return errors.New("request line missing")
}

func (tx *memoryProcTx) ReplaceRequestLines(ctx context.Context, requestID uuid.UUID, lines []RequestLine) error {
	tx.repo.state.requestLines[requestID] = append([]RequestLine(nil), lines...)
	return nil
}

func (tx *memoryProcTx) CountOrders(ctx context.Context, requestID uuid.UUID) (int, error) {
	n := 0
	for _, po := range tx.repo.state.orders {
		if po.PurchaseRequestID == requestID {
			n++
		}
	}
	return n, nil
}

func (tx *memoryProcTx) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	delete(tx.repo.state.requests, id)
	delete(tx.repo.state.requestLines, id)
	return nil
}

func (tx *memoryProcTx) LockOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return tx.repo.order(id)
}

func (tx *memoryProcTx) OrderLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	return append([]OrderLine(nil), tx.repo.state.orderLines[orderID]...), nil
}

func (tx *memoryProcTx) InsertOrder(ctx context.Context, po PurchaseOrder) error {
	if err := tx.fail("InsertOrder"); err != nil {
		return err
	}
	tx.repo.state.orderLines[po.ID] = append([]OrderLine(nil), po.Lines...)
	po.Lines = nil
	tx.repo.state.orders[po.ID] = po
	return nil
}

func (tx *memoryProcTx) UpdateOrder(ctx context.Context, po PurchaseOrder) error {
	if err := tx.fail("UpdateOrder"); err != nil {
		return err
	}
	po.Lines = nil
	tx.repo.state.orders[po.ID] = po
	return nil
}

func (tx *memoryProcTx) UpdateOrderLine(ctx context.Context, line OrderLine) error {
	lines := tx.repo.state.orderLines[line.OrderID]
	for i := range lines {
		if lines[i].ID == line.ID {
			lines[i].RemainingQty = line.RemainingQty
			return nil
		}
	}
	return errors.New("order line missing")
}

func (tx *memoryProcTx) ReplaceOrderLines(ctx context.Context, orderID uuid.UUID, lines []OrderLine) error {
	tx.repo.state.orderLines[orderID] = append([]OrderLine(nil), lines...)
	return nil
}

func (tx *memoryProcTx) CountReceived(ctx context.Context, orderID uuid.UUID) (int, error) {
	n := 0
	for _, gr := range tx.repo.state.receipts {
		if gr.PurchaseOrderID == orderID {
			n++
		}
	}
	return n, nil
}

func (tx *memoryProcTx) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	delete(tx.repo.state.orders, id)
	delete(tx.repo.state.orderLines, id)
	return nil
}

func (tx *memoryProcTx) LockReceived(ctx context.Context, id uuid.UUID) (GoodsReceived, error) {
	return tx.repo.received(id)
}

func (tx *memoryProcTx) InsertReceived(ctx context.Context, gr GoodsReceived) error {
	if err := tx.fail("InsertReceived"); err != nil {
		return err
	}
	tx.repo.state.receiptLines[gr.ID] = append([]ReceivedLine(nil), gr.Lines...)
	gr.Lines = nil
	tx.repo.state.receipts[gr.ID] = gr
	return nil
}

func (tx *memoryProcTx) UpdateReceived(ctx context.Context, gr GoodsReceived) error {
	gr.Lines = nil
	tx.repo.state.receipts[gr.ID] = gr
	return nil
}

func (tx *memoryProcTx) InsertReceivedLine(ctx context.Context, line ReceivedLine) error {
	tx.repo.state.receiptLines[line.ReceivedID] = append(tx.repo.state.receiptLines[line.ReceivedID], line)
	return nil
}

func (tx *memoryProcTx) UpdateReceivedLine(ctx context.Context, line ReceivedLine) error {
	lines := tx.repo.state.receiptLines[line.ReceivedID]
	for i := range lines {
		if lines[i].ID == line.ID {
			lines[i].Quantity = line.Quantity
			return nil
		}
	}
	return errors.New("received line missing")
}

func (tx *memoryProcTx) DeleteReceivedLine(ctx context.Context, id uuid.UUID) error {
	for receivedID, lines := range tx.repo.state.receiptLines {
		for i := range lines {
			if lines[i].ID == id {
				tx.repo.state.receiptLines[receivedID] = append(lines[:i:i], lines[i+1:]...)
				return nil
			}
		}
	}
	return errors.New("received line missing")
}

func (tx *memoryProcTx) DeleteReceived(ctx context.Context, id uuid.UUID) error {
	delete(tx.repo.state.receipts, id)
	delete(tx.repo.state.receiptLines, id)
	return nil
}

func (tx *memoryProcTx) GetItem(ctx context.Context, itemID uuid.UUID) (CatalogItem, error) {
	item, ok := tx.repo.state.items[itemID]
	if !ok {
		return CatalogItem{}, notFound("item %s", itemID)
	}
	return item, nil
}

func (tx *memoryProcTx) AdjustStock(ctx context.Context, adj StockAdjustment) error {
	if err := tx.fail("AdjustStock"); err != nil {
		return err
	}
	item, ok := tx.repo.state.items[adj.ItemID]
	if !ok {
		return notFound("item %s", adj.ItemID)
	}
	next := item.StockQuantity + adj.Delta
	if next < 0 && !tx.repo.allowNeg {
		return ErrInsufficientStock
	}
	item.StockQuantity = next
	tx.repo.state.items[adj.ItemID] = item
	tx.repo.state.movements = append(tx.repo.state.movements, adj)
	return nil
}
