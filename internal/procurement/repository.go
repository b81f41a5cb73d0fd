package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool     *pgxpool.Pool
	allowNeg bool
}

// NewRepository constructs a repository. allowNegativeStock is forwarded to the
// stock ledger used inside transactions.
func NewRepository(pool *pgxpool.Pool, allowNegativeStock bool) *Repository {
	return &Repository{pool: pool, allowNeg: allowNegativeStock}
}

type txRepo struct {
	tx     pgx.Tx
	ledger *inventory.Ledger
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, ledger: inventory.NewLedger(tx, r.allowNeg)})
	})
}

// Fetch helpers

// GetRequest returns a purchase request with lines.
func (r *Repository) GetRequest(ctx context.Context, id uuid.UUID) (PurchaseRequest, error) {
	return loadRequest(ctx, r.pool, id, false)
}

// ListRequests returns requests ordered by most recent change.
func (r *Repository) ListRequests(ctx context.Context, filter ListFilter) ([]PurchaseRequest, int, error) {
	where, args := listWhere(filter, "")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+` FROM purchase_requests`+where+
		fmt.Sprintf(` ORDER BY updated_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()
	var (
		out []PurchaseRequest
		ids []uuid.UUID
	)
	for rows.Next() {
		pr, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, pr)
		ids = append(ids, pr.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	lines, err := requestLines(ctx, r.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, total, nil
}

// GetOrder returns an order with lines.
func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return loadOrder(ctx, r.pool, id, false)
}

// ListOrders returns orders ordered by most recent change.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	where, args := listWhere(filter, "purchase_request_id")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM purchase_orders`+where+
		fmt.Sprintf(` ORDER BY updated_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var (
		out []PurchaseOrder
		ids []uuid.UUID
	)
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, po)
		ids = append(ids, po.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	lines, err := orderLines(ctx, r.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, total, nil
}

// GetReceived returns a goods-received record with lines.
func (r *Repository) GetReceived(ctx context.Context, id uuid.UUID) (GoodsReceived, error) {
	return loadReceived(ctx, r.pool, id, false)
}

// ListReceived returns receipts ordered by most recent change.
func (r *Repository) ListReceived(ctx context.Context, filter ListFilter) ([]GoodsReceived, int, error) {
	where, args := listWhere(filter, "purchase_order_id")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM goods_received`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count goods received: %w", err)
	}
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+receivedColumns+` FROM goods_received`+where+
		fmt.Sprintf(` ORDER BY updated_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list goods received: %w", err)
	}
	defer rows.Close()
	var (
		out []GoodsReceived
		ids []uuid.UUID
	)
	for rows.Next() {
		gr, err := scanReceived(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, gr)
		ids = append(ids, gr.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	lines, err := receivedLines(ctx, r.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, total, nil
}

// Requests

func (t *txRepo) LockRequest(ctx context.Context, id uuid.UUID) (PurchaseRequest, error) {
	return loadRequest(ctx, t.tx, id, true)
}

func (t *txRepo) InsertRequest(ctx context.Context, pr PurchaseRequest) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_requests (id, total_qty, left_qty, total_price, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, pr.ID, pr.TotalQty, pr.LeftQty, pr.TotalPrice, pr.Status, pr.CreatedAt, pr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return t.insertRequestLines(ctx, pr.Lines)
}

func (t *txRepo) UpdateRequest(ctx context.Context, pr PurchaseRequest) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_requests SET total_qty = $2, left_qty = $3, total_price = $4, status = $5, updated_at = $6 WHERE id = $1`,
		pr.ID, pr.TotalQty, pr.LeftQty, pr.TotalPrice, pr.Status, pr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	return nil
}

func (t *txRepo) UpdateRequestLine(ctx context.Context, line RequestLine) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_request_lines SET left_quantity = $2 WHERE id = $1`, line.ID, line.LeftQuantity)
	if err != nil {
		return fmt.Errorf("update request line: %w", err)
	}
	return nil
}

func (t *txRepo) ReplaceRequestLines(ctx context.Context, requestID uuid.UUID, lines []RequestLine) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM purchase_request_lines WHERE purchase_request_id = $1`, requestID); err != nil {
		return fmt.Errorf("delete request lines: %w", err)
	}
	return t.insertRequestLines(ctx, lines)
}

func (t *txRepo) insertRequestLines(ctx context.Context, lines []RequestLine) error {
	batch := &pgx.Batch{}
	for i, line := range lines {
		batch.Queue(`INSERT INTO purchase_request_lines (id, purchase_request_id, position, item_id, quantity, left_quantity, price)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, line.ID, line.RequestID, i, line.ItemID, line.Quantity, line.LeftQuantity, line.Price)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert request lines: %w", err)
	}
	return nil
}

func (t *txRepo) CountOrders(ctx context.Context, requestID uuid.UUID) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders WHERE purchase_request_id = $1`, requestID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

func (t *txRepo) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM purchase_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	return nil
}

// Orders

func (t *txRepo) LockOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return loadOrder(ctx, t.tx, id, true)
}

func (t *txRepo) OrderLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	lines, err := orderLines(ctx, t.tx, []uuid.UUID{orderID})
	if err != nil {
		return nil, err
	}
	return lines[orderID], nil
}

func (t *txRepo) InsertOrder(ctx context.Context, po PurchaseOrder) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_orders (id, purchase_request_id, total_qty, remaining_qty, total_price, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, po.ID, po.PurchaseRequestID, po.TotalQty, po.RemainingQty, po.TotalPrice, po.Status, po.CreatedAt, po.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return t.insertOrderLines(ctx, po.Lines)
}

func (t *txRepo) UpdateOrder(ctx context.Context, po PurchaseOrder) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET total_qty = $2, remaining_qty = $3, total_price = $4, status = $5, updated_at = $6 WHERE id = $1`,
		po.ID, po.TotalQty, po.RemainingQty, po.TotalPrice, po.Status, po.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

func (t *txRepo) UpdateOrderLine(ctx context.Context, line OrderLine) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_order_lines SET remaining_qty = $2 WHERE id = $1`, line.ID, line.RemainingQty)
	if err != nil {
		return fmt.Errorf("update order line: %w", err)
	}
	return nil
}

func (t *txRepo) ReplaceOrderLines(ctx context.Context, orderID uuid.UUID, lines []OrderLine) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM purchase_order_lines WHERE purchase_order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}
	return t.insertOrderLines(ctx, lines)
}

func (t *txRepo) insertOrderLines(ctx context.Context, lines []OrderLine) error {
	batch := &pgx.Batch{}
	for i, line := range lines {
		batch.Queue(`INSERT INTO purchase_order_lines (id, purchase_order_id, position, item_id, quantity, remaining_qty, price)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, line.ID, line.OrderID, i, line.ItemID, line.Quantity, line.RemainingQty, line.Price)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order lines: %w", err)
	}
	return nil
}

func (t *txRepo) CountReceived(ctx context.Context, orderID uuid.UUID) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM goods_received WHERE purchase_order_id = $1`, orderID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count goods received: %w", err)
	}
	return n, nil
}

func (t *txRepo) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

// Goods received

func (t *txRepo) LockReceived(ctx context.Context, id uuid.UUID) (GoodsReceived, error) {
	return loadReceived(ctx, t.tx, id, true)
}

func (t *txRepo) InsertReceived(ctx context.Context, gr GoodsReceived) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO goods_received (id, purchase_order_id, total_qty, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		gr.ID, gr.PurchaseOrderID, gr.TotalQty, gr.CreatedAt, gr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert goods received: %w", err)
	}
	batch := &pgx.Batch{}
	for i, line := range gr.Lines {
		batch.Queue(`INSERT INTO goods_received_lines (id, goods_received_id, position, item_id, quantity) VALUES ($1, $2, $3, $4, $5)`,
			line.ID, line.ReceivedID, i, line.ItemID, line.Quantity)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert goods received lines: %w", err)
	}
	return nil
}

func (t *txRepo) UpdateReceived(ctx context.Context, gr GoodsReceived) error {
	_, err := t.tx.Exec(ctx, `UPDATE goods_received SET total_qty = $2, updated_at = $3 WHERE id = $1`, gr.ID, gr.TotalQty, gr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update goods received: %w", err)
	}
	return nil
}

func (t *txRepo) InsertReceivedLine(ctx context.Context, line ReceivedLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO goods_received_lines (id, goods_received_id, position, item_id, quantity)
SELECT $1, $2, COALESCE(MAX(position) + 1, 0), $3, $4 FROM goods_received_lines WHERE goods_received_id = $2`,
		line.ID, line.ReceivedID, line.ItemID, line.Quantity)
	if err != nil {
		return fmt.Errorf("insert goods received line: %w", err)
	}
	return nil
}

func (t *txRepo) UpdateReceivedLine(ctx context.Context, line ReceivedLine) error {
	_, err := t.tx.Exec(ctx, `UPDATE goods_received_lines SET quantity = $2 WHERE id = $1`, line.ID, line.Quantity)
	if err != nil {
		return fmt.Errorf("update goods received line: %w", err)
	}
	return nil
}

func (t *txRepo) DeleteReceivedLine(ctx context.Context, id uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM goods_received_lines WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete goods received line: %w", err)
	}
	return nil
}

func (t *txRepo) DeleteReceived(ctx context.Context, id uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM goods_received WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete goods received: %w", err)
	}
	return nil
}

// Catalog and stock

func (t *txRepo) GetItem(ctx context.Context, itemID uuid.UUID) (CatalogItem, error) {
	item, err := t.ledger.Item(ctx, itemID)
	if err != nil {
		if errors.Is(err, inventory.ErrItemNotFound) {
			return CatalogItem{}, notFound("item %s", itemID)
		}
		return CatalogItem{}, err
	}
	return CatalogItem{ID: item.ID, Price: item.Price, StockQuantity: item.Quantity}, nil
}

func (t *txRepo) AdjustStock(ctx context.Context, adj StockAdjustment) error {
	_, err := t.ledger.Adjust(ctx, inventory.Adjustment{
		ItemID:    adj.ItemID,
		Delta:     adj.Delta,
		RefModule: adj.RefModule,
		RefID:     adj.RefID,
		Note:      adj.Note,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, inventory.ErrItemNotFound):
		return notFound("item %s", adj.ItemID)
	case errors.Is(err, inventory.ErrNegativeStock):
		return fmt.Errorf("%w: %v", ErrInsufficientStock, err)
	default:
		return err
	}
}

// Row loading

const (
	requestColumns  = `id, total_qty, left_qty, total_price, status, created_at, updated_at`
	orderColumns    = `id, purchase_request_id, total_qty, remaining_qty, total_price, status, created_at, updated_at`
	receivedColumns = `id, purchase_order_id, total_qty, created_at, updated_at`
)

func scanRequest(row pgx.Row) (PurchaseRequest, error) {
	var pr PurchaseRequest
	err := row.Scan(&pr.ID, &pr.TotalQty, &pr.LeftQty, &pr.TotalPrice, &pr.Status, &pr.CreatedAt, &pr.UpdatedAt)
	return pr, err
}

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.PurchaseRequestID, &po.TotalQty, &po.RemainingQty, &po.TotalPrice, &po.Status, &po.CreatedAt, &po.UpdatedAt)
	return po, err
}

func scanReceived(row pgx.Row) (GoodsReceived, error) {
	var gr GoodsReceived
	err := row.Scan(&gr.ID, &gr.PurchaseOrderID, &gr.TotalQty, &gr.CreatedAt, &gr.UpdatedAt)
	return gr, err
}

func loadRequest(ctx context.Context, q inventory.Querier, id uuid.UUID, lock bool) (PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	pr, err := scanRequest(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRequest{}, notFound("purchase request %s", id)
		}
		return PurchaseRequest{}, fmt.Errorf("load request: %w", err)
	}
	lines, err := requestLines(ctx, q, []uuid.UUID{id})
	if err != nil {
		return PurchaseRequest{}, err
	}
	pr.Lines = lines[id]
	return pr, nil
}

func loadOrder(ctx context.Context, q inventory.Querier, id uuid.UUID, lock bool) (PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	po, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, notFound("purchase order %s", id)
		}
		return PurchaseOrder{}, fmt.Errorf("load order: %w", err)
	}
	lines, err := orderLines(ctx, q, []uuid.UUID{id})
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Lines = lines[id]
	return po, nil
}

func loadReceived(ctx context.Context, q inventory.Querier, id uuid.UUID, lock bool) (GoodsReceived, error) {
	query := `SELECT ` + receivedColumns + ` FROM goods_received WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	gr, err := scanReceived(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceived{}, notFound("goods received %s", id)
		}
		return GoodsReceived{}, fmt.Errorf("load goods received: %w", err)
	}
	lines, err := receivedLines(ctx, q, []uuid.UUID{id})
	if err != nil {
		return GoodsReceived{}, err
	}
	gr.Lines = lines[id]
	return gr, nil
}

func requestLines(ctx context.Context, q inventory.Querier, ids []uuid.UUID) (map[uuid.UUID][]RequestLine, error) {
	out := make(map[uuid.UUID][]RequestLine, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT id, purchase_request_id, item_id, quantity, left_quantity, price
FROM purchase_request_lines WHERE purchase_request_id = ANY($1) ORDER BY purchase_request_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("load request lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line RequestLine
		if err := rows.Scan(&line.ID, &line.RequestID, &line.ItemID, &line.Quantity, &line.LeftQuantity, &line.Price); err != nil {
			return nil, err
		}
		out[line.RequestID] = append(out[line.RequestID], line)
	}
	return out, rows.Err()
}

func orderLines(ctx context.Context, q inventory.Querier, ids []uuid.UUID) (map[uuid.UUID][]OrderLine, error) {
	out := make(map[uuid.UUID][]OrderLine, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT id, purchase_order_id, item_id, quantity, remaining_qty, price
FROM purchase_order_lines WHERE purchase_order_id = ANY($1) ORDER BY purchase_order_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Quantity, &line.RemainingQty, &line.Price); err != nil {
			return nil, err
		}
		out[line.OrderID] = append(out[line.OrderID], line)
	}
	return out, rows.Err()
}

func receivedLines(ctx context.Context, q inventory.Querier, ids []uuid.UUID) (map[uuid.UUID][]ReceivedLine, error) {
	out := make(map[uuid.UUID][]ReceivedLine, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT id, goods_received_id, item_id, quantity
FROM goods_received_lines WHERE goods_received_id = ANY($1) ORDER BY goods_received_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("load goods received lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line ReceivedLine
		if err := rows.Scan(&line.ID, &line.ReceivedID, &line.ItemID, &line.Quantity); err != nil {
			return nil, err
		}
		out[line.ReceivedID] = append(out[line.ReceivedID], line)
	}
	return out, rows.Err()
}

// listWhere builds the WHERE clause for status and parent filters.
func listWhere(filter ListFilter, parentColumn string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if parentColumn != "" && filter.ParentID != uuid.Nil {
		args = append(args, filter.ParentID)
		conds = append(conds, fmt.Sprintf("%s = $%d", parentColumn, len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
