package procurement

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type recordedEvents struct {
	requests []RequestChangedEvent
	orders   []OrderChangedEvent
	receipts []ReceiptPostedEvent
}

func (e *recordedEvents) HandleRequestChanged(ctx context.Context, evt RequestChangedEvent) error {
	e.requests = append(e.requests, evt)
	return nil
}

func (e *recordedEvents) HandleOrderChanged(ctx context.Context, evt OrderChangedEvent) error {
	e.orders = append(e.orders, evt)
	return nil
}

func (e *recordedEvents) HandleReceiptPosted(ctx context.Context, evt ReceiptPostedEvent) error {
	e.receipts = append(e.receipts, evt)
	return nil
}

type recordingMetrics struct {
	ops      map[string]int
	failures map[string]int
	over     int
}

func (m *recordingMetrics) ObserveOperation(op string, err error, _ time.Duration) {
	m.ops[op]++
	if err != nil {
		m.failures[op]++
	}
}

func (m *recordingMetrics) OverReceived(lines int) {
	m.over += lines
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type memoryIdempotency struct {
	keys map[string]struct{}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if _, ok := m.keys[module+":"+key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+":"+key] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key, module string) error {
	delete(m.keys, module+":"+key)
	return nil
}

type testEnv struct {
	svc     *Service
	repo    *memoryProcRepo
	events  *recordedEvents
	metrics *recordingMetrics
	audit   *memoryAudit
	idem    *memoryIdempotency
}

func newTestEnv(t *testing.T, cfg ServiceConfig) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:    newMemoryProcRepo(),
		events:  &recordedEvents{},
		metrics: &recordingMetrics{ops: map[string]int{}, failures: map[string]int{}},
		audit:   &memoryAudit{},
		idem:    &memoryIdempotency{keys: map[string]struct{}{}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.svc = NewService(env.repo, cfg, env.audit, env.idem, env.events, env.metrics, logger)
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env.svc.clock = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return env
}

func lines(pairs ...any) []LineInput {
	out := make([]LineInput, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, LineInput{ItemID: pairs[i].(uuid.UUID), Quantity: pairs[i+1].(int)})
	}
	return out
}

func (env *testEnv) mustRequest(t *testing.T, items []LineInput) PurchaseRequest {
	t.Helper()
	pr, err := env.svc.CreateRequest(context.Background(), items)
	require.NoError(t, err)
	return pr
}

func (env *testEnv) mustOrder(t *testing.T, requestID uuid.UUID, items []LineInput) PurchaseOrder {
	t.Helper()
	po, err := env.svc.CreateOrder(context.Background(), requestID, items)
	require.NoError(t, err)
	return po
}

func (env *testEnv) mustReceive(t *testing.T, orderID uuid.UUID, items []LineInput) GoodsReceived {
	t.Helper()
	gr, err := env.svc.CreateReceived(context.Background(), CreateReceivedInput{PurchaseOrderID: orderID, Items: items})
	require.NoError(t, err)
	return gr
}

// requireRequestConsistent checks the stored request aggregates against its lines.
func (env *testEnv) requireRequestConsistent(t *testing.T, id uuid.UUID) PurchaseRequest {
	t.Helper()
	pr, err := env.svc.FindRequest(context.Background(), id)
	require.NoError(t, err)
	require.Empty(t, CheckRequest(pr))
	return pr
}

func (env *testEnv) requireOrderConsistent(t *testing.T, id uuid.UUID) PurchaseOrder {
	t.Helper()
	po, err := env.svc.FindOrder(context.Background(), id)
	require.NoError(t, err)
	require.Empty(t, CheckOrder(po))
	return po
}
