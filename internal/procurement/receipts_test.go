package procurement

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Scenario A: request, partial order, exact receipt.
func TestReceiveExactRemainingCompletesOrder(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	a := env.repo.addItem(0, "5")

	pr := env.mustRequest(t, lines(a, 10))
	require.Equal(t, 10, pr.TotalQty)
	require.Equal(t, RequestWaiting, pr.Status)

	po := env.mustOrder(t, pr.ID, lines(a, 4))
	storedRequest := env.requireRequestConsistent(t, pr.ID)
	require.Equal(t, 6, storedRequest.LeftQty)
	require.Equal(t, RequestPartial, storedRequest.Status)

	gr := env.mustReceive(t, po.ID, lines(a, 4))
	require.Equal(t, 4, gr.TotalQty)

	storedOrder := env.requireOrderConsistent(t, po.ID)
	require.Equal(t, 0, storedOrder.RemainingQty)
	require.Equal(t, OrderComplete, storedOrder.Status)
	require.Equal(t, 4, env.repo.stock(a))

	last := env.repo.state.movements[len(env.repo.state.movements)-1]
	require.Equal(t, RefReceived, last.RefModule)
	require.Equal(t, gr.ID, last.RefID)
	require.Zero(t, env.metrics.over)
}

// Scenario B: receiving more than remains flags OVER and floors the remainder.
func TestReceiveExcessMarksOrderOver(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	a := env.repo.addItem(0, "5")
	pr := env.mustRequest(t, lines(a, 10))
	po := env.mustOrder(t, pr.ID, lines(a, 4))

	env.mustReceive(t, po.ID, lines(a, 6))

	stored := env.requireOrderConsistent(t, po.ID)
	require.Equal(t, 0, stored.RemainingQty)
	require.Equal(t, OrderOver, stored.Status)
	require.Equal(t, 6, env.repo.stock(a), "stock reflects what physically arrived")
	require.Equal(t, 1, env.metrics.over)
	require.True(t, env.events.receipts[0].OverReceived)

	_, err := env.svc.CreateReceived(context.Background(), CreateReceivedInput{PurchaseOrderID: po.ID, Items: lines(a, 1)})
	require.ErrorIs(t, err, ErrConflict)
}

func TestPartialReceiptsAccumulate(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	a := env.repo.addItem(0, "1")
	b := env.repo.addItem(0, "1")
	pr := env.mustRequest(t, lines(a, 5, b, 5))
	po := env.mustOrder(t, pr.ID, lines(a, 5, b, 5))

	env.mustReceive(t, po.ID, lines(a, 2))
	stored := env.requireOrderConsistent(t, po.ID)
	require.Equal(t, 8, stored.RemainingQty)
	require.Equal(t, OrderPartial, stored.Status)

	env.mustReceive(t, po.ID, lines(a, 3, b, 5))
	stored = env.requireOrderConsistent(t, po.ID)
	require.Equal(t, 0, stored.RemainingQty)
	require.Equal(t, OrderComplete, stored.Status)
}

func TestCreateReceivedErrors(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	a := env.repo.addItem(0, "1")
	b := env.repo.addItem(0, "1")
	pr := env.mustRequest(t, lines(a, 5, b, 5))
	po := env.mustOrder(t, pr.ID, lines(a, 5))
	ctx := context.Background()

	_, err := env.svc.CreateReceived(ctx, CreateReceivedInput{PurchaseOrderID: uuid.New(), Items: lines(a, 1)})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.CreateReceived(ctx, CreateReceivedInput{PurchaseOrderID: po.ID, Items: lines(a, 1, b, 1)})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 0, env.repo.stock(a))
	require.Empty(t, env.repo.state.receipts)

	_, err = env.svc.CreateReceived(ctx, CreateReceivedInput{PurchaseOrderID: po.ID})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateReceivedRollsBackWhenStockFails(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	a := env.repo.addItem(0, "1")
	pr := env.mustRequest(t, lines(a, 5))
	po := env.mustOrder(t, pr.ID, lines(a, 5))
	env.repo.failOn = "AdjustStock"

	_, err := env.svc.CreateReceived(context.Background(), CreateReceivedInput{PurchaseOrderID: po.ID, Items: lines(a, 2), IdempotencyKey: "k-1"})
	require.ErrorIs(t, err, ErrUnexpected)

	stored := env.requireOrderConsistent(t, po.ID)
	require.Equal(t, 5, stored.RemainingQty)
	require.Equal(t, OrderWaiting, stored.Status)
	require.Empty(t, env.repo.state.receipts)
	require.Empty(t, env.idem.keys, "key released after failure")

	env.repo.failOn = ""
	_, err = env.svc.CreateReceived(context.Background(), CreateReceivedInput{PurchaseOrderID: po.ID, Items: lines(a, 2), IdempotencyKey: "k-1"})
	require.NoError(t, err)
}

func TestCreateReceivedIdempotencyKey(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	a := env.repo.addItem(0, "1")
	pr := env.mustRequest(t, lines(a, 5))
	po := env.mustOrder(t, pr.ID, lines(a, 5))
	input := CreateReceivedInput{PurchaseOrderID: po.ID, Items: lines(a, 1), IdempotencyKey: "delivery-42"}

	_, err := env.svc.CreateReceived(context.Background(), input)
	require.NoError(t, err)
	_, err = env.svc.CreateReceived(context.Background(), input)
	require.ErrorIs(t, err, ErrConflict)

	require.Len(t, env.repo.state.receipts, 1)
	require.Equal(t, 1, env.repo.stock(a))
}

func TestUpdateReceivedWithSameQuantitiesIsNeutral(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	a := env.repo.addItem(0, "1")
	b := env.repo.addItem(0, "1")
	pr := env.mustRequest(t, lines(a, 5, b, 5))
	po := env.mustOrder(t, pr.ID, lines(a, 5, b, 5))
	gr := env.mustReceive(t, po.ID, lines(a, 2, b, 1))
	before := env.requireOrderConsistent(t, po.ID)

	updated, err := env.svc.UpdateReceived(context.Background(), gr.ID, lines(a, 2, b, 1))
	require.NoError(t, err)
	require.Equal(t, 3, updated.TotalQty)

	after := env.requireOrderConsistent(t, po.ID)
	require.Equal(t, before.RemainingQty, after.RemainingQty)
	require.Equal(t, before.Status, after.Status)
	require.Equal(t, 2, env.repo.stock(a))
	require.Equal(t, 1, env.repo.stock(b))
}

func TestUpdateReceivedAppliesDeltas(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	a := env.repo.addItem(0, "1")
	b := env.repo.addItem(0, "1")
	c := env.repo.addItem(0, "1")
	pr := env.mustRequest(t, lines(a, 5, b, 5, c, 5))
	po := env.mustOrder(t, pr.ID, lines(a, 5, b, 5, c, 5))
	gr := env.mustReceive(t, po.ID, lines(a, 2, b, 3))

	// a goes 2 -> 4, b is dropped, c arrives.
	updated, err := env.svc.UpdateReceived(context.Background(), gr.ID, lines(a, 4, c, 1))
	require.NoError(t, err)
	require.Equal(t, 5, updated.TotalQty)
	require.Len(t, updated.Lines, 2)
	require.Equal(t, a, updated.Lines[0].ItemID)
	require.Equal(t, c, updated.Lines[1].ItemID)

	stored := env.requireOrderConsistent(t, po.ID)
	remaining := map[uuid.UUID]int{}
	for _, line := range stored.Lines {
		remaining[line.ItemID] = line.RemainingQty
	}
	require.Equal(t, map[uuid.UUID]int{a: 1, b: 5, c: 4}, remaining)
	require.Equal(t, OrderPartial, stored.Status)

	require.Equal(t, 4, env.repo.stock(a))
	require.Equal(t, 0, env.repo.stock(b))
	require.Equal(t, 1, env.repo.stock(c))

	reloaded, err := env.svc.FindReceived(context.Background(), gr.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Lines, 2)
	require.Equal(t, 5, reloaded.TotalQty)
}

func TestUpdateReceivedOverDelta(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	a := env.repo.addItem(0, "1")
	pr := env.mustRequest(t, lines(a, 5))
	po := env.mustOrder(t, pr.ID, lines(a, 5))
	gr := env.mustReceive(t, po.ID, lines(a, 3))

	_, err := env.svc.UpdateReceived(context.Background(), gr.ID, lines(a, 7))
	require.NoError(t, err)

	stored := env.requireOrderConsistent(t, po.ID)
	require.Equal(t, OrderOver, stored.Status)
	require.Equal(t, 0, stored.RemainingQty)
	require.Equal(t, 7, env.repo.stock(a))

	_, err = env.svc.UpdateReceived(context.Background(), gr.ID, lines(a, 5))
	require.ErrorIs(t, err, ErrConflict, "closed orders reject corrections")
}

func TestUpdateReceivedErrors(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	a := env.repo.addItem(0, "1")
	b := env.repo.addItem(0, "1")
	pr := env.mustRequest(t, lines(a, 5, b, 5))
	po := env.mustOrder(t, pr.ID, lines(a, 5))
	gr := env.mustReceive(t, po.ID, lines(a, 1))
	ctx := context.Background()

	_, err := env.svc.UpdateReceived(ctx, uuid.New(), lines(a, 1))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.UpdateReceived(ctx, gr.ID, lines(a, 2, b, 1))
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, env.repo.stock(a), "nothing applied before the failure")
}

func TestRemoveReceivedKeepsStockAndRemainders(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	a := env.repo.addItem(0, "1")
	pr := env.mustRequest(t, lines(a, 5))
	po := env.mustOrder(t, pr.ID, lines(a, 5))
	gr := env.mustReceive(t, po.ID, lines(a, 2))
	ctx := context.Background()

	removed, err := env.svc.RemoveReceived(ctx, gr.ID)
	require.NoError(t, err)
	require.Equal(t, gr.ID, removed.ID)

	_, err = env.svc.FindReceived(ctx, gr.ID)
	require.ErrorIs(t, err, ErrNotFound)
	stored, err := env.svc.FindOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.RemainingQty)
	require.Equal(t, 2, env.repo.stock(a))

	_, err = env.svc.RemoveReceived(ctx, gr.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListReceivedByOrder(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	a := env.repo.addItem(0, "1")
	pr := env.mustRequest(t, lines(a, 10))
	first := env.mustOrder(t, pr.ID, lines(a, 5))
	second := env.mustOrder(t, pr.ID, lines(a, 5))
	env.mustReceive(t, first.ID, lines(a, 1))
	env.mustReceive(t, first.ID, lines(a, 1))
	env.mustReceive(t, second.ID, lines(a, 1))

	records, total, err := env.svc.ListReceived(context.Background(), ListFilter{ParentID: first.ID})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, records, 2)

	_, _, err = env.svc.ListReceived(context.Background(), ListFilter{ParentID: first.ID, Status: "COMPLETE"})
	require.ErrorIs(t, err, ErrValidation)
}
